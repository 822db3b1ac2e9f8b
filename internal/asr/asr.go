// Package asr uploads finished recordings to a speech-to-text service.
package asr

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/http2"

	"whisperer/internal/config"
)

// Transcriber turns an audio file into text. raw is the provider response
// body, kept for the cache.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (text string, raw []byte, err error)
}

// RetryExhaustedError is returned after every attempt failed.
type RetryExhaustedError struct {
	Attempts int
	MaxRetry int
	Last     []byte
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exceeded max retries (%d): %v", e.MaxRetry, e.Err)
	}
	return fmt.Sprintf("exceeded max retries (%d): %s", e.MaxRetry, formatResponse(e.Last))
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// permanentError stops the retry loop immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// New returns the transcriber selected by cfg.Provider.
func New(cfg config.Config, httpClient *http.Client) (Transcriber, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "http":
		c, err := NewClient(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "openai":
		c, err := NewOpenAIClient(cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
}

// NewHTTPClient builds the shared upload client.
func NewHTTPClient(cfg config.Config) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			slog.Warn("http2 unavailable; using HTTP/1.1", "component", "asr", "err", err)
		}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
	}
}

type attemptFunc func(ctx context.Context) (string, []byte, error)

// retry runs fn up to maxRetry times with exponential backoff starting at
// baseDelay seconds.
func retry(ctx context.Context, log *slog.Logger, maxRetry int, baseDelay float64, fn attemptFunc) (string, []byte, error) {
	if maxRetry < 1 {
		maxRetry = 1
	}
	delay := time.Duration(baseDelay * float64(time.Second))
	var last []byte
	var lastErr error
	for try := 1; ; try++ {
		text, raw, err := fn(ctx)
		if err == nil {
			return text, raw, nil
		}
		last, lastErr = raw, err

		var perm *permanentError
		if errors.As(err, &perm) {
			return "", raw, perm.err
		}
		if ctx.Err() != nil {
			return "", raw, ctx.Err()
		}
		log.Warn("upload attempt failed", "attempt", try, "err", err, "response", formatResponse(raw))
		if try >= maxRetry {
			return "", last, &RetryExhaustedError{Attempts: try, MaxRetry: maxRetry, Last: last, Err: lastErr}
		}

		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", last, ctx.Err()
			case <-t.C:
			}
		}
		delay *= 2
	}
}

func formatResponse(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		if len(b) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", b[:maxText], len(b))
		}
		return string(b)
	}
	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
