package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"whisperer/internal/config"
	"whisperer/internal/jsonpath"
)

// Client posts multipart uploads to an OpenAI-compatible transcription
// endpoint and extracts text with a JSON path.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	extra      map[string]any
	log        *slog.Logger
}

// NewClient creates an HTTP client and parses ExtraConfig.
func NewClient(cfg config.Config, httpClient *http.Client) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        slog.Default().With("component", "asr", "provider", "http"),
	}
	if cfg.ExtraConfig != "" {
		if err := json.Unmarshal([]byte(cfg.ExtraConfig), &c.extra); err != nil {
			return nil, fmt.Errorf("invalid extra-config JSON: %w", err)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return c, nil
}

// Transcribe uploads the audio and returns extracted text and raw JSON.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, []byte, error) {
	if c.cfg.APIEndpoint == "" {
		return "", nil, errors.New("API endpoint is empty")
	}
	return retry(ctx, c.log, c.cfg.MaxRetry, c.cfg.RetryBaseDelay, func(ctx context.Context) (string, []byte, error) {
		raw, err := c.upload(ctx, filePath)
		if err != nil {
			return "", raw, err
		}
		return jsonpath.Text(raw, c.cfg.TEXTPath), raw, nil
	})
}

func (c *Client) fields() map[string]any {
	base := make(map[string]any)
	if c.cfg.Model != "" {
		base["model"] = c.cfg.Model
	}
	if c.cfg.Language != "" {
		base["language"] = c.cfg.Language
	}
	if c.cfg.Prompt != "" {
		base["prompt"] = c.cfg.Prompt
	}
	for k, v := range c.extra {
		base[k] = v
	}
	return base
}

func (c *Client) body(filePath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", &permanentError{fmt.Errorf("open %s: %w", filePath, err)}
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	for k, v := range c.fields() {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case bool:
			s = strconv.FormatBool(val)
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, "", fmt.Errorf("encode field %s: %w", k, err)
			}
			s = string(b)
		}
		if err := w.WriteField(k, s); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func (c *Client) upload(ctx context.Context, filePath string) ([]byte, error) {
	body, contentType, err := c.body(filePath)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIEndpoint, body)
	if err != nil {
		return nil, &permanentError{err}
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("User-Agent", "whisperer/1.0")

	c.log.Debug("uploading", "file", filePath, "endpoint", c.cfg.APIEndpoint)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	c.log.Debug("upload finished", "status", resp.StatusCode, "elapsed", time.Since(start))
	if err != nil {
		return raw, err
	}
	if resp.StatusCode != http.StatusOK {
		return raw, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return raw, nil
}
