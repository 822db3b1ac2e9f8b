package asr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"whisperer/internal/config"
)

// OpenAIClient transcribes through the go-openai SDK. Groq and other
// OpenAI-compatible services work by pointing API_ENDPOINT at their base URL.
type OpenAIClient struct {
	cfg    config.Config
	client *openai.Client
	log    *slog.Logger
}

// NewOpenAIClient creates an SDK-backed transcriber. A full
// ".../audio/transcriptions" endpoint is trimmed to its base URL.
func NewOpenAIClient(cfg config.Config, httpClient *http.Client) (*OpenAIClient, error) {
	oc := openai.DefaultConfig(cfg.Token)
	if base := BaseURL(cfg.APIEndpoint); base != "" {
		oc.BaseURL = base
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
		log:    slog.Default().With("component", "asr", "provider", "openai"),
	}, nil
}

// BaseURL strips a trailing transcription route from endpoint.
func BaseURL(endpoint string) string {
	e := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(e, "/audio/transcriptions")
}

// Transcribe uploads filePath and returns the transcript text.
func (c *OpenAIClient) Transcribe(ctx context.Context, filePath string) (string, []byte, error) {
	return retry(ctx, c.log, c.cfg.MaxRetry, c.cfg.RetryBaseDelay, func(ctx context.Context) (string, []byte, error) {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.cfg.Model,
			FilePath: filePath,
			Language: c.cfg.Language,
			Prompt:   c.cfg.Prompt,
			Format:   openai.AudioResponseFormatJSON,
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != http.StatusTooManyRequests {
				return "", nil, &permanentError{err}
			}
			return "", nil, err
		}
		raw, _ := json.Marshal(resp)
		return resp.Text, raw, nil
	})
}
