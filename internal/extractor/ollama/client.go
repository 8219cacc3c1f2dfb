// Package ollama talks to an OpenAI-compatible chat completions
// endpoint, which is what a local Ollama server exposes under /v1.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/civicsignal/civicledger/internal/civic"
)

// Config holds the backend connection settings.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
}

// Client implements civic.Generator against a chat completions API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ civic.Generator = (*Client)(nil)

// New builds a Client. BaseURL defaults to a local Ollama server.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends prompt as a single user message and returns the
// model's reply text. Connection and server-side failures surface as
// backend-unavailable extraction errors so the pipeline leaves the
// article unprocessed for a later batch.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: "backend unreachable",
			Err:    err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: "read response",
			Err:    err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: fmt.Sprintf("backend returned %d", resp.StatusCode),
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: "decode response",
			Err:    err,
		}
	}
	if parsed.Error != nil {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: parsed.Error.Message,
		}
	}
	if len(parsed.Choices) == 0 {
		return "", &civic.ExtractionError{
			Kind:   civic.ExtractionBackendUnavailable,
			Detail: "empty choices",
		}
	}
	return parsed.Choices[0].Message.Content, nil
}
