// Package ollama implements the generation-service contract against a local
// Ollama server's REST API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

const maxResponseSizeBytes = 4 << 20

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:11434"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"llama3:latest"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"120s"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" split_words:"true" default:"1000"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
}

// Client is a stateless request/response completion client. Every failure is
// classified into exactly one contract.FailKind at this boundary.
type Client struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ contractx.Generator = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ollama base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type generatePayload struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateReply struct {
	Response string `json:"response"`
}

func (c *Client) Generate(ctx context.Context, req contractx.GenerateRequest) (string, error) {
	payload := generatePayload{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			NumPredict:  c.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &contractx.GenerateError{Kind: contractx.FailMalformed, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &contractx.GenerateError{Kind: contractx.FailUnavailable, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &contractx.GenerateError{Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", &contractx.GenerateError{Kind: contractx.FailUnavailable, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &contractx.GenerateError{
			Kind: contractx.FailUnavailable,
			Err:  fmt.Errorf("ollama http status=%d body=%s", resp.StatusCode, truncateBody(raw)),
		}
	}

	var reply generateReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", &contractx.GenerateError{Kind: contractx.FailMalformed, Err: err}
	}
	text := strings.TrimSpace(reply.Response)
	if text == "" {
		return "", &contractx.GenerateError{
			Kind: contractx.FailMalformed,
			Err:  errors.New("empty response field"),
		}
	}
	return text, nil
}

// IsAvailable probes the server's tag listing endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func classifyTransportError(err error) contractx.FailKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return contractx.FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contractx.FailTimeout
	}
	return contractx.FailUnavailable
}

func truncateBody(raw []byte) string {
	const max = 256
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
