// Package openaicompat implements the generation-service contract against
// any OpenAI-compatible chat completion API (OpenAI, OpenRouter, and friends).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxTokens   int64         `envconfig:"MAX_TOKENS" split_words:"true" default:"1000"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	// OpenRouter attribution headers, optional.
	SiteURL  string `envconfig:"SITE_URL" split_words:"true"`
	SiteName string `envconfig:"SITE_NAME" split_words:"true"`
}

type Client struct {
	api         openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

var _ contractx.Generator = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	return &Client{
		api:         openaisdk.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Generate(ctx context.Context, req contractx.GenerateRequest) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openaisdk.SystemMessage(req.System))
	}
	messages = append(messages, openaisdk.UserMessage(req.Prompt))

	resp, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.model,
		Temperature:         openaisdk.Float(c.temperature),
		MaxCompletionTokens: openaisdk.Int(c.maxTokens),
	})
	if err != nil {
		return "", &contractx.GenerateError{Kind: classifyError(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &contractx.GenerateError{
			Kind: contractx.FailMalformed,
			Err:  errors.New("no choices returned"),
		}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &contractx.GenerateError{
			Kind: contractx.FailMalformed,
			Err:  fmt.Errorf("empty completion for model=%s", c.model),
		}
	}
	return text, nil
}

func classifyError(err error) contractx.FailKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return contractx.FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contractx.FailTimeout
	}
	return contractx.FailUnavailable
}
