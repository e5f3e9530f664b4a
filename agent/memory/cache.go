package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

const (
	defaultCacheKeyPrefix = "wayfinder:stm:"
	maxResponseSizeBytes  = 2 << 20
)

// CacheConfig configures the Upstash Redis REST cache.
type CacheConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// CacheOption customizes RedisCache.
type CacheOption func(*RedisCache)

func WithKeyPrefix(prefix string) CacheOption {
	return func(c *RedisCache) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			c.keyPrefix = trimmed
		}
	}
}

func WithHTTPClient(client *http.Client) CacheOption {
	return func(c *RedisCache) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// RedisCache holds the volatile, TTL-bounded side of the memory gateway in
// Upstash Redis via its REST API. One key per (requester, responder) pair.
type RedisCache struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewRedisCache(cfg CacheConfig, opts ...CacheOption) (*RedisCache, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cache := &RedisCache{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultCacheKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

// Put stores one exchange under the (requester, responder) key with a TTL.
// Rewrites with identical content are harmless, so at-least-once callers can
// retry freely.
func (c *RedisCache) Put(ctx context.Context, ex contractx.Exchange, ttl time.Duration) error {
	if strings.TrimSpace(ex.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is empty", contractx.ErrValidation)
	}
	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	cmd := []any{"SET", c.key(ex.RequesterID, ex.Responder), string(payload)}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}
	_, err = c.exec(ctx, cmd)
	return err
}

// Entries returns the cached exchange per responder for a requester. Missing
// keys are skipped; a malformed entry is dropped rather than failing the read.
func (c *RedisCache) Entries(ctx context.Context, requesterID string) ([]contractx.Exchange, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: requester id is empty", contractx.ErrValidation)
	}

	out := make([]contractx.Exchange, 0, len(contractx.AllLabels))
	for _, label := range contractx.AllLabels {
		resp, err := c.exec(ctx, []any{"GET", c.key(requesterID, label)})
		if err != nil {
			return out, err
		}
		result := bytes.TrimSpace(resp.Result)
		if len(result) == 0 || bytes.Equal(result, []byte("null")) {
			continue
		}
		var encoded string
		if err := json.Unmarshal(result, &encoded); err != nil {
			continue
		}
		var ex contractx.Exchange
		if err := json.Unmarshal([]byte(encoded), &ex); err != nil {
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func (c *RedisCache) key(requesterID string, label contractx.Label) string {
	return c.keyPrefix + requesterID + ":" + string(label)
}

func (c *RedisCache) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
