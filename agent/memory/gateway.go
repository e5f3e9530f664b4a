package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

// GatewayConfig tunes the gateway-side bounds. The call timeout is
// deliberately shorter than generation timeouts so memory never blocks
// request completion for long.
type GatewayConfig struct {
	Window  int           `envconfig:"WINDOW" split_words:"true" default:"10"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"1h"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// cacheStore is the volatile half of the gateway.
type cacheStore interface {
	Put(ctx context.Context, ex contractx.Exchange, ttl time.Duration) error
	Entries(ctx context.Context, requesterID string) ([]contractx.Exchange, error)
}

// durableStore is the append log, the source of truth for history.
type durableStore interface {
	Append(ctx context.Context, ex contractx.Exchange) error
	Recent(ctx context.Context, requesterID string, window int) ([]contractx.Exchange, error)
}

// Gateway implements contract.Memory over the TTL cache and the durable log.
// Either half may be nil or unavailable; reads degrade to whatever is
// reachable and writes are at-least-once. No consistency between the halves
// is assumed: the cache is a latency optimization only.
type Gateway struct {
	cache   cacheStore
	durable durableStore
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
}

var _ contractx.Memory = (*Gateway)(nil)

func NewGateway(cache *RedisCache, durable *DurableLog, cfg GatewayConfig) *Gateway {
	g := &Gateway{
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
		logger:  log.With().Str("component", "memory_gateway").Logger(),
	}
	if g.ttl <= 0 {
		g.ttl = time.Hour
	}
	if g.timeout <= 0 {
		g.timeout = 5 * time.Second
	}
	// keep typed nils out of the interface fields
	if cache != nil {
		g.cache = cache
	}
	if durable != nil {
		g.durable = durable
	}
	return g
}

// Recent merges the durable slice with any fresher cache entries. Store
// unavailability yields an empty result, never an error.
func (g *Gateway) Recent(ctx context.Context, requesterID string, window int) ([]contractx.Exchange, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out []contractx.Exchange
	if g.durable != nil {
		got, err := g.durable.Recent(ctx, requesterID, window)
		if err != nil {
			g.logger.Warn().Err(err).Msg("durable log read failed")
		} else {
			out = got
		}
	}

	if g.cache != nil {
		cached, err := g.cache.Entries(ctx, requesterID)
		if err != nil {
			g.logger.Warn().Err(err).Msg("cache read failed")
		} else {
			out = append(out, missingFrom(out, cached)...)
		}
	}
	return out, nil
}

// Append writes to both halves. The cache write is best-effort; a durable
// write failure is reported so callers can log it, but callers treat the
// whole operation as non-fatal.
func (g *Gateway) Append(ctx context.Context, requesterID string, responder contractx.Label, text string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if ttl <= 0 {
		ttl = g.ttl
	}
	ex := contractx.Exchange{
		RequesterID: requesterID,
		Responder:   responder,
		Text:        text,
		At:          time.Now().UTC(),
	}

	// cache keys are per responder label; entries under other labels (the
	// final composite, say) would never be read back, so they skip the cache
	if g.cache != nil && responder.Known() {
		if err := g.cache.Put(ctx, ex, ttl); err != nil {
			g.logger.Warn().Err(err).Str("responder", string(responder)).Msg("cache write failed")
		}
	}

	if g.durable == nil {
		return nil
	}
	if err := g.durable.Append(ctx, ex); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}
	return nil
}

// missingFrom returns cache entries not already present in the durable slice,
// comparing by responder and text.
func missingFrom(have, candidates []contractx.Exchange) []contractx.Exchange {
	extra := make([]contractx.Exchange, 0, len(candidates))
	for _, c := range candidates {
		found := false
		for _, h := range have {
			if h.Responder == c.Responder && h.Text == c.Text {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, c)
		}
	}
	return extra
}
