package contract

import (
	"context"
	"time"
)

// Generator is the generation-service collaborator: a stateless
// request/response text completion. Failed calls return a *GenerateError
// classifying the fault as timeout, malformed, or unavailable.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Memory is the gateway over the volatile TTL cache and the durable append
// log, both keyed by requester identity. Implementations tolerate store
// unavailability: Recent returns an empty slice, Append is at-least-once and
// safe to retry with identical content.
type Memory interface {
	Recent(ctx context.Context, requesterID string, window int) ([]Exchange, error)
	Append(ctx context.Context, requesterID string, responder Label, text string, ttl time.Duration) error
}
