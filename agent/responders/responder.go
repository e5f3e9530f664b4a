package responders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	statex "github.com/jirayu-k/wayfinder/agent/state"
)

// maxNoteChars bounds the peer-context summary appended to a query and the
// shared note a responder publishes for peers.
const maxNoteChars = 150

// defaultTTL is how long an exchange stays in the volatile cache.
const defaultTTL = time.Hour

// Responder produces one domain-specific text answer per request and
// publishes a shared note peers may read. Implementations recover their own
// failures: Respond returns a degraded outcome instead of an error whenever
// the generation service misbehaves.
type Responder interface {
	Label() contractx.Label
	Descriptor() contractx.Descriptor
	Respond(ctx context.Context, st *statex.RequestState) (statex.Outcome, error)
}

// textResponder is the reference implementation shared by the weather,
// dining, scenic, and forest responders: enrich the query with peer context,
// call the generation service with a role template, fall back once on
// failure, and emit an outcome patch.
type textResponder struct {
	desc         contractx.Descriptor
	gen          contractx.Generator
	mem          contractx.Memory
	instructions string
	fallback     string
	topic        string // human description used in degraded answers
	noteKind     string
	action       string
}

func newTextResponder(
	desc contractx.Descriptor,
	gen contractx.Generator,
	mem contractx.Memory,
	instructions string,
	topic string,
	noteKind string,
	action string,
) *textResponder {
	if mem == nil {
		mem = noopMemory{}
	}
	return &textResponder{
		desc:         desc,
		gen:          gen,
		mem:          mem,
		instructions: instructions,
		fallback:     fmt.Sprintf("You are a helpful assistant. Answer the query about %s briefly and factually.", topic),
		topic:        topic,
		noteKind:     noteKind,
		action:       action,
	}
}

func (r *textResponder) Label() contractx.Label { return r.desc.Label }

func (r *textResponder) Descriptor() contractx.Descriptor { return r.desc }

func (r *textResponder) Respond(ctx context.Context, st *statex.RequestState) (statex.Outcome, error) {
	query := strings.TrimSpace(st.RawText)
	if query == "" {
		query = fmt.Sprintf("General %s inquiry", r.topic)
	}

	enriched := enrichQuery(query, r.desc.Label, st.SharedData)
	promptText := buildPrompt(enriched, st.PriorContext)

	answer := r.generateWithFallback(ctx, promptText, enriched)

	outcome := statex.Outcome{
		Responder: r.desc.Label,
		Answer:    answer,
		Note: statex.SharedNote{
			Kind:    r.noteKind,
			Summary: truncate(answer, maxNoteChars),
		},
		Action: r.action,
	}

	r.persist(ctx, st.RequesterID, query, answer)
	return outcome, nil
}

// generateWithFallback performs the two-attempt generation contract: the role
// template first, then a reduced hard-coded template, then a deterministic
// degraded answer. It never returns an empty string.
func (r *textResponder) generateWithFallback(ctx context.Context, promptText, enriched string) string {
	text, err := r.gen.Generate(ctx, contractx.GenerateRequest{
		System: r.instructions,
		Prompt: promptText,
	})
	if err == nil {
		if cleaned := normalizeReply(text); cleaned != "" {
			return cleaned
		}
		err = &contractx.GenerateError{Kind: contractx.FailMalformed, Err: fmt.Errorf("empty reply")}
	}

	log.Warn().
		Str("responder", string(r.desc.Label)).
		Str("kind", string(contractx.FailureKind(err))).
		Err(err).
		Msg("generation failed, retrying with fallback template")

	text, err = r.gen.Generate(ctx, contractx.GenerateRequest{
		System: r.fallback,
		Prompt: fmt.Sprintf("Query: %s\n\nPlease provide %s.", enriched, r.topic),
	})
	if err == nil {
		if cleaned := normalizeReply(text); cleaned != "" {
			return cleaned
		}
	}

	return fmt.Sprintf("[degraded] %s is currently unavailable due to technical issues. Query was: %s", r.topic, enriched)
}

// persist fires the best-effort memory write for this exchange. Failures are
// logged and never propagate.
func (r *textResponder) persist(ctx context.Context, requesterID, query, answer string) {
	entry := fmt.Sprintf("Q: %s\nA: %s", query, answer)
	if err := r.mem.Append(ctx, requesterID, r.desc.Label, entry, defaultTTL); err != nil {
		log.Warn().
			Str("responder", string(r.desc.Label)).
			Err(err).
			Msg("memory append failed")
	}
}

// enrichQuery appends a short bounded summary of peer context, in canonical
// label order, excluding the responder's own slot. Missing or empty notes
// degrade silently to no context.
func enrichQuery(query string, self contractx.Label, shared map[contractx.Label]statex.SharedNote) string {
	if len(shared) == 0 {
		return query
	}
	parts := make([]string, 0, len(shared))
	for _, label := range contractx.AllLabels {
		if label == self {
			continue
		}
		note, ok := shared[label]
		if !ok {
			continue
		}
		summary := truncate(strings.TrimSpace(note.Summary), maxNoteChars)
		if summary == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, summary))
	}
	if len(parts) == 0 {
		return query
	}
	return fmt.Sprintf("%s (Context: %s)", query, strings.Join(parts, "; "))
}

// buildPrompt prepends the prior-context block loaded from the memory
// gateway, when present.
func buildPrompt(enriched string, prior []contractx.Exchange) string {
	if len(prior) == 0 {
		return enriched
	}
	var b strings.Builder
	b.WriteString("Recent interactions:\n")
	for _, ex := range prior {
		fmt.Fprintf(&b, "- %s: %s\n", ex.Responder, truncate(ex.Text, maxNoteChars))
	}
	b.WriteString("\nQuery: ")
	b.WriteString(enriched)
	return b.String()
}

// normalizeReply validates and unwraps a generation reply. A JSON envelope
// exposing response/content/text fields is unwrapped; anything else passes
// through trimmed.
func normalizeReply(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return trimmed
	}
	for _, field := range []string{"response", "content", "text"} {
		raw, ok := envelope[field]
		if !ok {
			continue
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil && strings.TrimSpace(inner) != "" {
			return strings.TrimSpace(inner)
		}
	}
	return trimmed
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max-3]
	// avoid splitting a multi-byte rune
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size != 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

type noopMemory struct{}

func (noopMemory) Recent(context.Context, string, int) ([]contractx.Exchange, error) {
	return nil, nil
}

func (noopMemory) Append(context.Context, string, contractx.Label, string, time.Duration) error {
	return nil
}
