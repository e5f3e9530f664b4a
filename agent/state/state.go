package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

// SharedNote is the small structured payload a responder exposes for peers.
// Entries are write-once per responder; an identical rewrite is permitted,
// a conflicting one is a defect.
type SharedNote struct {
	Kind    string    `json:"kind"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// TraceEntry is one append-only record of what ran and why.
type TraceEntry struct {
	Responder contractx.Label `json:"responder"`
	Action    string          `json:"action"`
	At        time.Time       `json:"at"`
}

// RequestState is the single record threaded through the pipeline. It is
// created once per incoming request and never shared across requests.
// Stages mutate it only through Apply and the other methods here.
type RequestState struct {
	RequestID     string `json:"request_id"`
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
	RawText       string `json:"raw_text"`

	CurrentResponder contractx.Label                  `json:"current_responder,omitempty"`
	RouteHistory     []contractx.Label                `json:"route_history"`
	Responses        map[contractx.Label]string       `json:"responses"`
	SharedData       map[contractx.Label]SharedNote   `json:"shared_data"`
	Trace            []TraceEntry                     `json:"trace"`

	// PriorContext is the bounded recent slice loaded from the memory
	// gateway before classification. Read-only for responders.
	PriorContext []contractx.Exchange `json:"prior_context,omitempty"`

	FinalAnswer string    `json:"final_answer,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Outcome is the explicit patch a responder returns. The engine applies it;
// responders never write peer entries directly.
type Outcome struct {
	Responder contractx.Label
	Answer    string
	Note      SharedNote
	Action    string
}

func New(requesterID, requesterName, rawText string, now time.Time) *RequestState {
	return &RequestState{
		RequestID:     uuid.NewString(),
		RequesterID:   requesterID,
		RequesterName: requesterName,
		RawText:       rawText,
		RouteHistory:  make([]contractx.Label, 0, 4),
		Responses:     make(map[contractx.Label]string, 4),
		SharedData:    make(map[contractx.Label]SharedNote, 4),
		Trace:         make([]TraceEntry, 0, 8),
		StartedAt:     now.UTC(),
	}
}

// Validate checks the inbound fields the engine fails fast on.
func (s *RequestState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: request state is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(s.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is empty", contractx.ErrValidation)
	}
	return nil
}

// HasRun reports whether a responder already ran for this request.
func (s *RequestState) HasRun(label contractx.Label) bool {
	for _, l := range s.RouteHistory {
		if l == label {
			return true
		}
	}
	return false
}

// Apply folds a responder outcome into the state, enforcing the cross-step
// invariants: each responder runs at most once, responses and route history
// stay in lockstep, and shared data is write-once per responder.
func (s *RequestState) Apply(out Outcome, now time.Time) error {
	if out.Responder == "" {
		return fmt.Errorf("%w: outcome has no responder label", contractx.ErrValidation)
	}
	if s.HasRun(out.Responder) {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateRoute, out.Responder)
	}
	if prev, ok := s.SharedData[out.Responder]; ok {
		if prev.Kind != out.Note.Kind || prev.Summary != out.Note.Summary {
			return fmt.Errorf("%w: responder=%s", contractx.ErrSharedDataConflict, out.Responder)
		}
	}

	s.CurrentResponder = out.Responder
	s.RouteHistory = append(s.RouteHistory, out.Responder)
	s.Responses[out.Responder] = out.Answer
	if out.Note.Kind != "" || out.Note.Summary != "" {
		note := out.Note
		if note.At.IsZero() {
			note.At = now.UTC()
		}
		s.SharedData[out.Responder] = note
	}
	s.AppendTrace(out.Responder, out.Action, now)
	return nil
}

// AppendTrace records a pipeline event outside the responder outcome path
// (context loading, synthesis, persistence).
func (s *RequestState) AppendTrace(responder contractx.Label, action string, now time.Time) {
	s.Trace = append(s.Trace, TraceEntry{
		Responder: responder,
		Action:    action,
		At:        now.UTC(),
	})
}

// SetFinalAnswer is called exactly once, by the synthesizer.
func (s *RequestState) SetFinalAnswer(text string) error {
	if s.FinalAnswer != "" {
		return fmt.Errorf("%w: final answer already set", contractx.ErrValidation)
	}
	s.FinalAnswer = text
	return nil
}

// Clone returns a deep copy. The engine hands clones to stages that must not
// observe later mutations.
func (s *RequestState) Clone() *RequestState {
	if s == nil {
		return nil
	}
	dup := *s
	dup.RouteHistory = append([]contractx.Label(nil), s.RouteHistory...)
	dup.Trace = append([]TraceEntry(nil), s.Trace...)
	dup.PriorContext = append([]contractx.Exchange(nil), s.PriorContext...)
	dup.Responses = make(map[contractx.Label]string, len(s.Responses))
	for k, v := range s.Responses {
		dup.Responses[k] = v
	}
	dup.SharedData = make(map[contractx.Label]SharedNote, len(s.SharedData))
	for k, v := range s.SharedData {
		dup.SharedData[k] = v
	}
	return &dup
}
