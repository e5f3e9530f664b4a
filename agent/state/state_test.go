package state

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewInitializesState(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	if st.RequestID == "" {
		t.Fatal("RequestID is empty")
	}
	if st.RequesterID != "req-1" || st.RequesterName != "tester" || st.RawText != "hello" {
		t.Fatalf("inbound fields = %q %q %q", st.RequesterID, st.RequesterName, st.RawText)
	}
	if !st.StartedAt.Equal(fixedNow) {
		t.Fatalf("StartedAt = %v, want %v", st.StartedAt, fixedNow)
	}
	if st.Responses == nil || st.SharedData == nil || st.RouteHistory == nil || st.Trace == nil {
		t.Fatal("collections not initialized")
	}

	other := New("req-1", "tester", "hello", fixedNow)
	if other.RequestID == st.RequestID {
		t.Fatal("two states share a RequestID")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	var nilState *RequestState
	if err := nilState.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("nil state err = %v, want ErrValidation", err)
	}

	st := New("  ", "tester", "hello", fixedNow)
	if err := st.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("blank requester err = %v, want ErrValidation", err)
	}

	// empty text is allowed; only the requester id is mandatory
	st = New("req-1", "", "", fixedNow)
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyFoldsOutcome(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	out := Outcome{
		Responder: contractx.LabelWeather,
		Answer:    "sunny",
		Note:      SharedNote{Kind: "weather_discussed", Summary: "sunny"},
		Action:    "Provided weather analysis",
	}
	if err := st.Apply(out, fixedNow); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if st.CurrentResponder != contractx.LabelWeather {
		t.Fatalf("CurrentResponder = %s", st.CurrentResponder)
	}
	if len(st.RouteHistory) != 1 || st.RouteHistory[0] != contractx.LabelWeather {
		t.Fatalf("RouteHistory = %v", st.RouteHistory)
	}
	if st.Responses[contractx.LabelWeather] != "sunny" {
		t.Fatalf("Responses = %v", st.Responses)
	}
	note, ok := st.SharedData[contractx.LabelWeather]
	if !ok || note.Summary != "sunny" {
		t.Fatalf("SharedData = %v", st.SharedData)
	}
	if note.At.IsZero() {
		t.Fatal("note timestamp not stamped")
	}
	if len(st.Trace) != 1 || st.Trace[0].Action != "Provided weather analysis" {
		t.Fatalf("Trace = %v", st.Trace)
	}
	if !st.HasRun(contractx.LabelWeather) || st.HasRun(contractx.LabelDining) {
		t.Fatal("HasRun mismatch")
	}
}

func TestApplyRejectsDuplicateRoute(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	out := Outcome{Responder: contractx.LabelWeather, Answer: "sunny", Action: "ran"}
	if err := st.Apply(out, fixedNow); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := st.Apply(out, fixedNow); !errors.Is(err, contractx.ErrDuplicateRoute) {
		t.Fatalf("second Apply err = %v, want ErrDuplicateRoute", err)
	}
	if len(st.RouteHistory) != 1 {
		t.Fatalf("RouteHistory grew on rejected apply: %v", st.RouteHistory)
	}
}

func TestApplyRejectsEmptyResponder(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	if err := st.Apply(Outcome{Answer: "x"}, fixedNow); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSharedDataWriteOnce(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	st.SharedData[contractx.LabelWeather] = SharedNote{Kind: "weather_discussed", Summary: "sunny"}

	conflicting := Outcome{
		Responder: contractx.LabelWeather,
		Answer:    "stormy",
		Note:      SharedNote{Kind: "weather_discussed", Summary: "stormy"},
	}
	if err := st.Apply(conflicting, fixedNow); !errors.Is(err, contractx.ErrSharedDataConflict) {
		t.Fatalf("conflicting rewrite err = %v, want ErrSharedDataConflict", err)
	}

	identical := Outcome{
		Responder: contractx.LabelWeather,
		Answer:    "sunny",
		Note:      SharedNote{Kind: "weather_discussed", Summary: "sunny"},
	}
	if err := st.Apply(identical, fixedNow); err != nil {
		t.Fatalf("identical rewrite: %v", err)
	}
}

func TestSetFinalAnswerOnce(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	if err := st.SetFinalAnswer("done"); err != nil {
		t.Fatalf("SetFinalAnswer: %v", err)
	}
	if err := st.SetFinalAnswer("again"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("second SetFinalAnswer err = %v, want ErrValidation", err)
	}
	if st.FinalAnswer != "done" {
		t.Fatalf("FinalAnswer = %q", st.FinalAnswer)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	st := New("req-1", "tester", "hello", fixedNow)
	if err := st.Apply(Outcome{
		Responder: contractx.LabelWeather,
		Answer:    "sunny",
		Note:      SharedNote{Kind: "weather_discussed", Summary: "sunny"},
		Action:    "ran",
	}, fixedNow); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	st.PriorContext = []contractx.Exchange{{RequesterID: "req-1", Responder: contractx.LabelDining, Text: "Q: x"}}

	dup := st.Clone()
	dup.Responses[contractx.LabelDining] = "tampered"
	dup.SharedData[contractx.LabelDining] = SharedNote{Kind: "dining_discussed"}
	dup.RouteHistory = append(dup.RouteHistory, contractx.LabelDining)
	dup.Trace = append(dup.Trace, TraceEntry{Responder: contractx.LabelDining, Action: "tampered"})
	dup.PriorContext[0].Text = "tampered"

	if _, leaked := st.Responses[contractx.LabelDining]; leaked {
		t.Fatal("Responses map shared with clone")
	}
	if _, leaked := st.SharedData[contractx.LabelDining]; leaked {
		t.Fatal("SharedData map shared with clone")
	}
	if len(st.RouteHistory) != 1 || len(st.Trace) != 1 {
		t.Fatal("slices shared with clone")
	}
	if st.PriorContext[0].Text != "Q: x" {
		t.Fatal("PriorContext shared with clone")
	}

	var nilState *RequestState
	if nilState.Clone() != nil {
		t.Fatal("Clone of nil state is not nil")
	}
}
