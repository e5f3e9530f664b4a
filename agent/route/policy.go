package route

import (
	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	statex "github.com/jirayu-k/wayfinder/agent/state"
)

// DecisionKind is the closed set of continuation outcomes.
type DecisionKind int

const (
	// DecisionContinue routes to another responder.
	DecisionContinue DecisionKind = iota
	// DecisionSynthesize terminates execution but still runs the
	// synthesizer, so single-responder runs get the same envelope.
	DecisionSynthesize
	// DecisionEnd terminates with no answer. Defensive default; unreachable
	// when at least one responder ran.
	DecisionEnd
)

type Decision struct {
	Kind DecisionKind
	Next contractx.Label
}

func Continue(next contractx.Label) Decision {
	return Decision{Kind: DecisionContinue, Next: next}
}

func Synthesize() Decision { return Decision{Kind: DecisionSynthesize} }

func End() Decision { return Decision{Kind: DecisionEnd} }

// Policy decides, after each responder completes, whether to continue to
// another responder or terminate. It re-scans the original raw text (not the
// enriched query) plus the last completion on every hop; the hop bound keeps
// that re-scan from cycling even with a misconfigured keyword table.
type Policy struct {
	table   Table
	maxHops int
}

func NewPolicy(table Table, maxHops int) Policy {
	if maxHops <= 0 {
		maxHops = table.Size()
	}
	return Policy{table: table, maxHops: maxHops}
}

// MaxHops returns the structural termination bound.
func (p Policy) MaxHops() int { return p.maxHops }

// Next inspects the request state after a responder ran.
//
// Decision order:
//  1. hop bound reached -> forced synthesize, never an error
//  2. trigger keywords for an un-run responder in the raw text or the last
//     completion -> continue there, table declaration order breaking ties
//  3. one or more responders ran -> synthesize
//  4. nothing ran -> end
func (p Policy) Next(st *statex.RequestState) Decision {
	if st == nil {
		return End()
	}

	hops := len(st.RouteHistory)
	if hops >= p.maxHops {
		return Synthesize()
	}

	scannable := st.RawText
	if last, ok := st.Responses[st.CurrentResponder]; ok {
		scannable += "\n" + last
	}
	toks := Tokenize(scannable)

	for _, rule := range p.table.rules {
		if st.HasRun(rule.Label) {
			continue
		}
		if matchesAny(toks, rule.Keywords) {
			return Continue(rule.Label)
		}
	}

	if hops >= 1 {
		return Synthesize()
	}
	return End()
}
