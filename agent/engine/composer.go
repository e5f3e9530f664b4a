package engine

import (
	"fmt"
	"strings"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	statex "github.com/jirayu-k/wayfinder/agent/state"
)

// NothingToSynthesize is the sentinel answer for a run where no responder
// produced output.
const NothingToSynthesize = "Nothing to synthesize: no responder produced an answer."

// Composer merges responder outputs into the final answer. Responses are
// emitted in a fixed canonical display order, not invocation order, so output
// is stable across runs; a trailer lists the execution trace.
type Composer struct {
	order []contractx.Label
}

func NewComposer(order []contractx.Label) Composer {
	if len(order) == 0 {
		order = contractx.AllLabels
	}
	return Composer{order: append([]contractx.Label(nil), order...)}
}

func (c Composer) Synthesize(st *statex.RequestState) string {
	if st == nil || len(st.Responses) == 0 {
		return NothingToSynthesize
	}

	var b strings.Builder
	b.WriteString("Multi-responder analysis results\n")

	for _, label := range c.order {
		answer, ok := st.Responses[label]
		if !ok {
			continue
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", displayName(label), answer)
	}

	if len(st.Trace) > 0 {
		b.WriteString("\nExecution trace:\n")
		for _, entry := range st.Trace {
			fmt.Fprintf(&b, "- %s: %s\n", entry.Responder, entry.Action)
		}
	}
	return b.String()
}

func displayName(label contractx.Label) string {
	s := string(label)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
