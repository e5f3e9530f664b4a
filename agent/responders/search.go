package responders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	"github.com/jirayu-k/wayfinder/agent/route"
	statex "github.com/jirayu-k/wayfinder/agent/state"
)

const (
	// searchWindow bounds how many prior exchanges the search responder
	// pulls from the memory gateway.
	searchWindow = 30
	// maxMatches caps the ranked matches fed into the prompt.
	maxMatches = 10
)

// searchResponder answers history questions: it scans the requester's recent
// exchanges for the query terms, ranks matches by occurrence count, and asks
// the generation service to analyze the hits.
type searchResponder struct {
	*textResponder
}

type searchMatch struct {
	Responder contractx.Label
	Text      string
	Relevance int
}

func (r *searchResponder) Respond(ctx context.Context, st *statex.RequestState) (statex.Outcome, error) {
	query := strings.TrimSpace(st.RawText)
	if query == "" {
		query = "General search inquiry"
	}

	matches := r.findMatches(ctx, st.RequesterID, query)

	enriched := enrichQuery(query, r.desc.Label, st.SharedData)
	promptText := buildSearchPrompt(enriched, matches)
	answer := r.generateWithFallback(ctx, promptText, enriched)

	outcome := statex.Outcome{
		Responder: r.desc.Label,
		Answer:    answer,
		Note: statex.SharedNote{
			Kind:    r.noteKind,
			Summary: truncate(fmt.Sprintf("found %d prior exchanges relevant to: %s", len(matches), query), maxNoteChars),
		},
		Action: r.action,
	}

	r.persist(ctx, st.RequesterID, query, answer)
	return outcome, nil
}

// findMatches tolerates an unavailable memory gateway by returning no
// matches; the responder then reports an empty history rather than failing.
func (r *searchResponder) findMatches(ctx context.Context, requesterID, query string) []searchMatch {
	prior, err := r.mem.Recent(ctx, requesterID, searchWindow)
	if err != nil {
		log.Warn().Err(err).Msg("memory search unavailable")
		return nil
	}

	terms := route.Tokenize(query)
	matches := make([]searchMatch, 0, len(prior))
	for _, ex := range prior {
		lowered := strings.ToLower(ex.Text)
		relevance := 0
		for _, term := range terms {
			relevance += strings.Count(lowered, term)
		}
		if relevance == 0 {
			continue
		}
		matches = append(matches, searchMatch{
			Responder: ex.Responder,
			Text:      ex.Text,
			Relevance: relevance,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Relevance > matches[j].Relevance
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

func buildSearchPrompt(enriched string, matches []searchMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search Query: %s\n\nSearch Results (%d):\n", enriched, len(matches))
	if len(matches) == 0 {
		b.WriteString("- no matching prior exchanges\n")
	}
	for _, m := range matches {
		fmt.Fprintf(&b, "- [%s, relevance=%d] %s\n", m.Responder, m.Relevance, truncate(m.Text, maxNoteChars))
	}
	b.WriteString("\nPlease analyze the search results.")
	return b.String()
}
