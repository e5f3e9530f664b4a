package route

import (
	"fmt"
	"strings"
	"unicode"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

// Table is the ordered classification table. Evaluation is "first match
// wins": descriptors are scanned in declaration order and the first one with
// a keyword hit is chosen. Declaration order therefore is the tie-breaker and
// must stay stable; DefaultTable documents the canonical order.
type Table struct {
	rules        []contractx.Descriptor
	defaultLabel contractx.Label
}

func NewTable(rules []contractx.Descriptor, defaultLabel contractx.Label) (Table, error) {
	if len(rules) == 0 {
		return Table{}, fmt.Errorf("%w: routing table is empty", contractx.ErrValidation)
	}
	if defaultLabel == "" {
		return Table{}, fmt.Errorf("%w: default route label is empty", contractx.ErrValidation)
	}
	seen := make(map[contractx.Label]struct{}, len(rules))
	for _, r := range rules {
		if r.Label == "" {
			return Table{}, fmt.Errorf("%w: routing rule has empty label", contractx.ErrValidation)
		}
		if _, dup := seen[r.Label]; dup {
			return Table{}, fmt.Errorf("%w: duplicate routing rule for label=%s", contractx.ErrValidation, r.Label)
		}
		seen[r.Label] = struct{}{}
	}
	if _, ok := seen[defaultLabel]; !ok {
		return Table{}, fmt.Errorf("%w: default label=%s has no routing rule", contractx.ErrValidation, defaultLabel)
	}
	return Table{
		rules:        append([]contractx.Descriptor(nil), rules...),
		defaultLabel: defaultLabel,
	}, nil
}

// Classify maps raw request text to the initial route label. Pure and
// reproducible: identical text and table produce identical labels. An
// unmatched or empty text resolves to the default label, never an error.
func (t Table) Classify(raw string) contractx.Label {
	toks := Tokenize(raw)
	for _, rule := range t.rules {
		if matchesAny(toks, rule.Keywords) {
			return rule.Label
		}
	}
	return t.defaultLabel
}

// Rules returns the descriptors in declaration order.
func (t Table) Rules() []contractx.Descriptor {
	return append([]contractx.Descriptor(nil), t.rules...)
}

// Default returns the fallback route label.
func (t Table) Default() contractx.Label {
	return t.defaultLabel
}

// Size reports the number of routable responders; the engine derives its hop
// bound from it.
func (t Table) Size() int {
	return len(t.rules)
}

// Tokenize lower-cases the text and splits it on anything that is not a
// letter or digit.
func Tokenize(raw string) []string {
	return strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesAny reports whether any token starts with any keyword. Prefix
// matching keeps plural forms ("views" for "view") without letting a keyword
// fire mid-word ("eat" inside "weather").
func matchesAny(tokens []string, keywords []string) bool {
	for _, tok := range tokens {
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.HasPrefix(tok, kw) {
				return true
			}
		}
	}
	return false
}

// DefaultTable is the production routing configuration. Order matters:
// weather, dining, scenic, forest, search.
func DefaultTable() Table {
	table, err := NewTable([]contractx.Descriptor{
		{
			Label:        contractx.LabelWeather,
			Keywords:     []string{"weather", "temperature", "rain", "sun", "climate", "forecast", "humidity", "wind", "storm", "snow"},
			Priority:     2,
			Capabilities: []string{"weather_forecast", "climate_analysis", "weather_planning"},
		},
		{
			Label:        contractx.LabelDining,
			Keywords:     []string{"restaurant", "food", "cuisine", "dining", "eat", "meal", "chef", "menu", "cooking", "recipe"},
			Priority:     2,
			Capabilities: []string{"restaurant_recommendations", "cuisine_analysis", "dining_planning"},
		},
		{
			Label:        contractx.LabelScenic,
			Keywords:     []string{"scenic", "beautiful", "location", "tourist", "destination", "view", "landscape", "mountain", "travel", "trip", "vacation", "visit"},
			Priority:     2,
			Capabilities: []string{"location_search", "tourism_advice", "photography_spots"},
		},
		{
			Label:        contractx.LabelForest,
			Keywords:     []string{"forest", "tree", "wildlife", "ecosystem", "conservation", "nature", "biodiversity"},
			Priority:     3,
			Capabilities: []string{"forest_ecology", "biodiversity", "conservation"},
		},
		{
			Label:        contractx.LabelSearch,
			Keywords:     []string{"search", "history", "remember", "previous", "similar", "past", "recall"},
			Priority:     4,
			Capabilities: []string{"memory_search", "history_analysis"},
		},
	}, contractx.LabelScenic)
	if err != nil {
		panic(err) // static configuration, validated by tests
	}
	return table
}
