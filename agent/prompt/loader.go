package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/weather.txt
	weatherRaw string

	//go:embed template/dining.txt
	diningRaw string

	//go:embed template/scenic.txt
	scenicRaw string

	//go:embed template/forest.txt
	forestRaw string

	//go:embed template/search.txt
	searchRaw string
)

// Set holds the role instruction text for every responder.
type Set struct {
	Weather string
	Dining  string
	Scenic  string
	Forest  string
	Search  string
}

// LoadSet returns the embedded role instructions with surrounding whitespace
// trimmed. Safe to call concurrently; the embed is compile-time.
func LoadSet() Set {
	return Set{
		Weather: strings.TrimSpace(weatherRaw),
		Dining:  strings.TrimSpace(diningRaw),
		Scenic:  strings.TrimSpace(scenicRaw),
		Forest:  strings.TrimSpace(forestRaw),
		Search:  strings.TrimSpace(searchRaw),
	}
}
