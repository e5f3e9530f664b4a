package contract

import "time"

// Label identifies a responder. The set of labels is closed: routing tables
// and the registry are resolved against these constants at startup, not by
// runtime string lookup.
type Label string

const (
	LabelWeather Label = "weather"
	LabelDining  Label = "dining"
	LabelScenic  Label = "scenic"
	LabelForest  Label = "forest"
	LabelSearch  Label = "search"
)

// AllLabels enumerates responder labels in canonical display order. The
// synthesizer iterates this order regardless of invocation order.
var AllLabels = []Label{
	LabelWeather,
	LabelDining,
	LabelScenic,
	LabelForest,
	LabelSearch,
}

// Known reports whether l is one of the responder labels. Pipeline-internal
// labels (router, synthesizer, composite) are not Known.
func (l Label) Known() bool {
	for _, known := range AllLabels {
		if l == known {
			return true
		}
	}
	return false
}

// Descriptor is static per-responder routing metadata, loaded once at
// process start.
type Descriptor struct {
	Label        Label    `json:"label"`
	Keywords     []string `json:"keywords"`
	Priority     int      `json:"priority"` // lower wins ties
	Capabilities []string `json:"capabilities"`
}

// GenerateRequest is the single request shape accepted by generation-service
// adapters.
type GenerateRequest struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

// Exchange is one prior requester/responder interaction returned by the
// memory gateway.
type Exchange struct {
	RequesterID string    `json:"requester_id"`
	Responder   Label     `json:"responder"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}
