package responders

import (
	"fmt"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	promptx "github.com/jirayu-k/wayfinder/agent/prompt"
	"github.com/jirayu-k/wayfinder/agent/route"
)

// Registry resolves the closed set of responders once at startup. A routing
// table entry without an implementation (or the reverse) fails construction
// instead of surfacing as a runtime lookup miss.
type Registry struct {
	weather Responder
	dining  Responder
	scenic  Responder
	forest  Responder
	search  Responder
}

func NewRegistry(table route.Table, gen contractx.Generator, mem contractx.Memory) (*Registry, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", contractx.ErrValidation)
	}

	descriptors := make(map[contractx.Label]contractx.Descriptor, table.Size())
	for _, d := range table.Rules() {
		descriptors[d.Label] = d
	}
	descriptorFor := func(label contractx.Label) (contractx.Descriptor, error) {
		d, ok := descriptors[label]
		if !ok {
			return contractx.Descriptor{}, fmt.Errorf("%w: routing table has no rule for responder=%s", contractx.ErrValidation, label)
		}
		return d, nil
	}

	prompts := promptx.LoadSet()

	weatherDesc, err := descriptorFor(contractx.LabelWeather)
	if err != nil {
		return nil, err
	}
	diningDesc, err := descriptorFor(contractx.LabelDining)
	if err != nil {
		return nil, err
	}
	scenicDesc, err := descriptorFor(contractx.LabelScenic)
	if err != nil {
		return nil, err
	}
	forestDesc, err := descriptorFor(contractx.LabelForest)
	if err != nil {
		return nil, err
	}
	searchDesc, err := descriptorFor(contractx.LabelSearch)
	if err != nil {
		return nil, err
	}

	return &Registry{
		weather: newTextResponder(weatherDesc, gen, mem, prompts.Weather,
			"weather information", "weather_discussed", "Provided weather analysis"),
		dining: newTextResponder(diningDesc, gen, mem, prompts.Dining,
			"dining recommendations", "dining_discussed", "Provided dining recommendations"),
		scenic: newTextResponder(scenicDesc, gen, mem, prompts.Scenic,
			"scenic location recommendations", "location_discussed", "Provided location recommendations"),
		forest: newTextResponder(forestDesc, gen, mem, prompts.Forest,
			"forest ecosystem analysis", "forest_discussed", "Provided forest ecosystem analysis"),
		search: &searchResponder{
			textResponder: newTextResponder(searchDesc, gen, mem, prompts.Search,
				"search analysis", "history_searched", "Performed memory search and analysis"),
		},
	}, nil
}

// ByLabel resolves a responder through the closed enumeration.
func (r *Registry) ByLabel(label contractx.Label) (Responder, bool) {
	switch label {
	case contractx.LabelWeather:
		return r.weather, true
	case contractx.LabelDining:
		return r.dining, true
	case contractx.LabelScenic:
		return r.scenic, true
	case contractx.LabelForest:
		return r.forest, true
	case contractx.LabelSearch:
		return r.search, true
	default:
		return nil, false
	}
}

// All returns the responders in canonical display order.
func (r *Registry) All() []Responder {
	return []Responder{r.weather, r.dining, r.scenic, r.forest, r.search}
}
