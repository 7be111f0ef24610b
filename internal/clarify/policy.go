package clarify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/civicops/civicops-ai/internal/intent"
)

// Package clarify decides whether a turn must stop and ask a clarifying
// question before evidence gathering. A session gets at most MaxQuestions
// clarifying questions; once the budget is exhausted the turn proceeds with
// the slot unresolved and downstream hypotheses are down-weighted instead of
// blocked.

// MaxQuestions is the per-session clarifying-question budget.
const MaxQuestions = 3

// Decision is the outcome of evaluating the policy for one turn.
type Decision struct {
	// Ask is true when the turn must terminate early with a question.
	Ask bool

	// Question is the clarifying question to send, when Ask is true.
	Question string

	// MissingSlot is the unresolved slot the question targets.
	MissingSlot intent.Slot

	// BudgetExhausted is true when a required slot is still unresolved but
	// the question budget is spent; the turn proceeds with reduced
	// confidence instead of asking again.
	BudgetExhausted bool
}

// Policy builds clarifying questions from the known city/zone catalog.
type Policy struct {
	defaultCity string
	zonesByCity map[string][]string
	cities      []string
}

// NewPolicy creates a policy over a zone catalog. Catalog keys are city
// identifiers; values are the zone identifiers known for that city.
func NewPolicy(defaultCity string, catalog map[string][]string) *Policy {
	normalized := make(map[string][]string, len(catalog))
	cities := make([]string, 0, len(catalog))
	for city, zones := range catalog {
		up := strings.ToUpper(city)
		sorted := append([]string(nil), zones...)
		sort.Strings(sorted)
		normalized[up] = sorted
		cities = append(cities, up)
	}
	sort.Strings(cities)

	return &Policy{
		defaultCity: strings.ToUpper(defaultCity),
		zonesByCity: normalized,
		cities:      cities,
	}
}

// KnownZones returns the zone identifiers known for a city, falling back to
// the default city's zones when the city is unknown.
func (p *Policy) KnownZones(cityID string) []string {
	if zones, ok := p.zonesByCity[strings.ToUpper(cityID)]; ok {
		return zones
	}
	return p.zonesByCity[p.defaultCity]
}

// KnownCities returns every city in the catalog.
func (p *Policy) KnownCities() []string {
	return p.cities
}

// Evaluate checks whether a required slot is missing for the classified
// intent. It is visited exactly once per turn; the caller owns the
// clarifying count and increments it only when Ask is true.
func (p *Policy) Evaluate(category intent.Category, cityScope, zoneScope string, clarifyingCount int) Decision {
	for _, slot := range intent.RequiredSlots(category) {
		resolved := false
		switch slot {
		case intent.SlotCity:
			resolved = cityScope != ""
		case intent.SlotZone:
			resolved = zoneScope != ""
		}
		if resolved {
			continue
		}

		if clarifyingCount >= MaxQuestions {
			return Decision{MissingSlot: slot, BudgetExhausted: true}
		}

		return Decision{
			Ask:         true,
			Question:    p.question(slot, cityScope),
			MissingSlot: slot,
		}
	}

	return Decision{}
}

// question renders the clarifying question for a missing slot, listing the
// known candidate values.
func (p *Policy) question(slot intent.Slot, cityScope string) string {
	switch slot {
	case intent.SlotZone:
		zones := p.KnownZones(cityScope)
		return fmt.Sprintf("Which zone is affected? Known zones: %s.", strings.Join(zones, ", "))
	case intent.SlotCity:
		return fmt.Sprintf("Which city is affected? Known cities: %s.", strings.Join(p.cities, ", "))
	default:
		return "Can you narrow down the affected area?"
	}
}
