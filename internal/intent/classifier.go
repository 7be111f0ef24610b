package intent

import (
	"regexp"
	"strings"
)

// Package intent maps raw operator input to a closed set of intent
// categories using an ordered rule table. Classification is a pure function
// of the input text: the first matching rule wins, rules are evaluated in
// declaration order, and there is no scoring.

// Category is a closed-set intent category.
type Category string

const (
	PowerOutage           Category = "power_outage"
	AQISpike              Category = "aqi_spike"
	RoadClosure           Category = "road_closure"
	InfrastructureFailure Category = "infrastructure_failure"
	General               Category = "general"
)

// Slot is a scope value an intent may require before evidence gathering.
type Slot string

const (
	SlotCity Slot = "city_scope"
	SlotZone Slot = "zone_scope"
)

// Intent is the result of classifying one message.
type Intent struct {
	Category Category
	// Zone is a zone identifier extracted from the text, if any.
	Zone string
	// City is a city identifier extracted from the text, if any.
	City string
}

// rule pairs an ordered pattern set with its category. A rule matches when
// any of its patterns appears in the lowercased input.
type rule struct {
	patterns []string
	category Category
}

// rules is evaluated top to bottom; declaration order is the tie-break.
var rules = []rule{
	{
		patterns: []string{"no power", "power outage", "power cut", "blackout", "electricity", "power is out", "lost power"},
		category: PowerOutage,
	},
	{
		patterns: []string{"aqi", "air quality", "smog", "pollution", "haze", "particulate"},
		category: AQISpike,
	},
	{
		patterns: []string{"road closed", "road closure", "street closed", "blocked road", "traffic blocked", "bridge closed"},
		category: RoadClosure,
	},
	{
		patterns: []string{"water main", "pipeline", "gas leak", "transformer", "substation", "infrastructure", "sewer", "broken main"},
		category: InfrastructureFailure,
	},
}

// requiredSlots declares which scope slots each category needs resolved
// before evidence gathering proceeds.
var requiredSlots = map[Category][]Slot{
	PowerOutage:           {SlotZone},
	AQISpike:              {SlotCity},
	RoadClosure:           {SlotZone},
	InfrastructureFailure: {SlotZone},
	General:               {},
}

var (
	zonePattern = regexp.MustCompile(`(?i)\bZ[_-]?(\d{3})\b`)
	cityPattern = regexp.MustCompile(`(?i)\bC[_-]?(\d{3})\b`)
)

// Classify maps message text to an intent. It never fails: text that matches
// no rule is classified General, which requires no slots.
func Classify(text string) Intent {
	lower := strings.ToLower(text)

	out := Intent{Category: General}
	for _, r := range rules {
		matched := false
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				matched = true
				break
			}
		}
		if matched {
			out.Category = r.category
			break
		}
	}

	if m := zonePattern.FindStringSubmatch(text); m != nil {
		out.Zone = "Z_" + m[1]
	}
	if m := cityPattern.FindStringSubmatch(text); m != nil {
		out.City = "C_" + m[1]
	}

	return out
}

// RequiredSlots returns the scope slots a category needs resolved.
func RequiredSlots(c Category) []Slot {
	return requiredSlots[c]
}

// Categories lists every known category, in rule order with General last.
func Categories() []Category {
	return []Category{PowerOutage, AQISpike, RoadClosure, InfrastructureFailure, General}
}
