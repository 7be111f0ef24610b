package clarify

import (
	"strings"
	"testing"

	"github.com/civicops/civicops-ai/internal/intent"
)

func testPolicy() *Policy {
	return NewPolicy("C_001", map[string][]string{
		// Lowercase keys mimic what a YAML loader hands us.
		"c_001": {"Z_002", "Z_001", "Z_003"},
	})
}

func TestEvaluateAsksForMissingZone(t *testing.T) {
	p := testPolicy()

	d := p.Evaluate(intent.PowerOutage, "C_001", "", 0)
	if !d.Ask {
		t.Fatal("expected a clarifying question for missing zone")
	}
	if d.MissingSlot != intent.SlotZone {
		t.Errorf("missing slot = %s, want %s", d.MissingSlot, intent.SlotZone)
	}
	if !strings.Contains(d.Question, "Z_001, Z_002, Z_003") {
		t.Errorf("question should list zones sorted, got %q", d.Question)
	}
}

func TestEvaluateProceedsWhenResolved(t *testing.T) {
	p := testPolicy()

	d := p.Evaluate(intent.PowerOutage, "C_001", "Z_001", 0)
	if d.Ask || d.BudgetExhausted {
		t.Errorf("expected no question for resolved scope, got %+v", d)
	}
}

func TestEvaluateBudgetExhausted(t *testing.T) {
	p := testPolicy()

	d := p.Evaluate(intent.RoadClosure, "C_001", "", MaxQuestions)
	if d.Ask {
		t.Error("must not ask past the question budget")
	}
	if !d.BudgetExhausted {
		t.Error("expected BudgetExhausted to be set")
	}
	if d.MissingSlot != intent.SlotZone {
		t.Errorf("missing slot = %s, want %s", d.MissingSlot, intent.SlotZone)
	}
}

func TestEvaluateCitySlot(t *testing.T) {
	p := testPolicy()

	d := p.Evaluate(intent.AQISpike, "", "", 0)
	if !d.Ask {
		t.Fatal("expected a clarifying question for missing city")
	}
	if d.MissingSlot != intent.SlotCity {
		t.Errorf("missing slot = %s, want %s", d.MissingSlot, intent.SlotCity)
	}
	if !strings.Contains(d.Question, "C_001") {
		t.Errorf("question should list known cities, got %q", d.Question)
	}
}

func TestEvaluateGeneralNeedsNothing(t *testing.T) {
	p := testPolicy()

	d := p.Evaluate(intent.General, "", "", 0)
	if d.Ask || d.BudgetExhausted {
		t.Errorf("general intent should never clarify, got %+v", d)
	}
}

func TestKnownZonesFallsBackToDefaultCity(t *testing.T) {
	p := testPolicy()

	zones := p.KnownZones("C_999")
	if len(zones) != 3 || zones[0] != "Z_001" {
		t.Errorf("unexpected fallback zones: %v", zones)
	}
}
