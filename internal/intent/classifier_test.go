package intent

import "testing"

func TestClassifyCategories(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"My area has no power", PowerOutage},
		{"power outage for 20 minutes", PowerOutage},
		{"the whole block had a blackout", PowerOutage},
		{"AQI is spiking downtown", AQISpike},
		{"air quality looks terrible today", AQISpike},
		{"main street is a blocked road", RoadClosure},
		{"bridge closed since this morning", RoadClosure},
		{"water main burst near the depot", InfrastructureFailure},
		{"possible gas leak reported", InfrastructureFailure},
		{"what is happening in my city", General},
		{"", General},
		{"Z_001", General},
	}

	for _, tt := range tests {
		got := Classify(tt.text)
		if got.Category != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.text, got.Category, tt.want)
		}
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// Both power and road keywords present; the power rule is declared first.
	got := Classify("no power and the road closed near Z_002")
	if got.Category != PowerOutage {
		t.Errorf("expected first-declared rule to win, got %s", got.Category)
	}
}

func TestClassifyExtractsZone(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"no power in Z_001", "Z_001"},
		{"z_003 please", "Z_003"},
		{"Z0042 is not a zone id", ""},
		{"nothing here", ""},
	}

	for _, tt := range tests {
		got := Classify(tt.text)
		if got.Zone != tt.want {
			t.Errorf("Classify(%q).Zone = %q, want %q", tt.text, got.Zone, tt.want)
		}
	}
}

func TestClassifyNormalizesZoneSeparators(t *testing.T) {
	for _, text := range []string{"Z_007", "z_007", "Z-007"} {
		got := Classify(text)
		if got.Zone != "Z_007" {
			t.Errorf("Classify(%q).Zone = %q, want Z_007", text, got.Zone)
		}
	}
}

func TestClassifyExtractsCity(t *testing.T) {
	got := Classify("smog over C_001 again")
	if got.Category != AQISpike {
		t.Fatalf("expected aqi_spike, got %s", got.Category)
	}
	if got.City != "C_001" {
		t.Errorf("expected city C_001, got %q", got.City)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "no power in Z_001"
	first := Classify(text)
	for i := 0; i < 10; i++ {
		if got := Classify(text); got != first {
			t.Fatalf("classification is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestRequiredSlots(t *testing.T) {
	tests := []struct {
		category Category
		want     []Slot
	}{
		{PowerOutage, []Slot{SlotZone}},
		{AQISpike, []Slot{SlotCity}},
		{RoadClosure, []Slot{SlotZone}},
		{InfrastructureFailure, []Slot{SlotZone}},
		{General, []Slot{}},
	}

	for _, tt := range tests {
		got := RequiredSlots(tt.category)
		if len(got) != len(tt.want) {
			t.Errorf("RequiredSlots(%s) = %v, want %v", tt.category, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("RequiredSlots(%s)[%d] = %s, want %s", tt.category, i, got[i], tt.want[i])
			}
		}
	}
}
