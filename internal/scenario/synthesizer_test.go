package scenario

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/intent"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func stateItem(t *testing.T, zoneID string, risk float64, alerts []string) evidence.Item {
	t.Helper()
	rec := evidence.StateRecord{
		ZoneID:    zoneID,
		CityID:    "C_001",
		RiskScore: risk,
		RiskTier:  evidence.RiskTier(risk),
		Alerts:    alerts,
	}
	sev := 1
	if rec.RiskTier == "high" {
		sev = 3
	} else if rec.RiskTier == "medium" {
		sev = 2
	}
	return evidence.Item{
		Source:   evidence.SourceStateSnapshot,
		ID:       "state_" + zoneID,
		ZoneID:   zoneID,
		Kind:     "zone_state",
		Severity: sev,
		Payload:  mustJSON(t, rec),
	}
}

func outageItem(t *testing.T, id, zoneID, status string, started time.Time) evidence.Item {
	t.Helper()
	rec := evidence.OutageRecord{
		ID: id, CityID: "C_001", ZoneID: zoneID,
		Service: "power", Status: status, StartedAt: started,
	}
	sev := 1
	switch status {
	case "active":
		sev = 4
	case "restoring":
		sev = 2
	}
	return evidence.Item{
		Source:     evidence.SourceServiceOutages,
		ID:         id,
		ZoneID:     zoneID,
		Kind:       "power",
		Severity:   sev,
		RecordedAt: started,
		Payload:    mustJSON(t, rec),
	}
}

func playbookItem(t *testing.T, pb evidence.Playbook) evidence.Item {
	t.Helper()
	return evidence.Item{
		Source:  evidence.SourcePlaybooks,
		ID:      pb.ID,
		Kind:    pb.EventType,
		Payload: mustJSON(t, pb),
	}
}

func TestSynthesizePowerOutage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := &evidence.Batch{
		Items: []evidence.Item{
			stateItem(t, "Z_001", 0.8, []string{"load_shedding"}),
			outageItem(t, "out_001", "Z_001", "active", now),
			playbookItem(t, evidence.Playbook{
				ID: "pb_power_high", EventType: "power_outage", TriggerTier: "high",
				Actions:    []string{"Dispatch repair crew", "Activate backup feeders"},
				ETAMinutes: 45, CostUSD: 12000, Effectiveness: 0.75,
			}),
		},
	}

	s := NewSynthesizer(nil)
	res := s.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, Options{})

	if len(res.Hypotheses) != 1 {
		t.Fatalf("expected one hypothesis, got %d", len(res.Hypotheses))
	}
	h := res.Hypotheses[0]
	if h.InsufficientEvidence {
		t.Error("hypothesis should be evidence-backed")
	}
	if len(h.EvidenceIDs) == 0 {
		t.Error("evidence-backed hypothesis must cite evidence")
	}
	if h.EvidenceIDs[0] != "out_001" {
		t.Errorf("strongest evidence should rank first, got %v", h.EvidenceIDs)
	}
	if res.PlaybookID != "pb_power_high" {
		t.Errorf("playbook = %q, want pb_power_high", res.PlaybookID)
	}
	if len(res.RecommendedActions) != 2 {
		t.Errorf("expected playbook actions, got %v", res.RecommendedActions)
	}
	if res.RiskBefore != 0.8 {
		t.Errorf("risk before = %v, want 0.8", res.RiskBefore)
	}
	if res.RiskAfter > res.RiskBefore {
		t.Errorf("risk after %v exceeds risk before %v", res.RiskAfter, res.RiskBefore)
	}
	if res.RiskAfter != 0.2 {
		t.Errorf("risk after = %v, want 0.2", res.RiskAfter)
	}
	if res.LowConfidence {
		t.Error("severity-4 evidence should not be low confidence")
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := &evidence.Batch{
		Items: []evidence.Item{
			stateItem(t, "Z_001", 0.6, nil),
			outageItem(t, "out_002", "Z_001", "active", now),
		},
		Gaps: []evidence.Gap{{Source: evidence.SourceAssetRegistry, Reason: "timeout"}},
	}

	s := NewSynthesizer(nil)
	first := s.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, Options{})
	second := s.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, Options{})

	if !reflect.DeepEqual(first, second) {
		t.Errorf("same batch produced different results:\n%+v\n%+v", first, second)
	}
}

func TestSynthesizeNoEvidence(t *testing.T) {
	s := NewSynthesizer(nil)
	res := s.Synthesize(intent.PowerOutage, "C_001", "Z_004", &evidence.Batch{}, Options{})

	if len(res.Hypotheses) != 1 {
		t.Fatalf("expected one hypothesis, got %d", len(res.Hypotheses))
	}
	if !res.Hypotheses[0].InsufficientEvidence {
		t.Error("hypothesis without evidence must be marked insufficient")
	}
	if len(res.RecommendedActions) != 0 {
		t.Errorf("no actions without evidence, got %v", res.RecommendedActions)
	}
	if res.PlaybookID != "" {
		t.Errorf("no playbook without evidence, got %q", res.PlaybookID)
	}
	if !res.LowConfidence {
		t.Error("insufficient evidence implies low confidence")
	}
}

func TestGapsDegradeConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []evidence.Item{outageItem(t, "out_003", "Z_002", "active", now)}

	s := NewSynthesizer(nil)
	clean := s.Synthesize(intent.PowerOutage, "C_001", "Z_002", &evidence.Batch{Items: items}, Options{})
	degraded := s.Synthesize(intent.PowerOutage, "C_001", "Z_002", &evidence.Batch{
		Items: items,
		Gaps: []evidence.Gap{
			{Source: evidence.SourceStateSnapshot, Reason: "timeout"},
			{Source: evidence.SourceAssetRegistry, Reason: "unavailable"},
		},
	}, Options{})

	if degraded.Hypotheses[0].Confidence >= clean.Hypotheses[0].Confidence {
		t.Errorf("gaps should lower confidence: %v >= %v",
			degraded.Hypotheses[0].Confidence, clean.Hypotheses[0].Confidence)
	}
	if degraded.Hypotheses[0].InsufficientEvidence {
		t.Error("gaps degrade confidence, they do not invalidate evidence")
	}
}

func TestMostRecentOutageRanksFirst(t *testing.T) {
	older := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	batch := &evidence.Batch{
		Items: []evidence.Item{
			outageItem(t, "out_old", "Z_003", "active", older),
			outageItem(t, "out_new", "Z_003", "active", newer),
		},
	}

	s := NewSynthesizer(nil)
	res := s.Synthesize(intent.PowerOutage, "C_001", "Z_003", batch, Options{})

	if res.Hypotheses[0].EvidenceIDs[0] != "out_new" {
		t.Errorf("conflicting records of equal severity should rank most recent first, got %v",
			res.Hypotheses[0].EvidenceIDs)
	}
}

func TestZoneUnresolvedDownweights(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []evidence.Item{outageItem(t, "out_004", "Z_001", "active", now)}

	s := NewSynthesizer(nil)
	resolved := s.Synthesize(intent.PowerOutage, "C_001", "Z_001", &evidence.Batch{Items: items}, Options{})
	unresolved := s.Synthesize(intent.PowerOutage, "C_001", "", &evidence.Batch{Items: items}, Options{ZoneUnresolved: true})

	if !unresolved.LowConfidence {
		t.Error("unresolved zone scope must flag low confidence")
	}
	if unresolved.Hypotheses[0].Confidence >= resolved.Hypotheses[0].Confidence {
		t.Errorf("unresolved scope should lower confidence: %v >= %v",
			unresolved.Hypotheses[0].Confidence, resolved.Hypotheses[0].Confidence)
	}
	if len(unresolved.AffectedZones) != 1 || unresolved.AffectedZones[0] != "Z_001" {
		t.Errorf("affected zones should come from evidence, got %v", unresolved.AffectedZones)
	}
}

func TestSynthesizeGridSummary(t *testing.T) {
	batch := &evidence.Batch{
		Items: []evidence.Item{
			stateItem(t, "Z_001", 0.85, []string{"load_shedding", "voltage_sag"}),
			stateItem(t, "Z_002", 0.3, nil),
			stateItem(t, "Z_003", 0.72, []string{"aqi_warning"}),
		},
	}

	s := NewSynthesizer(nil)
	res := s.Synthesize(intent.General, "C_001", "", batch, Options{})

	if res.GridSummary == nil {
		t.Fatal("general query must produce a grid summary")
	}
	if res.GridSummary.ZoneCount != 3 {
		t.Errorf("zone count = %d, want 3", res.GridSummary.ZoneCount)
	}
	if res.GridSummary.HighRiskCount != 2 {
		t.Errorf("high risk count = %d, want 2", res.GridSummary.HighRiskCount)
	}
	if res.GridSummary.AlertCount != 3 {
		t.Errorf("alert count = %d, want 3", res.GridSummary.AlertCount)
	}
	if len(res.Hypotheses) != 1 || len(res.Hypotheses[0].EvidenceIDs) != 3 {
		t.Errorf("grid hypothesis should cite all state snapshots, got %+v", res.Hypotheses)
	}
}

func TestPlaybookSelectionPrefersExactMatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	batch := &evidence.Batch{
		Items: []evidence.Item{
			stateItem(t, "Z_001", 0.8, nil),
			outageItem(t, "out_005", "Z_001", "active", now),
			playbookItem(t, evidence.Playbook{ID: "pb_generic", EventType: "*", TriggerTier: "*", Effectiveness: 0.3}),
			playbookItem(t, evidence.Playbook{ID: "pb_power_any", EventType: "power_outage", TriggerTier: "*", Effectiveness: 0.5}),
			playbookItem(t, evidence.Playbook{ID: "pb_power_high", EventType: "power_outage", TriggerTier: "high", Effectiveness: 0.7}),
		},
	}

	s := NewSynthesizer(nil)
	res := s.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, Options{})

	if res.PlaybookID != "pb_power_high" {
		t.Errorf("playbook = %q, want the exact event and tier match", res.PlaybookID)
	}
}

func TestProjectRiskClamps(t *testing.T) {
	if got := projectRisk(0.8, 0.75); got != 0.2 {
		t.Errorf("projectRisk(0.8, 0.75) = %v, want 0.2", got)
	}
	if got := projectRisk(0.5, 1.5); got != 0 {
		t.Errorf("effectiveness above 1 should floor risk at 0, got %v", got)
	}
	if got := projectRisk(0.5, -0.2); got != 0.5 {
		t.Errorf("negative effectiveness must not raise risk, got %v", got)
	}
}
