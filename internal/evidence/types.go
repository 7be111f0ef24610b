package evidence

import (
	"encoding/json"
	"time"
)

// Package evidence defines the read-only data collaborators the orchestrator
// consumes and the immutable evidence items they produce.
//
// Responsibilities:
//   - Define the five collaborator query interfaces (state snapshot, active
//     events, service outages, asset registry, playbooks)
//   - Wrap collaborator records as point-in-time EvidenceItems, citable by id
//   - Fan out queries concurrently with per-collaborator timeouts
//   - Tolerate partial failure: an unavailable collaborator contributes zero
//     evidence and never aborts a turn

// Source identifies an evidence collaborator.
type Source string

const (
	SourceStateSnapshot  Source = "state_snapshot"
	SourceActiveEvents   Source = "active_events"
	SourceServiceOutages Source = "service_outages"
	SourceAssetRegistry  Source = "asset_registry"
	SourcePlaybooks      Source = "playbooks"
)

// Filter scopes a collaborator query.
type Filter struct {
	CityID string `json:"city_id"`
	ZoneID string `json:"zone_id,omitempty"`
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Item is a point-in-time snapshot of one collaborator record.
// Items are immutable after fetch; hypotheses cite them by ID.
type Item struct {
	Source     Source          `json:"source"`
	ID         string          `json:"id"`
	ZoneID     string          `json:"zone_id,omitempty"`
	Kind       string          `json:"kind"`
	Severity   int             `json:"severity"`
	RecordedAt time.Time       `json:"recorded_at"`
	Payload    json.RawMessage `json:"payload"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// Gap records a collaborator that contributed no evidence for a turn.
type Gap struct {
	Source Source `json:"source"`
	Reason string `json:"reason"` // "unavailable" or "timeout"
}

// Call describes one collaborator query made during gathering, for the trace.
type Call struct {
	Collaborator string   `json:"collaborator"`
	Filter       Filter   `json:"filter"`
	EvidenceIDs  []string `json:"evidence_ids"`
}

// Batch is the immutable result of one gathering pass.
type Batch struct {
	Items []Item `json:"items"`
	Gaps  []Gap  `json:"gaps"`
	Calls []Call `json:"calls"`
}

// StateRecord is the latest operational snapshot for one zone.
type StateRecord struct {
	ZoneID     string             `json:"zone_id"`
	CityID     string             `json:"city_id"`
	RiskScore  float64            `json:"risk_score"` // 0..1
	RiskTier   string             `json:"risk_tier"`  // low | medium | high
	Alerts     []string           `json:"alerts"`
	Metrics    map[string]float64 `json:"metrics"`
	ObservedAt time.Time          `json:"observed_at"`
}

// EventRecord is an open incident or event.
type EventRecord struct {
	ID          string    `json:"id"`
	CityID      string    `json:"city_id"`
	ZoneID      string    `json:"zone_id"`
	Type        string    `json:"type"`
	Severity    int       `json:"severity"` // 1 (low) .. 4 (critical)
	Status      string    `json:"status"`
	Description string    `json:"description"`
	ReportedAt  time.Time `json:"reported_at"`
}

// OutageRecord is a current service-outage record.
type OutageRecord struct {
	ID          string    `json:"id"`
	CityID      string    `json:"city_id"`
	ZoneID      string    `json:"zone_id"`
	Service     string    `json:"service"`
	Status      string    `json:"status"` // active | restoring | resolved
	Description string    `json:"description"`
	StartedAt   time.Time `json:"started_at"`
}

// AssetRecord is critical-asset metadata for one zone.
type AssetRecord struct {
	ID       string `json:"id"`
	CityID   string `json:"city_id"`
	ZoneID   string `json:"zone_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
}

// Playbook is a predefined response plan keyed by event type.
type Playbook struct {
	ID            string   `json:"id"`
	EventType     string   `json:"event_type"`   // intent category or "*"
	TriggerTier   string   `json:"trigger_tier"` // risk tier or "*"
	Actions       []string `json:"actions"`
	ETAMinutes    int      `json:"eta_minutes"`
	CostUSD       float64  `json:"cost_usd"`
	Effectiveness float64  `json:"effectiveness"` // 0..1 expected risk reduction
}

// RiskTier buckets a risk score the way the state snapshot reports it.
func RiskTier(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
