package scenario

// Package scenario turns a batch of gathered evidence into a structured
// assessment: ranked hypotheses with citations, a recommended playbook, and
// projected risk after response.
//
// Responsibilities:
//   - Group and rank evidence per affected zone (severity, then recency)
//   - Attach a confidence score to every hypothesis, degraded by evidence
//     gaps and unresolved scope, never blocked by them
//   - Select the best-matching response playbook and project residual risk
//   - Produce deterministic output: same evidence in, same assessment out

// Hypothesis is one candidate explanation of what is happening in a zone.
// Every hypothesis that is not marked insufficient cites at least one
// evidence item by ID.
type Hypothesis struct {
	ZoneID               string   `json:"zone_id,omitempty"`
	Description          string   `json:"description"`
	Confidence           float64  `json:"confidence"` // 0..1, two decimals
	EvidenceIDs          []string `json:"evidence_ids,omitempty"`
	InsufficientEvidence bool     `json:"insufficient_evidence,omitempty"`
}

// GridSummary is the city-wide rollup produced for general status queries.
type GridSummary struct {
	ZoneCount     int `json:"zone_count"`
	HighRiskCount int `json:"high_risk_count"`
	AlertCount    int `json:"alert_count"`
}

// Result is one complete scenario assessment. It is immutable once
// produced and is persisted verbatim in the run record.
type Result struct {
	Category           string       `json:"category"`
	AffectedZones      []string     `json:"affected_zones,omitempty"`
	Hypotheses         []Hypothesis `json:"hypotheses"`
	RecommendedActions []string     `json:"recommended_actions,omitempty"`
	PlaybookID         string       `json:"playbook_id,omitempty"`
	ETAMinutes         int          `json:"eta_minutes,omitempty"`
	CostUSD            float64      `json:"cost_usd,omitempty"`
	RiskBefore         float64      `json:"risk_before"`
	RiskAfter          float64      `json:"risk_after"`
	GridSummary        *GridSummary `json:"grid_summary,omitempty"`
	LowConfidence      bool         `json:"low_confidence,omitempty"`
}
