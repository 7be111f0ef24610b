package db

import (
	"context"
	"errors"
	"time"

	"github.com/civicops/civicops-ai/internal/evidence"
)

// Store is the main persistence interface for the orchestrator.
type Store interface {
	RunStore
	ReferenceStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateRun is returned when a run ID is recorded twice. Runs are
// append-only: once written they are never updated or deleted.
var ErrDuplicateRun = errors.New("run already recorded")

// ─── Run store ────────────────────────────────────────────────────────────────

// RunRecord is the DB representation of one completed reasoning turn.
type RunRecord struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	UserInput     string            `json:"user_input"`
	Intent        string            `json:"intent"`
	CityScope     string            `json:"city_scope"`
	ZoneScope     string            `json:"zone_scope"`
	LowConfidence bool              `json:"low_confidence"`
	Reply         string            `json:"reply"`
	Result        string            `json:"result"`   // JSON blob
	Evidence      string            `json:"evidence"` // JSON blob
	CreatedAt     time.Time         `json:"created_at"`
	Trace         []TraceStepRecord `json:"trace"`
}

// TraceStepRecord is one pipeline stage captured during a run.
type TraceStepRecord struct {
	ID             int64  `json:"id"`
	RunID          string `json:"run_id"`
	StepNumber     int    `json:"step_number"`
	Stage          string `json:"stage"`
	DurationMS     int64  `json:"duration_ms"`
	InputsSummary  string `json:"inputs_summary"`
	OutputsSummary string `json:"outputs_summary"`
	ToolCalls      string `json:"tool_calls"` // JSON blob
}

// RunQuery filters run listings.
type RunQuery struct {
	SessionID string
	Intent    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// RunStore persists completed reasoning runs. The runs table is append-only.
type RunStore interface {
	// RecordRun writes a run and its trace atomically. A second write with
	// the same ID fails with ErrDuplicateRun.
	RecordRun(ctx context.Context, rec *RunRecord) error

	// GetRun retrieves a run with its full trace.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs matching the query, newest first, without traces.
	ListRuns(ctx context.Context, q RunQuery) ([]*RunRecord, error)
}

// ─── Reference store ──────────────────────────────────────────────────────────

// ReferenceStore serves the read-only reference data the evidence
// collaborators are backed by.
type ReferenceStore interface {
	// QueryZoneStates returns the latest state snapshot per zone in scope.
	QueryZoneStates(ctx context.Context, f evidence.Filter) ([]evidence.StateRecord, error)

	// QueryActiveEvents returns open incidents in scope.
	QueryActiveEvents(ctx context.Context, f evidence.Filter) ([]evidence.EventRecord, error)

	// QueryServiceOutages returns outage records in scope, newest first.
	QueryServiceOutages(ctx context.Context, f evidence.Filter) ([]evidence.OutageRecord, error)

	// QueryAssets returns registered assets in scope.
	QueryAssets(ctx context.Context, f evidence.Filter) ([]evidence.AssetRecord, error)

	// QueryPlaybooks returns playbooks matching the event type in f.Type,
	// including wildcard playbooks.
	QueryPlaybooks(ctx context.Context, f evidence.Filter) ([]evidence.Playbook, error)

	// Seed loads a fixture set into the reference tables, replacing any
	// rows with matching IDs.
	Seed(ctx context.Context, fx *Fixtures) error
}
