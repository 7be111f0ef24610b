package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/civicops/civicops-ai/internal/evidence"
)

// schema defines the tables for the orchestrator persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL,
    user_input     TEXT NOT NULL,
    intent         TEXT NOT NULL DEFAULT 'general',
    city_scope     TEXT NOT NULL DEFAULT '',
    zone_scope     TEXT NOT NULL DEFAULT '',
    low_confidence INTEGER NOT NULL DEFAULT 0,
    reply          TEXT NOT NULL DEFAULT '',
    result         TEXT NOT NULL DEFAULT '{}',
    evidence       TEXT NOT NULL DEFAULT '{}',
    created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_intent ON runs(intent);

CREATE TABLE IF NOT EXISTS trace_steps (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step_number     INTEGER NOT NULL,
    stage           TEXT NOT NULL,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    inputs_summary  TEXT NOT NULL DEFAULT '',
    outputs_summary TEXT NOT NULL DEFAULT '',
    tool_calls      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_trace_steps_run ON trace_steps(run_id, step_number ASC);
`,
	},
	// Migration 2: reference tables backing the evidence collaborators.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS zone_state (
    zone_id     TEXT PRIMARY KEY,
    city_id     TEXT NOT NULL,
    risk_score  REAL NOT NULL DEFAULT 0.0,
    risk_tier   TEXT NOT NULL DEFAULT 'low',
    alerts      TEXT NOT NULL DEFAULT '[]',
    metrics     TEXT NOT NULL DEFAULT '{}',
    observed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_zone_state_city ON zone_state(city_id);

CREATE TABLE IF NOT EXISTS active_events (
    id          TEXT PRIMARY KEY,
    city_id     TEXT NOT NULL,
    zone_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    severity    INTEGER NOT NULL DEFAULT 1,
    status      TEXT NOT NULL DEFAULT 'open',
    description TEXT NOT NULL DEFAULT '',
    reported_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_active_events_zone ON active_events(city_id, zone_id);
CREATE INDEX IF NOT EXISTS idx_active_events_type ON active_events(type);

CREATE TABLE IF NOT EXISTS service_outages (
    id          TEXT PRIMARY KEY,
    city_id     TEXT NOT NULL,
    zone_id     TEXT NOT NULL,
    service     TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'active',
    description TEXT NOT NULL DEFAULT '',
    started_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_service_outages_zone ON service_outages(city_id, zone_id);

CREATE TABLE IF NOT EXISTS assets (
    id       TEXT PRIMARY KEY,
    city_id  TEXT NOT NULL,
    zone_id  TEXT NOT NULL,
    kind     TEXT NOT NULL,
    name     TEXT NOT NULL,
    critical INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_assets_zone ON assets(city_id, zone_id);

CREATE TABLE IF NOT EXISTS playbooks (
    id            TEXT PRIMARY KEY,
    event_type    TEXT NOT NULL,
    trigger_tier  TEXT NOT NULL DEFAULT '*',
    actions       TEXT NOT NULL DEFAULT '[]',
    eta_minutes   INTEGER NOT NULL DEFAULT 0,
    cost_usd      REAL NOT NULL DEFAULT 0.0,
    effectiveness REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_playbooks_event_type ON playbooks(event_type);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Runs ─────────────────────────────────────────────────────────────────────

func (s *sqliteStore) RecordRun(ctx context.Context, rec *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id=?`, rec.ID).Scan(&count); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if count > 0 {
		return ErrDuplicateRun
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, session_id, user_input, intent, city_scope, zone_scope, low_confidence, reply, result, evidence, created_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.SessionID, rec.UserInput, rec.Intent, rec.CityScope, rec.ZoneScope,
		rec.LowConfidence, rec.Reply, rec.Result, rec.Evidence, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, st := range rec.Trace {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO trace_steps(run_id, step_number, stage, duration_ms, inputs_summary, outputs_summary, tool_calls)
            VALUES(?,?,?,?,?,?,?)
        `, rec.ID, st.StepNumber, st.Stage, st.DurationMS, st.InputsSummary, st.OutputsSummary, st.ToolCalls)
		if err != nil {
			return fmt.Errorf("insert trace step: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,session_id,user_input,intent,city_scope,zone_scope,low_confidence,reply,result,evidence,created_at FROM runs WHERE id=?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id,step_number,stage,duration_ms,inputs_summary,outputs_summary,tool_calls FROM trace_steps WHERE run_id=? ORDER BY step_number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st TraceStepRecord
		st.RunID = id
		if err := rows.Scan(&st.ID, &st.StepNumber, &st.Stage, &st.DurationMS, &st.InputsSummary, &st.OutputsSummary, &st.ToolCalls); err != nil {
			return nil, err
		}
		rec.Trace = append(rec.Trace, st)
	}
	return rec, rows.Err()
}

func (s *sqliteStore) ListRuns(ctx context.Context, q RunQuery) ([]*RunRecord, error) {
	query := `SELECT id,session_id,user_input,intent,city_scope,zone_scope,low_confidence,reply,result,evidence,created_at FROM runs WHERE 1=1`
	args := []any{}

	if q.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, q.SessionID)
	}
	if q.Intent != "" {
		query += ` AND intent = ?`
		args = append(args, q.Intent)
	}
	if !q.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit <= 0 {
		q.Limit = 50
	}
	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var createdAt string
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserInput, &rec.Intent, &rec.CityScope,
		&rec.ZoneScope, &rec.LowConfidence, &rec.Reply, &rec.Result, &rec.Evidence, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = parseTime(createdAt)
	return rec, nil
}

// ─── Reference data ───────────────────────────────────────────────────────────

func (s *sqliteStore) QueryZoneStates(ctx context.Context, f evidence.Filter) ([]evidence.StateRecord, error) {
	query := `SELECT zone_id,city_id,risk_score,risk_tier,alerts,metrics,observed_at FROM zone_state WHERE 1=1`
	args := []any{}
	if f.CityID != "" {
		query += ` AND city_id = ?`
		args = append(args, f.CityID)
	}
	if f.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, f.ZoneID)
	}
	query += ` ORDER BY zone_id ASC` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.StateRecord
	for rows.Next() {
		var rec evidence.StateRecord
		var alerts, metrics, observedAt string
		if err := rows.Scan(&rec.ZoneID, &rec.CityID, &rec.RiskScore, &rec.RiskTier, &alerts, &metrics, &observedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(alerts), &rec.Alerts)
		_ = json.Unmarshal([]byte(metrics), &rec.Metrics)
		rec.ObservedAt, _ = parseTime(observedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) QueryActiveEvents(ctx context.Context, f evidence.Filter) ([]evidence.EventRecord, error) {
	query := `SELECT id,city_id,zone_id,type,severity,status,description,reported_at FROM active_events WHERE status != 'closed'`
	args := []any{}
	if f.CityID != "" {
		query += ` AND city_id = ?`
		args = append(args, f.CityID)
	}
	if f.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, f.ZoneID)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY reported_at DESC, id ASC` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.EventRecord
	for rows.Next() {
		var rec evidence.EventRecord
		var reportedAt string
		if err := rows.Scan(&rec.ID, &rec.CityID, &rec.ZoneID, &rec.Type, &rec.Severity, &rec.Status, &rec.Description, &reportedAt); err != nil {
			return nil, err
		}
		rec.ReportedAt, _ = parseTime(reportedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) QueryServiceOutages(ctx context.Context, f evidence.Filter) ([]evidence.OutageRecord, error) {
	query := `SELECT id,city_id,zone_id,service,status,description,started_at FROM service_outages WHERE status != 'resolved'`
	args := []any{}
	if f.CityID != "" {
		query += ` AND city_id = ?`
		args = append(args, f.CityID)
	}
	if f.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, f.ZoneID)
	}
	query += ` ORDER BY started_at DESC, id ASC` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.OutageRecord
	for rows.Next() {
		var rec evidence.OutageRecord
		var startedAt string
		if err := rows.Scan(&rec.ID, &rec.CityID, &rec.ZoneID, &rec.Service, &rec.Status, &rec.Description, &startedAt); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = parseTime(startedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) QueryAssets(ctx context.Context, f evidence.Filter) ([]evidence.AssetRecord, error) {
	query := `SELECT id,city_id,zone_id,kind,name,critical FROM assets WHERE 1=1`
	args := []any{}
	if f.CityID != "" {
		query += ` AND city_id = ?`
		args = append(args, f.CityID)
	}
	if f.ZoneID != "" {
		query += ` AND zone_id = ?`
		args = append(args, f.ZoneID)
	}
	query += ` ORDER BY id ASC` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.AssetRecord
	for rows.Next() {
		var rec evidence.AssetRecord
		if err := rows.Scan(&rec.ID, &rec.CityID, &rec.ZoneID, &rec.Kind, &rec.Name, &rec.Critical); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) QueryPlaybooks(ctx context.Context, f evidence.Filter) ([]evidence.Playbook, error) {
	query := `SELECT id,event_type,trigger_tier,actions,eta_minutes,cost_usd,effectiveness FROM playbooks`
	args := []any{}
	if f.Type != "" {
		query += ` WHERE event_type IN (?, '*')`
		args = append(args, f.Type)
	}
	query += ` ORDER BY id ASC` + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []evidence.Playbook
	for rows.Next() {
		var rec evidence.Playbook
		var actions string
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.TriggerTier, &actions, &rec.ETAMinutes, &rec.CostUSD, &rec.Effectiveness); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(actions), &rec.Actions)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) Seed(ctx context.Context, fx *Fixtures) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, z := range fx.ZoneStates {
		alerts := mustMarshal(z.Alerts)
		metrics := mustMarshal(z.Metrics)
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO zone_state(zone_id, city_id, risk_score, risk_tier, alerts, metrics, observed_at)
            VALUES(?,?,?,?,?,?,?)
        `, z.ZoneID, z.CityID, z.RiskScore, z.RiskTier, alerts, metrics, z.ObservedAt.UTC())
		if err != nil {
			return fmt.Errorf("seed zone_state %s: %w", z.ZoneID, err)
		}
	}

	for _, e := range fx.Events {
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO active_events(id, city_id, zone_id, type, severity, status, description, reported_at)
            VALUES(?,?,?,?,?,?,?,?)
        `, e.ID, e.CityID, e.ZoneID, e.Type, e.Severity, e.Status, e.Description, e.ReportedAt.UTC())
		if err != nil {
			return fmt.Errorf("seed event %s: %w", e.ID, err)
		}
	}

	for _, o := range fx.Outages {
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO service_outages(id, city_id, zone_id, service, status, description, started_at)
            VALUES(?,?,?,?,?,?,?)
        `, o.ID, o.CityID, o.ZoneID, o.Service, o.Status, o.Description, o.StartedAt.UTC())
		if err != nil {
			return fmt.Errorf("seed outage %s: %w", o.ID, err)
		}
	}

	for _, a := range fx.Assets {
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO assets(id, city_id, zone_id, kind, name, critical)
            VALUES(?,?,?,?,?,?)
        `, a.ID, a.CityID, a.ZoneID, a.Kind, a.Name, a.Critical)
		if err != nil {
			return fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
	}

	for _, p := range fx.Playbooks {
		actions := mustMarshal(p.Actions)
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO playbooks(id, event_type, trigger_tier, actions, eta_minutes, cost_usd, effectiveness)
            VALUES(?,?,?,?,?,?,?)
        `, p.ID, p.EventType, p.TriggerTier, actions, p.ETAMinutes, p.CostUSD, p.Effectiveness)
		if err != nil {
			return fmt.Errorf("seed playbook %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(` LIMIT %d`, limit)
}

// mustMarshal serializes a value that cannot fail (slices and maps of
// primitives), falling back to an empty JSON container.
func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		if _, ok := v.(map[string]float64); ok {
			return "{}"
		}
		return "[]"
	}
	return string(b)
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
