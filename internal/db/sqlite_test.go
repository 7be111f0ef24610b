package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicops/civicops-ai/internal/evidence"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = store.Close()

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = store.Close()
}

func TestRecordAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &RunRecord{
		ID:        "run_001",
		SessionID: "sess_001",
		UserInput: "no power in Z_001",
		Intent:    "power_outage",
		CityScope: "C_001",
		ZoneScope: "Z_001",
		Reply:     "Assessment: probable power outage.",
		Result:    `{"category":"power_outage"}`,
		Evidence:  `{"items":[]}`,
		CreatedAt: time.Now().UTC(),
		Trace: []TraceStepRecord{
			{StepNumber: 1, Stage: "classify_intent", DurationMS: 2, OutputsSummary: "power_outage"},
			{StepNumber: 2, Stage: "gather_evidence", DurationMS: 40, ToolCalls: `[{"collaborator":"service_outages"}]`},
			{StepNumber: 3, Stage: "synthesize", DurationMS: 5},
		},
	}

	if err := store.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run_001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.SessionID != "sess_001" || got.Intent != "power_outage" {
		t.Errorf("unexpected run: %+v", got)
	}
	if len(got.Trace) != 3 {
		t.Fatalf("trace steps = %d, want 3", len(got.Trace))
	}
	if got.Trace[0].Stage != "classify_intent" || got.Trace[2].Stage != "synthesize" {
		t.Errorf("trace out of order: %+v", got.Trace)
	}
}

func TestRecordRunIsAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &RunRecord{ID: "run_dup", SessionID: "s", UserInput: "x", Intent: "general", CreatedAt: time.Now().UTC()}
	if err := store.RecordRun(ctx, rec); err != nil {
		t.Fatalf("first record: %v", err)
	}

	rec.Reply = "mutated"
	err := store.RecordRun(ctx, rec)
	if !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("second record err = %v, want ErrDuplicateRun", err)
	}

	got, err := store.GetRun(ctx, "run_dup")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Reply == "mutated" {
		t.Error("recorded run was mutated by a duplicate write")
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsFiltersBySession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, sess := range []string{"sess_a", "sess_a", "sess_b"} {
		rec := &RunRecord{
			ID:        fmt.Sprintf("run_%d", i),
			SessionID: sess,
			UserInput: "q",
			Intent:    "general",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(ctx, RunQuery{SessionID: "sess_a"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].CreatedAt.Before(runs[1].CreatedAt) {
		t.Error("runs should be newest first")
	}
}

func TestSeedAndQueryReferenceData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Seed(ctx, DefaultFixtures()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice must not duplicate rows.
	if err := store.Seed(ctx, DefaultFixtures()); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	states, err := store.QueryZoneStates(ctx, evidence.Filter{CityID: "C_001"})
	if err != nil {
		t.Fatalf("QueryZoneStates: %v", err)
	}
	if len(states) != 5 {
		t.Errorf("zone states = %d, want 5", len(states))
	}

	one, err := store.QueryZoneStates(ctx, evidence.Filter{CityID: "C_001", ZoneID: "Z_001"})
	if err != nil {
		t.Fatalf("QueryZoneStates zone: %v", err)
	}
	if len(one) != 1 || one[0].RiskTier != "high" {
		t.Errorf("unexpected Z_001 state: %+v", one)
	}
	if len(one[0].Alerts) != 2 {
		t.Errorf("alerts should round-trip, got %v", one[0].Alerts)
	}

	outages, err := store.QueryServiceOutages(ctx, evidence.Filter{CityID: "C_001", ZoneID: "Z_001"})
	if err != nil {
		t.Fatalf("QueryServiceOutages: %v", err)
	}
	if len(outages) != 1 || outages[0].Status != "active" {
		t.Errorf("unexpected outages: %+v", outages)
	}

	pbs, err := store.QueryPlaybooks(ctx, evidence.Filter{Type: "power_outage"})
	if err != nil {
		t.Fatalf("QueryPlaybooks: %v", err)
	}
	// Exact matches plus the wildcard playbook.
	if len(pbs) != 3 {
		t.Errorf("playbooks = %d, want 3", len(pbs))
	}
	for _, pb := range pbs {
		if pb.EventType != "power_outage" && pb.EventType != "*" {
			t.Errorf("unexpected playbook event type %q", pb.EventType)
		}
	}
}

func TestProvidersAdapter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Seed(ctx, DefaultFixtures()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	providers := Providers(store)

	events, err := providers.Events.QueryEvents(ctx, evidence.Filter{CityID: "C_001", ZoneID: "Z_001"})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 || events[0].Type != "power_outage" {
		t.Errorf("unexpected events: %+v", events)
	}

	assets, err := providers.Assets.QueryAssets(ctx, evidence.Filter{CityID: "C_001", ZoneID: "Z_001"})
	if err != nil {
		t.Fatalf("QueryAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Errorf("assets = %d, want 2", len(assets))
	}
}
