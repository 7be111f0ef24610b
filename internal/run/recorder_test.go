package run

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicops/civicops-ai/internal/compose"
	"github.com/civicops/civicops-ai/internal/db"
	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/intent"
	"github.com/civicops/civicops-ai/internal/scenario"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	store, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRecorder(store, nil)
}

func powerOutageBatch(t *testing.T) *evidence.Batch {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := evidence.OutageRecord{
		ID: "out_001", CityID: "C_001", ZoneID: "Z_001",
		Service: "power", Status: "active", StartedAt: now,
	}
	payload, _ := json.Marshal(rec)
	return &evidence.Batch{
		Items: []evidence.Item{{
			Source:     evidence.SourceServiceOutages,
			ID:         "out_001",
			ZoneID:     "Z_001",
			Kind:       "power",
			Severity:   4,
			RecordedAt: now,
			Payload:    payload,
			FetchedAt:  now,
		}},
		Calls: []evidence.Call{{Collaborator: "service_outages", EvidenceIDs: []string{"out_001"}}},
	}
}

func TestRecordAndGetRoundTrip(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	synth := scenario.NewSynthesizer(nil)
	batch := powerOutageBatch(t)
	result := synth.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, scenario.Options{})

	original := &Run{
		ID:        NewID(),
		SessionID: "sess_001",
		UserInput: "no power in Z_001",
		Intent:    string(intent.PowerOutage),
		CityScope: "C_001",
		ZoneScope: "Z_001",
		Reply:     compose.Reply(result),
		Result:    result,
		Evidence:  batch,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Trace: []TraceStep{
			{Stage: StageClassifyIntent, Duration: 2 * time.Millisecond, OutputsSummary: "power_outage"},
			{Stage: StageGatherEvidence, Duration: 40 * time.Millisecond, ToolCalls: batch.Calls},
			{Stage: StageSynthesize, Duration: 3 * time.Millisecond},
			{Stage: StageComposeReply, Duration: time.Millisecond},
		},
	}

	if err := r.Record(ctx, original); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := r.Get(ctx, original.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Reply != original.Reply {
		t.Errorf("reply mismatch:\n%q\n%q", got.Reply, original.Reply)
	}
	if got.Result == nil || got.Result.PlaybookID != result.PlaybookID {
		t.Errorf("result did not round-trip: %+v", got.Result)
	}
	if got.Evidence == nil || len(got.Evidence.Items) != 1 {
		t.Errorf("evidence did not round-trip: %+v", got.Evidence)
	}
	if len(got.Trace) != 4 || got.Trace[1].Stage != StageGatherEvidence {
		t.Errorf("trace did not round-trip: %+v", got.Trace)
	}
	if len(got.Trace[1].ToolCalls) != 1 {
		t.Errorf("tool calls did not round-trip: %+v", got.Trace[1])
	}
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	runRec := &Run{ID: "run_fixed", SessionID: "s", UserInput: "x", Intent: "general", Reply: "ok", CreatedAt: time.Now().UTC()}
	if err := r.Record(ctx, runRec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := r.Record(ctx, runRec); !errors.Is(err, db.ErrDuplicateRun) {
		t.Errorf("second Record err = %v, want ErrDuplicateRun", err)
	}
}

func TestReplayReproducesRecordedReply(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	synth := scenario.NewSynthesizer(nil)
	batch := powerOutageBatch(t)
	result := synth.Synthesize(intent.PowerOutage, "C_001", "Z_001", batch, scenario.Options{})

	original := &Run{
		ID:        NewID(),
		SessionID: "sess_001",
		UserInput: "no power in Z_001",
		Intent:    string(intent.PowerOutage),
		CityScope: "C_001",
		ZoneScope: "Z_001",
		Reply:     compose.Reply(result),
		Result:    result,
		Evidence:  batch,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.Record(ctx, original); err != nil {
		t.Fatalf("Record: %v", err)
	}

	replayed, err := r.Replay(ctx, original.ID, synth)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !replayed.Replayed {
		t.Error("expected a synthesized replay")
	}
	if !replayed.Matches {
		t.Errorf("replay diverged from recorded reply:\nrecorded: %q\nreplayed: %q",
			original.Reply, replayed.Reply)
	}
}

func TestReplayClarificationRun(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	clarification := &Run{
		ID:        NewID(),
		SessionID: "sess_001",
		UserInput: "there is a power cut",
		Intent:    string(intent.PowerOutage),
		CityScope: "C_001",
		Reply:     "Which zone is affected? Known zones: Z_001, Z_002.",
		CreatedAt: time.Now().UTC(),
		Trace: []TraceStep{
			{Stage: StageClassifyIntent, OutputsSummary: "power_outage"},
			{Stage: StageAskClarification, OutputsSummary: "zone_scope"},
		},
	}
	if err := r.Record(ctx, clarification); err != nil {
		t.Fatalf("Record: %v", err)
	}

	replayed, err := r.Replay(ctx, clarification.ID, scenario.NewSynthesizer(nil))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.Replayed {
		t.Error("clarification runs carry no evidence to replay")
	}
	if !replayed.Matches || replayed.Reply != clarification.Reply {
		t.Errorf("clarification replay should return the recorded reply, got %q", replayed.Reply)
	}
}

func TestGetMissingRun(t *testing.T) {
	r := newTestRecorder(t)

	_, err := r.Get(context.Background(), "run_missing")
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
