package run

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/compose"
	"github.com/civicops/civicops-ai/internal/db"
	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/intent"
	"github.com/civicops/civicops-ai/internal/metrics"
	"github.com/civicops/civicops-ai/internal/scenario"
)

// Package run records completed reasoning turns as immutable, replayable
// run records. A run captures the user input, the per-stage trace, the
// gathered evidence, the structured result, and the final reply.

// Stage names the pipeline stages captured in a trace.
type Stage string

const (
	StageClassifyIntent   Stage = "classify_intent"
	StageAskClarification Stage = "ask_clarification"
	StageGatherEvidence   Stage = "gather_evidence"
	StageSynthesize       Stage = "synthesize"
	StageComposeReply     Stage = "compose_reply"
)

// TraceStep is one recorded pipeline stage.
type TraceStep struct {
	Stage          Stage           `json:"stage"`
	Duration       time.Duration   `json:"duration"`
	InputsSummary  string          `json:"inputs_summary,omitempty"`
	OutputsSummary string          `json:"outputs_summary,omitempty"`
	ToolCalls      []evidence.Call `json:"tool_calls,omitempty"`
}

// Run is one completed reasoning turn.
type Run struct {
	ID            string           `json:"id"`
	SessionID     string           `json:"session_id"`
	UserInput     string           `json:"user_input"`
	Intent        string           `json:"intent"`
	CityScope     string           `json:"city_scope,omitempty"`
	ZoneScope     string           `json:"zone_scope,omitempty"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	Reply         string           `json:"reply"`
	Result        *scenario.Result `json:"result,omitempty"`
	Evidence      *evidence.Batch  `json:"evidence,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Trace         []TraceStep      `json:"trace,omitempty"`
}

// NewID returns a fresh run identifier.
func NewID() string {
	return "run_" + uuid.New().String()
}

// Recorder persists runs through the store.
type Recorder struct {
	store db.RunStore
	log   *zap.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store db.RunStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log}
}

// Record persists a run. Runs are append-only: recording the same ID twice
// fails with db.ErrDuplicateRun.
func (r *Recorder) Record(ctx context.Context, run *Run) error {
	rec, err := toRecord(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	if err := r.store.RecordRun(ctx, rec); err != nil {
		metrics.RunPersistFailures.Inc()
		return err
	}
	metrics.RunsRecorded.Inc()
	return nil
}

// Get retrieves a run with its full trace, result, and evidence.
func (r *Recorder) Get(ctx context.Context, id string) (*Run, error) {
	rec, err := r.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns runs matching the query, newest first, without traces.
func (r *Recorder) List(ctx context.Context, q db.RunQuery) ([]*Run, error) {
	recs, err := r.store.ListRuns(ctx, q)
	if err != nil {
		return nil, err
	}
	runs := make([]*Run, 0, len(recs))
	for _, rec := range recs {
		run, err := fromRecord(rec)
		if err != nil {
			r.log.Warn("skipping undecodable run", zap.String("run_id", rec.ID), zap.Error(err))
			continue
		}
		run.Trace = nil
		runs = append(runs, run)
	}
	return runs, nil
}

// ReplayResult compares a re-derived assessment against the recorded one.
type ReplayResult struct {
	Run      *Run             `json:"run"`
	Result   *scenario.Result `json:"result,omitempty"`
	Reply    string           `json:"reply"`
	Matches  bool             `json:"matches"`
	Replayed bool             `json:"replayed"`
}

// Replay re-runs synthesis and composition over the evidence persisted with a
// run. Because both stages are deterministic, a healthy system reproduces the
// recorded reply exactly. Clarification-only runs carry no evidence and are
// returned as recorded.
func (r *Recorder) Replay(ctx context.Context, id string, synth *scenario.Synthesizer) (*ReplayResult, error) {
	run, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if run.Result == nil {
		return &ReplayResult{Run: run, Reply: run.Reply, Matches: true}, nil
	}

	opts := scenario.Options{ZoneUnresolved: zoneUnresolved(intent.Category(run.Intent), run.ZoneScope)}
	result := synth.Synthesize(intent.Category(run.Intent), run.CityScope, run.ZoneScope, run.Evidence, opts)
	reply := compose.Reply(result)

	return &ReplayResult{
		Run:      run,
		Result:   result,
		Reply:    reply,
		Matches:  reply == run.Reply,
		Replayed: true,
	}, nil
}

// zoneUnresolved reports whether a category that requires zone scope ended
// the turn without one. The same rule drives synthesis during live turns, so
// replay sees identical options.
func zoneUnresolved(category intent.Category, zoneScope string) bool {
	if zoneScope != "" {
		return false
	}
	for _, slot := range intent.RequiredSlots(category) {
		if slot == intent.SlotZone {
			return true
		}
	}
	return false
}

func toRecord(run *Run) (*db.RunRecord, error) {
	resultJSON := "{}"
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return nil, err
		}
		resultJSON = string(b)
	}

	evidenceJSON := "{}"
	if run.Evidence != nil {
		b, err := json.Marshal(run.Evidence)
		if err != nil {
			return nil, err
		}
		evidenceJSON = string(b)
	}

	rec := &db.RunRecord{
		ID:            run.ID,
		SessionID:     run.SessionID,
		UserInput:     run.UserInput,
		Intent:        run.Intent,
		CityScope:     run.CityScope,
		ZoneScope:     run.ZoneScope,
		LowConfidence: run.LowConfidence,
		Reply:         run.Reply,
		Result:        resultJSON,
		Evidence:      evidenceJSON,
		CreatedAt:     run.CreatedAt,
	}

	for i, st := range run.Trace {
		toolCalls := "[]"
		if len(st.ToolCalls) > 0 {
			b, err := json.Marshal(st.ToolCalls)
			if err != nil {
				return nil, err
			}
			toolCalls = string(b)
		}
		rec.Trace = append(rec.Trace, db.TraceStepRecord{
			StepNumber:     i + 1,
			Stage:          string(st.Stage),
			DurationMS:     st.Duration.Milliseconds(),
			InputsSummary:  st.InputsSummary,
			OutputsSummary: st.OutputsSummary,
			ToolCalls:      toolCalls,
		})
	}
	return rec, nil
}

func fromRecord(rec *db.RunRecord) (*Run, error) {
	run := &Run{
		ID:            rec.ID,
		SessionID:     rec.SessionID,
		UserInput:     rec.UserInput,
		Intent:        rec.Intent,
		CityScope:     rec.CityScope,
		ZoneScope:     rec.ZoneScope,
		LowConfidence: rec.LowConfidence,
		Reply:         rec.Reply,
		CreatedAt:     rec.CreatedAt,
	}

	if rec.Result != "" && rec.Result != "{}" {
		var result scenario.Result
		if err := json.Unmarshal([]byte(rec.Result), &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		run.Result = &result
	}
	if rec.Evidence != "" && rec.Evidence != "{}" {
		var batch evidence.Batch
		if err := json.Unmarshal([]byte(rec.Evidence), &batch); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
		run.Evidence = &batch
	}

	for _, st := range rec.Trace {
		step := TraceStep{
			Stage:          Stage(st.Stage),
			Duration:       time.Duration(st.DurationMS) * time.Millisecond,
			InputsSummary:  st.InputsSummary,
			OutputsSummary: st.OutputsSummary,
		}
		if st.ToolCalls != "" && st.ToolCalls != "[]" {
			if err := json.Unmarshal([]byte(st.ToolCalls), &step.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		run.Trace = append(run.Trace, step)
	}
	return run, nil
}
