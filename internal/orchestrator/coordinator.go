package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/audit"
	"github.com/civicops/civicops-ai/internal/clarify"
	"github.com/civicops/civicops-ai/internal/compose"
	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/intent"
	"github.com/civicops/civicops-ai/internal/metrics"
	"github.com/civicops/civicops-ai/internal/run"
	"github.com/civicops/civicops-ai/internal/scenario"
	"github.com/civicops/civicops-ai/internal/session"
)

// Package orchestrator drives one reasoning turn end to end: classify the
// message, clarify scope if needed, gather evidence, synthesize a scenario,
// compose the reply, and record the run.
//
// Responsibilities:
//   - Serialize turns per session through the session store's turn token
//   - Enforce the clarifying-question budget and remember the pending intent
//     while a clarification is outstanding
//   - Record every completed turn as an immutable run; a cancelled turn
//     records nothing
//   - Stream trace steps to subscribers as each stage completes

// ErrEmptyInput rejects blank messages before a turn starts. No run is
// recorded for rejected input.
var ErrEmptyInput = errors.New("message text is empty")

// Message is one inbound user message. Overrides carry structured scope from
// the dashboard UI and take precedence over scope extracted from text.
type Message struct {
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
	CityOverride string `json:"city_override,omitempty"`
	ZoneOverride string `json:"zone_override,omitempty"`
}

// Reply is the outcome of one turn.
type Reply struct {
	RunID         string           `json:"run_id,omitempty"`
	SessionID     string           `json:"session_id"`
	Text          string           `json:"text"`
	Intent        string           `json:"intent"`
	Clarification bool             `json:"clarification,omitempty"`
	Result        *scenario.Result `json:"result,omitempty"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	// Warning carries a non-fatal problem with an otherwise successful
	// turn, such as a run that could not be persisted.
	Warning string `json:"warning,omitempty"`
}

// persistWarning is attached to a reply whose run failed to persist. The
// answer stands; the run is just missing from history.
const persistWarning = "this turn could not be saved to run history"

// TraceEvent is one pipeline stage pushed to session subscribers.
type TraceEvent struct {
	SessionID  string `json:"session_id"`
	RunID      string `json:"run_id,omitempty"`
	StepNumber int    `json:"step_number"`
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

// Coordinator wires the pipeline stages together.
type Coordinator struct {
	sessions *session.Store
	policy   *clarify.Policy
	gatherer *evidence.Gatherer
	synth    *scenario.Synthesizer
	recorder *run.Recorder
	auditLog audit.Logger
	log      *zap.Logger

	defaultCity string

	subMu sync.RWMutex
	subs  map[string]map[chan TraceEvent]struct{}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(
	sessions *session.Store,
	policy *clarify.Policy,
	gatherer *evidence.Gatherer,
	synth *scenario.Synthesizer,
	recorder *run.Recorder,
	auditLog audit.Logger,
	defaultCity string,
	log *zap.Logger,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		sessions:    sessions,
		policy:      policy,
		gatherer:    gatherer,
		synth:       synth,
		recorder:    recorder,
		auditLog:    auditLog,
		defaultCity: defaultCity,
		log:         log,
		subs:        make(map[string]map[chan TraceEvent]struct{}),
	}
}

// CreateSession opens a new session, defaulting the city scope.
func (c *Coordinator) CreateSession(cityScope string) session.Session {
	if cityScope == "" {
		cityScope = c.defaultCity
	}
	sess := c.sessions.Create(strings.ToUpper(cityScope))
	if c.auditLog != nil {
		_ = c.auditLog.Log(context.Background(), audit.NewEvent(audit.EventSessionCreated).
			WithSession(sess.ID).
			WithScope(sess.CityScope, "").
			WithResult(audit.ResultSuccess))
	}
	return sess
}

// EndSession closes a session immediately.
func (c *Coordinator) EndSession(id string) error {
	if err := c.sessions.End(id); err != nil {
		return err
	}
	if c.auditLog != nil {
		_ = c.auditLog.Log(context.Background(), audit.NewEvent(audit.EventSessionEnded).
			WithSession(id).
			WithResult(audit.ResultSuccess))
	}
	return nil
}

// GetSession returns a snapshot of session state.
func (c *Coordinator) GetSession(id string) (session.Session, error) {
	return c.sessions.Get(id)
}

// HandleMessage runs one full reasoning turn. Turns for the same session are
// serialized; a cancelled context aborts the turn without recording a run.
func (c *Coordinator) HandleMessage(ctx context.Context, msg Message) (*Reply, error) {
	if strings.TrimSpace(msg.Text) == "" {
		metrics.TurnsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, ErrEmptyInput
	}

	release, err := c.sessions.BeginTurn(ctx, msg.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := c.sessions.Get(msg.SessionID)
	if err != nil {
		return nil, err
	}

	if c.auditLog != nil {
		c.auditLog.LogTurnStarted(ctx, sess.ID, msg.Text)
	}
	turnStart := time.Now()

	t := &turn{coordinator: c, sessionID: sess.ID}

	// Stage 1: classify.
	stageStart := time.Now()
	classified := intent.Classify(msg.Text)
	category := classified.Category
	if category == intent.General && sess.PendingIntent != "" {
		// A clarification answer rarely repeats the incident keywords;
		// resume the intent the question was asked for.
		category = intent.Category(sess.PendingIntent)
	}
	city := firstNonEmpty(strings.ToUpper(msg.CityOverride), classified.City, sess.CityScope, c.defaultCity)
	zone := firstNonEmpty(strings.ToUpper(msg.ZoneOverride), classified.Zone, sess.ZoneScope)
	t.step(run.StageClassifyIntent, stageStart, summarize(msg.Text), string(category), nil)

	// Stage 2: clarify if scope is missing.
	decision := c.policy.Evaluate(category, city, zone, sess.ClarifyingCount)
	if decision.Ask {
		return c.clarificationTurn(ctx, t, sess, msg, category, city, zone, decision, turnStart)
	}

	// Stage 3: gather evidence.
	stageStart = time.Now()
	batch := c.gatherer.Gather(ctx, string(category), city, zone)
	t.step(run.StageGatherEvidence, stageStart,
		fmt.Sprintf("city=%s zone=%s", city, zone),
		fmt.Sprintf("%d items, %d gaps", len(batch.Items), len(batch.Gaps)),
		batch.Calls)
	if c.auditLog != nil {
		for _, gap := range batch.Gaps {
			c.auditLog.LogCollaboratorUnavailable(ctx, sess.ID, string(gap.Source), errors.New(gap.Reason))
		}
	}

	// Stage 4: synthesize.
	stageStart = time.Now()
	opts := scenario.Options{ZoneUnresolved: decision.BudgetExhausted && decision.MissingSlot == intent.SlotZone}
	result := c.synth.Synthesize(category, city, zone, batch, opts)
	t.step(run.StageSynthesize, stageStart, "",
		fmt.Sprintf("%d hypotheses, playbook=%s", len(result.Hypotheses), orDash(result.PlaybookID)), nil)

	// Stage 5: compose.
	stageStart = time.Now()
	replyText := compose.Reply(result)
	t.step(run.StageComposeReply, stageStart, "", summarize(replyText), nil)

	// A cancelled turn is discarded whole: no run, no session mutation.
	if err := ctx.Err(); err != nil {
		metrics.TurnsTotal.WithLabelValues(string(category), "cancelled").Inc()
		return nil, err
	}

	rec := &run.Run{
		ID:            run.NewID(),
		SessionID:     sess.ID,
		UserInput:     msg.Text,
		Intent:        string(category),
		CityScope:     city,
		ZoneScope:     zone,
		LowConfidence: result.LowConfidence,
		Reply:         replyText,
		Result:        result,
		Evidence:      batch,
		CreatedAt:     time.Now().UTC(),
		Trace:         t.steps,
	}
	persistErr := c.record(ctx, rec)
	t.flush(rec.ID)

	if err := c.sessions.Update(sess.ID, func(s *session.Session) {
		s.CityScope = city
		s.ZoneScope = zone
		s.PendingIntent = ""
		s.History = append(s.History,
			session.HistoryEntry{Role: "user", Text: msg.Text, At: rec.CreatedAt},
			session.HistoryEntry{Role: "assistant", Text: replyText, RunID: rec.ID, At: rec.CreatedAt},
		)
	}); err != nil {
		c.log.Warn("session update skipped",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}

	metrics.TurnsTotal.WithLabelValues(string(category), "completed").Inc()
	metrics.TurnDuration.WithLabelValues(string(category)).Observe(time.Since(turnStart).Seconds())
	if c.auditLog != nil {
		c.auditLog.LogTurnCompleted(ctx, sess.ID, rec.ID, time.Since(turnStart))
	}

	reply := &Reply{
		RunID:         rec.ID,
		SessionID:     sess.ID,
		Text:          replyText,
		Intent:        string(category),
		Result:        result,
		LowConfidence: result.LowConfidence,
	}
	if persistErr != nil {
		reply.Warning = persistWarning
	}
	return reply, nil
}

// clarificationTurn ends a turn early with a question. The question still
// counts as a completed turn and is recorded, so the conversation is fully
// reconstructable from runs alone.
func (c *Coordinator) clarificationTurn(
	ctx context.Context,
	t *turn,
	sess session.Session,
	msg Message,
	category intent.Category,
	city, zone string,
	decision clarify.Decision,
	turnStart time.Time,
) (*Reply, error) {
	stageStart := time.Now()
	replyText := compose.ClarifyingReply(decision.Question)
	t.step(run.StageAskClarification, stageStart, string(decision.MissingSlot), summarize(replyText), nil)

	if err := ctx.Err(); err != nil {
		metrics.TurnsTotal.WithLabelValues(string(category), "cancelled").Inc()
		return nil, err
	}

	rec := &run.Run{
		ID:        run.NewID(),
		SessionID: sess.ID,
		UserInput: msg.Text,
		Intent:    string(category),
		CityScope: city,
		ZoneScope: zone,
		Reply:     replyText,
		CreatedAt: time.Now().UTC(),
		Trace:     t.steps,
	}
	persistErr := c.record(ctx, rec)
	t.flush(rec.ID)

	newCount := sess.ClarifyingCount + 1
	if err := c.sessions.Update(sess.ID, func(s *session.Session) {
		s.CityScope = city
		s.ZoneScope = zone
		s.ClarifyingCount = newCount
		if category != intent.General {
			s.PendingIntent = string(category)
		}
		s.History = append(s.History,
			session.HistoryEntry{Role: "user", Text: msg.Text, At: rec.CreatedAt},
			session.HistoryEntry{Role: "assistant", Text: replyText, RunID: rec.ID, At: rec.CreatedAt},
		)
	}); err != nil {
		c.log.Warn("session update skipped",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}

	metrics.ClarificationsAsked.Inc()
	metrics.TurnsTotal.WithLabelValues(string(category), "clarification").Inc()
	metrics.TurnDuration.WithLabelValues(string(category)).Observe(time.Since(turnStart).Seconds())
	if c.auditLog != nil {
		c.auditLog.LogClarificationAsked(ctx, sess.ID, decision.Question, newCount)
	}

	reply := &Reply{
		RunID:         rec.ID,
		SessionID:     sess.ID,
		Text:          replyText,
		Intent:        string(category),
		Clarification: true,
	}
	if persistErr != nil {
		reply.Warning = persistWarning
	}
	return reply, nil
}

// record persists a run. Persistence failure degrades to a warning: the user
// still gets the reply, the run is just missing from history. The returned
// error lets the caller flag the reply.
func (c *Coordinator) record(ctx context.Context, rec *run.Run) error {
	err := c.recorder.Record(ctx, rec)
	if err != nil {
		c.log.Warn("failed to persist run",
			zap.String("run_id", rec.ID),
			zap.String("session_id", rec.SessionID),
			zap.Error(err),
		)
		if c.auditLog != nil {
			c.auditLog.LogRunPersistFailed(ctx, rec.SessionID, err)
		}
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// summarize truncates free text for trace summaries.
func summarize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
