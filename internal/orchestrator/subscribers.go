package orchestrator

import (
	"time"

	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/run"
)

// turn accumulates trace steps for one in-flight turn.
type turn struct {
	coordinator *Coordinator
	sessionID   string
	steps       []run.TraceStep
}

func (t *turn) step(stage run.Stage, start time.Time, in, out string, calls []evidence.Call) {
	t.steps = append(t.steps, run.TraceStep{
		Stage:          stage,
		Duration:       time.Since(start),
		InputsSummary:  in,
		OutputsSummary: out,
		ToolCalls:      calls,
	})
}

// flush pushes the completed trace to session subscribers once the run ID is
// known. Steps are numbered in pipeline order.
func (t *turn) flush(runID string) {
	for i, st := range t.steps {
		t.coordinator.publish(t.sessionID, TraceEvent{
			SessionID:  t.sessionID,
			RunID:      runID,
			StepNumber: i + 1,
			Stage:      string(st.Stage),
			DurationMS: st.Duration.Milliseconds(),
			Summary:    st.OutputsSummary,
		})
	}
}

// Subscribe registers a trace-event listener for one session. The returned
// cancel function must be called to release the subscription. Slow consumers
// lose events rather than stalling turns.
func (c *Coordinator) Subscribe(sessionID string) (<-chan TraceEvent, func()) {
	ch := make(chan TraceEvent, 64)

	c.subMu.Lock()
	if c.subs[sessionID] == nil {
		c.subs[sessionID] = make(map[chan TraceEvent]struct{})
	}
	c.subs[sessionID][ch] = struct{}{}
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if set, ok := c.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(c.subs, sessionID)
			}
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) publish(sessionID string, ev TraceEvent) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subs[sessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
