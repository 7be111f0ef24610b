package types

// Package types defines the public REST API contracts shared between
// civicops-ai and the dashboard frontend.

import (
	"time"

	"github.com/civicops/civicops-ai/internal/run"
	"github.com/civicops/civicops-ai/internal/scenario"
	"github.com/civicops/civicops-ai/internal/session"
)

// Request types

// CreateSessionRequest opens a new conversation session.
type CreateSessionRequest struct {
	CityScope string `json:"city_scope,omitempty"`
}

// PostMessageRequest sends one user message to a session. The scope
// overrides carry structured selections from the dashboard and take
// precedence over scope mentioned in the text.
type PostMessageRequest struct {
	Text         string `json:"text"`
	CityOverride string `json:"city_override,omitempty"`
	ZoneOverride string `json:"zone_override,omitempty"`
}

// Response types

// SessionResponse describes a session.
type SessionResponse struct {
	ID              string    `json:"id"`
	CityScope       string    `json:"city_scope"`
	ZoneScope       string    `json:"zone_scope,omitempty"`
	ClarifyingCount int       `json:"clarifying_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastActive      time.Time `json:"last_active"`
}

// MessageResponse is the outcome of one reasoning turn.
type MessageResponse struct {
	RunID         string           `json:"run_id,omitempty"`
	SessionID     string           `json:"session_id"`
	Reply         string           `json:"reply"`
	Intent        string           `json:"intent"`
	Clarification bool             `json:"clarification,omitempty"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	Result        *scenario.Result `json:"result,omitempty"`
	// Warning reports a non-fatal problem with the turn, such as a run
	// that could not be saved to history.
	Warning string `json:"warning,omitempty"`
}

// RunSummary is one run in a listing, without trace or evidence.
type RunSummary struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserInput     string    `json:"user_input"`
	Intent        string    `json:"intent"`
	ZoneScope     string    `json:"zone_scope,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	Reply         string    `json:"reply"`
	CreatedAt     time.Time `json:"created_at"`
}

// RunListResponse is a page of runs.
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// ReplayResponse compares a re-derived assessment against the recorded run.
type ReplayResponse struct {
	RunID    string           `json:"run_id"`
	Recorded string           `json:"recorded_reply"`
	Replayed string           `json:"replayed_reply"`
	Matches  bool             `json:"matches"`
	Result   *scenario.Result `json:"result,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewSessionResponse converts session state to its API shape.
func NewSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		CityScope:       s.CityScope,
		ZoneScope:       s.ZoneScope,
		ClarifyingCount: s.ClarifyingCount,
		CreatedAt:       s.CreatedAt,
		LastActive:      s.LastActive,
	}
}

// NewRunSummary converts a run to its listing shape.
func NewRunSummary(r *run.Run) RunSummary {
	return RunSummary{
		ID:            r.ID,
		SessionID:     r.SessionID,
		UserInput:     r.UserInput,
		Intent:        r.Intent,
		ZoneScope:     r.ZoneScope,
		LowConfidence: r.LowConfidence,
		Reply:         r.Reply,
		CreatedAt:     r.CreatedAt,
	}
}
