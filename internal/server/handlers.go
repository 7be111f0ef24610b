package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/db"
	"github.com/civicops/civicops-ai/internal/orchestrator"
	"github.com/civicops/civicops-ai/internal/session"
	"github.com/civicops/civicops-ai/pkg/types"
)

const maxMessageBytes = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if r.Body != nil {
		// An empty body means default city scope.
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req)
	}

	sess := s.coordinator.CreateSession(req.CityScope)
	s.log.Info("session created", zap.String("session_id", sess.ID), zap.String("city", sess.CityScope))
	writeJSON(w, http.StatusCreated, types.NewSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coordinator.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewSessionResponse(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.EndSession(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req types.PostMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	reply, err := s.coordinator.HandleMessage(r.Context(), orchestrator.Message{
		SessionID:    r.PathValue("id"),
		Text:         req.Text,
		CityOverride: req.CityOverride,
		ZoneOverride: req.ZoneOverride,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err)
		case r.Context().Err() != nil:
			// Client went away; nothing useful to write.
		default:
			s.log.Error("turn failed", zap.String("session_id", r.PathValue("id")), zap.Error(err))
			writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		}
		return
	}

	writeJSON(w, http.StatusOK, types.MessageResponse{
		RunID:         reply.RunID,
		SessionID:     reply.SessionID,
		Reply:         reply.Text,
		Intent:        reply.Intent,
		Clarification: reply.Clarification,
		LowConfidence: reply.LowConfidence,
		Result:        reply.Result,
		Warning:       reply.Warning,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := db.RunQuery{
		SessionID: r.URL.Query().Get("session_id"),
		Intent:    r.URL.Query().Get("intent"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		q.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid offset"))
			return
		}
		q.Offset = n
	}

	runs, err := s.recorder.List(r.Context(), q)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	resp := types.RunListResponse{Runs: make([]types.RunSummary, 0, len(runs))}
	for _, rec := range runs {
		resp.Runs = append(resp.Runs, types.NewRunSummary(rec))
	}
	resp.Count = len(resp.Runs)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recorder.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.log.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReplayRun(w http.ResponseWriter, r *http.Request) {
	replayed, err := s.recorder.Replay(r.Context(), r.PathValue("id"), s.synth)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.log.Error("replay failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	writeJSON(w, http.StatusOK, types.ReplayResponse{
		RunID:    replayed.Run.ID,
		Recorded: replayed.Run.Reply,
		Replayed: replayed.Reply,
		Matches:  replayed.Matches,
		Result:   replayed.Result,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
}
