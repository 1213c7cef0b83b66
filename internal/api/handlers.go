package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/engine"
	"github.com/mandi-labs/onboard-cli/internal/store"
)

type startRequest struct {
	ProducerID  string            `json:"producer_id"`
	InitialData map[string]string `json:"initial_data"`
}

type continueRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleStart creates a session. An empty body starts a blank session with
// a generated producer id.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.engine.Start(r.Context(), req.ProducerID, req.InitialData)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	snap, err := s.engine.Turn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Export(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	status, err := s.engine.End(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"status":     string(status),
	})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	text, err := s.engine.Prompt(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"prompt":     text,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.CountActive(r.Context())
	if err != nil {
		zap.L().Error("api: health check store error", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": active,
	})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Anything unrecognized is an internal fault and logs the full chain.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case eris.Is(err, store.ErrVersionConflict):
		writeError(w, http.StatusConflict, "session was modified concurrently")
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
