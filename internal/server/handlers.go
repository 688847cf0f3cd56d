package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"voxbrief/internal/logging"
	"voxbrief/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleLoadModel(w http.ResponseWriter, _ *http.Request) {
	s.loadModel()
	s.writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		s.writeCommandError(w, r, "start", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(r.Context()); err != nil {
		s.writeCommandError(w, r, "stop", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body", "")
		return
	}
	var req credentialRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json", "")
		return
	}
	s.ctrl.SetCredential(strings.TrimSpace(req.APIKey))
	s.writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusPreconditionFailed
	case errors.Is(err, services.ErrDevice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, command string, err error) {
	logging.WithContext(r.Context(), s.logger).Info("command rejected",
		logging.String(logging.FieldEventType, "command_rejected"),
		logging.String("command", command),
		logging.ErrorKind(err),
		logging.Error(err),
	)
	s.writeError(w, statusForError(err), services.StatusMessage(err), services.Kind(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}
