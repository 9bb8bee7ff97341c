package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/calls"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
)

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Calls.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

type originateRequest struct {
	Extension string `json:"extension"`
	Context   string `json:"context"`
}

func (s *Server) handleOriginate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	call, err := s.deps.Calls.Originate(r.Context(), calls.OriginateParams{
		Extension:  req.Extension,
		Context:    req.Context,
		UserUUID:   middleware.UserUUID(r.Context()),
		TenantUUID: middleware.TenantUUID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.deps.Calls.Get(r.Context(), chi.URLParam(r, "call_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// callOp runs one per-call operation on behalf of the authenticated user and
// writes the standard empty-body response.
func (s *Server) callOp(w http.ResponseWriter, r *http.Request,
	op func(callID, userUUID string) error) {
	callID := chi.URLParam(r, "call_id")
	if err := op(callID, middleware.UserUUID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.Hangup(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleHold(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.Hold(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleUnhold(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.Unhold(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.Mute(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.Unmute(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.StartRecording(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.StopRecording(r.Context(), callID, userUUID)
	})
}

func (s *Server) handleSendDTMF(w http.ResponseWriter, r *http.Request) {
	digits := r.URL.Query().Get("digits")
	if digits == "" {
		writeError(w, errs.Invalid("invalid-dtmf", "digits query parameter is required", nil))
		return
	}
	s.callOp(w, r, func(callID, userUUID string) error {
		return s.deps.Calls.SendDTMF(r.Context(), callID, userUUID, digits)
	})
}
