package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
)

type createConferenceRequest struct {
	HostCallID         string   `json:"host_call_id"`
	ParticipantCallIDs []string `json:"participant_call_ids"`
}

func (s *Server) handleCreateConference(w http.ResponseWriter, r *http.Request) {
	var req createConferenceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.HostCallID == "" {
		writeError(w, errs.Invalid("invalid-adhoc-conference", "host_call_id is required", nil))
		return
	}
	if len(req.ParticipantCallIDs) == 0 {
		writeError(w, errs.Invalid("invalid-adhoc-conference", "participant_call_ids must not be empty", nil))
		return
	}

	conferenceID, err := s.deps.Conferences.Create(r.Context(),
		middleware.UserUUID(r.Context()),
		middleware.TenantUUID(r.Context()),
		req.HostCallID,
		req.ParticipantCallIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conference_id": conferenceID})
}

func (s *Server) handleDeleteConference(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Conferences.Delete(r.Context(),
		middleware.UserUUID(r.Context()),
		chi.URLParam(r, "conference_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Conferences.AddParticipant(r.Context(),
		middleware.UserUUID(r.Context()),
		chi.URLParam(r, "conference_id"),
		chi.URLParam(r, "call_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Conferences.RemoveParticipant(r.Context(),
		middleware.UserUUID(r.Context()),
		chi.URLParam(r, "conference_id"),
		chi.URLParam(r, "call_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
