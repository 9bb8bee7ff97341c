package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
)

func (s *Server) handleListQueued(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Switchboards.QueuedCalls(r.Context(), chi.URLParam(r, "switchboard_uuid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleListHeld(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Switchboards.HeldCalls(r.Context(), chi.URLParam(r, "switchboard_uuid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Switchboards.Enqueue(r.Context(),
		middleware.TenantUUID(r.Context()),
		chi.URLParam(r, "switchboard_uuid"),
		chi.URLParam(r, "call_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHoldCall(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Switchboards.HoldCall(r.Context(),
		middleware.TenantUUID(r.Context()),
		chi.URLParam(r, "switchboard_uuid"),
		chi.URLParam(r, "call_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lineID parses the optional line_id query parameter. Zero means the user's
// main line.
func lineID(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("line_id")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errs.Invalid("invalid-line-id", "line_id must be a positive integer",
			map[string]any{"line_id": raw})
	}
	return id, nil
}

func (s *Server) handleAnswerQueued(w http.ResponseWriter, r *http.Request) {
	line, err := lineID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	operatorCallID, err := s.deps.Switchboards.AnswerQueued(r.Context(),
		middleware.TenantUUID(r.Context()),
		chi.URLParam(r, "switchboard_uuid"),
		chi.URLParam(r, "call_id"),
		middleware.UserUUID(r.Context()),
		line)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_id": operatorCallID})
}

func (s *Server) handleAnswerHeld(w http.ResponseWriter, r *http.Request) {
	line, err := lineID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	operatorCallID, err := s.deps.Switchboards.AnswerHeld(r.Context(),
		middleware.TenantUUID(r.Context()),
		chi.URLParam(r, "switchboard_uuid"),
		chi.URLParam(r, "call_id"),
		middleware.UserUUID(r.Context()),
		line)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_id": operatorCallID})
}
