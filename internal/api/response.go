package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
)

// envelope is the standard API response wrapper.
// All JSON responses use this format: { "data": ..., "error": ... }
type envelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error,omitempty"`
}

// errorBody carries a stable error_id clients can match on, plus a human
// message and optional structured details.
type errorBody struct {
	ID      string         `json:"error_id"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError maps a domain error onto the structured error response. Errors
// outside the errs taxonomy become an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{ID: "internal-error", Message: "internal server error"}
	status := http.StatusInternalServerError
	if e, ok := errs.As(err); ok {
		body = errorBody{ID: e.ID, Message: e.Message, Details: e.Details}
		status = e.Status
	} else {
		slog.Error("unhandled api error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(envelope{Error: &body}); encErr != nil {
		slog.Error("failed to encode json error response", "error", encErr)
	}
}

// readJSON decodes the request body into dst, rejecting unknown fields and
// trailing content.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Invalid("invalid-request-body", "request body is not valid JSON", map[string]any{"cause": err.Error()})
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errs.Invalid("invalid-request-body", "request body must contain a single JSON object", nil)
	}
	return nil
}
