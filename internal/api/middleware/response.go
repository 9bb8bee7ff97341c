package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody matches the api package's structured error format so that
// middleware rejections look like any other API error.
type errorBody struct {
	ID      string `json:"error_id"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, id, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{ID: id, Message: message}}) //nolint:errcheck
}
