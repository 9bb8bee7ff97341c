// Package errs defines the structured error taxonomy shared by all calld
// components. Every user-visible failure carries a stable machine-matchable
// identifier, an HTTP status and a human message, so the API layer can map
// domain failures to responses without inspecting error strings.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a structured domain error.
type Error struct {
	// ID is a stable identifier such as "no-such-call". Clients match on
	// this, never on Message.
	ID      string
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}

// NotFound builds a 404-family error.
func NotFound(id, message string, details map[string]any) *Error {
	return &Error{ID: id, Status: http.StatusNotFound, Message: message, Details: details}
}

// Invalid builds a 400-family error for malformed requests, lost races and
// state conflicts.
func Invalid(id, message string, details map[string]any) *Error {
	return &Error{ID: id, Status: http.StatusBadRequest, Message: message, Details: details}
}

// Forbidden builds a 403-family error for cross-user or cross-tenant access.
func Forbidden(id, message string, details map[string]any) *Error {
	return &Error{ID: id, Status: http.StatusForbidden, Message: message, Details: details}
}

// Unreachable builds a 503-family error. It is used when a collaborator
// (directory service, switch control interface) cannot be reached at all,
// and is deliberately distinct from NotFound.
func Unreachable(service string, cause error) *Error {
	return &Error{
		ID:      "service-unavailable",
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("%s service unreachable", service),
		Details: map[string]any{"service": service, "cause": fmt.Sprint(cause)},
	}
}

// CallNotFound is the canonical error for a channel that does not exist on
// the switch (or is not visible to the requester).
func CallNotFound(callID string) *Error {
	return NotFound("no-such-call", "no such call", map[string]any{"call_id": callID})
}

// SwitchboardNotFound reports an unknown switchboard UUID.
func SwitchboardNotFound(uuid string) *Error {
	return NotFound("no-such-switchboard", "no such switchboard", map[string]any{"switchboard_uuid": uuid})
}

// ConferenceNotFound reports an unknown ad-hoc conference. A conference and
// its bridge share identity, so a missing bridge surfaces as this error.
func ConferenceNotFound(uuid string) *Error {
	return NotFound("no-such-adhoc-conference", "no such ad-hoc conference", map[string]any{"adhoc_conference_id": uuid})
}

// As unwraps err into *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 500 for errors outside
// the taxonomy.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
