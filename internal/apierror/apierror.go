// Package apierror classifies failures into the small taxonomy every service
// reports over HTTP as {"error": ..., "details": ...}.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind is an error class with a fixed HTTP status.
type Kind string

const (
	Validation          Kind = "validation"
	Extraction          Kind = "extraction"
	Processing          Kind = "processing"
	StorageUnavailable  Kind = "storage_unavailable"
	UpstreamUnavailable Kind = "upstream_unavailable"
	NotFound            Kind = "not_found"
	Busy                Kind = "busy"
)

var kindStatus = map[Kind]int{
	Validation:          http.StatusBadRequest,
	Extraction:          http.StatusBadRequest,
	Processing:          http.StatusInternalServerError,
	StorageUnavailable:  http.StatusInternalServerError,
	UpstreamUnavailable: http.StatusInternalServerError,
	NotFound:            http.StatusNotFound,
	Busy:                http.StatusServiceUnavailable,
}

// Error is a classified failure. Message is the user-facing summary and
// Details carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Details string
	// Code overrides the status implied by Kind when non-zero.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	if e.Code != 0 {
		return e.Code
	}
	if s, ok := kindStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New returns a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. Details defaults to err's message.
func Wrap(kind Kind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Status maps any error to an HTTP status; unclassified errors are 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload.
type Body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Write emits err as a JSON error response.
func Write(w http.ResponseWriter, err error) {
	body := Body{Error: "Unexpected error", Details: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		body = Body{Error: e.Message, Details: e.Details}
	}
	WriteJSON(w, Status(err), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
