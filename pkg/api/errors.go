package api

import (
	"errors"
	"net/http"
	"strings"
)

// APIError is one entry of a remote error list. Field, when present, names
// the request property that was rejected.
type APIError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e APIError) String() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Errors is the error list returned by a failed call, kept verbatim.
// StatusCode is zero for errors raised before anything was sent.
type Errors struct {
	StatusCode int        `json:"-"`
	List       []APIError `json:"errors"`
}

func (e *Errors) Error() string {
	if len(e.List) == 0 {
		if e.StatusCode != 0 {
			return http.StatusText(e.StatusCode)
		}
		return "unknown error"
	}
	parts := make([]string, 0, len(e.List))
	for _, entry := range e.List {
		parts = append(parts, entry.String())
	}
	return strings.Join(parts, "; ")
}

// HTTPStatus returns the response status the errors came with
func (e *Errors) HTTPStatus() int {
	return e.StatusCode
}

// FieldErrors returns the entries scoped to a request property
func (e *Errors) FieldErrors() []APIError {
	var out []APIError
	for _, entry := range e.List {
		if entry.Field != "" {
			out = append(out, entry)
		}
	}
	return out
}

// NewFieldError builds a local validation error for one request property
func NewFieldError(field, reason string) *Errors {
	return &Errors{List: []APIError{{Field: field, Reason: reason}}}
}

// NewStatusError builds an error list for a status with a single reason
func NewStatusError(status int, reason string) *Errors {
	return &Errors{StatusCode: status, List: []APIError{{Reason: reason}}}
}

// AsErrors extracts the remote error list from err
func AsErrors(err error) (*Errors, bool) {
	var apiErrs *Errors
	if errors.As(err, &apiErrs) {
		return apiErrs, true
	}
	return nil, false
}

// IsNotFound reports whether err is a remote 404
func IsNotFound(err error) bool {
	apiErrs, ok := AsErrors(err)
	return ok && apiErrs.StatusCode == http.StatusNotFound
}
