package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport marks failures where the tournament API could not be reached at
// all, including calls refused by an open circuit breaker
var ErrTransport = errors.New("tournament api unreachable")

// APIError is a non-2xx response from the tournament API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the backend's detail when it sent one, otherwise a status line
	Message string
	// HasDetail reports whether Message came from a structured {"detail": ...} body
	HasDetail bool
}

func (e *APIError) Error() string {
	return e.Message
}

// NotFound reports a 404 response
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ServerFailure reports a 5xx response
func (e *APIError) ServerFailure() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 from the tournament API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// IsStatus reports whether err is an API error with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsTransport reports whether err is a transport-level failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// newAPIError builds the error for a non-2xx response body. A string detail is
// used verbatim, any other JSON value is re-encoded compactly.
func newAPIError(method, path string, statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode)),
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	detail := bytes.TrimSpace(payload.Detail)
	if len(detail) == 0 || bytes.Equal(detail, []byte("null")) {
		return apiErr
	}

	var text string
	if err := json.Unmarshal(detail, &text); err == nil {
		if text == "" {
			return apiErr
		}
		apiErr.Message = text
		apiErr.HasDetail = true
		return apiErr
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, detail); err != nil {
		return apiErr
	}
	apiErr.Message = compact.String()
	apiErr.HasDetail = true
	return apiErr
}
