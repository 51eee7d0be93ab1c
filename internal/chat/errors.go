package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCanceled is returned when the caller aborts a request.
	ErrCanceled = errors.New("chat request canceled")
	// ErrTimeout is returned when the request deadline passes or the
	// endpoint answers 504.
	ErrTimeout = errors.New("chat request timed out")

	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already being sent")
)

// APIError is a non-success response from the chat endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Is lets a 504 match ErrTimeout.
func (e *APIError) Is(target error) bool {
	return target == ErrTimeout && e.StatusCode == http.StatusGatewayTimeout
}

func newAPIError(status int, bodyMessage string) *APIError {
	msg := bodyMessage
	switch status {
	case http.StatusGatewayTimeout:
		msg = "Request timed out. Please try again."
	case http.StatusServiceUnavailable:
		msg = "Service temporarily unavailable. Please try again later."
	case http.StatusTooManyRequests:
		msg = "Too many requests. Please wait a moment and try again."
	}
	if msg == "" {
		msg = fmt.Sprintf("API error: %d", status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
