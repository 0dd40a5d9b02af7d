package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed backend call.
type Kind string

const (
	KindNone       Kind = ""
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindAPI        Kind = "api"
	KindDecode     Kind = "decode"
	// KindCanceled marks calls abandoned because a newer request superseded them.
	KindCanceled Kind = "canceled"
)

// NetworkError is a timeout, an unreachable backend or a 5xx answer. It is retryable.
type NetworkError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server error (HTTP %d)", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError is a request the backend (or the client pre-flight) refuses.
// It is shown inline and never retried.
type ValidationError struct {
	Field      string
	Message    string
	StatusCode int
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// APIError is any other non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parcelmap api: HTTP %d: %s [request_id=%s]", e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DecodeError is a response body that could not be parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by the client to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		valErr *ValidationError
		netErr *NetworkError
		apiErr *APIError
		decErr *DecodeError
	)
	switch {
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &decErr):
		return KindDecode
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindAPI
}

// Retryable reports whether a user-triggered retry can help.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindAPI, KindDecode:
		return true
	}
	return false
}

// UserMessage returns the text shown to the user for err.
// Validation and network failures read differently on purpose.
func UserMessage(err error) string {
	var valErr *ValidationError
	switch Classify(err) {
	case KindNone, KindCanceled:
		return ""
	case KindValidation:
		errors.As(err, &valErr)
		switch valErr.Field {
		case "bbox":
			return "Search area too large: " + valErr.Message + ". Zoom in or pick a town."
		case "page_size":
			return "Invalid page size: " + valErr.Message + "."
		default:
			return "The search was rejected: " + valErr.Message + "."
		}
	case KindNetwork:
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode != 0 {
			return "The property service is having trouble. Press r to retry."
		}
		return "Could not reach the property service. Check your connection and press r to retry."
	case KindDecode:
		return "The property service sent an unreadable response. Press r to retry."
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			return "Not authorized to query the property service."
		}
		return "The property service returned an error. Press r to retry."
	}
}
