package scambus

import (
	"fmt"
	"time"
)

// APIError is the common shape of an error response from the Scambus API.
// The concrete error types below embed it so callers can match on kind
// with errors.Is / errors.As and still reach the raw response data.
type APIError struct {
	StatusCode int
	Message    string
	Response   map[string]any
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scambus: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("scambus: %s (HTTP %d)", e.Message, e.StatusCode)
}

// AuthenticationError covers bad or expired credentials (401), inactive
// streams, and insufficient permission (403).
type AuthenticationError struct {
	APIError
}

// Is enables errors.Is matching on AuthenticationError.
func (e AuthenticationError) Is(target error) bool {
	_, ok := target.(AuthenticationError)
	if ok {
		return true
	}
	_, ok = target.(*AuthenticationError)
	return ok
}

// ValidationError means the request parameters were malformed. It is also
// raised locally, before any network call, for usage errors such as
// backfilling a journal-entry stream.
type ValidationError struct {
	APIError
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// NotFoundError means an unknown stream, consumer key, or resource.
type NotFoundError struct {
	APIError
}

func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ServerError covers 5xx responses other than the rebuilding case, which
// gets its own type so retry logic can tell them apart.
type ServerError struct {
	APIError
}

func (e ServerError) Is(target error) bool {
	_, ok := target.(ServerError)
	if ok {
		return true
	}
	_, ok = target.(*ServerError)
	return ok
}

// RateLimitedError means the caller exceeded the request budget (429).
type RateLimitedError struct {
	APIError
}

func (e RateLimitedError) Is(target error) bool {
	_, ok := target.(RateLimitedError)
	if ok {
		return true
	}
	_, ok = target.(*RateLimitedError)
	return ok
}

// StreamRebuildingError means the stream's delivery state is being rebuilt
// (503). Transient: back off for RetryAfter and poll again.
type StreamRebuildingError struct {
	APIError
	RetryAfter time.Duration
}

func (e StreamRebuildingError) Is(target error) bool {
	_, ok := target.(StreamRebuildingError)
	if ok {
		return true
	}
	_, ok = target.(*StreamRebuildingError)
	return ok
}

// CursorOutOfRangeError means the supplied cursor is outside the retention
// window (410) or precedes the stream start after trimming (416). It is
// always recoverable: resume from EarliestCursor when the server provided
// one, or from CursorBeginning otherwise.
type CursorOutOfRangeError struct {
	APIError
	EarliestCursor string
}

func (e CursorOutOfRangeError) Is(target error) bool {
	_, ok := target.(CursorOutOfRangeError)
	if ok {
		return true
	}
	_, ok = target.(*CursorOutOfRangeError)
	return ok
}

// RecoverTo returns the cursor a caller should restart from.
func (e CursorOutOfRangeError) RecoverTo() string {
	if e.EarliestCursor != "" {
		return e.EarliestCursor
	}
	return CursorBeginning
}

// MalformedMessageError is a decode-time failure on a single message:
// a required field absent in both casings, or a confidence outside [0, 1].
// It never aborts a whole batch on its own; batch decoding collects these
// per message so the caller picks fail-fast or skip-and-continue.
type MalformedMessageError struct {
	Field  string
	Reason string
}

func (e MalformedMessageError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed message: %s", e.Reason)
	}
	return fmt.Sprintf("malformed message: field %q: %s", e.Field, e.Reason)
}

func (e MalformedMessageError) Is(target error) bool {
	_, ok := target.(MalformedMessageError)
	if ok {
		return true
	}
	_, ok = target.(*MalformedMessageError)
	return ok
}

// Sentinels for errors.Is matching.
var (
	ErrAuthentication   = AuthenticationError{}
	ErrValidation       = ValidationError{}
	ErrNotFound         = NotFoundError{}
	ErrServer           = ServerError{}
	ErrRateLimited      = RateLimitedError{}
	ErrStreamRebuilding = StreamRebuildingError{}
	ErrCursorOutOfRange = CursorOutOfRangeError{}
	ErrMalformedMessage = MalformedMessageError{}
)
