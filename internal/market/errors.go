package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindTransient   ErrorKind = "transient"
	KindPermanent   ErrorKind = "permanent"
	KindRateLimited ErrorKind = "rate_limited"
)

// SourceError is the uniform failure record every adapter translates
// provider-specific conditions into. The Kind drives fallback policy.
type SourceError struct {
	Source  string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

func transient(source, msg string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindTransient, Message: msg, Err: err}
}

func permanent(source, msg string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindPermanent, Message: msg, Err: err}
}

func rateLimited(source, msg string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindRateLimited, Message: msg, Err: err}
}

// statusError maps an HTTP status to a SourceError. 429 means the provider is
// throttling us; 5xx is worth trying elsewhere; other 4xx will not heal.
func statusError(source string, status int) *SourceError {
	msg := fmt.Sprintf("http status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return rateLimited(source, msg, nil)
	case status >= 500:
		return transient(source, msg, nil)
	default:
		return permanent(source, msg, nil)
	}
}

// transportError classifies a request-level failure.
func transportError(source string, err error) *SourceError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transient(source, "request timeout", err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return transient(source, "connection dropped", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transient(source, "request timeout", err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "reset by peer") {
		return transient(source, "connection reset", err)
	}
	return transient(source, "request failed", err)
}
