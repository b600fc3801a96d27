package ics

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnterminatedEvent is wrapped by ParseError when a BEGIN:VEVENT line has
// no END:VEVENT before the end of input.
var ErrUnterminatedEvent = errors.New("unterminated VEVENT")

// ParseError reports malformed calendar input.
type ParseError struct {
	// Line is the 1-based line number of the offending BEGIN:VEVENT.
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ics: line %d: %s: missing %s", e.Line, ErrUnterminatedEvent, EndEvent)
}

func (e *ParseError) Unwrap() error {
	return ErrUnterminatedEvent
}

// PredicateError wraps a failure returned by a Predicate. It aborts the
// whole filter run.
type PredicateError struct {
	// Line is the 1-based line number where the failing block starts.
	Line int
	Err  error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("ics: predicate failed for event at line %d: %v", e.Line, e.Err)
}

func (e *PredicateError) Unwrap() error {
	return e.Err
}

// StatusError is returned by Fetcher when the upstream answers with
// anything other than 200 OK.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "ics fetch: unexpected status " + e.Status
	}
	return fmt.Sprintf("ics fetch: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
