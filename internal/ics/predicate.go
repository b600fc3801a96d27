package ics

import (
	"fmt"
	"strings"
)

// Predicate decides whether a VEVENT block stays in the calendar. It gets
// the block text, sentinels included, joined with LineSeparator. Returning
// true keeps the block.
//
// Implementations must be safe for concurrent use; Filter calls Keep once
// per block.
type Predicate interface {
	Keep(event string) (bool, error)
}

// PredicateFunc adapts an ordinary function to Predicate.
type PredicateFunc func(event string) (bool, error)

// Keep calls f(event).
func (f PredicateFunc) Keep(event string) (bool, error) {
	return f(event)
}

// KeepAll keeps every event.
var KeepAll Predicate = PredicateFunc(func(string) (bool, error) { return true, nil })

// MarkerPredicate drops an event whose raw text contains any of its markers.
// Matching is a case-sensitive substring test over the whole block, property
// names included.
type MarkerPredicate struct {
	markers []string
}

// NewMarkerPredicate returns a MarkerPredicate for the given markers. Empty
// markers are ignored so that they cannot match every event.
func NewMarkerPredicate(markers ...string) *MarkerPredicate {
	m := make([]string, 0, len(markers))
	for _, s := range markers {
		if s != "" {
			m = append(m, s)
		}
	}
	return &MarkerPredicate{markers: m}
}

// Markers returns a copy of the configured markers.
func (p *MarkerPredicate) Markers() []string {
	return append([]string(nil), p.markers...)
}

func (p *MarkerPredicate) Keep(event string) (bool, error) {
	return !containsAny(event, p.markers), nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// NewPredicate builds the predicate for a match mode: "text" (or "") selects
// MarkerPredicate and "summary" selects SummaryPredicate.
func NewPredicate(match string, markers []string) (Predicate, error) {
	switch match {
	case "", "text":
		return NewMarkerPredicate(markers...), nil
	case "summary":
		return NewSummaryPredicate(markers...), nil
	default:
		return nil, fmt.Errorf("unknown match mode %q", match)
	}
}
