package ics

import (
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// SummaryPredicate drops an event whose SUMMARY property contains any of its
// markers. Unlike MarkerPredicate it looks at one property only, so a marker
// appearing in DESCRIPTION or LOCATION does not drop the event.
//
// The block is parsed with golang-ical; a block the library rejects is
// reported as an error rather than silently kept.
type SummaryPredicate struct {
	markers []string
}

// NewSummaryPredicate returns a SummaryPredicate. Empty markers are ignored.
func NewSummaryPredicate(markers ...string) *SummaryPredicate {
	return &SummaryPredicate{markers: NewMarkerPredicate(markers...).markers}
}

func (p *SummaryPredicate) Keep(event string) (bool, error) {
	ve, err := parseVEvent(event)
	if err != nil {
		return false, err
	}
	summary := ""
	if prop := ve.GetProperty(ical.ComponentPropertySummary); prop != nil {
		summary = prop.Value
	}
	return !containsAny(summary, p.markers), nil
}

// parseVEvent parses a single VEVENT block. golang-ical only accepts whole
// calendars, so the block is wrapped in a VCALENDAR first.
func parseVEvent(event string) (*ical.VEvent, error) {
	var b strings.Builder
	b.Grow(len(event) + 40)
	b.WriteString("BEGIN:VCALENDAR")
	b.WriteString(LineSeparator)
	b.WriteString(event)
	b.WriteString(LineSeparator)
	b.WriteString("END:VCALENDAR")
	b.WriteString(LineSeparator)

	cal, err := ical.ParseCalendar(strings.NewReader(b.String()))
	if err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	events := cal.Events()
	if len(events) != 1 {
		return nil, fmt.Errorf("parse event: expected 1 VEVENT, got %d", len(events))
	}
	return events[0], nil
}
