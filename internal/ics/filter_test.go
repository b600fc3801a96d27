package ics_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfilter/internal/ics"
)

func crlf(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

var testMarkers = []string{"Wykład", "Blokada"}

func defaultPredicate() ics.Predicate {
	return ics.NewMarkerPredicate(testMarkers...)
}

func TestFilter_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lecture dropped",
			in:   "A\r\nBEGIN:VEVENT\r\nSUMMARY:Wykład X\r\nEND:VEVENT\r\nB\r\n",
			want: "A\r\nB\r\n",
		},
		{
			name: "meeting kept",
			in:   "BEGIN:VEVENT\r\nSUMMARY:Meeting\r\nEND:VEVENT\r\n",
			want: "BEGIN:VEVENT\r\nSUMMARY:Meeting\r\nEND:VEVENT\r\n",
		},
		{
			name: "blocked slot dropped, other kept",
			in: crlf(
				"BEGIN:VCALENDAR",
				"BEGIN:VEVENT", "SUMMARY:Blokada sali", "END:VEVENT",
				"BEGIN:VEVENT", "SUMMARY:Laboratorium", "END:VEVENT",
				"END:VCALENDAR",
			),
			want: crlf(
				"BEGIN:VCALENDAR",
				"BEGIN:VEVENT", "SUMMARY:Laboratorium", "END:VEVENT",
				"END:VCALENDAR",
			),
		},
		{
			name: "missing trailing separator is added",
			in:   "A\r\nB",
			want: "A\r\nB\r\n",
		},
		{
			name: "empty input",
			in:   "",
			want: "\r\n",
		},
		{
			name: "marker in description also drops",
			in:   crlf("BEGIN:VEVENT", "SUMMARY:Ćwiczenia", "DESCRIPTION:po Wykład", "END:VEVENT"),
			want: "\r\n",
		},
		{
			name: "case sensitive",
			in:   crlf("BEGIN:VEVENT", "SUMMARY:wykład", "END:VEVENT"),
			want: crlf("BEGIN:VEVENT", "SUMMARY:wykład", "END:VEVENT"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ics.Filter(tt.in, defaultPredicate())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_UnterminatedEvent(t *testing.T) {
	got, err := ics.Filter("BEGIN:VEVENT\r\nSUMMARY:Oops\r\n", defaultPredicate())
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, ics.ErrUnterminatedEvent))

	var pe *ics.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Line)
}

func TestFilter_UnterminatedEventAfterGoodOne(t *testing.T) {
	in := crlf(
		"X",
		"BEGIN:VEVENT", "SUMMARY:ok", "END:VEVENT",
		"BEGIN:VEVENT", "SUMMARY:never closed",
	)
	calls := 0
	p := ics.PredicateFunc(func(string) (bool, error) {
		calls++
		return true, nil
	})

	got, err := ics.Filter(in, p)
	var pe *ics.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Line)
	assert.Empty(t, got)
	assert.Equal(t, 1, calls, "predicate must not see the partial block")
}

func TestFilter_NoEvents(t *testing.T) {
	in := crlf("BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//y//EN", "END:VCALENDAR")
	got, err := ics.Filter(in, defaultPredicate())
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFilter_AllRejected(t *testing.T) {
	in := crlf(
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT", "SUMMARY:a", "END:VEVENT",
		"X-MIDDLE:1",
		"BEGIN:VEVENT", "SUMMARY:b", "END:VEVENT",
		"END:VCALENDAR",
	)
	dropAll := ics.PredicateFunc(func(string) (bool, error) { return false, nil })

	got, stats, err := ics.FilterWithStats(in, dropAll)
	require.NoError(t, err)
	assert.Equal(t, crlf("BEGIN:VCALENDAR", "X-MIDDLE:1", "END:VCALENDAR"), got)
	assert.Equal(t, ics.FilterStats{Kept: 0, Dropped: 2}, stats)
}

func TestFilter_AllRejectedOnlyEvents(t *testing.T) {
	in := crlf(
		"BEGIN:VEVENT", "SUMMARY:a", "END:VEVENT",
		"BEGIN:VEVENT", "SUMMARY:b", "END:VEVENT",
	)
	dropAll := ics.PredicateFunc(func(string) (bool, error) { return false, nil })

	got, stats, err := ics.FilterWithStats(in, dropAll)
	require.NoError(t, err)
	assert.Equal(t, "\r\n", got, "output still ends with the separator")
	assert.Equal(t, ics.FilterStats{Kept: 0, Dropped: 2}, stats)

	again, err := ics.Filter(got, dropAll)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestFilter_AllAccepted(t *testing.T) {
	in := crlf(
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT",
		"BEGIN:VEVENT", "SUMMARY:b", "END:VEVENT",
		"END:VCALENDAR",
	)
	got, stats, err := ics.FilterWithStats(in, ics.KeepAll)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.Equal(t, 2, stats.Kept)
}

func TestFilter_NilPredicateKeepsEverything(t *testing.T) {
	in := crlf("BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT")
	got, err := ics.Filter(in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFilter_Idempotent(t *testing.T) {
	docs := []string{
		"",
		"A",
		"A\r\nB\r\n",
		"A\r\n\r\nB\r\n\r\n",
		crlf("BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT", "Z"),
		crlf("BEGIN:VEVENT", "SUMMARY:Wykład X", "END:VEVENT"),
		crlf("BEGIN:VEVENT", "SUMMARY:Blokada", "END:VEVENT", "BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT"),
		crlf("H", "BEGIN:VEVENT", "SUMMARY:keep", "END:VEVENT", "BEGIN:VEVENT", "SUMMARY:Blokada", "END:VEVENT"),
	}
	p := defaultPredicate()
	for _, d := range docs {
		once, err := ics.Filter(d, p)
		require.NoError(t, err)
		twice, err := ics.Filter(once, p)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", d)
		assert.True(t, strings.HasSuffix(once, "\r\n"))
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	in := crlf(
		"L1",
		"BEGIN:VEVENT", "UID:1", "END:VEVENT",
		"L2",
		"BEGIN:VEVENT", "UID:2 Wykład", "END:VEVENT",
		"L3",
		"BEGIN:VEVENT", "UID:3", "END:VEVENT",
		"L4",
	)
	got, err := ics.Filter(in, defaultPredicate())
	require.NoError(t, err)
	assert.Equal(t, crlf(
		"L1",
		"BEGIN:VEVENT", "UID:1", "END:VEVENT",
		"L2",
		"L3",
		"BEGIN:VEVENT", "UID:3", "END:VEVENT",
		"L4",
	), got)
}

func TestFilter_PredicateSeesJoinedBlockOncePerEvent(t *testing.T) {
	in := crlf(
		"BEGIN:VEVENT", "UID:1", "END:VEVENT",
		"BEGIN:VEVENT", "UID:2", "END:VEVENT",
	)
	var seen []string
	p := ics.PredicateFunc(func(event string) (bool, error) {
		seen = append(seen, event)
		return true, nil
	})

	_, err := ics.Filter(in, p)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BEGIN:VEVENT\r\nUID:1\r\nEND:VEVENT",
		"BEGIN:VEVENT\r\nUID:2\r\nEND:VEVENT",
	}, seen)
}

func TestFilter_PredicateErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	in := crlf("A", "BEGIN:VEVENT", "UID:1", "END:VEVENT", "B")
	p := ics.PredicateFunc(func(string) (bool, error) { return true, boom })

	got, err := ics.Filter(in, p)
	assert.Empty(t, got)
	require.ErrorIs(t, err, boom)

	var pe *ics.PredicateError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.False(t, errors.Is(err, ics.ErrUnterminatedEvent))
}

func TestFilter_NestedBeginIsContent(t *testing.T) {
	in := crlf("BEGIN:VEVENT", "BEGIN:VEVENT", "SUMMARY:x", "END:VEVENT", "END:VEVENT")
	var seen []string
	p := ics.PredicateFunc(func(event string) (bool, error) {
		seen = append(seen, event)
		return true, nil
	})

	got, err := ics.Filter(in, p)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "BEGIN:VEVENT\r\nBEGIN:VEVENT\r\nSUMMARY:x\r\nEND:VEVENT", seen[0])
	// The trailing END:VEVENT is outside any block and passes through.
	assert.Equal(t, in, got)
}

func TestFilter_StrayEndPassesThrough(t *testing.T) {
	in := crlf("A", "END:VEVENT", "B")
	got, err := ics.Filter(in, defaultPredicate())
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFilter_SentinelsAreNotTrimmed(t *testing.T) {
	in := crlf(" BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT ")
	got, err := ics.Filter(in, defaultPredicate())
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = ics.Filter(crlf("BEGIN:VEVENT", "SUMMARY:Wykład", "END:VEVENT "), defaultPredicate())
	assert.ErrorIs(t, err, ics.ErrUnterminatedEvent)
}

func TestFilter_LFOnlyIsOpaque(t *testing.T) {
	in := "BEGIN:VEVENT\nSUMMARY:Wykład\nEND:VEVENT\n"
	got, err := ics.Filter(in, defaultPredicate())
	require.NoError(t, err)
	assert.Equal(t, in+"\r\n", got)
}

func TestSplitter_Items(t *testing.T) {
	s := ics.NewSplitter([]string{"A", "BEGIN:VEVENT", "X", "END:VEVENT", "B"})

	var items []ics.Item
	for s.Next() {
		items = append(items, s.Item())
	}
	require.NoError(t, s.Err())
	require.Len(t, items, 3)

	assert.Equal(t, ics.ItemLine, items[0].Kind)
	assert.Equal(t, "A", items[0].Line)
	assert.Equal(t, 1, items[0].StartLine)

	assert.Equal(t, ics.ItemBlock, items[1].Kind)
	assert.Equal(t, []string{"BEGIN:VEVENT", "X", "END:VEVENT"}, items[1].Lines)
	assert.Equal(t, 2, items[1].StartLine)
	assert.Equal(t, "BEGIN:VEVENT\r\nX\r\nEND:VEVENT", items[1].Text())

	assert.Equal(t, ics.ItemLine, items[2].Kind)
	assert.Equal(t, "B", items[2].Text())
	assert.Equal(t, 5, items[2].StartLine)
}

func TestSplitter_StopsOnUnterminated(t *testing.T) {
	s := ics.NewSplitter([]string{"A", "BEGIN:VEVENT", "X"})

	require.True(t, s.Next())
	assert.Equal(t, "A", s.Item().Line)
	assert.False(t, s.Next())
	assert.False(t, s.Next())

	var pe *ics.ParseError
	require.ErrorAs(t, s.Err(), &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Contains(t, pe.Error(), "line 2")
}

func TestSplitter_Empty(t *testing.T) {
	s := ics.NewSplitter(nil)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestItemKind_String(t *testing.T) {
	assert.Equal(t, "line", ics.ItemLine.String())
	assert.Equal(t, "block", ics.ItemBlock.String())
	assert.Equal(t, "unknown", ics.ItemKind(7).String())
}
