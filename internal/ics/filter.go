package ics

import (
	"strings"
)

const (
	// BeginEvent and EndEvent are the exact line values that delimit a VEVENT.
	BeginEvent = "BEGIN:VEVENT"
	EndEvent   = "END:VEVENT"

	// LineSeparator is the RFC5545 content-line delimiter.
	LineSeparator = "\r\n"
)

// ItemKind tags the variant held by an Item.
type ItemKind int

const (
	// ItemLine is a single line outside of any VEVENT block.
	ItemLine ItemKind = iota
	// ItemBlock is a complete VEVENT block, both sentinels included.
	ItemBlock
)

func (k ItemKind) String() string {
	switch k {
	case ItemLine:
		return "line"
	case ItemBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Item is one element produced by the Splitter.
type Item struct {
	Kind ItemKind

	// Line is set for ItemLine.
	Line string

	// Lines is set for ItemBlock and holds every line of the block verbatim.
	Lines []string

	// StartLine is the 1-based line number of the item's first line.
	StartLine int
}

// Text returns the item joined with LineSeparator. This is the string a
// Predicate receives for a block.
func (it Item) Text() string {
	if it.Kind == ItemLine {
		return it.Line
	}
	return strings.Join(it.Lines, LineSeparator)
}

// Splitter walks a document line by line and yields pass-through lines and
// VEVENT blocks. Use it like bufio.Scanner:
//
//	s := NewSplitter(lines)
//	for s.Next() {
//		item := s.Item()
//	}
//	if err := s.Err(); err != nil { ... }
type Splitter struct {
	lines []string
	pos   int
	item  Item
	err   error
}

// NewSplitter returns a Splitter over lines. The slice is not modified.
func NewSplitter(lines []string) *Splitter {
	return &Splitter{lines: lines}
}

// Next advances to the next item. It returns false at the end of input or
// when a block is left unterminated; Err distinguishes the two.
func (s *Splitter) Next() bool {
	if s.err != nil || s.pos >= len(s.lines) {
		return false
	}

	start := s.pos
	line := s.lines[s.pos]
	s.pos++

	if line != BeginEvent {
		s.item = Item{Kind: ItemLine, Line: line, StartLine: start + 1}
		return true
	}

	// A nested BEGIN:VEVENT is plain content; only END:VEVENT closes.
	for s.pos < len(s.lines) {
		cur := s.lines[s.pos]
		s.pos++
		if cur == EndEvent {
			s.item = Item{Kind: ItemBlock, Lines: s.lines[start:s.pos], StartLine: start + 1}
			return true
		}
	}

	s.item = Item{}
	s.err = &ParseError{Line: start + 1}
	return false
}

// Item returns the item produced by the last successful call to Next.
func (s *Splitter) Item() Item {
	return s.item
}

// Err returns the first malformed-input error met, or nil.
func (s *Splitter) Err() error {
	return s.err
}

// FilterStats counts what Filter did with the VEVENT blocks.
type FilterStats struct {
	Kept    int
	Dropped int
}

// Filter returns text with every VEVENT block rejected by p removed. All
// other lines are copied verbatim and the result always ends with exactly
// one LineSeparator.
//
// On error the returned string is empty; there is no partial output.
func Filter(text string, p Predicate) (string, error) {
	out, _, err := FilterWithStats(text, p)
	return out, err
}

// FilterWithStats is Filter that also reports how many blocks were kept and
// dropped.
func FilterWithStats(text string, p Predicate) (string, FilterStats, error) {
	var stats FilterStats
	if p == nil {
		p = KeepAll
	}

	text = strings.TrimSuffix(text, LineSeparator)
	lines := strings.Split(text, LineSeparator)

	var b strings.Builder
	b.Grow(len(text) + len(LineSeparator))

	s := NewSplitter(lines)
	for s.Next() {
		item := s.Item()
		if item.Kind == ItemLine {
			b.WriteString(item.Line)
			b.WriteString(LineSeparator)
			continue
		}

		keep, err := p.Keep(item.Text())
		if err != nil {
			return "", FilterStats{}, &PredicateError{Line: item.StartLine, Err: err}
		}
		if !keep {
			stats.Dropped++
			continue
		}
		stats.Kept++
		for _, l := range item.Lines {
			b.WriteString(l)
			b.WriteString(LineSeparator)
		}
	}
	if err := s.Err(); err != nil {
		return "", FilterStats{}, err
	}
	// Every line was inside a dropped event; still emit the terminator.
	if b.Len() == 0 {
		b.WriteString(LineSeparator)
	}

	return b.String(), stats, nil
}
