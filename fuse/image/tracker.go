package image

import "sort"

// defaultRowCapacity covers a typical profile without regrowing.
const defaultRowCapacity = 16

// Span is a run of contiguous rows.
type Span struct {
	Row   int // First row
	Count int // Number of rows
}

// Tracker accumulates rows a commit must program.
//
// NOT thread-safe.
type Tracker struct {
	rows []int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rows: make([]int, 0, defaultRowCapacity)}
}

// Track records every row where requested has a bit that current lacks.
// It returns the number of rows added.
func (t *Tracker) Track(current, requested Image) int {
	added := 0
	for i := range requested {
		var cur uint32
		if i < len(current) {
			cur = current[i]
		}
		if requested[i]&^cur != 0 {
			t.Add(i)
			added++
		}
	}
	return added
}

// Add records a dirty row.
func (t *Tracker) Add(row int) {
	t.rows = append(t.rows, row)
}

// Rows returns the dirty rows sorted and deduplicated.
func (t *Tracker) Rows() []int {
	if len(t.rows) == 0 {
		return nil
	}
	out := make([]int, len(t.rows))
	copy(out, t.rows)
	sort.Ints(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// Spans coalesces the dirty rows into sorted, non-adjacent runs.
func (t *Tracker) Spans() []Span {
	rows := t.Rows()
	if len(rows) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(rows))
	current := Span{Row: rows[0], Count: 1}
	for _, r := range rows[1:] {
		if r == current.Row+current.Count {
			current.Count++
			continue
		}
		spans = append(spans, current)
		current = Span{Row: r, Count: 1}
	}
	return append(spans, current)
}

// Len returns the number of distinct dirty rows.
func (t *Tracker) Len() int {
	return len(t.Rows())
}

// Reset clears the tracker, keeping its capacity.
func (t *Tracker) Reset() {
	t.rows = t.rows[:0]
}
