package validity

import "time"

// CutDates returns the cut points used to split [from, to] into day-aligned
// sub-ranges: from itself, every intermediate midnight, and to itself. The
// first and last elements always equal the inputs exactly, even when they do
// not fall on a midnight. When from equals to the result is the single point
// repeated, so callers always see a well-formed fencepost sequence.
func CutDates(from, to time.Time) []time.Time {
	if from.After(to) {
		panic("validity: cut dates from after to")
	}
	dates := []time.Time{from}
	for midnight := ToMidnight(from).AddDate(0, 0, 1); midnight.Before(to); midnight = midnight.AddDate(0, 0, 1) {
		dates = append(dates, midnight)
	}
	return append(dates, to)
}

// Window is one day-aligned reconciliation window.
type Window struct {
	From time.Time
	To   time.Time
}

// DateIntervals pairs up the cut dates of [from, to]: each window ends where
// the next one starts, and no interior window spans more than one day.
func DateIntervals(from, to time.Time) []Window {
	cuts := CutDates(from, to)
	windows := make([]Window, 0, len(cuts)-1)
	for i := 0; i < len(cuts)-1; i++ {
		windows = append(windows, Window{From: cuts[i], To: cuts[i+1]})
	}
	return windows
}
