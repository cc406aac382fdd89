// Package validity implements the day-granularity interval algebra shared by
// the SD and MO sides of the synchronization.
//
// Both systems operate with open-ended "forever" validities, but encode them
// differently: SD uses the magic calendar date 9999-12-31 while MO uses a null
// "to" date. Inside this repository both are normalized to the Infinity
// sentinel so that intervals from the two systems compare directly.
package validity

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// SDDateLayout is the date format used in SD response bodies.
	SDDateLayout = "2006-01-02"
	// SDParamDateLayout is the date format used in SD request parameters.
	SDParamDateLayout = "02.01.2006"
	// SDInfinity is SDs open-ended date sentinel as it appears on the wire.
	SDInfinity = "9999-12-31"
)

// Infinity is the normalized open-ended sentinel. It compares greater than
// every finite calendar date.
var Infinity = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Date builds a day-granularity UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsInfinite reports whether d is the open-ended sentinel.
func IsInfinite(d time.Time) bool {
	y, m, day := d.UTC().Date()
	return y == 9999 && m == time.December && day == 31
}

// NextDay returns the calendar day after d.
func NextDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1)
}

// PrevDay returns the calendar day before d.
func PrevDay(d time.Time) time.Time {
	return d.AddDate(0, 0, -1)
}

// ToMidnight truncates t to the previous midnight, preserving the location.
func ToMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsMidnight reports whether t falls exactly on a midnight.
func IsMidnight(t time.Time) bool {
	return t.Equal(ToMidnight(t))
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ParseSDDate parses a date from an SD response body.
func ParseSDDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(SDDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse SD date %q", s)
	}
	return d, nil
}

// FormatSDDate formats a date the way SD response bodies do.
func FormatSDDate(d time.Time) string {
	return d.Format(SDDateLayout)
}

// FormatSDParamDate formats a date for use in SD request parameters.
func FormatSDParamDate(d time.Time) string {
	return d.Format(SDParamDateLayout)
}

// SDToMODate converts an SD date string to the MO representation: nil for the
// open-ended sentinel, the unchanged date string otherwise.
func SDToMODate(sdDate string) *string {
	if sdDate == SDInfinity {
		return nil
	}
	s := sdDate
	return &s
}

// MODate converts a normalized date to the MO wire representation, mapping the
// Infinity sentinel to nil.
func MODate(d time.Time) *string {
	if IsInfinite(d) {
		return nil
	}
	s := d.Format(SDDateLayout)
	return &s
}

// ParseMODate parses an MO validity endpoint. A nil input is the open-ended
// sentinel. MO returns ISO timestamps; only the date part is significant.
func ParseMODate(s *string) (time.Time, error) {
	if s == nil {
		return Infinity, nil
	}
	raw := *s
	if len(raw) > len(SDDateLayout) {
		raw = raw[:len(SDDateLayout)]
	}
	d, err := time.ParseInLocation(SDDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse MO date %q", *s)
	}
	return d, nil
}

// Interval is a closed day-granularity validity range. To is Infinity for
// open-ended validities. Invariant: !From.After(To).
type Interval struct {
	From time.Time
	To   time.Time
}

// New builds an interval. It panics if from is after to, which always
// indicates a programming error rather than bad upstream data.
func New(from, to time.Time) Interval {
	if from.After(to) {
		panic("validity: interval from after to")
	}
	return Interval{From: from, To: to}
}

// Open builds an open-ended interval starting at from.
func Open(from time.Time) Interval {
	return Interval{From: from, To: Infinity}
}

// Equal reports whether the two intervals cover the same range.
func (i Interval) Equal(other Interval) bool {
	return i.From.Equal(other.From) && i.To.Equal(other.To)
}

// Contains reports whether d falls within the closed interval.
func (i Interval) Contains(d time.Time) bool {
	return !d.Before(i.From) && !d.After(i.To)
}

// Overlaps reports whether the two closed intervals share at least one day.
func (i Interval) Overlaps(other Interval) bool {
	return !i.From.After(other.To) && !other.From.After(i.To)
}

// IsOpenEnded reports whether the interval extends forever.
func (i Interval) IsOpenEnded() bool {
	return IsInfinite(i.To)
}

// Clip restricts the interval to [lower, upper]. The second return value is
// false when the clipped range is empty.
func (i Interval) Clip(lower, upper time.Time) (Interval, bool) {
	from, to := i.From, i.To
	if from.Before(lower) {
		from = lower
	}
	if to.After(upper) {
		to = upper
	}
	if from.After(to) {
		return Interval{}, false
	}
	return Interval{From: from, To: to}, true
}

// Intersect clips the interval against another interval.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	return i.Clip(other.From, other.To)
}

func (i Interval) String() string {
	to := "infinity"
	if !i.IsOpenEnded() {
		to = FormatSDDate(i.To)
	}
	return FormatSDDate(i.From) + ".." + to
}
