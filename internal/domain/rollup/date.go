package rollup

import (
	"fmt"
	"time"
)

// dateKeyLayout is the canonical storage key format for daily buckets.
const dateKeyLayout = "2006-01-02"

// MaxRangeDays caps the span a single range query may cover. Two years plus
// a leap day; anything larger is rejected before any work starts.
const MaxRangeDays = 731

// DateKey identifies exactly one calendar day in the business timezone.
type DateKey string

// NewDateKey returns the DateKey for the calendar day containing t in loc.
func NewDateKey(t time.Time, loc *time.Location) DateKey {
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// ParseDateKey validates and normalizes an ISO date string.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(dateKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("date key %q: %w", s, ErrInvalidDateKey)
	}
	return DateKey(t.Format(dateKeyLayout)), nil
}

// Time returns midnight of the key's day in loc.
func (k DateKey) Time(loc *time.Location) time.Time {
	t, _ := time.ParseInLocation(dateKeyLayout, string(k), loc)
	return t
}

// DayWindow returns the inclusive bounds of the key's day in loc:
// [00:00:00.000000000, 23:59:59.999999999].
func (k DateKey) DayWindow(loc *time.Location) (time.Time, time.Time) {
	start := k.Time(loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// Next returns the key of the following calendar day.
func (k DateKey) Next() DateKey {
	return DateKey(k.Time(time.UTC).AddDate(0, 0, 1).Format(dateKeyLayout))
}

// Before reports whether k falls before other. Keys are zero-padded ISO
// dates, so lexical order is chronological order.
func (k DateKey) Before(other DateKey) bool {
	return string(k) < string(other)
}

func (k DateKey) String() string {
	return string(k)
}

// DateRange is an inclusive, validated [Start, End] span of calendar days.
type DateRange struct {
	Start DateKey
	End   DateKey
}

// NewDateRange builds a DateRange, rejecting inverted bounds and spans over
// MaxRangeDays.
func NewDateRange(start, end DateKey) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("range end %s precedes start %s: %w", end, start, ErrInvalidRange)
	}
	r := DateRange{Start: start, End: end}
	if r.Days() > MaxRangeDays {
		return DateRange{}, &RangeTooLargeError{Start: start, End: end, Days: r.Days(), MaxDays: MaxRangeDays}
	}
	return r, nil
}

// Days returns the number of calendar days the range covers, inclusive.
func (r DateRange) Days() int {
	start := r.Start.Time(time.UTC)
	end := r.End.Time(time.UTC)
	return int(end.Sub(start)/(24*time.Hour)) + 1
}

// Keys enumerates every calendar day in the range in ascending order.
// Calendar arithmetic via AddDate handles month/year boundaries and leap
// years.
func (r DateRange) Keys() []DateKey {
	keys := make([]DateKey, 0, r.Days())
	for t := r.Start.Time(time.UTC); ; t = t.AddDate(0, 0, 1) {
		key := DateKey(t.Format(dateKeyLayout))
		keys = append(keys, key)
		if key == r.End {
			break
		}
	}
	return keys
}

// Contains reports whether key falls inside the range.
func (r DateRange) Contains(key DateKey) bool {
	return !key.Before(r.Start) && !r.End.Before(key)
}
