package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date (in t's own location) expressed at
// midnight UTC, so dates compare with ==.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// ISOWeekday maps time.Weekday to 1 (Monday) .. 7 (Sunday).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Weekdays is a set of ISO weekdays. The zero value means "every day".
type Weekdays uint8

// ParseWeekdays parses a comma-separated list such as "1,2,3,4,5".
// 0 is accepted as Sunday and normalised to 7.
func ParseWeekdays(csv string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid weekday %q", part)
		}
		if n == 0 {
			n = 7
		}
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("weekday %d out of range 1-7", n)
		}
		w |= 1 << (n - 1)
	}
	return w, nil
}

// NewWeekdays builds a set from ISO weekday numbers; out-of-range values are ignored.
func NewWeekdays(days ...int) Weekdays {
	var w Weekdays
	for _, d := range days {
		if d == 0 {
			d = 7
		}
		if d >= 1 && d <= 7 {
			w |= 1 << (d - 1)
		}
	}
	return w
}

// Empty reports whether no weekday is set.
func (w Weekdays) Empty() bool { return w == 0 }

// Has reports whether ISO weekday d is in the set.
func (w Weekdays) Has(d int) bool {
	return d >= 1 && d <= 7 && w&(1<<(d-1)) != 0
}

// Contains reports whether the date falls on an active weekday.
// An empty set contains every date.
func (w Weekdays) Contains(t time.Time) bool {
	return w.Empty() || w.Has(ISOWeekday(t))
}

// Days lists the ISO weekday numbers in ascending order.
func (w Weekdays) Days() []int {
	var days []int
	for d := 1; d <= 7; d++ {
		if w.Has(d) {
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

// String renders the set as sorted CSV, e.g. "1,2,3,4,5".
func (w Weekdays) String() string {
	days := w.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
