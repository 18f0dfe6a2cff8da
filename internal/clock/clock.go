// Package clock holds the time arithmetic shared by reminders, /check and the
// store: daily deadline instants, HH:MM parsing, /check argument parsing and
// the humanized "in N minutes" / "overdue by N minutes" text.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeOfDay    = errors.New("invalid time of day")
	ErrInvalidCheckInstant = errors.New("invalid check date-time")
)

// TimeOfDay is a wall-clock hour and minute that recurs daily.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	tod := TimeOfDay{Hour: h, Minute: m}
	if errH != nil || errM != nil || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 || !tod.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return tod, nil
}

// DeadlineInstant is tod on the calendar date of ref, in ref's location.
func DeadlineInstant(ref time.Time, tod TimeOfDay) time.Time {
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, tod.Hour, tod.Minute, 0, 0, ref.Location())
}

// DateKey is the YYYY-MM-DD calendar date of t in t's location.
func DateKey(t time.Time) string { return t.Format(time.DateOnly) }

// HumanizeDelta renders a signed duration in whole minutes, truncating toward
// zero. Negative deltas are "overdue", including ones that truncate to 0.
func HumanizeDelta(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if d < 0 {
		return fmt.Sprintf("overdue by %d minutes", -minutes)
	}
	if minutes < 60 {
		return fmt.Sprintf("in %d minutes", minutes)
	}
	return fmt.Sprintf("in %d hours %d minutes", minutes/60, minutes%60)
}

const checkLayout = "2-1-2006 15:04"

// ParseCheckInstant parses the /check argument, e.g. "15-12-2025 09:00".
// Dots and slashes are accepted as date separators; a comma or "T" may
// separate the date from the time.
func ParseCheckInstant(arg string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.NewReplacer(".", "-", "/", "-", ",", " ", "T", " ").Replace(strings.TrimSpace(arg))
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCheckInstant, arg)
	}
	// time.ParseInLocation rejects out-of-range days such as 31-02.
	t, err := time.ParseInLocation(checkLayout, fields[0]+" "+fields[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidCheckInstant, arg)
	}
	return t, nil
}

// FormatCheckInstant is the inverse used in report headers.
func FormatCheckInstant(t time.Time) string { return t.Format("02-01-2006 15:04") }
