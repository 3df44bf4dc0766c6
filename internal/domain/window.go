package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrEmptyWindow = errors.New("time window must have start before end")

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !start.Before(end) {
		return TimeWindow{}, fmt.Errorf("%w: start=%s end=%s", ErrEmptyWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// LookbackWindow covers the last `days` calendar days in loc, today included.
// The window ends at the next local midnight.
func LookbackWindow(now time.Time, days int, loc *time.Location) (TimeWindow, error) {
	if days <= 0 {
		return TimeWindow{}, fmt.Errorf("%w: lookback of %d days", ErrEmptyWindow, days)
	}
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+1-days, 0, 0, 0, 0, loc)
	return NewTimeWindow(start, end)
}

// Contains reports whether t falls inside [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Dates lists every calendar date in loc touched by the window, first to last inclusive.
func (w TimeWindow) Dates(loc *time.Location) []string {
	first := civilDate(w.Start.In(loc))
	last := civilDate(w.End.Add(-time.Nanosecond).In(loc))

	var out []string
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// civilDate drops the clock and zone so date arithmetic ignores DST shifts.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
