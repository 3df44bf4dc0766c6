package collect

import (
	"fmt"
	"time"

	"example.com/signups/internal/domain"
)

// PartitionUnit selects how a window is split before querying.
type PartitionUnit string

const (
	// PartitionAuto queries the whole window and only splits on overflow.
	PartitionAuto PartitionUnit = "auto"
	// PartitionDay splits on local midnight in the reporting timezone.
	PartitionDay PartitionUnit = "day"
	// PartitionHour splits on whole hours of absolute time.
	PartitionHour PartitionUnit = "hour"
)

func ParsePartitionUnit(s string) (PartitionUnit, error) {
	switch u := PartitionUnit(s); u {
	case PartitionAuto, PartitionDay, PartitionHour:
		return u, nil
	case "":
		return PartitionAuto, nil
	default:
		return "", fmt.Errorf("unknown partition unit %q", s)
	}
}

// Partition splits w into contiguous half-open sub-windows aligned to unit in loc.
// The first and last pieces are clipped to w, so their union is exactly w.
func Partition(w domain.TimeWindow, unit PartitionUnit, loc *time.Location) []domain.TimeWindow {
	if unit == PartitionAuto || unit == "" {
		return []domain.TimeWindow{w}
	}

	var out []domain.TimeWindow
	start := w.Start
	for start.Before(w.End) {
		end := nextBoundary(start, unit, loc)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, domain.TimeWindow{Start: start, End: end})
		start = end
	}
	return out
}

func nextBoundary(t time.Time, unit PartitionUnit, loc *time.Location) time.Time {
	local := t.In(loc)
	switch unit {
	case PartitionHour:
		return local.Truncate(time.Hour).Add(time.Hour)
	default:
		return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	}
}

// Bisect splits w at its midpoint, rounded down to the millisecond the provider
// filters on. It refuses when either half would be shorter than minSpan.
func Bisect(w domain.TimeWindow, minSpan time.Duration) (domain.TimeWindow, domain.TimeWindow, bool) {
	half := (w.Duration() / 2).Truncate(time.Millisecond)
	if half <= 0 || half < minSpan {
		return domain.TimeWindow{}, domain.TimeWindow{}, false
	}
	mid := w.Start.Add(half)
	return domain.TimeWindow{Start: w.Start, End: mid}, domain.TimeWindow{Start: mid, End: w.End}, true
}
