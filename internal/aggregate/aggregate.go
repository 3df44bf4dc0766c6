package aggregate

import (
	"log/slog"
	"sort"
	"time"

	"example.com/signups/internal/domain"
)

// Aggregator buckets contacts by calendar day in a fixed reporting timezone.
type Aggregator struct {
	loc    *time.Location
	logger *slog.Logger
}

func New(loc *time.Location, logger *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{loc: loc, logger: logger.With("component", "aggregate")}
}

func (a *Aggregator) Location() *time.Location { return a.loc }

// Aggregate returns a gap-free daily series over the window and the activity
// rows newest first. Records without a creation time are dropped with a warning.
func (a *Aggregator) Aggregate(records []domain.ContactRecord, window domain.TimeWindow) (domain.DailySeries, []domain.ActivityRow) {
	counts := make(map[string]int)
	kept := make([]domain.ContactRecord, 0, len(records))

	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			a.logger.Warn("dropping contact without creation time", "id", rec.ID)
			continue
		}
		counts[domain.DateOf(rec.CreatedAt, a.loc)]++
		kept = append(kept, rec)
	}

	return FillDays(window.Dates(a.loc), counts), a.rows(kept)
}

func (a *Aggregator) rows(records []domain.ContactRecord) []domain.ActivityRow {
	sorted := make([]domain.ContactRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]domain.ActivityRow, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, rec.Row(a.loc))
	}
	return out
}

// FillDays reindexes counts against dates, inserting zero where a date has no entry.
// Counts for dates outside the list are ignored.
func FillDays(dates []string, counts map[string]int) domain.DailySeries {
	series := make(domain.DailySeries, 0, len(dates))
	for _, d := range dates {
		series = append(series, domain.DayCount{Date: d, Count: counts[d]})
	}
	return series
}

// DateRange lists calendar dates from first to last inclusive ("YYYY-MM-DD").
func DateRange(first, last time.Time) []string {
	from := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)

	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(domain.DateLayout))
	}
	return out
}
