package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/signups/internal/aggregate"
	"example.com/signups/internal/cache"
	"example.com/signups/internal/collect"
	"example.com/signups/internal/domain"
	"example.com/signups/internal/metrics"
	spg "example.com/signups/internal/storage/postgres"
)

// maxHistoryDays bounds one archive query.
const maxHistoryDays = 366

// defaultRefreshTimeout bounds a shared collection run when Settings leaves it unset.
const defaultRefreshTimeout = 5 * time.Minute

var (
	ErrInvalidDays     = errors.New("days out of range")
	ErrInvalidRange    = errors.New("invalid date range")
	ErrArchiveDisabled = errors.New("archive is not configured")
)

type Collector interface {
	Collect(ctx context.Context, window domain.TimeWindow, pageSize, maxPerSubwindow int) (collect.Result, error)
}

// Archiver receives every successfully collected record set.
type Archiver interface {
	EnqueueAll(items []domain.ContactRecord) int
}

type HistoryReader interface {
	QueryDailyCounts(ctx context.Context, from, to time.Time, tz string) ([]spg.DailyBucket, error)
}

type Settings struct {
	DefaultDays        int
	MaxDays            int
	PageSize           int
	MaxResultsPerQuery int
	TimezoneName       string
	// RefreshTimeout bounds one collection run, independent of any caller.
	RefreshTimeout     time.Duration
}

// Snapshot is one aggregated collection run as handed to a rendering surface.
type Snapshot struct {
	Window        domain.TimeWindow    `json:"window"`
	Series        domain.DailySeries   `json:"series"`
	Rows          []domain.ActivityRow `json:"rows"`
	Total         int                  `json:"total"`
	DailyAverage  float64              `json:"daily_average"`
	Partial       bool                 `json:"partial"`
	PartialReason string               `json:"partial_reason,omitempty"`
	Stale         bool                 `json:"stale"`
	FetchedAt     time.Time            `json:"fetched_at"`
}

// Recent returns at most limit rows, newest first. limit <= 0 means all.
func (s Snapshot) Recent(limit int) []domain.ActivityRow {
	if limit <= 0 || limit >= len(s.Rows) {
		return s.Rows
	}
	return s.Rows[:limit]
}

type Service struct {
	collector  Collector
	aggregator *aggregate.Aggregator
	store      *cache.Store[int, Snapshot]
	archive    Archiver
	history    HistoryReader
	settings   Settings
	now        func() time.Time
	group      singleflight.Group
	logger     *slog.Logger
}

type Option func(*Service)

// WithArchive enables archiving collected records and the history query.
func WithArchive(a Archiver, h HistoryReader) Option {
	return func(s *Service) {
		s.archive = a
		s.history = h
	}
}

// WithClock overrides time.Now; tests use it to step past the TTL.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(c Collector, agg *aggregate.Aggregator, store *cache.Store[int, Snapshot], settings Settings, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		collector:  c,
		aggregator: agg,
		store:      store,
		settings:   settings,
		now:        time.Now,
		logger:     logger.With("component", "dashboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Settings() Settings { return s.settings }

// Load returns the snapshot for the last `days` days (0 = default). A fresh cached
// snapshot is served unless refresh is set. When collection fails the previous
// snapshot is returned marked Stale; with nothing cached the error is returned.
func (s *Service) Load(ctx context.Context, days int, refresh bool) (Snapshot, error) {
	if days == 0 {
		days = s.settings.DefaultDays
	}
	if days < 1 || days > s.settings.MaxDays {
		return Snapshot{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidDays, days, s.settings.MaxDays)
	}

	entry, state := s.store.Lookup(days, s.now())
	if state == cache.Fresh && !refresh {
		metrics.RecordCacheLookup("hit")
		return entry.Value, nil
	}

	// Shared by every joined caller; detached from the first caller's cancellation.
	ch := s.group.DoChan(strconv.Itoa(days), func() (any, error) {
		timeout := s.settings.RefreshTimeout
		if timeout <= 0 {
			timeout = defaultRefreshTimeout
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return s.refresh(rctx, days)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.RecordCacheLookup("miss")
		return Snapshot{}, ctx.Err()
	}

	if res.Err != nil {
		if state == cache.Miss {
			metrics.RecordCacheLookup("miss")
			return Snapshot{}, res.Err
		}
		metrics.RecordCacheLookup("stale")
		s.logger.Warn("serving previous snapshot after failed refresh",
			"days", days,
			"age", entry.Age(s.now()).String(),
			"error", res.Err)
		snap := entry.Value
		snap.Stale = true
		return snap, nil
	}
	metrics.RecordCacheLookup("miss")
	if res.Shared {
		s.logger.Debug("joined in-flight refresh", "days", days)
	}
	return res.Val.(Snapshot), nil
}

func (s *Service) refresh(ctx context.Context, days int) (Snapshot, error) {
	now := s.now()
	window, err := domain.LookbackWindow(now, days, s.aggregator.Location())
	if err != nil {
		return Snapshot{}, err
	}

	res, err := s.collector.Collect(ctx, window, s.settings.PageSize, s.settings.MaxResultsPerQuery)
	if err != nil {
		return Snapshot{}, fmt.Errorf("collect %d days: %w", days, err)
	}

	series, rows := s.aggregator.Aggregate(res.Records, window)
	snap := Snapshot{
		Window:       window,
		Series:       series,
		Rows:         rows,
		Total:        series.Total(),
		DailyAverage: series.Average(),
		FetchedAt:    now.UTC(),
	}
	if res.Partial != nil {
		snap.Partial = true
		snap.PartialReason = res.Partial.Error()
	}
	s.store.Put(days, snap, now)

	if s.archive != nil && len(res.Records) > 0 {
		accepted := s.archive.EnqueueAll(res.Records)
		s.logger.Debug("queued contacts for archive", "accepted", accepted, "collected", len(res.Records))
	}
	return snap, nil
}

// History returns archived daily counts for the inclusive local date range.
func (s *Service) History(ctx context.Context, from, to string) (domain.DailySeries, error) {
	if s.history == nil {
		return nil, ErrArchiveDisabled
	}
	loc := s.aggregator.Location()
	first, err := time.ParseInLocation(domain.DateLayout, from, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
	}
	last, err := time.ParseInLocation(domain.DateLayout, to, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("%w: to before from", ErrInvalidRange)
	}
	if first.AddDate(0, 0, maxHistoryDays-1).Before(last) {
		return nil, fmt.Errorf("%w: at most %d days", ErrInvalidRange, maxHistoryDays)
	}
	dates := aggregate.DateRange(first, last)

	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)
	buckets, err := s.history.QueryDailyCounts(ctx, first, end, s.settings.TimezoneName)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(buckets))
	for _, b := range buckets {
		counts[b.Date] = int(b.Count)
	}
	return aggregate.FillDays(dates, counts), nil
}
