package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"example.com/signups/internal/crm"
	"example.com/signups/internal/domain"
	"example.com/signups/internal/metrics"
)

var ErrInvalidPageSize = errors.New("page size out of range")

// Searcher is the provider's paginated contact search.
type Searcher interface {
	SearchContacts(ctx context.Context, q crm.SearchQuery) (crm.SearchPage, error)
}

// PartialResultWarning marks a run that stopped before the full set was read.
// The collected records are a lower bound on the true total.
type PartialResultWarning struct {
	Collected int
	Reason    string
}

func (w *PartialResultWarning) Error() string {
	return fmt.Sprintf("partial result: %s (%d records collected)", w.Reason, w.Collected)
}

type Options struct {
	Partition    PartitionUnit
	Location     *time.Location
	MinSubwindow time.Duration
	// MaxRecords stops the run once this many unique records are held. Zero disables it.
	MaxRecords int
	Retry      RetryPolicy
	// Limiter throttles outbound requests. Nil disables throttling.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	// Sleep replaces the backoff wait; tests use it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result of a collection run. Records are newest first, ties broken by ID.
type Result struct {
	Records     []domain.ContactRecord
	Partial     *PartialResultWarning
	Subwindows  int
	Requests    int
	RateLimited int
}

// Collector fetches every contact created inside a window, one request at a time.
type Collector struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

func NewCollector(searcher Searcher, opts Options) *Collector {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Partition == "" {
		opts.Partition = PartitionAuto
	}
	if opts.MinSubwindow <= 0 {
		opts.MinSubwindow = time.Minute
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{searcher: searcher, opts: opts, logger: logger.With("component", "collector")}
}

// run holds the state of one Collect call so a Collector can be shared.
type run struct {
	pageSize int
	ceiling  int
	seen     map[string]domain.ContactRecord
	result   Result
	stopped  bool
}

// Collect returns all contacts created in [window.Start, window.End).
// maxPerSubwindow is the provider's ceiling on matches readable from one filtered query.
func (c *Collector) Collect(ctx context.Context, window domain.TimeWindow, pageSize, maxPerSubwindow int) (Result, error) {
	if !window.Start.Before(window.End) {
		return Result{}, fmt.Errorf("collect %s: %w", window, domain.ErrEmptyWindow)
	}
	if pageSize < 1 || pageSize > crm.MaxPageSize {
		return Result{}, fmt.Errorf("collect: %w: %d not in 1..%d", ErrInvalidPageSize, pageSize, crm.MaxPageSize)
	}
	if maxPerSubwindow < 1 {
		return Result{}, fmt.Errorf("collect: per-query ceiling must be positive, got %d", maxPerSubwindow)
	}

	started := time.Now()
	r := &run{
		pageSize: pageSize,
		ceiling:  maxPerSubwindow,
		seen:     make(map[string]domain.ContactRecord),
	}

	subs := Partition(window, c.opts.Partition, c.opts.Location)
	c.logger.Info("collection started",
		"window", window.String(),
		"partition", string(c.opts.Partition),
		"subwindows", len(subs),
		"page_size", pageSize)

	for _, sub := range subs {
		if r.stopped {
			break
		}
		if err := c.collectWindow(ctx, r, sub); err != nil {
			metrics.RecordCollect("error", 0, time.Since(started).Seconds())
			c.logger.Error("collection failed",
				"window", window.String(),
				"requests", r.result.Requests,
				"error", err)
			return Result{}, err
		}
	}

	r.result.Records = sortedRecords(r.seen)
	status := "ok"
	if r.result.Partial != nil {
		status = "partial"
		r.result.Partial.Collected = len(r.result.Records)
		c.logger.Warn("collection incomplete", "reason", r.result.Partial.Reason, "records", len(r.result.Records))
	}
	metrics.RecordCollect(status, len(r.result.Records), time.Since(started).Seconds())
	c.logger.Info("collection finished",
		"records", len(r.result.Records),
		"subwindows", r.result.Subwindows,
		"requests", r.result.Requests,
		"rate_limited", r.result.RateLimited,
		"duration", time.Since(started).String())

	return r.result, nil
}

// collectWindow drains one sub-window, bisecting it first if the provider
// reports more matches than a single query can page through.
func (c *Collector) collectWindow(ctx context.Context, r *run, sub domain.TimeWindow) error {
	cursor := ""
	fetched := 0
	for first := true; ; first = false {
		page, err := c.fetch(ctx, r, crm.SearchQuery{Window: sub, Limit: r.pageSize, After: cursor})
		if err != nil {
			return err
		}

		if first {
			if page.Total > r.ceiling {
				if left, right, ok := Bisect(sub, c.opts.MinSubwindow); ok {
					c.logger.Debug("splitting sub-window over ceiling",
						"window", sub.String(),
						"total", page.Total,
						"ceiling", r.ceiling)
					if err := c.collectWindow(ctx, r, left); err != nil {
						return err
					}
					if r.stopped {
						return nil
					}
					return c.collectWindow(ctx, r, right)
				}
				r.markPartial(fmt.Sprintf("sub-window %s holds %d matches, above the per-query ceiling of %d", sub, page.Total, r.ceiling))
			}
			r.result.Subwindows++
		}

		for _, rec := range page.Records {
			if !r.add(rec, c.opts.MaxRecords) {
				r.markPartial(fmt.Sprintf("global cap of %d records reached", c.opts.MaxRecords))
				r.stopped = true
				return nil
			}
		}
		fetched += len(page.Records)

		if page.After == "" {
			return nil
		}
		if fetched >= r.ceiling {
			// The provider refuses to page past its ceiling.
			return nil
		}
		cursor = page.After
	}
}

// fetch issues one search, retrying rate-limit responses per the policy.
func (c *Collector) fetch(ctx context.Context, r *run, q crm.SearchQuery) (crm.SearchPage, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return crm.SearchPage{}, err
		}
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return crm.SearchPage{}, err
			}
		}

		r.result.Requests++
		page, err := c.searcher.SearchContacts(ctx, q)
		if err == nil {
			metrics.RecordSearch("ok")
			return page, nil
		}

		var rl *crm.RateLimitedError
		if !errors.As(err, &rl) {
			metrics.RecordSearch("error")
			return crm.SearchPage{}, err
		}
		metrics.RecordSearch("rate_limited")
		r.result.RateLimited++

		if attempt >= c.opts.Retry.MaxAttempts {
			return crm.SearchPage{}, fmt.Errorf("search %s: %w after %d attempts", q.Window, ErrRateLimitExhausted, attempt)
		}
		delay := c.opts.Retry.Backoff(attempt, rl.RetryAfter)
		metrics.RateLimitRetriesTotal.Inc()
		c.logger.Warn("rate limited, backing off",
			"window", q.Window.String(),
			"attempt", attempt,
			"delay", delay.String())
		if err := c.opts.Sleep(ctx, delay); err != nil {
			return crm.SearchPage{}, err
		}
	}
}

// add stores rec unless the cap is already reached. Duplicates are free.
func (r *run) add(rec domain.ContactRecord, limit int) bool {
	if _, ok := r.seen[rec.ID]; ok {
		return true
	}
	if limit > 0 && len(r.seen) >= limit {
		return false
	}
	r.seen[rec.ID] = rec
	return true
}

func (r *run) markPartial(reason string) {
	if r.result.Partial == nil {
		r.result.Partial = &PartialResultWarning{Reason: reason}
	}
}

func sortedRecords(seen map[string]domain.ContactRecord) []domain.ContactRecord {
	out := make([]domain.ContactRecord, 0, len(seen))
	for _, rec := range seen {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
