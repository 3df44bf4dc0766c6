package transporthttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/signups/internal/collect"
	"example.com/signups/internal/config"
	"example.com/signups/internal/crm"
	"example.com/signups/internal/dashboard"
	"example.com/signups/internal/domain"
	"example.com/signups/internal/fingerprint"
)

// Dashboard is the read side the HTTP surface renders.
type Dashboard interface {
	Load(ctx context.Context, days int, refresh bool) (dashboard.Snapshot, error)
	History(ctx context.Context, from, to string) (domain.DailySeries, error)
}

type ServerDeps struct {
	Cfg       config.Config
	Dashboard Dashboard
	// Ready is probed by /readyz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
	Now    func() time.Time
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Ready != nil {
		if err := d.Ready(r.Context()); err != nil {
			WriteProblem(w, http.StatusServiceUnavailable, "not ready", "archive database not reachable", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Signups ---

type signupsResp struct {
	Window        windowResp           `json:"window"`
	Series        domain.DailySeries   `json:"series"`
	Rows          []domain.ActivityRow `json:"rows"`
	Total         int                  `json:"total"`
	DailyAverage  float64              `json:"daily_average"`
	Partial       bool                 `json:"partial"`
	PartialReason string               `json:"partial_reason,omitempty"`
	Stale         bool                 `json:"stale"`
	FetchedAt     time.Time            `json:"fetched_at"`
}

type windowResp struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

func (d *ServerDeps) HandleGetSignups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	days := 0
	if s := strings.TrimSpace(q.Get("days")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "days must be a positive integer", nil)
			return
		}
		days = n
	}
	refresh := q.Get("refresh") == "1" || strings.EqualFold(q.Get("refresh"), "true")

	snap, err := d.Dashboard.Load(r.Context(), days, refresh)
	if err != nil {
		d.writeLoadError(w, r, err)
		return
	}

	rows := snap.Recent(d.Cfg.TableLimit)
	etag := fingerprint.ETag(fingerprint.DeriveKey(snap.Series, rows, snap.Partial, snap.Stale))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, signupsResp{
		Window: windowResp{
			Start:    snap.Window.Start,
			End:      snap.Window.End,
			Timezone: d.Cfg.ReportTimezone,
		},
		Series:        snap.Series,
		Rows:          rows,
		Total:         snap.Total,
		DailyAverage:  snap.DailyAverage,
		Partial:       snap.Partial,
		PartialReason: snap.PartialReason,
		Stale:         snap.Stale,
		FetchedAt:     snap.FetchedAt,
	})
}

// etagMatches applies the weak comparison of If-None-Match: any listed tag
// equal to etag once a W/ prefix is dropped, or "*".
func etagMatches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

func (d *ServerDeps) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr     *crm.AuthError
		providerErr *crm.ProviderError
	)
	switch {
	case errors.Is(err, dashboard.ErrInvalidDays):
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", err.Error(), nil)
		return
	case errors.Is(err, collect.ErrRateLimitExhausted):
		w.Header().Set("Retry-After", "60")
		WriteProblem(w, http.StatusServiceUnavailable, "crm rate limited", "the CRM kept rejecting requests, try again later", nil)
	case errors.As(err, &authErr):
		WriteProblem(w, http.StatusBadGateway, "crm authentication failed", "the CRM rejected the configured credential", nil)
	case errors.As(err, &providerErr):
		WriteProblem(w, http.StatusBadGateway, "crm error", "the CRM returned status "+strconv.Itoa(providerErr.Status), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteProblem(w, http.StatusGatewayTimeout, "timeout", "collection did not finish in time", nil)
	default:
		WriteProblem(w, http.StatusInternalServerError, "collection failed", "could not load signups", nil)
	}
	d.Logger.Error("load signups failed", "request_id", RequestIDFrom(r.Context()), "error", err)
}

// --- History ---

type historyResp struct {
	From   string             `json:"from"`
	To     string             `json:"to"`
	Series domain.DailySeries `json:"series"`
	Total  int                `json:"total"`
}

func (d *ServerDeps) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from and to are required (YYYY-MM-DD)", nil)
		return
	}

	series, err := d.Dashboard.History(r.Context(), from, to)
	switch {
	case errors.Is(err, dashboard.ErrArchiveDisabled):
		WriteProblem(w, http.StatusNotFound, "not found", "history requires POSTGRES_DSN", nil)
		return
	case errors.Is(err, dashboard.ErrInvalidRange):
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", err.Error(), nil)
		return
	case err != nil:
		d.Logger.Error("history query failed", "request_id", RequestIDFrom(r.Context()), "error", err)
		WriteProblem(w, http.StatusInternalServerError, "query error", "could not read archive", nil)
		return
	}

	writeJSON(w, http.StatusOK, historyResp{From: from, To: to, Series: series, Total: series.Total()})
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.HandleHealthz)
	mux.HandleFunc("/readyz", d.HandleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	limit := RateLimitPerMinute(d.Cfg.RateLimitPerMin, d.Now)
	auth := APIKeyAuth(d.Cfg.APIKeys)

	var getSignups http.Handler = http.HandlerFunc(d.HandleGetSignups)
	getSignups = auth(limit(getSignups))
	mux.Handle("/api/signups", getSignups)

	var getHistory http.Handler = http.HandlerFunc(d.HandleGetHistory)
	getHistory = auth(limit(getHistory))
	mux.Handle("/api/signups/history", getHistory)

	return RequestID(d.Logger)(mux)
}
