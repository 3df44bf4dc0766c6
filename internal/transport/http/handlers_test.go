package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/signups/internal/collect"
	"example.com/signups/internal/config"
	"example.com/signups/internal/crm"
	"example.com/signups/internal/dashboard"
	"example.com/signups/internal/domain"
	"example.com/signups/internal/logger"
)

type fakeDashboard struct {
	snap       dashboard.Snapshot
	err        error
	history    domain.DailySeries
	historyErr error

	gotDays    int
	gotRefresh bool
}

func (f *fakeDashboard) Load(_ context.Context, days int, refresh bool) (dashboard.Snapshot, error) {
	f.gotDays, f.gotRefresh = days, refresh
	return f.snap, f.err
}

func (f *fakeDashboard) History(_ context.Context, _, _ string) (domain.DailySeries, error) {
	return f.history, f.historyErr
}

func sampleSnapshot() dashboard.Snapshot {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []domain.ActivityRow
	for i := 0; i < 5; i++ {
		rows = append(rows, domain.ActivityRow{
			Timestamp: start.Add(time.Duration(5-i) * time.Hour).Format(domain.TimestampLayout),
			Name:      fmt.Sprintf("user %d", i),
			Email:     fmt.Sprintf("u%d@example.com", i),
		})
	}
	return dashboard.Snapshot{
		Window:       domain.TimeWindow{Start: start, End: start.AddDate(0, 0, 2)},
		Series:       domain.DailySeries{{Date: "2024-01-01", Count: 5}, {Date: "2024-01-02", Count: 0}},
		Rows:         rows,
		Total:        5,
		DailyAverage: 2.5,
		FetchedAt:    start.Add(30 * time.Hour),
	}
}

func newTestServer(dash Dashboard, mutate func(*config.Config)) http.Handler {
	cfg := config.Config{TableLimit: 3, ReportTimezone: "UTC"}
	if mutate != nil {
		mutate(&cfg)
	}
	deps := &ServerDeps{
		Cfg:       cfg,
		Dashboard: dash,
		Logger:    logger.Discard(),
		Now:       time.Now,
	}
	return deps.Router()
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetSignups(t *testing.T) {
	dash := &fakeDashboard{snap: sampleSnapshot()}
	h := newTestServer(dash, nil)

	rec := get(t, h, "/api/signups?days=2&refresh=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, 2, dash.gotDays)
	assert.True(t, dash.gotRefresh)

	var body signupsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Rows, 3, "rows are limited to the table size")
	assert.Equal(t, "user 0", body.Rows[0].Name)
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 2.5, body.DailyAverage)
	assert.Equal(t, "UTC", body.Window.Timezone)
	assert.Len(t, body.Series, 2)
}

func TestHandleGetSignups_DefaultDays(t *testing.T) {
	dash := &fakeDashboard{snap: sampleSnapshot()}
	rec := get(t, newTestServer(dash, nil), "/api/signups", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, dash.gotDays)
	assert.False(t, dash.gotRefresh)
}

func TestHandleGetSignups_NotModified(t *testing.T) {
	h := newTestServer(&fakeDashboard{snap: sampleSnapshot()}, nil)

	first := get(t, h, "/api/signups", nil)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")

	second := get(t, h, "/api/signups", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())

	stale := sampleSnapshot()
	stale.Stale = true
	changed := get(t, newTestServer(&fakeDashboard{snap: stale}, nil), "/api/signups", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusOK, changed.Code, "the stale flag changes the fingerprint")
}

func TestHandleGetSignups_IfNoneMatchForms(t *testing.T) {
	h := newTestServer(&fakeDashboard{snap: sampleSnapshot()}, nil)
	etag := get(t, h, "/api/signups", nil).Header().Get("ETag")
	require.NotEmpty(t, etag)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "list", header: `"other", ` + etag, status: http.StatusNotModified},
		{name: "weak", header: "W/" + etag, status: http.StatusNotModified},
		{name: "wildcard", header: "*", status: http.StatusNotModified},
		{name: "no match", header: `"other", W/"nope"`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/signups", map[string]string{"If-None-Match": tt.header})
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches(`"a"`, `"a"`))
	assert.True(t, etagMatches(` "b" ,W/"a"`, `"a"`))
	assert.False(t, etagMatches(`"ab"`, `"a"`))
}

func TestHandleGetSignups_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "bad days", target: "/api/signups?days=abc", status: http.StatusBadRequest},
		{name: "days out of range", target: "/api/signups?days=900", err: fmt.Errorf("%w: 900", dashboard.ErrInvalidDays), status: http.StatusBadRequest},
		{name: "rate limit exhausted", target: "/api/signups", err: fmt.Errorf("collect: %w", collect.ErrRateLimitExhausted), status: http.StatusServiceUnavailable},
		{name: "auth", target: "/api/signups", err: fmt.Errorf("collect: %w", &crm.AuthError{Status: 401}), status: http.StatusBadGateway},
		{name: "provider", target: "/api/signups", err: &crm.ProviderError{Status: 500}, status: http.StatusBadGateway},
		{name: "other", target: "/api/signups", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(&fakeDashboard{err: tt.err}, nil), tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.status, p.Status)
		})
	}
}

func TestHandleGetHistory(t *testing.T) {
	dash := &fakeDashboard{history: domain.DailySeries{{Date: "2024-01-01", Count: 3}, {Date: "2024-01-02", Count: 1}}}
	rec := get(t, newTestServer(dash, nil), "/api/signups/history?from=2024-01-01&to=2024-01-02", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body historyResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
	assert.Len(t, body.Series, 2)
}

func TestHandleGetHistory_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "missing params", target: "/api/signups/history?from=2024-01-01", status: http.StatusBadRequest},
		{name: "disabled", target: "/api/signups/history?from=2024-01-01&to=2024-01-02", err: dashboard.ErrArchiveDisabled, status: http.StatusNotFound},
		{name: "invalid range", target: "/api/signups/history?from=2024-01-05&to=2024-01-02", err: dashboard.ErrInvalidRange, status: http.StatusBadRequest},
		{name: "query failure", target: "/api/signups/history?from=2024-01-01&to=2024-01-02", err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(&fakeDashboard{historyErr: tt.err}, nil), tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	h := newTestServer(&fakeDashboard{}, nil)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz", nil).Code)

	deps := &ServerDeps{
		Dashboard: &fakeDashboard{},
		Logger:    logger.Discard(),
		Ready:     func(context.Context) error { return errors.New("ping failed") },
	}
	assert.Equal(t, http.StatusServiceUnavailable, get(t, deps.Router(), "/readyz", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&fakeDashboard{}, nil), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/signups", nil)
	rec := httptest.NewRecorder()
	newTestServer(&fakeDashboard{}, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
