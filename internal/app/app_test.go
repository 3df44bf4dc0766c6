package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/signups/internal/config"
	"example.com/signups/internal/dashboard"
	"example.com/signups/internal/logger"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		HubSpotBaseURL:      baseURL,
		HubSpotToken:        "pat-test",
		HTTPTimeout:         5 * time.Second,
		LookbackDays:        2,
		MaxLookbackDays:     30,
		PageSize:            100,
		MaxResultsPerQuery:  10_000,
		Partition:           "auto",
		MinSubwindow:        time.Minute,
		ReportTimezone:      "UTC",
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		CacheTTL:            time.Minute,
		CacheMaxEntries:     4,
		TableLimit:          10,
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	created := time.Now().UTC().Format(time.RFC3339)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"total":1,"results":[{"id":"42","properties":{"createdate":%q,"firstname":"Ada","email":"ada@example.com"}}]}`, created)
	}))
	t.Cleanup(server.Close)

	a, err := Build(context.Background(), testConfig(server.URL), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(time.Second) })

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Ingestor)
	assert.NoError(t, a.Ready(context.Background()))

	snap, err := a.Dashboard.Load(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Len(t, snap.Series, 2)
	assert.Equal(t, 1, snap.Total)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "Ada", snap.Rows[0].Name)

	_, err = a.Dashboard.Load(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second load is served from the cache")

	_, err = a.Dashboard.History(context.Background(), "2024-01-01", "2024-01-02")
	assert.ErrorIs(t, err, dashboard.ErrArchiveDisabled)
}

func TestBuild_InvalidPartition(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.Partition = "week"

	_, err := Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
