package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("accepts start before end", func(t *testing.T) {
		w, err := NewTimeWindow(start, start.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, time.Hour, w.Duration())
	})

	t.Run("rejects empty window", func(t *testing.T) {
		_, err := NewTimeWindow(start, start)
		assert.ErrorIs(t, err, ErrEmptyWindow)
	})

	t.Run("rejects inverted window", func(t *testing.T) {
		_, err := NewTimeWindow(start, start.Add(-time.Second))
		assert.ErrorIs(t, err, ErrEmptyWindow)
	})
}

func TestTimeWindow_Contains(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: start, End: start.Add(24 * time.Hour)}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(23*time.Hour)))
	assert.False(t, w.Contains(start.Add(24*time.Hour)), "end is exclusive")
	assert.False(t, w.Contains(start.Add(-time.Millisecond)))
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC)

	t.Run("covers whole days including today", func(t *testing.T) {
		w, err := LookbackWindow(now, 3, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), w.End)
		assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, w.Dates(time.UTC))
	})

	t.Run("zero days is rejected", func(t *testing.T) {
		_, err := LookbackWindow(now, 0, time.UTC)
		assert.ErrorIs(t, err, ErrEmptyWindow)
	})

	t.Run("aligns to the reporting timezone", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*60*60)
		w, err := LookbackWindow(now, 1, tokyo)
		require.NoError(t, err)
		// 15:30 UTC is already 2024-01-04 in Tokyo.
		assert.Equal(t, []string{"2024-01-04"}, w.Dates(tokyo))
	})
}

func TestTimeWindow_DatesAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	start := time.Date(2024, 3, 9, 0, 0, 0, 0, loc)
	end := time.Date(2024, 3, 12, 0, 0, 0, 0, loc)

	w, err := NewTimeWindow(start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-09", "2024-03-10", "2024-03-11"}, w.Dates(loc))
}
