package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/signups/internal/domain"
	"example.com/signups/internal/logger"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]domain.ContactRecord
	err     error
}

func (w *recordingWriter) UpsertContacts(ctx context.Context, items []domain.ContactRecord) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cp := make([]domain.ContactRecord, len(items))
	copy(cp, items)
	w.batches = append(w.batches, cp)
	return int64(len(items)), w.err
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func contacts(n int) []domain.ContactRecord {
	out := make([]domain.ContactRecord, n)
	for i := range out {
		out[i] = domain.ContactRecord{ID: fmt.Sprintf("c%d", i), CreatedAt: time.Now()}
	}
	return out
}

func TestIngestor_FlushesFullBatches(t *testing.T) {
	w := &recordingWriter{}
	ig := NewIngestor(w, 100, 3, time.Hour, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ig.Start(ctx)

	assert.Equal(t, 6, ig.EnqueueAll(contacts(6)))

	require.Eventually(t, func() bool { return w.total() == 6 }, time.Second, 5*time.Millisecond)
	w.mu.Lock()
	for _, b := range w.batches {
		assert.Len(t, b, 3)
	}
	w.mu.Unlock()
}

func TestIngestor_FlushesOnTimer(t *testing.T) {
	w := &recordingWriter{}
	ig := NewIngestor(w, 100, 50, 10*time.Millisecond, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ig.Start(ctx)

	ig.EnqueueAll(contacts(2))

	require.Eventually(t, func() bool { return w.total() == 2 }, time.Second, 5*time.Millisecond)
}

func TestIngestor_FlushesRemainderOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	ig := NewIngestor(w, 100, 50, time.Hour, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	ig.Start(ctx)

	ig.EnqueueAll(contacts(4))
	cancel()

	select {
	case <-ig.Done():
	case <-time.After(time.Second):
		t.Fatal("ingestor did not stop")
	}
	assert.Equal(t, 4, w.total(), "final flush runs on a fresh context")
}

func TestIngestor_QueueFull(t *testing.T) {
	ig := NewIngestor(&recordingWriter{}, 2, 10, time.Hour, logger.Discard())

	assert.Equal(t, 2, ig.EnqueueAll(contacts(5)))
	assert.False(t, ig.Enqueue(domain.ContactRecord{ID: "x"}))
}

func TestIngestor_EnqueueAllSkipsInvalid(t *testing.T) {
	ig := NewIngestor(&recordingWriter{}, 10, 10, time.Hour, logger.Discard())

	items := append(contacts(2), domain.ContactRecord{ID: "no-time"}, domain.ContactRecord{CreatedAt: time.Now()})
	assert.Equal(t, 2, ig.EnqueueAll(items))
	assert.Len(t, ig.queue, 2)
}

func TestIngestor_WriterErrorDropsBatch(t *testing.T) {
	w := &recordingWriter{err: errors.New("db down")}
	ig := NewIngestor(w, 100, 2, time.Hour, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	ig.Start(ctx)

	ig.EnqueueAll(contacts(2))
	require.Eventually(t, func() bool { return w.total() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-ig.Done()
}
