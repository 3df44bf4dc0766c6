package ingest

import (
	"context"
	"log/slog"
	"time"

	"example.com/signups/internal/domain"
	"example.com/signups/internal/metrics"
)

// flushTimeout bounds the final flush after the run context is cancelled.
const flushTimeout = 5 * time.Second

// BatchWriter persists a batch of contacts.
type BatchWriter interface {
	UpsertContacts(ctx context.Context, items []domain.ContactRecord) (int64, error)
}

// Ingestor drains a bounded queue of contacts into the writer in batches.
type Ingestor struct {
	queue        chan domain.ContactRecord
	writer       BatchWriter
	batchMaxSize int
	batchMaxWait time.Duration
	logger       *slog.Logger
	done         chan struct{}
}

func NewIngestor(writer BatchWriter, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		queue:        make(chan domain.ContactRecord, queueMaxSize),
		writer:       writer,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		logger:       logger.With("component", "ingest"),
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is done, then flushes what is left.
func (ig *Ingestor) Start(ctx context.Context) {
	go func() {
		defer close(ig.done)

		batch := make([]domain.ContactRecord, 0, ig.batchMaxSize)
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			affected, err := ig.writer.UpsertContacts(ctx, batch)
			if err != nil {
				metrics.RecordArchiveBatch("error")
				ig.logger.Error("batch upsert failed", "error", err, "dropped", len(batch))
			} else {
				metrics.RecordArchiveBatch("ok")
				ig.logger.Debug("batch upsert ok", "affected", affected, "size", len(batch))
			}
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				// Drain what is already queued before the final flush.
			drain:
				for {
					select {
					case c := <-ig.queue:
						batch = append(batch, c)
					default:
						break drain
					}
				}
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
				flush(flushCtx)
				cancel()
				return
			case c := <-ig.queue:
				batch = append(batch, c)
				if len(batch) >= ig.batchMaxSize {
					flush(ctx)
				}
			case <-t.C:
				flush(ctx)
			}
		}
	}()
}

// Enqueue adds one contact without blocking. It reports false when the queue is full.
func (ig *Ingestor) Enqueue(c domain.ContactRecord) bool {
	select {
	case ig.queue <- c:
		return true
	default:
		return false
	}
}

// EnqueueAll queues as many valid contacts as fit and returns how many were accepted.
// Contacts failing domain.ValidateContact are skipped.
func (ig *Ingestor) EnqueueAll(items []domain.ContactRecord) int {
	accepted := 0
	for i, c := range items {
		if errs := domain.ValidateContact(c); len(errs) > 0 {
			ig.logger.Warn("not archiving invalid contact", "id", c.ID, "errors", domain.JoinFieldErrors(errs))
			continue
		}
		if !ig.Enqueue(c) {
			ig.logger.Warn("archive queue full", "dropped", len(items)-i)
			break
		}
		accepted++
	}
	return accepted
}

// Done is closed once the loop has exited and flushed.
func (ig *Ingestor) Done() <-chan struct{} { return ig.done }
