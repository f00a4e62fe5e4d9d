package workers

import (
	"context"
	"time"

	"github.com/alimgiray/personhub/internal/models"
)

// EntrySource is the stream side the poller reads from
type EntrySource interface {
	Poll(ctx context.Context, consumer string, maxCount int) ([]models.QueueEntry, error)
	Reclaim(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]models.QueueEntry, error)
}

type PollerOptions struct {
	Consumer       string
	Interval       time.Duration
	Count          int
	ErrorDelay     time.Duration
	ReclaimMinIdle time.Duration
}

// PollerWorker is the single producer of the ingestion job. It moves stream entries
// into the buffer and never drops one it has read.
type PollerWorker struct {
	*BaseWorker
	source EntrySource
	buffer *PersonBuffer
	opts   PollerOptions
}

func NewPollerWorker(workerID string, source EntrySource, buffer *PersonBuffer, opts PollerOptions) *PollerWorker {
	return &PollerWorker{
		BaseWorker: NewBaseWorker(workerID, RolePoller),
		source:     source,
		buffer:     buffer,
		opts:       opts,
	}
}

// Start reclaims entries left pending by a previous run, then polls on every tick.
// A full page is followed by another poll right away instead of waiting for the tick.
func (w *PollerWorker) Start(ctx context.Context) error {
	ctx, done := w.run(ctx)
	defer done()

	w.log.WithField("consumer", w.opts.Consumer).Info("Poller started")

	if !w.reclaim(ctx) {
		w.log.Info("Poller stopping")
		return nil
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if err := w.buffer.WaitForRoom(ctx); err != nil {
			w.log.Info("Poller stopping")
			return nil
		}

		entries, err := w.source.Poll(ctx, w.opts.Consumer, w.opts.Count)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("Poller stopping")
				return nil
			}
			pollErrorsTotal.Inc()
			w.log.WithError(err).Error("Poll failed")
			if !sleep(ctx, w.opts.ErrorDelay) {
				w.log.Info("Poller stopping")
				return nil
			}
			continue
		}

		if !w.enqueue(ctx, entries) {
			w.log.Info("Poller stopping")
			return nil
		}
		if len(entries) >= w.opts.Count {
			continue
		}

		select {
		case <-ctx.Done():
			w.log.Info("Poller stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// reclaim takes over entries that stayed pending past the idle timeout, typically
// because a consumer died before acking them. A failure only skips the reclaim.
func (w *PollerWorker) reclaim(ctx context.Context) bool {
	entries, err := w.source.Reclaim(ctx, w.opts.Consumer, w.opts.ReclaimMinIdle, w.opts.Count)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.log.WithError(err).Warn("Reclaiming pending entries failed")
	}
	if len(entries) > 0 {
		w.log.WithField("entries", len(entries)).Info("Reclaimed pending entries")
	}
	return w.enqueue(ctx, entries)
}

func (w *PollerWorker) enqueue(ctx context.Context, entries []models.QueueEntry) bool {
	polledTotal.Add(float64(len(entries)))
	for _, entry := range entries {
		if err := w.buffer.Push(ctx, entry); err != nil {
			return false
		}
	}
	bufferLength.Set(float64(w.buffer.Len()))
	return true
}
