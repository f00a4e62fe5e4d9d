package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alimgiray/personhub/internal/models"
)

const (
	ackChunkSize   = 100
	ackConcurrency = 4
	ackTimeout     = 5 * time.Second
)

// BatchInserter is the store side of the ingestion job
type BatchInserter interface {
	InsertBatch(ctx context.Context, persons []*models.Person) (int64, error)
}

// EntryAcker acknowledges stream entries once they are stored
type EntryAcker interface {
	Ack(ctx context.Context, ids ...string) error
}

// InserterWorker is one of the consumers of the ingestion job. Each wake-up takes
// whatever is buffered at that moment as one batch.
type InserterWorker struct {
	*BaseWorker
	buffer  *PersonBuffer
	store   BatchInserter
	acker   EntryAcker
	backoff time.Duration

	// entries of a failed batch that did not fit back into the buffer
	carry []models.QueueEntry
}

func NewInserterWorker(workerID string, buffer *PersonBuffer, store BatchInserter, acker EntryAcker, backoff time.Duration) *InserterWorker {
	return &InserterWorker{
		BaseWorker: NewBaseWorker(workerID, RoleInserter),
		buffer:     buffer,
		store:      store,
		acker:      acker,
		backoff:    backoff,
	}
}

// Start drains the buffer in batches until ctx is cancelled or Stop is called.
// Store failures never end the loop; the batch is retried after the backoff.
func (w *InserterWorker) Start(ctx context.Context) error {
	ctx, done := w.run(ctx)
	defer done()

	w.log.Info("Inserter started")

	for {
		batch, err := w.nextBatch(ctx)
		if err != nil {
			w.log.WithField("unsaved", len(w.carry)).Info("Inserter stopping")
			return nil
		}
		w.processBatch(ctx, batch)
	}
}

func (w *InserterWorker) nextBatch(ctx context.Context) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(w.carry) > 0 {
		batch := w.carry
		w.carry = nil
		return w.buffer.Drain(batch), nil
	}

	first, err := w.buffer.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return w.buffer.Drain([]models.QueueEntry{first}), nil
}

func (w *InserterWorker) processBatch(ctx context.Context, batch []models.QueueEntry) {
	bufferLength.Set(float64(w.buffer.Len()))
	batchSize.Observe(float64(len(batch)))

	inserted, err := w.insert(ctx, batch)
	if err != nil {
		batchesTotal.WithLabelValues("failed").Inc()
		if ctx.Err() != nil {
			// still pending on the stream, picked up again after restart
			return
		}
		w.log.WithError(err).WithField("batch_size", len(batch)).Error("Storing batch failed, retrying after backoff")
		w.requeue(batch)
		sleep(ctx, w.backoff)
		return
	}

	batchesTotal.WithLabelValues("stored").Inc()
	persistedTotal.Add(float64(inserted))
	w.log.WithFields(logrus.Fields{
		"batch_size": len(batch),
		"inserted":   inserted,
	}).Debug("Batch stored")

	w.ack(ctx, models.EntryIDs(batch))
}

func (w *InserterWorker) insert(ctx context.Context, batch []models.QueueEntry) (inserted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("insert batch panicked: %v", r)
		}
	}()

	start := time.Now()
	inserted, err = w.store.InsertBatch(ctx, models.Persons(batch))
	batchDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return inserted, err
}

// requeue puts a failed batch back into the buffer. Entries that do not fit stay with
// this worker and lead its next batch, so a full buffer can never block it.
func (w *InserterWorker) requeue(batch []models.QueueEntry) {
	requeuedTotal.Add(float64(len(batch)))
	for i, entry := range batch {
		if !w.buffer.TryPush(entry) {
			w.carry = append(w.carry, batch[i:]...)
			return
		}
	}
}

// ack acknowledges stored entries in concurrent chunks. It outlives cancellation for a
// short while so a shutdown right after a successful insert still acks it.
func (w *InserterWorker) ack(ctx context.Context, ids []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(ackConcurrency)
	for start := 0; start < len(ids); start += ackChunkSize {
		chunk := ids[start:min(start+ackChunkSize, len(ids))]
		g.Go(func() error {
			if err := w.acker.Ack(ctx, chunk...); err != nil {
				ackFailuresTotal.Inc()
				w.log.WithError(err).WithField("entries", len(chunk)).Warn("Ack failed, entries stay pending")
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}
