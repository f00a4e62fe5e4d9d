package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/alimgiray/personhub/pkg/config"
	"github.com/alimgiray/personhub/pkg/logger"
)

// Queue is the stream the ingestion job reads from and acks to
type Queue interface {
	EntrySource
	EntryAcker
}

// WorkerManager runs the ingestion job: one poller feeding the buffer and a pool of
// inserters draining it, all stopped by a single cancellation.
type WorkerManager struct {
	workers []Worker
	buffer  *PersonBuffer
	queue   Queue
	store   BatchInserter
	cfg     config.IngestionConfig
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(queue Queue, store BatchInserter, cfg config.IngestionConfig) *WorkerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerManager{
		workers: make([]Worker, 0, cfg.InsertWorkers+1),
		buffer:  NewPersonBuffer(cfg.BufferSize),
		queue:   queue,
		store:   store,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartAll starts the poller and the inserter pool
func (wm *WorkerManager) StartAll() error {
	if wm.cfg.InsertWorkers <= 0 {
		return fmt.Errorf("at least one inserter is required, got %d", wm.cfg.InsertWorkers)
	}

	logger.WithComponent("ingestion").Infof("Starting workers - Poller: 1, Inserter: %d, Buffer: %d",
		wm.cfg.InsertWorkers, wm.cfg.BufferSize)

	poller := NewPollerWorker("poller-1", wm.queue, wm.buffer, PollerOptions{
		Consumer:       wm.cfg.ConsumerName,
		Interval:       wm.cfg.PollInterval,
		Count:          wm.cfg.PollCount,
		ErrorDelay:     wm.cfg.PollErrorDelay,
		ReclaimMinIdle: wm.cfg.ReclaimMinIdle,
	})
	wm.workers = append(wm.workers, poller)
	wm.startWorker(poller)

	for i := 0; i < wm.cfg.InsertWorkers; i++ {
		worker := NewInserterWorker(fmt.Sprintf("inserter-%d", i+1), wm.buffer, wm.store, wm.queue, wm.cfg.RetryBackoff)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	logger.WithComponent("ingestion").Infof("Started %d total workers", len(wm.workers))
	return nil
}

// StopAll gracefully stops all workers
func (wm *WorkerManager) StopAll() error {
	logger.WithComponent("ingestion").Info("Stopping all workers...")

	wm.cancel()

	for _, worker := range wm.workers {
		if err := worker.Stop(); err != nil {
			logger.WithComponent("ingestion").WithError(err).Errorf("Error stopping worker %s", worker.GetWorkerID())
		}
	}

	wm.wg.Wait()

	logger.WithComponent("ingestion").WithField("dropped_from_buffer", wm.buffer.Len()).Info("All workers stopped")
	return nil
}

func (wm *WorkerManager) startWorker(worker Worker) {
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		if err := worker.Start(wm.ctx); err != nil {
			logger.WithComponent("ingestion").WithError(err).Errorf("Worker %s stopped with error", worker.GetWorkerID())
		}
	}()
}

// GetWorkerStatus returns whether each worker is running, keyed by worker id
func (wm *WorkerManager) GetWorkerStatus() map[string]bool {
	status := make(map[string]bool, len(wm.workers))
	for _, worker := range wm.workers {
		status[worker.GetWorkerID()] = worker.IsRunning()
	}
	return status
}

// BufferStats returns how many entries are buffered and the buffer capacity
func (wm *WorkerManager) BufferStats() (length, capacity int) {
	return wm.buffer.Len(), wm.buffer.Cap()
}
