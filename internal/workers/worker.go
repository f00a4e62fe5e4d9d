package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alimgiray/personhub/pkg/logger"
)

// Role identifies what a worker does in the ingestion job
type Role string

const (
	RolePoller   Role = "poller"
	RoleInserter Role = "inserter"
)

// Worker interface defines the contract for all workers
type Worker interface {
	// Start runs the worker until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the worker
	Stop() error

	// GetRole returns the role this worker plays
	GetRole() Role

	// GetWorkerID returns the unique identifier for this worker
	GetWorkerID() string

	// IsRunning reports whether Start is executing
	IsRunning() bool
}

// BaseWorker provides common functionality for all workers
type BaseWorker struct {
	WorkerID string
	Role     Role
	StopChan chan struct{}

	running  atomic.Bool
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(workerID string, role Role) *BaseWorker {
	return &BaseWorker{
		WorkerID: workerID,
		Role:     role,
		StopChan: make(chan struct{}),
		log: logger.WithFields(logrus.Fields{
			"component": "ingestion",
			"worker_id": workerID,
			"role":      string(role),
		}),
	}
}

func (w *BaseWorker) GetRole() Role {
	return w.Role
}

func (w *BaseWorker) GetWorkerID() string {
	return w.WorkerID
}

// Stop gracefully stops the worker. Calling it more than once is safe.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.StopChan) })
	return nil
}

func (w *BaseWorker) IsRunning() bool {
	return w.running.Load()
}

// run marks the worker as running and returns a context that is also cancelled by Stop.
// The returned function must be called when the worker exits.
func (w *BaseWorker) run(ctx context.Context) (context.Context, func()) {
	w.running.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.StopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		cancel()
		w.running.Store(false)
	}
}

// sleep waits for d and reports false when ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
