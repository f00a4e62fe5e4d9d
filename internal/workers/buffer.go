package workers

import (
	"context"

	"github.com/alimgiray/personhub/internal/models"
)

// PersonBuffer is the bounded channel between the poller and the inserters.
// space carries a wake-up for a poller waiting for room; it never holds more than one.
type PersonBuffer struct {
	entries chan models.QueueEntry
	space   chan struct{}
}

func NewPersonBuffer(capacity int) *PersonBuffer {
	return &PersonBuffer{
		entries: make(chan models.QueueEntry, capacity),
		space:   make(chan struct{}, 1),
	}
}

func (b *PersonBuffer) Len() int { return len(b.entries) }
func (b *PersonBuffer) Cap() int { return cap(b.entries) }

// WaitForRoom blocks until at least one more entry fits
func (b *PersonBuffer) WaitForRoom(ctx context.Context) error {
	for len(b.entries) >= cap(b.entries) {
		select {
		case <-b.space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Push blocks until the entry is buffered or ctx ends
func (b *PersonBuffer) Push(ctx context.Context, entry models.QueueEntry) error {
	select {
	case b.entries <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush buffers the entry only if there is room right now
func (b *PersonBuffer) TryPush(entry models.QueueEntry) bool {
	select {
	case b.entries <- entry:
		return true
	default:
		return false
	}
}

// Receive blocks until an entry is available or ctx ends
func (b *PersonBuffer) Receive(ctx context.Context) (models.QueueEntry, error) {
	select {
	case entry := <-b.entries:
		b.signalSpace()
		return entry, nil
	case <-ctx.Done():
		return models.QueueEntry{}, ctx.Err()
	}
}

// Drain appends every entry buffered right now to batch without blocking
func (b *PersonBuffer) Drain(batch []models.QueueEntry) []models.QueueEntry {
	for {
		select {
		case entry := <-b.entries:
			batch = append(batch, entry)
		default:
			b.signalSpace()
			return batch
		}
	}
}

func (b *PersonBuffer) signalSpace() {
	select {
	case b.space <- struct{}{}:
	default:
	}
}
