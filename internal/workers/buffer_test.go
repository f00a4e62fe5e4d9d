package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferTryPushRespectsCapacity(t *testing.T) {
	b := NewPersonBuffer(2)
	entries := testEntries(t, "cap", 3)

	assert.True(t, b.TryPush(entries[0]))
	assert.True(t, b.TryPush(entries[1]))
	assert.False(t, b.TryPush(entries[2]))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, b.Cap())
}

func TestBufferDrainIsGreedyAndNonBlocking(t *testing.T) {
	b := NewPersonBuffer(10)
	for _, e := range testEntries(t, "drain", 4) {
		require.True(t, b.TryPush(e))
	}

	batch := b.Drain(nil)
	assert.Len(t, batch, 4)
	assert.Equal(t, 0, b.Len())

	assert.Empty(t, b.Drain(nil))
}

func TestBufferWaitForRoom(t *testing.T) {
	b := NewPersonBuffer(1)
	entries := testEntries(t, "room", 1)
	require.True(t, b.TryPush(entries[0]))

	done := make(chan error, 1)
	go func() {
		done <- b.WaitForRoom(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("WaitForRoom returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := b.Receive(context.Background())
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForRoom did not wake up after a receive")
	}
}

func TestBufferWaitForRoomCancelled(t *testing.T) {
	b := NewPersonBuffer(1)
	require.True(t, b.TryPush(testEntries(t, "cancel", 1)[0]))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, b.WaitForRoom(ctx), context.DeadlineExceeded)
}

func TestBufferPushAndReceiveHonourContext(t *testing.T) {
	b := NewPersonBuffer(1)
	entries := testEntries(t, "ctx", 2)
	require.NoError(t, b.Push(context.Background(), entries[0]))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Push(ctx, entries[1]), context.Canceled)

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entries[0].EntryID, got.EntryID)

	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
