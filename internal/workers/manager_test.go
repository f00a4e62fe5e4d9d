package workers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimgiray/personhub/internal/models"
	"github.com/alimgiray/personhub/internal/queue"
	"github.com/alimgiray/personhub/pkg/config"
)

func newTestQueue(t *testing.T) *queue.PersonQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.NewPersonQueue(client, "people:new")
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q
}

func appendPeople(t *testing.T, q *queue.PersonQueue, prefix string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, err := models.NewPerson(fmt.Sprintf("%s-%d", prefix, i), "Person", models.NewDate(2001, time.February, 3), []string{"Go"})
		require.NoError(t, err)
		_, err = q.Append(context.Background(), p)
		require.NoError(t, err)
	}
}

func testIngestionConfig() config.IngestionConfig {
	return config.IngestionConfig{
		BufferSize:     2,
		InsertWorkers:  3,
		PollInterval:   5 * time.Millisecond,
		PollCount:      10,
		PollErrorDelay: 5 * time.Millisecond,
		RetryBackoff:   5 * time.Millisecond,
		ReclaimMinIdle: time.Minute,
		ConsumerName:   "test-consumer",
	}
}

func TestPipelineBackpressureLosesNothing(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()
	appendPeople(t, q, "bp", 57)

	// poll pages are larger than the buffer
	wm := NewWorkerManager(q, store, testIngestionConfig())
	require.NoError(t, wm.StartAll())
	defer wm.StopAll()

	assert.Eventually(t, func() bool { return store.Count() == 57 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		pending, err := q.Pending(context.Background())
		return err == nil && pending == 0
	}, 2*time.Second, 10*time.Millisecond)

	length, capacity := wm.BufferStats()
	assert.Equal(t, 0, length)
	assert.Equal(t, 2, capacity)
}

func TestPipelineStoreOutageIsRetried(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()
	store.failures = 5
	appendPeople(t, q, "outage", 20)

	wm := NewWorkerManager(q, store, testIngestionConfig())
	require.NoError(t, wm.StartAll())
	defer wm.StopAll()

	assert.Eventually(t, func() bool { return store.Count() == 20 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		pending, err := q.Pending(context.Background())
		return err == nil && pending == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineKeepsConsumingNewEntries(t *testing.T) {
	q := newTestQueue(t)
	store := newMemoryStore()

	wm := NewWorkerManager(q, store, testIngestionConfig())
	require.NoError(t, wm.StartAll())
	defer wm.StopAll()

	appendPeople(t, q, "late", 5)
	assert.Eventually(t, func() bool { return store.Count() == 5 }, 5*time.Second, 10*time.Millisecond)
}

func TestManagerStatusAndStop(t *testing.T) {
	q := newTestQueue(t)
	wm := NewWorkerManager(q, newMemoryStore(), testIngestionConfig())
	require.NoError(t, wm.StartAll())

	assert.Eventually(t, func() bool {
		status := wm.GetWorkerStatus()
		for _, running := range status {
			if !running {
				return false
			}
		}
		return len(status) == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, wm.StopAll())

	for id, running := range wm.GetWorkerStatus() {
		assert.False(t, running, "worker %s still running", id)
	}
}

func TestManagerRequiresInserters(t *testing.T) {
	cfg := testIngestionConfig()
	cfg.InsertWorkers = 0

	wm := NewWorkerManager(newTestQueue(t), newMemoryStore(), cfg)
	assert.Error(t, wm.StartAll())
}
