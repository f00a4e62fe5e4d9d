package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alimgiray/personhub/internal/models"
)

// memoryStore mimics the nickname constraint of the real store
type memoryStore struct {
	mu        sync.Mutex
	failures  int
	panics    int
	calls     int
	nicknames map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nicknames: make(map[string]struct{})}
}

func (s *memoryStore) InsertBatch(ctx context.Context, persons []*models.Person) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.panics > 0 {
		s.panics--
		panic("driver bug")
	}
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("store unavailable")
	}

	var inserted int64
	for _, p := range persons {
		if _, ok := s.nicknames[p.Nickname]; ok {
			continue
		}
		s.nicknames[p.Nickname] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (s *memoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nicknames)
}

func (s *memoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingAcker struct {
	mu       sync.Mutex
	acks     map[string]int
	failures int
}

func newRecordingAcker() *recordingAcker {
	return &recordingAcker{acks: make(map[string]int)}
}

func (a *recordingAcker) Ack(ctx context.Context, ids ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errors.New("redis unavailable")
	}
	for _, id := range ids {
		a.acks[id]++
	}
	return nil
}

func (a *recordingAcker) Snapshot() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.acks))
	for k, v := range a.acks {
		out[k] = v
	}
	return out
}

// scriptedSource returns the queued errors first, then the pages in order
type scriptedSource struct {
	mu         sync.Mutex
	errs       []error
	pages      [][]models.QueueEntry
	reclaimed  []models.QueueEntry
	reclaimErr error
	polls      int
}

func (s *scriptedSource) Poll(ctx context.Context, consumer string, maxCount int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *scriptedSource) Reclaim(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reclaimed, s.reclaimErr
}

func (s *scriptedSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func testEntries(t *testing.T, prefix string, n int) []models.QueueEntry {
	t.Helper()
	entries := make([]models.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		p, err := models.NewPerson(fmt.Sprintf("%s-%d", prefix, i), "Person", models.NewDate(1995, time.July, 9), nil)
		require.NoError(t, err)
		entries = append(entries, models.QueueEntry{EntryID: fmt.Sprintf("%s-%d-0", prefix, i), Person: p})
	}
	return entries
}

func drainAll(b *PersonBuffer) []models.QueueEntry {
	return b.Drain(nil)
}
