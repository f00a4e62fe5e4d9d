package queue

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
)

func newTestQueue(t *testing.T) (*PersonQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := NewPersonQueue(client, "people:new")
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q, mr
}

func appendPeople(t *testing.T, q *PersonQueue, n int) []*models.Person {
	t.Helper()
	people := make([]*models.Person, 0, n)
	for i := 0; i < n; i++ {
		p, err := models.NewPerson(fmt.Sprintf("nick-%d", i), "Person", models.NewDate(1990, time.May, 1), []string{"Go"})
		require.NoError(t, err)
		_, err = q.Append(context.Background(), p)
		require.NoError(t, err)
		people = append(people, p)
	}
	return people
}

func TestGroupName(t *testing.T) {
	q := NewPersonQueue(nil, "people:new")
	assert.Equal(t, "people:new-consumers", q.Group())
	assert.Equal(t, "people:new", q.Stream())
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.NoError(t, q.EnsureGroup(context.Background()))
}

func TestAppendPollAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	people := appendPeople(t, q, 3)

	entries, err := q.Poll(ctx, "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.NotEmpty(t, e.EntryID)
		assert.Equal(t, people[i], e.Person)
	}

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	// already delivered entries are not handed out again
	again, err := q.Poll(ctx, "consumer-2", 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Ack(ctx, models.EntryIDs(entries)...))
	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestPollRespectsMaxCount(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	appendPeople(t, q, 5)

	first, err := q.Poll(ctx, "c", 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := q.Poll(ctx, "c", 10)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestPollEmpty(t *testing.T) {
	q, _ := newTestQueue(t)

	entries, err := q.Poll(context.Background(), "c", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAckIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	appendPeople(t, q, 1)

	entries, err := q.Poll(ctx, "c", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	id := entries[0].EntryID

	assert.NoError(t, q.Ack(ctx, id))
	assert.NoError(t, q.Ack(ctx, id))
	assert.NoError(t, q.Ack(ctx, "0-1"))
	assert.NoError(t, q.Ack(ctx))

	redelivered, err := q.Poll(ctx, "c", 10)
	require.NoError(t, err)
	assert.Empty(t, redelivered)

	reclaimed, err := q.Reclaim(ctx, "c", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}

func TestMalformedEntriesAreAckedAndSkipped(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.XAdd("people:new", "*", []string{"person", "{not json"})
	require.NoError(t, err)
	_, err = mr.XAdd("people:new", "*", []string{"other", "value"})
	require.NoError(t, err)
	people := appendPeople(t, q, 1)

	entries, err := q.Poll(ctx, "c", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, people[0].Nickname, entries[0].Person.Nickname)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestReclaim(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()
	mr.SetTime(now)

	people := appendPeople(t, q, 5)
	entries, err := q.Poll(ctx, "crashed-consumer", 10)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// not idle long enough yet
	reclaimed, err := q.Reclaim(ctx, "fresh-consumer", time.Minute, 2)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)

	mr.SetTime(now.Add(2 * time.Minute))
	reclaimed, err = q.Reclaim(ctx, "fresh-consumer", time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, reclaimed, 5)
	for i, e := range reclaimed {
		assert.Equal(t, people[i].ID, e.Person.ID)
	}

	require.NoError(t, q.Ack(ctx, models.EntryIDs(reclaimed)...))
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestPollErrorWhenGroupMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewPersonQueue(client, "people:new")
	_, err := q.Poll(context.Background(), "c", 10)
	assert.Error(t, err)
}
