package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alimgiray/personhub/internal/models"
	"github.com/alimgiray/personhub/pkg/logger"
)

const payloadField = "person"

// PersonQueue is a Redis stream with a single consumer group. Entries stay pending
// for the consumer that read them until they are acked.
type PersonQueue struct {
	client redis.Cmdable
	stream string
	group  string
}

func NewPersonQueue(client redis.Cmdable, stream string) *PersonQueue {
	return &PersonQueue{
		client: client,
		stream: stream,
		group:  GroupName(stream),
	}
}

// GroupName derives the consumer group name from the stream key
func GroupName(stream string) string {
	return stream + "-consumers"
}

func (q *PersonQueue) Stream() string { return q.stream }
func (q *PersonQueue) Group() string  { return q.group }

// EnsureGroup creates the stream and its consumer group when they do not exist yet.
// A new group starts from the beginning of the stream, so entries appended before
// any consumer existed are still delivered.
func (q *PersonQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Append adds the person to the stream and returns the entry id
func (q *PersonQueue) Append(ctx context.Context, person *models.Person) (string, error) {
	payload, err := json.Marshal(person)
	if err != nil {
		return "", fmt.Errorf("encode person: %w", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append person: %w", err)
	}
	return id, nil
}

// Poll claims up to maxCount entries never delivered to any consumer of the group.
// It does not block and returns an empty slice when nothing is available.
func (q *PersonQueue) Poll(ctx context.Context, consumer string, maxCount int) ([]models.QueueEntry, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(maxCount),
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", q.stream, err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return q.decode(ctx, messages), nil
}

// Ack removes the ids from the group's pending list. Unknown or already acked ids are ignored.
func (q *PersonQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.stream, q.group, ids...).Err(); err != nil {
		return fmt.Errorf("ack %d entries: %w", len(ids), err)
	}
	return nil
}

// Reclaim moves entries that have been pending for at least minIdle to consumer and
// returns them, walking the whole pending list a page of count entries at a time.
func (q *PersonQueue) Reclaim(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]models.QueueEntry, error) {
	var (
		claimed []models.QueueEntry
		start   = "0-0"
	)
	for {
		messages, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    int64(count),
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("reclaim pending entries: %w", err)
		}

		claimed = append(claimed, q.decode(ctx, messages)...)
		if next == "" || next == "0-0" {
			return claimed, nil
		}
		start = next
	}
}

// Pending returns how many entries were delivered to consumers but not acked yet
func (q *PersonQueue) Pending(ctx context.Context) (int64, error) {
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, fmt.Errorf("pending %s: %w", q.stream, err)
	}
	return pending.Count, nil
}

// decode turns stream messages into entries. Messages without a readable person are
// acked and dropped so they do not stay pending forever.
func (q *PersonQueue) decode(ctx context.Context, messages []redis.XMessage) []models.QueueEntry {
	entries := make([]models.QueueEntry, 0, len(messages))
	var malformed []string

	for _, msg := range messages {
		person, err := decodePerson(msg.Values[payloadField])
		if err != nil {
			logger.WithComponent("queue").WithError(err).WithField("entry_id", msg.ID).Warn("Dropping malformed stream entry")
			malformed = append(malformed, msg.ID)
			continue
		}
		entries = append(entries, models.QueueEntry{EntryID: msg.ID, Person: person})
	}

	if err := q.Ack(ctx, malformed...); err != nil {
		logger.WithComponent("queue").WithError(err).Warn("Failed to ack malformed stream entries")
	}
	return entries
}

func decodePerson(raw interface{}) (*models.Person, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case nil:
		return nil, errors.New("missing person field")
	default:
		return nil, fmt.Errorf("unexpected person field type %T", raw)
	}

	var person models.Person
	if err := json.Unmarshal(data, &person); err != nil {
		return nil, fmt.Errorf("decode person: %w", err)
	}
	if person.Nickname == "" {
		return nil, errors.New("person without nickname")
	}
	return &person, nil
}
