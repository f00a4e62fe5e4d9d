package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/alimgiray/personhub/internal/models"
)

var opDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "personhub_cache_op_duration_ms",
	Help:    "Latency of person cache operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
}, []string{"op"})

const (
	fieldID        = "id"
	fieldNickname  = "nickname"
	fieldName      = "name"
	fieldBirthdate = "birthdate"
	fieldStack     = "stack"
)

// PersonCache keeps reserved nicknames in a Redis set and every accepted person in a
// Redis hash, so a person can be read back before the ingestion job stores it.
type PersonCache struct {
	client      redis.Cmdable
	nicknameKey string
	keyPrefix   string
}

func NewPersonCache(client redis.Cmdable, nicknameKey, keyPrefix string) *PersonCache {
	return &PersonCache{
		client:      client,
		nicknameKey: nicknameKey,
		keyPrefix:   keyPrefix,
	}
}

// TryReserve adds the nickname to the reservation set. It reports false when the
// nickname was already reserved.
func (c *PersonCache) TryReserve(ctx context.Context, nickname string) (bool, error) {
	defer observe("reserve", time.Now())

	added, err := c.client.SAdd(ctx, c.nicknameKey, nickname).Result()
	if err != nil {
		return false, fmt.Errorf("reserve nickname: %w", err)
	}
	return added == 1, nil
}

// Release drops a reservation made by TryReserve
func (c *PersonCache) Release(ctx context.Context, nickname string) error {
	defer observe("release", time.Now())

	if err := c.client.SRem(ctx, c.nicknameKey, nickname).Err(); err != nil {
		return fmt.Errorf("release nickname: %w", err)
	}
	return nil
}

// Put writes the person, replacing whatever was stored under its id
func (c *PersonCache) Put(ctx context.Context, person *models.Person) error {
	defer observe("put", time.Now())

	values := []interface{}{
		fieldID, person.ID.String(),
		fieldNickname, person.Nickname,
		fieldName, person.Name,
		fieldBirthdate, person.Birthdate.String(),
	}
	key := c.key(person.ID)

	if person.Stack == nil {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, fieldStack)
			pipe.HSet(ctx, key, values...)
			return nil
		})
		if err != nil {
			return fmt.Errorf("put person: %w", err)
		}
		return nil
	}

	stack, err := json.Marshal(person.Stack)
	if err != nil {
		return fmt.Errorf("encode stack: %w", err)
	}
	values = append(values, fieldStack, string(stack))

	if err := c.client.HSet(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("put person: %w", err)
	}
	return nil
}

// Get returns the cached person, or nil when the id is unknown
func (c *PersonCache) Get(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	defer observe("get", time.Now())

	fields, err := c.client.HGetAll(ctx, c.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return decodePerson(fields)
}

// Flush removes every reservation and cached person
func (c *PersonCache) Flush(ctx context.Context) error {
	defer observe("flush", time.Now())

	if err := c.client.Del(ctx, c.nicknameKey).Err(); err != nil {
		return fmt.Errorf("flush nicknames: %w", err)
	}

	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("flush people: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan people: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("flush people: %w", err)
		}
	}
	return nil
}

func (c *PersonCache) key(id uuid.UUID) string {
	return c.keyPrefix + id.String()
}

func decodePerson(fields map[string]string) (*models.Person, error) {
	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return nil, fmt.Errorf("decode cached id: %w", err)
	}
	birthdate, err := models.ParseDate(fields[fieldBirthdate])
	if err != nil {
		return nil, fmt.Errorf("decode cached birthdate: %w", err)
	}

	person := &models.Person{
		ID:        id,
		Nickname:  fields[fieldNickname],
		Name:      fields[fieldName],
		Birthdate: birthdate,
	}
	if raw, ok := fields[fieldStack]; ok {
		if err := json.Unmarshal([]byte(raw), &person.Stack); err != nil {
			return nil, fmt.Errorf("decode cached stack: %w", err)
		}
	}
	return person, nil
}

func observe(op string, start time.Time) {
	opDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
