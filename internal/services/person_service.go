package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alimgiray/personhub/internal/models"
	"github.com/alimgiray/personhub/internal/repositories"
	"github.com/alimgiray/personhub/pkg/logger"
)

var (
	ErrDuplicateNickname = errors.New("nickname already taken")
	ErrPersonNotFound    = errors.New("person not found")
)

// PersonCache is the nickname reservation set plus the read-through copy of accepted people
type PersonCache interface {
	TryReserve(ctx context.Context, nickname string) (bool, error)
	Release(ctx context.Context, nickname string) error
	Put(ctx context.Context, person *models.Person) error
	Get(ctx context.Context, id uuid.UUID) (*models.Person, error)
	Flush(ctx context.Context) error
}

// PersonQueue receives accepted people for the ingestion job
type PersonQueue interface {
	Append(ctx context.Context, person *models.Person) (string, error)
	Pending(ctx context.Context) (int64, error)
}

// PersonStore is the read side of the durable store
type PersonStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error)
	Search(ctx context.Context, term string, limit int) iter.Seq2[*models.Person, error]
	Count(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// Status is a snapshot of the instance and its pipeline
type Status struct {
	Hostname       string          `json:"hostname"`
	Database       string          `json:"database"`
	QueuePending   int64           `json:"queue_pending"`
	BufferLength   int             `json:"buffer_length"`
	BufferCapacity int             `json:"buffer_capacity"`
	Workers        map[string]bool `json:"workers"`
}

// IngestionStats reports the state of the ingestion job running in this process
type IngestionStats interface {
	BufferStats() (length, capacity int)
	GetWorkerStatus() map[string]bool
}

// PersonService accepts registrations and serves reads. Accepted people are queued
// for the ingestion job and are visible through the cache right away.
type PersonService struct {
	cache     PersonCache
	queue     PersonQueue
	store     PersonStore
	ingestion IngestionStats
}

// NewPersonService creates a new person service. ingestion may be nil when no
// ingestion job runs in this process.
func NewPersonService(cache PersonCache, queue PersonQueue, store PersonStore, ingestion IngestionStats) *PersonService {
	return &PersonService{
		cache:     cache,
		queue:     queue,
		store:     store,
		ingestion: ingestion,
	}
}

// Create validates the request, reserves the nickname and hands the person to the
// queue and the cache. It returns a *models.ValidationError or ErrDuplicateNickname
// for rejected requests.
//
// Once the person is queued it will be stored, so the nickname stays reserved and a
// failed cache write is only logged: reads fall back to the store.
func (s *PersonService) Create(ctx context.Context, req *models.NewPersonRequest) (*models.Person, error) {
	person, err := req.ToPerson()
	if err != nil {
		return nil, err
	}

	reserved, err := s.cache.TryReserve(ctx, person.Nickname)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve nickname: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicateNickname
	}

	// the writes are independent, one failing must not cancel the other
	var (
		g                 errgroup.Group
		appendErr, putErr error
	)
	g.Go(func() error {
		_, appendErr = s.queue.Append(ctx, person)
		return appendErr
	})
	g.Go(func() error {
		putErr = s.cache.Put(ctx, person)
		return putErr
	})
	_ = g.Wait()

	log := logger.WithComponent("person_service").WithField("nickname", person.Nickname)

	if appendErr != nil {
		if releaseErr := s.cache.Release(context.WithoutCancel(ctx), person.Nickname); releaseErr != nil {
			log.WithError(releaseErr).Warn("Failed to release nickname")
		}
		return nil, fmt.Errorf("failed to queue person: %w", appendErr)
	}
	if putErr != nil {
		log.WithError(putErr).WithField("id", person.ID.String()).Warn("Person queued but not cached")
	}

	return person, nil
}

// Get returns the person from the cache, falling back to the store
func (s *PersonService) Get(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	person, err := s.cache.Get(ctx, id)
	if err != nil {
		logger.WithComponent("person_service").WithError(err).Warn("Cache read failed, falling back to store")
	}
	if person != nil {
		return person, nil
	}

	person, err = s.store.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrPersonNotFound) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}
	return person, nil
}

// Search returns up to limit stored people whose nickname, name or stack contains term
func (s *PersonService) Search(ctx context.Context, term string, limit int) ([]*models.Person, error) {
	people := make([]*models.Person, 0)
	for person, err := range s.store.Search(ctx, term, limit) {
		if err != nil {
			return nil, err
		}
		people = append(people, person)
	}
	return people, nil
}

// Count returns how many people are stored. It lags behind accepted registrations.
func (s *PersonService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Reset removes every stored and cached person
func (s *PersonService) Reset(ctx context.Context) error {
	if err := s.store.Truncate(ctx); err != nil {
		return err
	}
	if err := s.cache.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	logger.WithComponent("person_service").Info("People reset")
	return nil
}

func (s *PersonService) Status(ctx context.Context) (*Status, error) {
	hostname, _ := os.Hostname()

	version, err := s.store.Version(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Hostname:     hostname,
		Database:     version,
		QueuePending: pending,
		Workers:      map[string]bool{},
	}
	if s.ingestion != nil {
		status.BufferLength, status.BufferCapacity = s.ingestion.BufferStats()
		status.Workers = s.ingestion.GetWorkerStatus()
	}
	return status, nil
}
