package repositories

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"github.com/alimgiray/personhub/internal/models"
)

// DefaultSearchLimit caps search results when the caller does not pass a limit
const DefaultSearchLimit = 50

var ErrPersonNotFound = errors.New("person not found")

// PersonRepository is the durable store of people. Nicknames are unique; inserting a
// taken nickname is not an error, the row is just not written.
type PersonRepository interface {
	InsertOne(ctx context.Context, person *models.Person) (bool, error)
	InsertBatch(ctx context.Context, persons []*models.Person) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error)
	Search(ctx context.Context, term string, limit int) iter.Seq2[*models.Person, error]
	Count(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}
