package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alimgiray/personhub/internal/models"
)

// DBTX is the subset of *pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	pgInsertPerson = `
		INSERT INTO persons (id, nickname, name, birthdate, stack, search_text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (nickname) DO NOTHING`

	pgSelectPerson = `
		SELECT id, nickname, name, birthdate, stack
		FROM persons WHERE id = $1`

	pgSearchPersons = `
		SELECT id, nickname, name, birthdate, stack
		FROM persons
		WHERE search_text LIKE '%' || $1 || '%'
		LIMIT $2`

	pgCountPersons = `SELECT COUNT(1) FROM persons`

	pgTruncatePersons = `TRUNCATE TABLE persons`

	pgVersion = `SELECT version()`
)

type PostgresPersonRepository struct {
	db DBTX
}

func NewPostgresPersonRepository(db DBTX) *PostgresPersonRepository {
	return &PostgresPersonRepository{db: db}
}

// InsertOne inserts the person and reports whether a row was written
func (r *PostgresPersonRepository) InsertOne(ctx context.Context, person *models.Person) (bool, error) {
	tag, err := r.db.Exec(ctx, pgInsertPerson, insertArgs(person)...)
	if err != nil {
		return false, fmt.Errorf("insert person: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch sends every insert in one round trip. The statements run in a single
// implicit transaction: either all non-conflicting rows commit or none do.
func (r *PostgresPersonRepository) InsertBatch(ctx context.Context, persons []*models.Person) (int64, error) {
	if len(persons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range persons {
		batch.Queue(pgInsertPerson, insertArgs(p)...)
	}

	results := r.db.SendBatch(ctx, batch)

	var inserted int64
	for range persons {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("insert batch of %d: %w", len(persons), err)
		}
		inserted += tag.RowsAffected()
	}

	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("insert batch of %d: %w", len(persons), err)
	}
	return inserted, nil
}

// GetByID returns ErrPersonNotFound when no row has the id
func (r *PostgresPersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	person, err := scanPerson(r.db.QueryRow(ctx, pgSelectPerson, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	return person, nil
}

// Search yields people whose search text contains term, in storage order.
// Rows are read lazily; stopping the iteration releases the connection.
func (r *PostgresPersonRepository) Search(ctx context.Context, term string, limit int) iter.Seq2[*models.Person, error] {
	return func(yield func(*models.Person, error) bool) {
		rows, err := r.db.Query(ctx, pgSearchPersons, term, searchLimit(limit))
		if err != nil {
			yield(nil, fmt.Errorf("search people: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			person, err := scanPerson(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(person, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("search people: %w", err))
		}
	}
}

func (r *PostgresPersonRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, pgCountPersons).Scan(&count); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

func (r *PostgresPersonRepository) Truncate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, pgTruncatePersons); err != nil {
		return fmt.Errorf("truncate people: %w", err)
	}
	return nil
}

func (r *PostgresPersonRepository) Version(ctx context.Context) (string, error) {
	var version string
	if err := r.db.QueryRow(ctx, pgVersion).Scan(&version); err != nil {
		return "", fmt.Errorf("database version: %w", err)
	}
	return version, nil
}

func insertArgs(p *models.Person) []any {
	return []any{p.ID, p.Nickname, p.Name, p.Birthdate.Time, p.Stack, p.SearchText()}
}

func scanPerson(row pgx.Row) (*models.Person, error) {
	var (
		person    models.Person
		birthdate time.Time
	)
	if err := row.Scan(&person.ID, &person.Nickname, &person.Name, &birthdate, &person.Stack); err != nil {
		return nil, err
	}
	person.Birthdate = models.DateOf(birthdate)
	return &person, nil
}
