package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/alimgiray/personhub/internal/models"
)

const (
	sqliteInsertPerson = `
		INSERT INTO persons (id, nickname, name, birthdate, stack, search_text)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (nickname) DO NOTHING`

	sqliteSelectPerson = `
		SELECT id, nickname, name, birthdate, stack
		FROM persons WHERE id = ?`

	sqliteSearchPersons = `
		SELECT id, nickname, name, birthdate, stack
		FROM persons
		WHERE search_text LIKE '%' || ? || '%'
		LIMIT ?`
)

// SQLitePersonRepository stores people in SQLite for local runs without Postgres.
// The stack is kept as a JSON array and the birthdate as YYYY-MM-DD text.
type SQLitePersonRepository struct {
	db *sql.DB
}

func NewSQLitePersonRepository(db *sql.DB) *SQLitePersonRepository {
	return &SQLitePersonRepository{db: db}
}

func (r *SQLitePersonRepository) InsertOne(ctx context.Context, person *models.Person) (bool, error) {
	args, err := sqliteArgs(person)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, sqliteInsertPerson, args...)
	if err != nil {
		return false, fmt.Errorf("insert person: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// InsertBatch writes all people in one transaction
func (r *SQLitePersonRepository) InsertBatch(ctx context.Context, persons []*models.Person) (int64, error) {
	if len(persons) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertPerson)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, p := range persons {
		args, err := sqliteArgs(p)
		if err != nil {
			return 0, err
		}
		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("insert batch of %d: %w", len(persons), err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

func (r *SQLitePersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	person, err := scanSQLitePerson(r.db.QueryRowContext(ctx, sqliteSelectPerson, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	return person, nil
}

func (r *SQLitePersonRepository) Search(ctx context.Context, term string, limit int) iter.Seq2[*models.Person, error] {
	return func(yield func(*models.Person, error) bool) {
		rows, err := r.db.QueryContext(ctx, sqliteSearchPersons, term, searchLimit(limit))
		if err != nil {
			yield(nil, fmt.Errorf("search people: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			person, err := scanSQLitePerson(rows)
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

func (r *SQLitePersonRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM persons`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

func (r *SQLitePersonRepository) Truncate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM persons`); err != nil {
		return fmt.Errorf("truncate people: %w", err)
	}
	return nil
}

func (r *SQLitePersonRepository) Version(ctx context.Context) (string, error) {
	var version string
	if err := r.db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&version); err != nil {
		return "", fmt.Errorf("database version: %w", err)
	}
	return "SQLite " + version, nil
}

func sqliteArgs(p *models.Person) ([]any, error) {
	var stack sql.NullString
	if p.Stack != nil {
		encoded, err := json.Marshal(p.Stack)
		if err != nil {
			return nil, fmt.Errorf("encode stack: %w", err)
		}
		stack = sql.NullString{String: string(encoded), Valid: true}
	}
	return []any{p.ID.String(), p.Nickname, p.Name, p.Birthdate.String(), stack, p.SearchText()}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePerson(row rowScanner) (*models.Person, error) {
	var (
		person    models.Person
		id        string
		birthdate string
		stack     sql.NullString
	)
	if err := row.Scan(&id, &person.Nickname, &person.Name, &birthdate, &stack); err != nil {
		return nil, err
	}

	var err error
	if person.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}
	if person.Birthdate, err = models.ParseDate(birthdate); err != nil {
		return nil, fmt.Errorf("decode birthdate: %w", err)
	}
	if stack.Valid {
		if err := json.Unmarshal([]byte(stack.String), &person.Stack); err != nil {
			return nil, fmt.Errorf("decode stack: %w", err)
		}
	}
	return &person, nil
}
