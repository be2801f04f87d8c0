package tasks

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/postgres_001_create_tasks.up.sql
var createTasksUp string

const taskColumns = `id, owner, title, description, created_at`

// byteCollation orders text by byte value, as the sqlite and memory stores do.
const byteCollation = `"C"`

type PostgresStore struct {
	log  *slog.Logger
	conn *sqlx.DB
}

// NewPostgresStore connects to dsn, retrying with exponential backoff up to attempts times.
func NewPostgresStore(ctx context.Context, log *slog.Logger, dsn string, attempts uint) (*PostgresStore, error) {
	if attempts == 0 {
		attempts = 1
	}

	notify := func(err error, next time.Duration) {
		log.Warn("postgres connect failed, retrying", "error", err, "retry_in", next)
	}

	conn, err := backoff.Retry(ctx, func() (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "pgx", dsn)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{log: log, conn: conn}, nil
}

func (db *PostgresStore) Close() error { return db.conn.Close() }

func (db *PostgresStore) Ping(ctx context.Context) error { return db.conn.PingContext(ctx) }

func (db *PostgresStore) ApplyMigrations(ctx context.Context) error {
	db.log.Debug("running tasks migrations")
	if _, err := db.conn.ExecContext(ctx, createTasksUp); err != nil {
		return fmt.Errorf("apply tasks migration: %w", err)
	}
	return nil
}

func (db *PostgresStore) GetByID(ctx context.Context, id int64) (Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var t Task
	if err := db.conn.GetContext(ctx, &t, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return normalize(t), nil
}

func (db *PostgresStore) GetByOwner(ctx context.Context, owner string, q ListQuery) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner = $1`
	args := []any{owner}
	if q.Search != "" {
		query += ` AND (title ILIKE $2 ESCAPE '\' OR description ILIKE $2 ESCAPE '\')`
		args = append(args, likePattern(q.Search))
	}
	query += " " + q.ordering().orderBy(byteCollation)

	out := make([]Task, 0)
	if err := db.conn.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for i := range out {
		out[i] = normalize(out[i])
	}
	return out, nil
}

func (db *PostgresStore) Create(ctx context.Context, owner, title, description string) (Task, error) {
	const q = `
		INSERT INTO tasks (owner, title, description)
		VALUES ($1, $2, $3)
		RETURNING ` + taskColumns

	var t Task
	if err := db.conn.GetContext(ctx, &t, q, owner, title, description); err != nil {
		if isCheckViolation(err) {
			return Task{}, ErrInvalidInput
		}
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return normalize(t), nil
}

func (db *PostgresStore) Update(ctx context.Context, t Task, p TaskPatch) (Task, error) {
	const q = `
		UPDATE tasks
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description)
		WHERE id = $1
		RETURNING ` + taskColumns

	var out Task
	if err := db.conn.GetContext(ctx, &out, q, t.ID, optional(p.Title), optional(p.Description)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		if isCheckViolation(err) {
			return Task{}, ErrInvalidInput
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return normalize(out), nil
}

func (db *PostgresStore) Delete(ctx context.Context, t Task) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresStore) Exists(ctx context.Context, id int64, owner string) (bool, error) {
	var ok bool
	if err := db.conn.GetContext(ctx, &ok,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND owner = $2)`, id, owner); err != nil {
		return false, fmt.Errorf("task exists: %w", err)
	}
	return ok, nil
}

func normalize(t Task) Task {
	t.CreatedAt = t.CreatedAt.UTC()
	return t
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
