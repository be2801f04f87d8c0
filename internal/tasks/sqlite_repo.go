package tasks

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

func init() {
	// casefold(x) applies Unicode case folding, matching MemoryStore search.
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return cases.Fold().String(v), nil
		case []byte:
			return cases.Fold().String(string(v)), nil
		default:
			return nil, fmt.Errorf("casefold: unsupported argument type %T", v)
		}
	})
}

// Fixed-width UTC layout so that created_at sorts correctly as TEXT.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable pragmas for an app server
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (r *SQLiteStore) Close() error { return r.db.Close() }

func (r *SQLiteStore) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *SQLiteStore) GetByID(ctx context.Context, id int64) (Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, title, description, created_at
		FROM tasks
		WHERE id = ?
	`, id)

	t, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *SQLiteStore) GetByOwner(ctx context.Context, owner string, q ListQuery) ([]Task, error) {
	query := `SELECT id, owner, title, description, created_at FROM tasks WHERE owner = ?`
	args := []any{owner}
	if q.Search != "" {
		// LIKE only ignores ASCII case, so compare folded text instead
		query += ` AND (instr(casefold(title), ?) > 0 OR instr(casefold(description), ?) > 0)`
		needle := cases.Fold().String(q.Search)
		args = append(args, needle, needle)
	}
	query += " " + q.ordering().orderBy("")

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteStore) Create(ctx context.Context, owner, title, description string) (Task, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (owner, title, description, created_at)
		VALUES (?, ?, ?, ?)
	`, owner, title, description, now.Format(sqliteTimeLayout))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return Task{
		ID:          id,
		Owner:       owner,
		Title:       title,
		Description: description,
		CreatedAt:   now,
	}, nil
}

func (r *SQLiteStore) Update(ctx context.Context, t Task, p TaskPatch) (Task, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = COALESCE(?, title),
		    description = COALESCE(?, description)
		WHERE id = ?
		RETURNING id, owner, title, description, created_at
	`, optional(p.Title), optional(p.Description), t.ID)

	out, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return out, nil
}

func (r *SQLiteStore) Delete(ctx context.Context, t Task) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteStore) Exists(ctx context.Context, id int64, owner string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = ? AND owner = ?)`, id, owner,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("task exists: %w", err)
	}
	return ok, nil
}

// ApplyMigrations ensures schema exists
func (r *SQLiteStore) ApplyMigrations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks (owner, created_at DESC);
	`)
	return err
}

// optional maps an absent patch field to SQL NULL.
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(s rowScanner) (Task, error) {
	var t Task
	var created string
	if err := s.Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &created); err != nil {
		return Task{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Task{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	t.CreatedAt = ts.UTC()
	return t, nil
}

// Helper to build DSN like: file:/absolute/path?_pragma=busy_timeout(5000)
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}
