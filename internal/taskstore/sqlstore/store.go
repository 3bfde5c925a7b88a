// Package sqlstore persists tasks in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/taskstore"
	"github.com/tjfontaine/formflow/internal/taskstore/sqlstore/dialect"
)

// Store is a SQL implementation of taskstore.Store.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ taskstore.Store = (*Store)(nil)

// Config holds database connection configuration.
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// New opens the database and creates the tasks table if needed.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite store at path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

// Dialect returns the dialect in use.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	ts, text := s.dialect.TimestampType(), s.dialect.TextType()
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
id TEXT PRIMARY KEY,
form_id TEXT NOT NULL,
utterance %[2]s NOT NULL,
status TEXT NOT NULL,
result %[2]s,
callback_url TEXT,
created_at %[1]s NOT NULL,
updated_at %[1]s NOT NULL,
expires_at %[1]s NOT NULL
)`, ts, text),
		`CREATE INDEX IF NOT EXISTS idx_tasks_expires ON tasks(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

type taskRow struct {
	ID          string         `db:"id"`
	FormID      string         `db:"form_id"`
	Utterance   string         `db:"utterance"`
	Status      string         `db:"status"`
	Result      sql.NullString `db:"result"`
	CallbackURL sql.NullString `db:"callback_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	ExpiresAt   time.Time      `db:"expires_at"`
}

func (r *taskRow) task() (*taskstore.Task, error) {
	t := &taskstore.Task{
		ID:          r.ID,
		FormID:      r.FormID,
		Utterance:   r.Utterance,
		Status:      taskstore.Status(r.Status),
		CallbackURL: r.CallbackURL.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
	}
	if r.Result.Valid && r.Result.String != "" {
		var res domain.Result
		if err := json.Unmarshal([]byte(r.Result.String), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		t.Result = &res
	}
	return t, nil
}

func marshalResult(res *domain.Result) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) Create(ctx context.Context, task *taskstore.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	result, err := marshalResult(task.Result)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`INSERT INTO tasks
	          (id, form_id, utterance, status, result, callback_url, created_at, updated_at, expires_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("id"))

	res, err := s.db.ExecContext(ctx, query,
		task.ID, task.FormID, task.Utterance, string(task.Status), result,
		nullString(task.CallbackURL), task.CreatedAt, task.UpdatedAt, task.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrExists)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*taskstore.Task, error) {
	query := s.dialect.Rebind(`SELECT id, form_id, utterance, status, result, callback_url,
	          created_at, updated_at, expires_at FROM tasks WHERE id = ?`)

	var row taskRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, taskstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return row.task()
}

func (s *Store) Update(ctx context.Context, task *taskstore.Task) error {
	task.UpdatedAt = time.Now().UTC()

	result, err := marshalResult(task.Result)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`UPDATE tasks SET status = ?, result = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, string(task.Status), result, task.UpdatedAt, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	query := s.dialect.Rebind(`DELETE FROM tasks WHERE expires_at < ?`)
	res, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
