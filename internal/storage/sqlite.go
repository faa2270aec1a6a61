package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"anchorsync/pkg"
	"anchorsync/src/logger"
)

const tasksSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	completed INTEGER NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT 'medium',
	created_at INTEGER NOT NULL,
	pos_x REAL,
	pos_y REAL,
	pos_z REAL
)`

// SQLiteTaskRepository stores tasks in a SQLite table; changes are pushed to
// subscribers of this process only.
type SQLiteTaskRepository struct {
	db  *sql.DB
	bus *broadcaster

	mu     sync.Mutex // serializes write+publish so snapshots arrive in commit order
	closed bool
}

// OpenSQLite opens path (":memory:" allowed) and ensures the schema
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// NewSQLiteTaskRepository wraps an open database with the tasks schema
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db, bus: newBroadcaster()}
}

func (r *SQLiteTaskRepository) Subscribe(ctx context.Context) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	tasks, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return r.bus.subscribe(ctx, tasks), nil
}

func (r *SQLiteTaskRepository) List(ctx context.Context) ([]pkg.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, description, completed, priority, created_at, pos_x, pos_y, pos_z FROM tasks ORDER BY created_at DESC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []pkg.Task{}
	for rows.Next() {
		var (
			task             pkg.Task
			description      sql.NullString
			priority         string
			createdAt        int64
			posX, posY, posZ sql.NullFloat64
		)
		if err := rows.Scan(&task.ID, &task.Title, &description, &task.Completed, &priority, &createdAt, &posX, &posY, &posZ); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		task.Description = description.String
		task.Priority = pkg.Priority(priority)
		task.CreatedAt = time.Unix(0, createdAt).UTC()
		if posX.Valid && posY.Valid && posZ.Valid {
			task = task.WithPosition(pkg.Vec3{X: posX.Float64, Y: posY.Float64, Z: posZ.Float64})
		}

		if err := task.Validate(); err != nil {
			logger.Warn().Err(err).Str("backend", "sqlite").Str("task_id", task.ID).Msg("dropping malformed task record")
			continue
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *SQLiteTaskRepository) Create(ctx context.Context, task pkg.Task) (pkg.Task, error) {
	task, err := prepareCreate(task)
	if err != nil {
		return pkg.Task{}, err
	}

	err = r.write(ctx, func() error {
		x, y, z := positionColumns(task)
		_, err := r.db.ExecContext(ctx,
			"INSERT INTO tasks (id, title, description, completed, priority, created_at, pos_x, pos_y, pos_z) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			task.ID, task.Title, nullString(task.Description), task.Completed, string(task.Priority), task.CreatedAt.UnixNano(), x, y, z,
		)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		return nil
	})
	if err != nil {
		return pkg.Task{}, err
	}
	return task, nil
}

func (r *SQLiteTaskRepository) Update(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	if err := task.Validate(); err != nil {
		return err
	}

	return r.write(ctx, func() error {
		x, y, z := positionColumns(task)
		res, err := r.db.ExecContext(ctx,
			"UPDATE tasks SET title = ?, description = ?, completed = ?, priority = ?, pos_x = ?, pos_y = ?, pos_z = ? WHERE id = ?",
			task.Title, nullString(task.Description), task.Completed, string(task.Priority), x, y, z, task.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", task.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s not found", task.ID)
		}
		return nil
	})
}

func (r *SQLiteTaskRepository) Delete(ctx context.Context, task pkg.Task) error {
	if task.ID == "" {
		return nil
	}
	return r.write(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", task.ID); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", task.ID, err)
		}
		return nil
	})
}

func (r *SQLiteTaskRepository) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.bus.closeAll()
	return r.db.Close()
}

func (r *SQLiteTaskRepository) write(ctx context.Context, exec func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := exec(); err != nil {
		return err
	}

	tasks, err := r.List(ctx)
	if err != nil {
		// the write is committed; subscribers catch up on the next change
		logger.Warn().Err(err).Str("backend", "sqlite").Msg("failed to reload tasks after write")
		return nil
	}
	r.bus.publish(tasks)
	return nil
}

func positionColumns(task pkg.Task) (x, y, z sql.NullFloat64) {
	if task.Position == nil {
		return
	}
	p := *task.Position
	return sql.NullFloat64{Float64: p.X, Valid: true},
		sql.NullFloat64{Float64: p.Y, Valid: true},
		sql.NullFloat64{Float64: p.Z, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
