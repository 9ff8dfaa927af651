package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                     INTEGER PRIMARY KEY,
	title                  TEXT NOT NULL,
	description            TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL DEFAULT 'scheduled',
	priority               INTEGER NOT NULL DEFAULT 0,
	deadline               DATETIME,
	start_date             DATETIME,
	completed_at           DATETIME,
	estimate_duration_hour REAL,
	actual_duration_hour   REAL,
	completeness           INTEGER NOT NULL DEFAULT 0,
	is_splittable          INTEGER NOT NULL DEFAULT 0,
	parent_id              INTEGER,
	category_id            INTEGER,
	tags                   TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
`

const taskColumns = `id, title, description, status, priority, deadline, start_date, completed_at,
	estimate_duration_hour, actual_duration_hour, completeness, is_splittable,
	parent_id, category_id, tags`

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore persists tasks in a SQLite database. The parent_id column is
// the source of truth for the tree; ChildIDs are derived from it on read.
type SQLiteStore struct {
	db *sql.DB
	sqliteOps
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, sqliteOps: sqliteOps{q: db}}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// WithinTx runs fn inside a database transaction, committing only if fn
// returns nil.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx task.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqliteTx{sqliteOps{q: sqlTx}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Import saves every task in a single transaction, keeping their ids.
// Parent links are written after all rows exist.
func (s *SQLiteStore) Import(ctx context.Context, tasks []task.Task) error {
	normalized := NormalizeLinks(tasks)
	return s.WithinTx(ctx, func(tx task.Store) error {
		for i := range normalized {
			t := normalized[i].Clone()
			t.ParentID = nil
			if err := tx.Save(ctx, &t); err != nil {
				return err
			}
		}
		for i := range normalized {
			if normalized[i].ParentID == nil {
				continue
			}
			if err := tx.Update(ctx, &normalized[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type sqliteTx struct {
	sqliteOps
}

// WithinTx on a transaction runs fn in the same transaction.
func (tx *sqliteTx) WithinTx(_ context.Context, fn func(tx task.Store) error) error {
	return fn(tx)
}

// sqliteOps implements the Reader and Writer methods over a querier so the
// same code serves both the store and its transactions.
type sqliteOps struct {
	q querier
}

// FindByID implements task.Reader.
func (o sqliteOps) FindByID(ctx context.Context, id int64) (task.Task, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return task.Task{}, errors.NotFound(id)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	if err := o.loadChildren(ctx, &t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// FindAll implements task.Reader.
func (o sqliteOps) FindAll(ctx context.Context) ([]task.Task, error) {
	tasks, err := o.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	attachChildren(tasks)
	return tasks, nil
}

// FindDescendants implements task.Reader. The recursive CTE uses UNION so
// a corrupted cycle terminates; the pre-order is rebuilt in Go.
func (o sqliteOps) FindDescendants(ctx context.Context, id int64) ([]task.Task, error) {
	if _, err := o.FindByID(ctx, id); err != nil {
		return nil, err
	}

	rows, err := o.query(ctx, `
		WITH RECURSIVE sub(id) AS (
			SELECT id FROM tasks WHERE parent_id = ?
			UNION
			SELECT t.id FROM tasks t JOIN sub ON t.parent_id = sub.id
		)
		SELECT `+taskColumns+` FROM tasks WHERE id IN (SELECT id FROM sub) ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	attachChildren(rows)

	byParent := make(map[int64][]task.Task)
	for _, t := range rows {
		if t.ParentID != nil {
			byParent[*t.ParentID] = append(byParent[*t.ParentID], t)
		}
	}

	visited := map[int64]bool{id: true}
	var out []task.Task
	stack := slices.Clone(byParent[id])
	slices.Reverse(stack)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.ID] {
			continue
		}
		visited[cur.ID] = true
		out = append(out, cur)
		children := slices.Clone(byParent[cur.ID])
		slices.Reverse(children)
		stack = append(stack, children...)
	}
	return out, nil
}

// FindAncestors implements task.Reader.
func (o sqliteOps) FindAncestors(ctx context.Context, id int64) ([]task.Task, error) {
	t, err := o.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	visited := map[int64]bool{id: true}
	var out []task.Task
	for t.ParentID != nil && !visited[*t.ParentID] {
		visited[*t.ParentID] = true
		parent, err := o.FindByID(ctx, *t.ParentID)
		if errors.Is(err, errors.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, parent)
		t = parent
	}
	return out, nil
}

// Save implements task.Writer. A zero id is assigned by the database.
func (o sqliteOps) Save(ctx context.Context, t *task.Task) error {
	if t.Status == "" {
		t.Status = task.StatusScheduled
	}
	tags, _ := json.Marshal(t.Tags)

	var id any
	if t.ID != 0 {
		id = t.ID
	}
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, t.Title, t.Description, string(t.Status), t.Priority,
		nullTime(t.Deadline), nullTime(t.StartDate), nullTime(t.CompletedAt),
		nullFloat(t.EstimateDurationHour), nullFloat(t.ActualDurationHour),
		task.ClampPercent(t.Completeness), t.IsSplittable,
		nullInt(t.ParentID), nullInt(t.CategoryID), string(tags),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.ID = newID
	return nil
}

// Update implements task.Writer. ChildIDs are ignored; the children's
// parent_id columns define them.
func (o sqliteOps) Update(ctx context.Context, t *task.Task) error {
	tags, _ := json.Marshal(t.Tags)
	res, err := o.q.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, status=?, priority=?,
			deadline=?, start_date=?, completed_at=?,
			estimate_duration_hour=?, actual_duration_hour=?,
			completeness=?, is_splittable=?, parent_id=?, category_id=?, tags=?
		WHERE id=?`,
		t.Title, t.Description, string(t.Status), t.Priority,
		nullTime(t.Deadline), nullTime(t.StartDate), nullTime(t.CompletedAt),
		nullFloat(t.EstimateDurationHour), nullFloat(t.ActualDurationHour),
		task.ClampPercent(t.Completeness), t.IsSplittable,
		nullInt(t.ParentID), nullInt(t.CategoryID), string(tags),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound(t.ID)
	}
	return nil
}

// Delete implements task.Writer. Children of the deleted task become roots.
func (o sqliteOps) Delete(ctx context.Context, id int64) error {
	if _, err := o.q.ExecContext(ctx, `UPDATE tasks SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return fmt.Errorf("detach children: %w", err)
	}
	res, err := o.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound(id)
	}
	return nil
}

func (o sqliteOps) query(ctx context.Context, query string, args ...any) ([]task.Task, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (o sqliteOps) loadChildren(ctx context.Context, t *task.Task) error {
	rows, err := o.q.QueryContext(ctx, `SELECT id FROM tasks WHERE parent_id = ? ORDER BY id`, t.ID)
	if err != nil {
		return fmt.Errorf("list children of %d: %w", t.ID, err)
	}
	defer rows.Close()

	t.ChildIDs = nil
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		t.ChildIDs = append(t.ChildIDs, id)
	}
	return rows.Err()
}

// attachChildren fills ChildIDs from the parent links present in tasks.
func attachChildren(tasks []task.Task) {
	index := make(map[int64]int, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
	}
	for i := range tasks {
		if tasks[i].ParentID == nil {
			continue
		}
		if p, ok := index[*tasks[i].ParentID]; ok {
			tasks[p].ChildIDs = append(tasks[p].ChildIDs, tasks[i].ID)
		}
	}
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (task.Task, error) {
	var t task.Task
	var status, tagsJSON string
	var deadline, startDate, completedAt sql.NullTime
	var estimate, actual sql.NullFloat64
	var parentID, categoryID sql.NullInt64

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &status, &t.Priority,
		&deadline, &startDate, &completedAt,
		&estimate, &actual, &t.Completeness, &t.IsSplittable,
		&parentID, &categoryID, &tagsJSON,
	)
	if err != nil {
		return task.Task{}, err
	}

	t.Status = task.Status(status)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)

	if deadline.Valid {
		t.Deadline = &deadline.Time
	}
	if startDate.Valid {
		t.StartDate = &startDate.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if estimate.Valid {
		t.EstimateDurationHour = &estimate.Float64
	}
	if actual.Valid {
		t.ActualDurationHour = &actual.Float64
	}
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if categoryID.Valid {
		t.CategoryID = &categoryID.Int64
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
