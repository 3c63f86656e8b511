package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/huddle/internal/identity"
)

// Task is a named checklist owned by one user.
type Task struct {
	ID       int64
	UserID   int64
	Username string
	Name     string
	Items    []*Item
}

// Item is an entry of a task. DoneAt and DoneBy are both nil while the item
// is open.
type Item struct {
	ID       int64
	TaskID   int64
	Name     string
	DoneAt   *time.Time
	DoneByID *int64
	DoneBy   *string
}

// TaskRepo accesses tasks scoped to their owner.
type TaskRepo struct{ s *Store }

// ItemRepo accesses items scoped to the owner of their task.
type ItemRepo struct{ s *Store }

// Tasks returns the task repository.
func (s *Store) Tasks() *TaskRepo { return &TaskRepo{s: s} }

// Items returns the item repository.
func (s *Store) Items() *ItemRepo { return &ItemRepo{s: s} }

// List returns every task of owner with its items, ordered by id.
func (r *TaskRepo) List(ctx context.Context, owner identity.Principal) ([]*Task, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, u.username, t.name
		FROM tasks t JOIN users u ON u.id = t.user_id
		WHERE t.user_id = ? ORDER BY t.id`, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var tasks []*Task
	byID := make(map[int64]*Task)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Username, &t.Name); err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, &t)
		byID[t.ID] = &t
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.s.Items().query(ctx, `WHERE t.user_id = ? ORDER BY i.id`, owner.ID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if t, ok := byID[it.TaskID]; ok {
			t.Items = append(t.Items, it)
		}
	}
	return tasks, nil
}

// Get loads a task of owner with its items.
func (r *TaskRepo) Get(ctx context.Context, owner identity.Principal, id int64) (*Task, error) {
	var t Task
	err := r.s.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, u.username, t.name
		FROM tasks t JOIN users u ON u.id = t.user_id
		WHERE t.id = ? AND t.user_id = ?`, id, owner.ID,
	).Scan(&t.ID, &t.UserID, &t.Username, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	t.Items, err = r.s.Items().query(ctx, `WHERE i.task_id = ? ORDER BY i.id`, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts task for owner. Any owner set on task is ignored.
func (r *TaskRepo) Create(ctx context.Context, owner identity.Principal, task *Task) (*Task, error) {
	res, err := r.s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, name) VALUES (?, ?)`, owner.ID, task.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, owner, id)
}

// Update saves the name of a task of owner.
func (r *TaskRepo) Update(ctx context.Context, owner identity.Principal, task *Task) (*Task, error) {
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE tasks SET name = ? WHERE id = ? AND user_id = ?`, task.Name, task.ID, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %d: %w", task.ID, ErrNotFound)
	}
	return r.Get(ctx, owner, task.ID)
}

// Delete removes a task of owner and its items.
func (r *TaskRepo) Delete(ctx context.Context, owner identity.Principal, id int64) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, owner.ID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

const itemColumns = `
	SELECT i.id, i.task_id, i.name, i.done_at, i.done_by, d.username
	FROM items i
	JOIN tasks t ON t.id = i.task_id
	LEFT JOIN users d ON d.id = i.done_by `

func (r *ItemRepo) query(ctx context.Context, where string, args ...any) ([]*Item, error) {
	rows, err := r.s.db.QueryContext(ctx, itemColumns+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanItem(row scanner) (*Item, error) {
	var (
		it     Item
		doneAt sql.NullTime
		doneBy sql.NullInt64
		byName sql.NullString
	)
	if err := row.Scan(&it.ID, &it.TaskID, &it.Name, &doneAt, &doneBy, &byName); err != nil {
		return nil, err
	}
	if doneAt.Valid {
		t := doneAt.Time.UTC()
		it.DoneAt = &t
	}
	if doneBy.Valid {
		it.DoneByID = &doneBy.Int64
	}
	if byName.Valid {
		it.DoneBy = &byName.String
	}
	return &it, nil
}

// Get loads an item whose task belongs to owner.
func (r *ItemRepo) Get(ctx context.Context, owner identity.Principal, id int64) (*Item, error) {
	row := r.s.db.QueryRowContext(ctx, itemColumns+`WHERE i.id = ? AND t.user_id = ?`, id, owner.ID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	return it, nil
}

// Create inserts item into a task of owner. It fails with ErrNotFound if
// the task is not visible to owner.
func (r *ItemRepo) Create(ctx context.Context, owner identity.Principal, item *Item) (*Item, error) {
	res, err := r.s.db.ExecContext(ctx, `
		INSERT INTO items (task_id, name, done_at, done_by)
		SELECT t.id, ?, ?, ? FROM tasks t WHERE t.id = ? AND t.user_id = ?`,
		item.Name, nullTime(item.DoneAt), nullInt(item.DoneByID), item.TaskID, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %d: %w", item.TaskID, ErrNotFound)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, owner, id)
}

// Update saves an item of owner. The item may not move to another task.
func (r *ItemRepo) Update(ctx context.Context, owner identity.Principal, item *Item) (*Item, error) {
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE items SET name = ?, done_at = ?, done_by = ?
		WHERE id = ? AND task_id IN (SELECT id FROM tasks WHERE user_id = ?)`,
		item.Name, nullTime(item.DoneAt), nullInt(item.DoneByID), item.ID, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}
	return r.Get(ctx, owner, item.ID)
}

// Delete removes an item of owner.
func (r *ItemRepo) Delete(ctx context.Context, owner identity.Principal, id int64) error {
	res, err := r.s.db.ExecContext(ctx, `
		DELETE FROM items WHERE id = ? AND task_id IN (SELECT id FROM tasks WHERE user_id = ?)`,
		id, owner.ID)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
