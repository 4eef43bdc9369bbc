package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/kanban"
)

const (
	taskColumns       = `id::text, title, priority, status, position, student_id, creator, assignee, date, updated_at`
	commentColumns    = `id::text, text, author, role, date`
	attachmentColumns = `id::text, name, size, type, author, role, date`
)

type kanbanRepository struct {
	db *sqlx.DB
}

var _ kanban.Repository = (*kanbanRepository)(nil)

func NewKanbanRepository(db *sqlx.DB) kanban.Repository {
	return &kanbanRepository{db: db}
}

// withTx runs fn in a transaction, committed when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertComment(ctx context.Context, ext sqlx.ExtContext, taskID string, c kanban.Comment) (kanban.Comment, error) {
	c.ID = newID()
	q := `INSERT INTO kanban_comments (id, task_id, text, author, role, date) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := ext.ExecContext(ctx, q, c.ID, taskID, c.Text, c.Author, c.Role, c.Date); err != nil {
		return kanban.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func insertAttachment(ctx context.Context, ext sqlx.ExtContext, taskID string, a kanban.Attachment) (kanban.Attachment, error) {
	a.ID = newID()
	q := `INSERT INTO kanban_attachments (id, task_id, name, size, type, author, role, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := ext.ExecContext(ctx, q, a.ID, taskID, a.Name, a.Size, a.Type, a.Author, a.Role, a.Date); err != nil {
		return kanban.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	return a, nil
}

func (repo *kanbanRepository) CreateTask(ctx context.Context, t kanban.Task) (kanban.Task, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	t.ID = newID()
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// serialize appends to the same column
		if _, err := tx.ExecContext(ctx, `LOCK TABLE kanban_tasks IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return errors.Wrap(err, "locking tasks")
		}
		q := `SELECT COALESCE(MAX(position), -1) + 1 FROM kanban_tasks WHERE status = $1`
		if err := tx.GetContext(ctx, &t.Position, q, t.Status); err != nil {
			return errors.Wrap(err, "selecting position")
		}

		q = `INSERT INTO kanban_tasks (id, title, priority, status, position, student_id, creator, assignee, date, updated_at)
			VALUES (:id, :title, :priority, :status, :position, :student_id, :creator, :assignee, :date, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, t); err != nil {
			return errors.Wrap(err, "inserting task")
		}

		for i, c := range t.Comments {
			c, err := insertComment(ctx, tx, t.ID, c)
			if err != nil {
				return err
			}
			t.Comments[i] = c
		}
		for i, a := range t.Attachments {
			a, err := insertAttachment(ctx, tx, t.ID, a)
			if err != nil {
				return err
			}
			t.Attachments[i] = a
		}
		return nil
	})
	if err != nil {
		return kanban.Task{}, err
	}
	if t.Comments == nil {
		t.Comments = []kanban.Comment{}
	}
	if t.Attachments == nil {
		t.Attachments = []kanban.Attachment{}
	}
	return t, nil
}

// loadContributions fills the comments and attachments of tasks, oldest first.
func (repo *kanbanRepository) loadContributions(ctx context.Context, tasks []kanban.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		idx[t.ID] = i
		tasks[i].Comments = []kanban.Comment{}
		tasks[i].Attachments = []kanban.Attachment{}
	}

	var comments []struct {
		TaskID string `db:"task_id"`
		kanban.Comment
	}
	q := `SELECT task_id::text, ` + commentColumns + ` FROM kanban_comments WHERE task_id::text = ANY($1) ORDER BY date, id`
	if err := repo.db.SelectContext(ctx, &comments, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "selecting comments")
	}
	for _, c := range comments {
		i := idx[c.TaskID]
		tasks[i].Comments = append(tasks[i].Comments, c.Comment)
	}

	var attachments []struct {
		TaskID string `db:"task_id"`
		kanban.Attachment
	}
	q = `SELECT task_id::text, ` + attachmentColumns + ` FROM kanban_attachments WHERE task_id::text = ANY($1) ORDER BY date, id`
	if err := repo.db.SelectContext(ctx, &attachments, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "selecting attachments")
	}
	for _, a := range attachments {
		i := idx[a.TaskID]
		tasks[i].Attachments = append(tasks[i].Attachments, a.Attachment)
	}
	return nil
}

func (repo *kanbanRepository) GetTask(ctx context.Context, id string) (kanban.Task, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var t kanban.Task
	if err := repo.db.GetContext(ctx, &t, `SELECT `+taskColumns+` FROM kanban_tasks WHERE id::text = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return kanban.Task{}, kanban.ErrNotFound
		}
		return kanban.Task{}, errors.Wrap(err, "selecting task")
	}
	tasks := []kanban.Task{t}
	if err := repo.loadContributions(ctx, tasks); err != nil {
		return kanban.Task{}, err
	}
	return tasks[0], nil
}

func (repo *kanbanRepository) QueryTasks(ctx context.Context, filter kanban.QueryFilter) ([]kanban.Task, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var (
		tasks []kanban.Task
		err   error
	)
	q := `SELECT ` + taskColumns + ` FROM kanban_tasks`
	if filter.IsEmpty() {
		err = repo.db.SelectContext(ctx, &tasks, q+` ORDER BY status, position`)
	} else {
		q += ` WHERE student_id = ANY($1) OR ($2 <> '' AND creator = $2) ORDER BY status, position`
		err = repo.db.SelectContext(ctx, &tasks, q, pq.Array(filter.StudentIDs), filter.CreatorID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting tasks")
	}
	if err = repo.loadContributions(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (repo *kanbanRepository) UpdateTask(ctx context.Context, t kanban.Task) (kanban.Task, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	q := `UPDATE kanban_tasks SET title = :title, priority = :priority, student_id = :student_id, assignee = :assignee,
		updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return kanban.Task{}, errors.Wrap(err, "updating task")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return kanban.Task{}, kanban.ErrNotFound
	}
	return repo.GetTask(ctx, t.ID)
}

func (repo *kanbanRepository) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := repo.db.ExecContext(ctx, `DELETE FROM kanban_tasks WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return kanban.ErrNotFound
	}
	return nil
}

func (repo *kanbanRepository) MoveTask(ctx context.Context, id, column, beforeID string) (kanban.Task, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var found bool
		q := `SELECT EXISTS (SELECT 1 FROM kanban_tasks WHERE id::text = $1)`
		if err := tx.GetContext(ctx, &found, q, id); err != nil {
			return errors.Wrap(err, "selecting task")
		}
		if !found {
			return kanban.ErrNotFound
		}

		// lock the target column, the moved task excluded
		var ids []string
		q = `SELECT id::text FROM kanban_tasks WHERE status = $1 AND id::text <> $2 ORDER BY position FOR UPDATE`
		if err := tx.SelectContext(ctx, &ids, q, column, id); err != nil {
			return errors.Wrap(err, "selecting column")
		}

		order := make([]string, 0, len(ids)+1)
		placed := false
		for _, other := range ids {
			if other == beforeID && !placed {
				order = append(order, id)
				placed = true
			}
			order = append(order, other)
		}
		if !placed {
			order = append(order, id)
		}

		q = `UPDATE kanban_tasks SET status = $1, position = $2 WHERE id::text = $3`
		for pos, taskID := range order {
			if _, err := tx.ExecContext(ctx, q, column, pos, taskID); err != nil {
				return errors.Wrap(err, "moving task")
			}
		}
		return nil
	})
	if err != nil {
		return kanban.Task{}, err
	}
	return repo.GetTask(ctx, id)
}

func (repo *kanbanRepository) taskExists(ctx context.Context, id string) error {
	var found bool
	if err := repo.db.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM kanban_tasks WHERE id::text = $1)`, id); err != nil {
		return errors.Wrap(err, "selecting task")
	}
	if !found {
		return kanban.ErrNotFound
	}
	return nil
}

func (repo *kanbanRepository) AddComment(ctx context.Context, taskID string, c kanban.Comment) (kanban.Comment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if err := repo.taskExists(ctx, taskID); err != nil {
		return kanban.Comment{}, err
	}
	return insertComment(ctx, repo.db, taskID, c)
}

func (repo *kanbanRepository) AddAttachment(ctx context.Context, taskID string, a kanban.Attachment) (kanban.Attachment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if err := repo.taskExists(ctx, taskID); err != nil {
		return kanban.Attachment{}, err
	}
	return insertAttachment(ctx, repo.db, taskID, a)
}
