package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/nexus/core/kanban"
)

type kanbanRepository struct {
	db *taskTable
}

var _ kanban.Repository = (*kanbanRepository)(nil)

func NewKanbanRepository(db *DB) kanban.Repository {
	return &kanbanRepository{db: db.task}
}

func copyTask(t kanban.Task) kanban.Task {
	t.Comments = append([]kanban.Comment{}, t.Comments...)
	t.Attachments = append([]kanban.Attachment{}, t.Attachments...)
	return t
}

// column returns the tasks of col, except excludedID, ordered by position.
func (repo *kanbanRepository) column(col, excludedID string) []*kanban.Task {
	tasks := make([]*kanban.Task, 0)
	for _, t := range repo.db.table {
		if t.Status == col && t.ID != excludedID {
			tasks = append(tasks, t)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return lessPosition(*tasks[i], *tasks[j]) })
	return tasks
}

func lessPosition(a, b kanban.Task) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.Date.Before(b.Date)
}

func (repo *kanbanRepository) CreateTask(ctx context.Context, t kanban.Task) (kanban.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Position = 0
	for _, other := range repo.column(t.Status, "") {
		if other.Position >= t.Position {
			t.Position = other.Position + 1
		}
	}
	for i := range t.Comments {
		t.Comments[i].ID = uuid.NewString()
	}
	for i := range t.Attachments {
		t.Attachments[i].ID = uuid.NewString()
	}
	t = copyTask(t)
	stored := copyTask(t)
	repo.db.table[t.ID] = &stored
	return t, nil
}

func (repo *kanbanRepository) GetTask(ctx context.Context, id string) (kanban.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return copyTask(*t), nil
	}
	return kanban.Task{}, kanban.ErrNotFound
}

func (repo *kanbanRepository) QueryTasks(ctx context.Context, filter kanban.QueryFilter) ([]kanban.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tasks := make([]kanban.Task, 0)
	for _, t := range repo.db.table {
		if filter.Match(*t) {
			tasks = append(tasks, copyTask(*t))
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return lessPosition(tasks[i], tasks[j]) })
	return tasks, nil
}

func (repo *kanbanRepository) UpdateTask(ctx context.Context, t kanban.Task) (kanban.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[t.ID]
	if !ok {
		return kanban.Task{}, kanban.ErrNotFound
	}
	orig.Title = t.Title
	orig.Priority = t.Priority
	orig.StudentID = t.StudentID
	orig.Assignee = t.Assignee
	orig.UpdatedAt = t.UpdatedAt
	return copyTask(*orig), nil
}

func (repo *kanbanRepository) DeleteTask(ctx context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return kanban.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *kanbanRepository) MoveTask(ctx context.Context, id, column, beforeID string) (kanban.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	moved, ok := repo.db.table[id]
	if !ok {
		return kanban.Task{}, kanban.ErrNotFound
	}

	tasks := repo.column(column, id)
	at := len(tasks)
	for i, t := range tasks {
		if t.ID == beforeID {
			at = i
			break
		}
	}
	tasks = append(tasks[:at], append([]*kanban.Task{moved}, tasks[at:]...)...)

	moved.Status = column
	for i, t := range tasks {
		t.Position = i
	}
	return copyTask(*moved), nil
}

func (repo *kanbanRepository) AddComment(ctx context.Context, taskID string, c kanban.Comment) (kanban.Comment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.table[taskID]
	if !ok {
		return kanban.Comment{}, kanban.ErrNotFound
	}
	c.ID = uuid.NewString()
	t.Comments = append(t.Comments, c)
	return c, nil
}

func (repo *kanbanRepository) AddAttachment(ctx context.Context, taskID string, a kanban.Attachment) (kanban.Attachment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.table[taskID]
	if !ok {
		return kanban.Attachment{}, kanban.ErrNotFound
	}
	a.ID = uuid.NewString()
	t.Attachments = append(t.Attachments, a)
	return a, nil
}
