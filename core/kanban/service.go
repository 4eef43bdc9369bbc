package kanban

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound          = errors.New("task not found")
	ErrForbidden         = errors.New("permission denied")
	ErrStudentNotAdvised = errors.New("select one of your students")
)

type (
	Repository interface {
		// CreateTask stores t at the end of its column, along with its comments and attachments.
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		// QueryTasks returns the matching tasks ordered by column position.
		QueryTasks(ctx context.Context, filter QueryFilter) ([]Task, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		DeleteTask(ctx context.Context, id string) error
		// MoveTask sets the status of task id to column and renumbers that column so the task sits
		// right before beforeID, or last when beforeID is not in the column.
		MoveTask(ctx context.Context, id, column, beforeID string) (Task, error)
		AddComment(ctx context.Context, taskID string, c Comment) (Comment, error)
		AddAttachment(ctx context.Context, taskID string, a Attachment) (Attachment, error)
	}

	// AdvisorDirectory knows which students an advisor has been designated to.
	AdvisorDirectory interface {
		AdvisedStudents(ctx context.Context, advisorID string) ([]string, error)
	}

	UserDirectory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		Board(ctx context.Context, actor user.User) (Board, error)
		Get(ctx context.Context, actor user.User, id string) (Task, error)
		Create(ctx context.Context, actor user.User, nt NewTask) (Task, error)
		Update(ctx context.Context, actor user.User, id string, ut UpdateTask) (Task, error)
		Delete(ctx context.Context, actor user.User, id string) error
		Move(ctx context.Context, actor user.User, id string, mt MoveTask) (Task, error)
		AddComment(ctx context.Context, actor user.User, id string, nc NewComment) (Comment, error)
		AddAttachment(ctx context.Context, actor user.User, id string, na NewAttachment) (Attachment, error)
		Students(ctx context.Context, advisor user.User) ([]user.User, error)
	}

	service struct {
		repo     Repository
		advisors AdvisorDirectory
		users    UserDirectory
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, advisors AdvisorDirectory, users UserDirectory, logger core.Logger) Service {
	return &service{
		repo:     repo,
		advisors: advisors,
		users:    users,
		logger:   logger,
	}
}

// visibility returns the filter of the tasks actor may see. ok is false when actor sees none.
func (svc *service) visibility(ctx context.Context, actor user.User) (filter QueryFilter, ok bool, err error) {
	switch actor.Role {
	case user.RoleAdmin:
		return QueryFilter{}, true, nil
	case user.RoleStudent:
		return QueryFilter{StudentIDs: []string{actor.ID}}, true, nil
	case user.RoleAdvisor:
		ids, err := svc.advisors.AdvisedStudents(ctx, actor.ID)
		if err != nil {
			return QueryFilter{}, false, errors.Wrap(err, "finding advised students")
		}
		return QueryFilter{StudentIDs: ids, CreatorID: actor.ID}, true, nil
	}
	return QueryFilter{}, false, nil
}

func (svc *service) Board(ctx context.Context, actor user.User) (Board, error) {
	filter, ok, err := svc.visibility(ctx, actor)
	if err != nil {
		return Board{}, err
	}
	if !ok {
		return NewBoard(nil), nil
	}
	tasks, err := svc.repo.QueryTasks(ctx, filter)
	if err != nil {
		return Board{}, err
	}
	return NewBoard(tasks), nil
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	filter, ok, err := svc.visibility(ctx, actor)
	if err != nil {
		return Task{}, err
	}
	if !ok || !filter.Match(t) {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (svc *service) isAdvised(ctx context.Context, advisor user.User, studentID string) (bool, error) {
	ids, err := svc.advisors.AdvisedStudents(ctx, advisor.ID)
	if err != nil {
		return false, errors.Wrap(err, "finding advised students")
	}
	for _, id := range ids {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (svc *service) Create(ctx context.Context, actor user.User, nt NewTask) (Task, error) {
	now := nowFunc().UTC()
	t := Task{
		Title:     nt.Title,
		Priority:  nt.Priority,
		Status:    nt.Column,
		StudentID: actor.ID,
		Creator:   actor.ID,
		Assignee:  firstName(actor.Name),
		Date:      now,
		UpdatedAt: now,
	}

	switch actor.Role {
	case user.RoleStudent:
	case user.RoleAdmin:
		if nt.StudentID != "" {
			t.StudentID = nt.StudentID
		}
	case user.RoleAdvisor:
		ok, err := svc.isAdvised(ctx, actor, nt.StudentID)
		if err != nil {
			return Task{}, err
		}
		if !ok {
			return Task{}, core.NewFieldError("student_id", ErrStudentNotAdvised)
		}
		t.StudentID = nt.StudentID
		t.Assignee = RoleStudent
	default:
		return Task{}, ErrForbidden
	}

	role := contributorRole(actor)
	for _, c := range nt.Comments {
		t.Comments = append(t.Comments, Comment{Text: c.Text, Author: actor.Name, Role: role, Date: now})
	}
	for _, a := range nt.Attachments {
		t.Attachments = append(t.Attachments, Attachment{
			Name:   a.Name,
			Size:   FormatSize(a.SizeBytes),
			Type:   a.Type,
			Author: actor.Name,
			Role:   role,
			Date:   now,
		})
	}
	return svc.repo.CreateTask(ctx, t)
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, ut UpdateTask) (Task, error) {
	t, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Task{}, err
	}
	if ut.Title != "" {
		t.Title = ut.Title
	}
	if ut.Priority != "" {
		t.Priority = ut.Priority
	}
	if ut.StudentID != "" && ut.StudentID != t.StudentID {
		if !actor.IsAdvisor() {
			return Task{}, ErrForbidden
		}
		ok, err := svc.isAdvised(ctx, actor, ut.StudentID)
		if err != nil {
			return Task{}, err
		}
		if !ok {
			return Task{}, core.NewFieldError("student_id", ErrStudentNotAdvised)
		}
		t.StudentID = ut.StudentID
	}
	t.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateTask(ctx, t)
}

func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteTask(ctx, id)
}

// Move drops the card into mt.Column before mt.BeforeID. Only its status and the column order change.
func (svc *service) Move(ctx context.Context, actor user.User, id string, mt MoveTask) (Task, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return Task{}, err
	}
	if mt.BeforeID == id {
		mt.BeforeID = ""
	}
	return svc.repo.MoveTask(ctx, id, mt.Column, mt.BeforeID)
}

func (svc *service) AddComment(ctx context.Context, actor user.User, id string, nc NewComment) (Comment, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return Comment{}, err
	}
	return svc.repo.AddComment(ctx, id, Comment{
		Text:   nc.Text,
		Author: actor.Name,
		Role:   contributorRole(actor),
		Date:   nowFunc().UTC(),
	})
}

func (svc *service) AddAttachment(ctx context.Context, actor user.User, id string, na NewAttachment) (Attachment, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return Attachment{}, err
	}
	return svc.repo.AddAttachment(ctx, id, Attachment{
		Name:   na.Name,
		Size:   FormatSize(na.SizeBytes),
		Type:   na.Type,
		Author: actor.Name,
		Role:   contributorRole(actor),
		Date:   nowFunc().UTC(),
	})
}

// Students lists the students advisor has been designated to. Deleted accounts are skipped.
func (svc *service) Students(ctx context.Context, advisor user.User) ([]user.User, error) {
	if !advisor.IsAdvisor() {
		return nil, ErrForbidden
	}
	ids, err := svc.advisors.AdvisedStudents(ctx, advisor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "finding advised students")
	}
	students := make([]user.User, 0, len(ids))
	for _, id := range ids {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				svc.logger.Warn("advised student not found", map[string]interface{}{"student_id": id})
				continue
			}
			return nil, errors.Wrap(err, "finding student")
		}
		students = append(students, usr)
	}
	return students, nil
}
