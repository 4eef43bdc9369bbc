package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

// CreateUser stores a user of role straight through repo. Password hashing is skipped when pwd is empty.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	role, name, uname, pwd string,
	extra ...func(*user.User),
) user.User {
	now := time.Now().UTC()
	usr := user.User{
		Role:      role,
		Name:      name,
		Username:  uname,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if role == user.RoleAdvisor {
		usr.Status = user.StatusActive
	}
	for _, fn := range extra {
		fn(&usr)
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func WithCareer(career string) func(*user.User) {
	return func(u *user.User) { u.Career = career }
}

func WithCode(code string) func(*user.User) {
	return func(u *user.User) { u.Code = code }
}

func WithEmail(email string) func(*user.User) {
	return func(u *user.User) { u.Email = email }
}

func WithStatus(status string) func(*user.User) {
	return func(u *user.User) { u.Status = status }
}

// CreateRequest stores a request of student with the given type and status.
// Approved advisor requests get a designation of advisorID when it is set.
func CreateRequest(
	t *testing.T,
	repo request.Repository,
	student user.User,
	schoolCode, typ, status, advisorID string,
	date ...time.Time,
) request.Request {
	tstamp := time.Now().UTC()
	if len(date) > 0 {
		tstamp = date[0].UTC()
	}
	req := request.Request{
		StudentID:   student.ID,
		StudentName: student.Name,
		StudentCode: student.Code,
		School:      student.Career,
		SchoolCode:  schoolCode,
		Type:        typ,
		Status:      status,
		Date:        tstamp,
		UpdatedAt:   tstamp,
	}
	if typ == request.TypeAdvisor && status == request.StatusApproved && advisorID != "" {
		req.Designation = &request.Designation{AdvisorID: advisorID, AdvisorName: "Advisor", Date: tstamp}
	}
	req, err := repo.CreateRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("createRequest() failed: %v", err)
	}
	return req
}

// CreateTask stores a task of studentID, created by creatorID, at the end of column.
func CreateTask(t *testing.T, repo kanban.Repository, title, column, studentID, creatorID string) kanban.Task {
	now := time.Now().UTC()
	task, err := repo.CreateTask(context.Background(), kanban.Task{
		Title:     title,
		Priority:  kanban.PriorityMedium,
		Status:    column,
		StudentID: studentID,
		Creator:   creatorID,
		Assignee:  "Estudiante",
		Date:      now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createTask() failed: %v", err)
	}
	return task
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// MailBox records the messages it is asked to send.
type MailBox struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

var _ core.EmailService = (*MailBox)(nil)

func (mb *MailBox) SendMessages(messages ...*core.EmailMessage) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = append(mb.messages, messages...)
}

func (mb *MailBox) Messages() []*core.EmailMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]*core.EmailMessage{}, mb.messages...)
}
