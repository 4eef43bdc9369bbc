//go:build testutil
// +build testutil

package sqlxrepos_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	sqlxrepos "github.com/trezcool/nexus/storage/database/sqlx"
	testutil "github.com/trezcool/nexus/tests"
	"github.com/trezcool/nexus/tests/testdb"
)

var db *sqlx.DB

func TestMain(m *testing.M) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		fmt.Println("starting test database:", err)
		os.Exit(1)
	}
	db = h.DB
	code := m.Run()
	h.Close()
	os.Exit(code)
}

func truncate(t *testing.T) {
	_, err := db.Exec(`TRUNCATE accounts, requests, kanban_tasks, kanban_comments, kanban_attachments,
		notifications, notification_feeds`)
	require.NoError(t, err)
}

func TestUserRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := sqlxrepos.NewUserRepository(db)

	admin := testutil.CreateUser(t, repo, user.RoleAdmin, "Admin", "admin", "secret")
	student := testutil.CreateUser(t, repo, user.RoleStudent, "Ana Torres", "ana", "", testutil.WithCareer("Sistemas"))
	testutil.CreateUser(t, repo, user.RoleSchool, "Escuela de Sistemas", "sistemas", "", testutil.WithCode("EPIS"))

	t.Run("uniqueness", func(t *testing.T) {
		err := repo.CheckUniqueness(ctx, user.User{Role: user.RoleAdmin, Username: "admin"})
		assert.Equal(t, user.ErrUsernameExists, err)

		err = repo.CheckUniqueness(ctx, user.User{Role: user.RoleStudent, Username: "admin"})
		assert.NoError(t, err)

		err = repo.CheckUniqueness(ctx, user.User{Role: user.RoleSchool, Username: "other", Code: "epis"})
		assert.Equal(t, user.ErrCodeExists, err)

		err = repo.CheckUniqueness(ctx, admin)
		assert.NoError(t, err, "a user does not collide with itself")

		_, err = repo.CreateUser(ctx, user.User{Role: user.RoleStudent, Name: "Dup", Username: "ana"})
		assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.Equal(t, "Sistemas", got.Career)

		got, err = repo.GetUser(ctx, user.GetFilter{Role: user.RoleAdmin, Username: "admin"})
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword("secret"))

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "00000000-0000-0000-0000-000000000000"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		users, err := repo.QueryUsers(ctx, user.QueryFilter{Search: "TORRES"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, student.ID, users[0].ID)

		users, err = repo.QueryUsers(ctx, user.QueryFilter{Role: user.RoleSchool, Search: "epi"})
		require.NoError(t, err)
		assert.Len(t, users, 1)

		users, err = repo.QueryUsers(ctx, user.QueryFilter{Search: "_"})
		require.NoError(t, err)
		assert.Empty(t, users, "wildcards are matched literally")

		n, err := repo.CountUsers(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("update", func(t *testing.T) {
		student.Name = "Ana María Torres"
		got, err := repo.UpdateUser(ctx, student)
		require.NoError(t, err)
		assert.Equal(t, "Ana María Torres", got.Name)
		assert.Equal(t, user.RoleStudent, got.Role)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, user.ErrLastAdmin, repo.DeleteUser(ctx, admin.ID))
		assert.NoError(t, repo.DeleteUser(ctx, student.ID))
		assert.Equal(t, user.ErrNotFound, repo.DeleteUser(ctx, student.ID))
	})
}

func TestRequestRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	users := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewRequestRepository(db)

	student := testutil.CreateUser(t, users, user.RoleStudent, "Ana Torres", "ana", "", testutil.WithCareer("Sistemas"))
	advisor := testutil.CreateUser(t, users, user.RoleAdvisor, "Luis Vega", "lvega", "")

	old := time.Now().Add(-48 * time.Hour)
	initReq := testutil.CreateRequest(t, repo, student, "EPIS", request.TypeInit, request.StatusApproved, "", old)
	advReq := testutil.CreateRequest(t, repo, student, "EPIS", request.TypeAdvisor, request.StatusApproved, advisor.ID)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetRequest(ctx, advReq.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Designation)
		assert.Equal(t, advisor.ID, got.Designation.AdvisorID)

		got, err = repo.GetRequest(ctx, initReq.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Designation)

		_, err = repo.GetRequest(ctx, "nope")
		assert.Equal(t, request.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		reqs, err := repo.QueryRequests(ctx, request.QueryFilter{StudentID: student.ID})
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		assert.Equal(t, advReq.ID, reqs[0].ID, "newest first")

		reqs, err = repo.QueryRequests(ctx, request.QueryFilter{AdvisorID: advisor.ID})
		require.NoError(t, err)
		assert.Len(t, reqs, 1)

		reqs, err = repo.QueryRequests(ctx, request.QueryFilter{SchoolCode: "epis", SubmittedBefore: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, initReq.ID, reqs[0].ID)
	})

	t.Run("update is a compare and set", func(t *testing.T) {
		pending := testutil.CreateRequest(t, repo, student, "EPIS", request.TypeAdvisor, request.StatusPending, "")
		pending.Status = request.StatusObserved
		pending.Observation = "Falta el tema"
		_, err := repo.UpdateRequest(ctx, pending, request.StatusPending)
		require.NoError(t, err)

		pending.Status = request.StatusApproved
		_, err = repo.UpdateRequest(ctx, pending, request.StatusPending)
		assert.Equal(t, request.ErrInvalidTransition, err)

		got, err := repo.GetRequest(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, request.StatusObserved, got.Status)
		assert.Equal(t, "Falta el tema", got.Observation)

		resub := request.Request{
			StudentID: student.ID, StudentName: student.Name, Type: request.TypeAdvisor,
			Status: request.StatusPending, PreviousID: pending.ID, Date: time.Now(), UpdatedAt: time.Now(),
		}
		_, err = repo.CreateRequest(ctx, resub)
		require.NoError(t, err)
		_, err = repo.CreateRequest(ctx, resub)
		assert.Equal(t, request.ErrInvalidTransition, err, "an observed request is resubmitted once")
	})
}

func TestKanbanRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	repo := sqlxrepos.NewKanbanRepository(db)

	a := testutil.CreateTask(t, repo, "A", kanban.ColumnTodo, "s1", "s1")
	b := testutil.CreateTask(t, repo, "B", kanban.ColumnTodo, "s1", "s1")
	c := testutil.CreateTask(t, repo, "C", kanban.ColumnTodo, "s2", "adv")
	assert.Equal(t, []int{0, 1, 2}, []int{a.Position, b.Position, c.Position})

	t.Run("contributions", func(t *testing.T) {
		_, err := repo.AddComment(ctx, a.ID, kanban.Comment{Text: "hola", Author: "Ana", Role: kanban.RoleStudent, Date: time.Now()})
		require.NoError(t, err)
		_, err = repo.AddAttachment(ctx, a.ID, kanban.Attachment{Name: "tesis.pdf", Size: "1.00 MB", Type: "pdf", Author: "Ana", Role: kanban.RoleStudent, Date: time.Now()})
		require.NoError(t, err)

		got, err := repo.GetTask(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, got.Comments, 1)
		assert.Len(t, got.Attachments, 1)

		_, err = repo.AddComment(ctx, "00000000-0000-0000-0000-000000000000", kanban.Comment{Text: "x", Date: time.Now()})
		assert.Equal(t, kanban.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		tasks, err := repo.QueryTasks(ctx, kanban.QueryFilter{StudentIDs: []string{"s1"}})
		require.NoError(t, err)
		assert.Len(t, tasks, 2)

		tasks, err = repo.QueryTasks(ctx, kanban.QueryFilter{CreatorID: "adv"})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)

		tasks, err = repo.QueryTasks(ctx, kanban.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, tasks, 3)
	})

	t.Run("move", func(t *testing.T) {
		moved, err := repo.MoveTask(ctx, c.ID, kanban.ColumnTodo, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, moved.Position)

		moved, err = repo.MoveTask(ctx, a.ID, kanban.ColumnDone, "")
		require.NoError(t, err)
		assert.Equal(t, kanban.ColumnDone, moved.Status)
		assert.Equal(t, 0, moved.Position)

		tasks, err := repo.QueryTasks(ctx, kanban.QueryFilter{})
		require.NoError(t, err)
		board := kanban.NewBoard(tasks)
		var todo []string
		for _, task := range board.Columns[0].Tasks {
			todo = append(todo, task.Title)
		}
		assert.Equal(t, []string{"C", "B"}, todo)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteTask(ctx, c.ID))
		assert.Equal(t, kanban.ErrNotFound, repo.DeleteTask(ctx, c.ID))

		_, err := repo.GetTask(ctx, c.ID)
		assert.Equal(t, kanban.ErrNotFound, err)
	})
}

func TestNotificationRepository(t *testing.T) {
	truncate(t)
	ctx := context.Background()
	users := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewNotificationRepository(db)
	usr := testutil.CreateUser(t, users, user.RoleStudent, "Ana Torres", "ana", "")

	seeds := notification.Seeds(usr.Role)
	for i := range seeds {
		seeds[i].CreatedAt = time.Now().UTC()
	}
	require.NoError(t, repo.SeedFeed(ctx, usr.ID, seeds))
	require.NoError(t, repo.SeedFeed(ctx, usr.ID, seeds), "seeding twice is a no-op")

	all, err := repo.ListNotifications(ctx, usr.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	unread, err := repo.ListNotifications(ctx, usr.ID, true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := repo.AddNotification(ctx, usr.ID, notification.Notification{Type: notification.TypeInfo, Text: "nueva", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 4, n.ID)

	read, err := repo.MarkAsRead(ctx, usr.ID, 4)
	require.NoError(t, err)
	assert.True(t, read.Read)

	_, err = repo.MarkAsRead(ctx, usr.ID, 99)
	assert.Equal(t, notification.ErrNotFound, err)
}
