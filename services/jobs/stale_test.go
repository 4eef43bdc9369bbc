package jobs_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	"github.com/trezcool/nexus/services/jobs"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	testutil "github.com/trezcool/nexus/tests"
)

func TestStaleRequests_Run(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	reqRepo := inmemdb.NewRequestRepository(db)
	userSvc := user.NewService(userRepo)
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), userSvc)
	reqSvc := request.NewService(reqRepo, userSvc, notifSvc, new(testutil.MailBox), testutil.NopLogger{})

	admin := testutil.CreateUser(t, userRepo, user.RoleAdmin, "Admin", "admin", "")
	student := testutil.CreateUser(t, userRepo, user.RoleStudent, "Juan Quispe", "jquispe", "")

	old := time.Now().Add(-10 * 24 * time.Hour)
	stale := testutil.CreateRequest(t, reqRepo, student, "EPISI", request.TypeInit, request.StatusPending, "", old)
	testutil.CreateRequest(t, reqRepo, student, "EPISI", request.TypeAdvisor, request.StatusPending, "")
	testutil.CreateRequest(t, reqRepo, student, "EPISI", request.TypeInit, request.StatusApproved, "", old)

	job := jobs.NewStaleRequests(reqSvc, userSvc, notifSvc, 7*24*time.Hour)
	runner := jobs.New(ctx, testutil.NopLogger{})

	unread := func() int {
		n, err := notifSvc.UnreadCount(ctx, admin)
		if err != nil {
			t.Fatalf("UnreadCount() error = %v", err)
		}
		return n
	}
	before := unread()

	if err := runner.Run(jobs.StaleRequestsJob, job.Run); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assert.Equal(t, before+1, unread())

	notifs, err := notifSvc.List(ctx, admin, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var found bool
	for _, n := range notifs {
		if n.Type == notification.TypeWarning && strings.Contains(n.Text, stale.Type) && strings.Contains(n.Text, "10 días") {
			found = true
		}
	}
	assert.True(t, found, "admin warned about the stale request")

	// already notified
	if err := runner.Run(jobs.StaleRequestsJob, job.Run); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assert.Equal(t, before+1, unread())
}

func TestRunner_Run(t *testing.T) {
	runner := jobs.New(context.Background(), testutil.NopLogger{})
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		fn      jobs.Job
		wantErr bool
	}{
		{name: "ok", fn: func(context.Context) error { return nil }},
		{name: "error", fn: func(context.Context) error { return errBoom }, wantErr: true},
		{name: "panic", fn: func(context.Context) error { panic("boom") }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runner.Run(tt.name, tt.fn); (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunner_Every(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := jobs.New(ctx, testutil.NopLogger{})

	ran := make(chan struct{}, 1)
	runner.Every(5*time.Millisecond, "tick", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	runner.Wait()
}
