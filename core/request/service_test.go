package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	testutil "github.com/trezcool/nexus/tests"
)

type fixture struct {
	svc      request.Service
	repo     request.Repository
	userRepo user.Repository
	notifSvc notification.Service
	mailBox  *testutil.MailBox

	admin, school, otherSchool, student, advisor, idleAdvisor user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := inmemdb.Open()
	f := &fixture{
		repo:     inmemdb.NewRequestRepository(db),
		userRepo: inmemdb.NewUserRepository(db),
		mailBox:  new(testutil.MailBox),
	}
	userSvc := user.NewService(f.userRepo)
	f.notifSvc = notification.NewService(inmemdb.NewNotificationRepository(db), userSvc)
	f.svc = request.NewService(f.repo, userSvc, f.notifSvc, f.mailBox, testutil.NopLogger{})

	f.admin = testutil.CreateUser(t, f.userRepo, user.RoleAdmin, "Admin", "admin", "")
	f.school = testutil.CreateUser(t, f.userRepo, user.RoleSchool, "Ingeniería de Sistemas e Informática", "episi", "", testutil.WithCode("EPISI"))
	f.otherSchool = testutil.CreateUser(t, f.userRepo, user.RoleSchool, "Ingeniería Civil", "epic", "", testutil.WithCode("EPIC"))
	f.student = testutil.CreateUser(t, f.userRepo, user.RoleStudent, "Quispe Mamani Juan Carlos", "jquispe", "",
		testutil.WithCareer("EPISI"), testutil.WithCode("2019204051"), testutil.WithEmail("jquispe@test.test"))
	f.advisor = testutil.CreateUser(t, f.userRepo, user.RoleAdvisor, "Ana López", "alopez", "", testutil.WithCareer("EPISI"))
	f.idleAdvisor = testutil.CreateUser(t, f.userRepo, user.RoleAdvisor, "Luis Rojas", "lrojas", "",
		testutil.WithCareer("EPISI"), testutil.WithStatus(user.StatusInactive))
	return f
}

func (f *fixture) approvedInit(t *testing.T) request.Request {
	t.Helper()
	return testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusApproved, "")
}

func TestService_SubmitAndApprove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	if _, err := f.svc.Submit(ctx, f.student, request.NewRequest{Type: request.TypeAdvisor, SchoolDesignates: true}); errors.Cause(err) != request.ErrInitNotApproved {
		t.Fatalf("Submit() error = %v, wantErr %v", err, request.ErrInitNotApproved)
	}

	req, err := f.svc.Submit(ctx, f.student, request.NewRequest{Type: request.TypeInit})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	assert.Equal(t, request.StatusPending, req.Status)
	assert.Equal(t, "EPISI", req.SchoolCode)
	assert.Equal(t, f.student.Code, req.StudentCode)
	assert.NotEmpty(t, req.ID)

	ok, _ := f.svc.HasApprovedInit(ctx, f.student.ID)
	assert.False(t, ok)

	if _, err = f.svc.Approve(ctx, f.otherSchool, req.ID); errors.Cause(err) != request.ErrNotFound {
		t.Errorf("Approve() by other school error = %v, wantErr %v", err, request.ErrNotFound)
	}
	if _, err = f.svc.Approve(ctx, f.student, req.ID); errors.Cause(err) != request.ErrForbidden {
		t.Errorf("Approve() by student error = %v, wantErr %v", err, request.ErrForbidden)
	}

	approved, err := f.svc.Approve(ctx, f.school, req.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	assert.Equal(t, request.StatusApproved, approved.Status)
	assert.True(t, approved.UpdatedAt.After(req.UpdatedAt) || approved.UpdatedAt.Equal(req.UpdatedAt))

	ok, _ = f.svc.HasApprovedInit(ctx, f.student.ID)
	assert.True(t, ok)

	if _, err = f.svc.Submit(ctx, f.student, request.NewRequest{Type: request.TypeAdvisor, SchoolDesignates: true}); err != nil {
		t.Errorf("Submit() advisor request error = %v", err)
	}

	// the student hears about it
	if n, _ := f.notifSvc.UnreadCount(ctx, f.student); n != 3 {
		t.Errorf("UnreadCount() = %d, want 3", n)
	}
	if msgs := f.mailBox.Messages(); assert.Len(t, msgs, 1) {
		assert.Equal(t, "jquispe@test.test", msgs[0].To[0].Address)
		assert.Equal(t, "request_decision", msgs[0].TemplateName)
	}
}

func TestService_Submit_proposedAdvisor(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.approvedInit(t)

	tests := []struct {
		name      string
		nr        request.NewRequest
		wantField string
	}{
		{name: "inactive advisor", nr: request.NewRequest{Type: request.TypeAdvisor, ProposedAdvisorID: f.idleAdvisor.ID}, wantField: "proposed_advisor_id"},
		{name: "not an advisor", nr: request.NewRequest{Type: request.TypeAdvisor, ProposedAdvisorID: f.school.ID}, wantField: "proposed_advisor_id"},
		{name: "active advisor", nr: request.NewRequest{Type: request.TypeAdvisor, ProposedAdvisorID: f.advisor.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := f.svc.Submit(ctx, f.student, tt.nr)
			if tt.wantField != "" {
				var verr *core.ValidationError
				if !errors.As(err, &verr) || verr.Fields[0].Field != tt.wantField {
					t.Errorf("Submit() error = %v, want field error on %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			assert.Equal(t, f.advisor.Name, req.Details.ProposedAdvisorName)

			// direct approval records the proposed advisor as designated
			approved, err := f.svc.Approve(ctx, f.admin, req.ID)
			if err != nil {
				t.Fatalf("Approve() error = %v", err)
			}
			if assert.NotNil(t, approved.Designation) {
				assert.Equal(t, f.advisor.ID, approved.Designation.AdvisorID)
			}
			ids, _ := f.svc.AdvisedStudents(ctx, f.advisor.ID)
			assert.Equal(t, []string{f.student.ID}, ids)
		})
	}
}

func TestService_Designate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.approvedInit(t)

	req, err := f.svc.Submit(ctx, f.student, request.NewRequest{Type: request.TypeAdvisor, SchoolDesignates: true})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err = f.svc.Approve(ctx, f.school, req.ID); errors.Cause(err) != request.ErrDesignationRequired {
		t.Errorf("Approve() error = %v, wantErr %v", err, request.ErrDesignationRequired)
	}

	tests := []struct {
		name    string
		nd      request.NewDesignation
		wantErr bool
	}{
		{name: "missing advisor", nd: request.NewDesignation{Topic: "Sistema de tutorías"}, wantErr: true},
		{name: "missing topic", nd: request.NewDesignation{AdvisorID: f.advisor.ID, Topic: "  "}, wantErr: true},
		{name: "inactive advisor", nd: request.NewDesignation{AdvisorID: f.idleAdvisor.ID, Topic: "Sistema de tutorías"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Designate(ctx, f.school, req.ID, tt.nd); (err != nil) != tt.wantErr {
				t.Errorf("Designate() error = %v, wantErr %v", err, tt.wantErr)
			}
			got, _ := f.repo.GetRequest(ctx, req.ID)
			assert.Equal(t, request.StatusPending, got.Status)
		})
	}

	got, err := f.svc.Designate(ctx, f.school, req.ID, request.NewDesignation{AdvisorID: f.advisor.ID, Topic: "Sistema de tutorías"})
	if err != nil {
		t.Fatalf("Designate() error = %v", err)
	}
	assert.Equal(t, request.StatusApproved, got.Status)
	if assert.NotNil(t, got.Designation) {
		assert.Equal(t, "Sistema de tutorías", got.Designation.Topic)
		assert.Equal(t, f.advisor.Name, got.Designation.AdvisorName)
	}

	ids, _ := f.svc.AdvisedStudents(ctx, f.advisor.ID)
	assert.Equal(t, []string{f.student.ID}, ids)

	// the advisor is told as well
	if n, _ := f.notifSvc.UnreadCount(ctx, f.advisor); n != 3 {
		t.Errorf("advisor UnreadCount() = %d, want 3", n)
	}
	if _, err = f.svc.Designate(ctx, f.school, req.ID, request.NewDesignation{AdvisorID: f.advisor.ID, Topic: "Otro"}); errors.Cause(err) != request.ErrInvalidTransition {
		t.Errorf("Designate() twice error = %v, wantErr %v", err, request.ErrInvalidTransition)
	}
}

func TestService_ObserveAndResubmit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	req, err := f.svc.Submit(ctx, f.student, request.NewRequest{Type: request.TypeInit})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err = f.svc.Observe(ctx, f.school, req.ID, "   "); err == nil {
		t.Error("Observe() without text should fail")
	}
	got, _ := f.repo.GetRequest(ctx, req.ID)
	assert.Equal(t, request.StatusPending, got.Status)

	observed, err := f.svc.Observe(ctx, f.school, req.ID, "Falta constancia de egresado")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	assert.Equal(t, request.StatusObserved, observed.Status)
	assert.Equal(t, "Falta constancia de egresado", observed.Observation)

	// statuses only move forward
	if _, err = f.svc.Approve(ctx, f.school, req.ID); errors.Cause(err) != request.ErrInvalidTransition {
		t.Errorf("Approve() error = %v, wantErr %v", err, request.ErrInvalidTransition)
	}
	if _, err = f.svc.Observe(ctx, f.school, req.ID, "otra"); errors.Cause(err) != request.ErrInvalidTransition {
		t.Errorf("Observe() error = %v, wantErr %v", err, request.ErrInvalidTransition)
	}

	if _, err = f.svc.Resubmit(ctx, f.student, req.ID, request.NewRequest{}); err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if _, err = f.svc.Resubmit(ctx, f.student, req.ID, request.NewRequest{}); errors.Cause(err) != request.ErrInvalidTransition {
		t.Errorf("Resubmit() twice error = %v, wantErr %v", err, request.ErrInvalidTransition)
	}

	reqs, _ := f.svc.Query(ctx, f.student, request.Filter{})
	if assert.Len(t, reqs, 2) {
		assert.Equal(t, request.StatusObserved, reqs[1].Status)
		assert.Equal(t, request.StatusPending, reqs[0].Status)
		assert.Equal(t, req.ID, reqs[0].PreviousID)
		assert.Equal(t, request.TypeInit, reqs[0].Type)
	}
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	lost := testutil.CreateUser(t, f.userRepo, user.RoleStudent, "Eva Soto", "esoto", "", testutil.WithCareer("Medicina"))

	now := time.Now()
	older := testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusApproved, "", now.Add(-48*time.Hour))
	newer := testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeAdvisor, request.StatusPending, "", now.Add(-time.Hour))
	civil := testutil.CreateRequest(t, f.repo, lost, "EPIC", request.TypeInit, request.StatusPending, "", now.Add(-2*time.Hour))

	unresolved, err := f.svc.Submit(ctx, lost, request.NewRequest{Type: request.TypeInit})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	assert.Empty(t, unresolved.SchoolCode)

	tests := []struct {
		name   string
		actor  user.User
		filter request.Filter
		want   []string
	}{
		{name: "admin sees all", actor: f.admin, want: []string{unresolved.ID, newer.ID, civil.ID, older.ID}},
		{name: "school sees own", actor: f.school, want: []string{newer.ID, older.ID}},
		{name: "school by status", actor: f.school, filter: request.Filter{Status: "pending"}, want: []string{newer.ID}},
		{name: "school by type", actor: f.school, filter: request.Filter{Type: request.TypeInit, Status: "all"}, want: []string{older.ID}},
		{name: "other school", actor: f.otherSchool, want: []string{civil.ID}},
		{name: "student sees own", actor: lost, want: []string{unresolved.ID, civil.ID}},
		{name: "jury sees none", actor: user.User{ID: "j", Role: user.RoleJury}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := f.svc.Query(ctx, tt.actor, tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			ids := make([]string, 0, len(reqs))
			for _, r := range reqs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	if _, err := f.svc.Get(ctx, f.otherSchool, older.ID); errors.Cause(err) != request.ErrNotFound {
		t.Errorf("Get() error = %v, wantErr %v", err, request.ErrNotFound)
	}
}

func TestService_Dashboard(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusApproved, "")
	testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusPending, "")
	testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeAdvisor, request.StatusObserved, "")
	testutil.CreateRequest(t, f.repo, f.student, "EPIC", request.TypeAdvisor, request.StatusPending, "")

	folders, err := f.svc.Dashboard(ctx, f.school)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	want := []request.Folder{
		{Type: request.TypeInit, Total: 2, Pending: 1},
		{Type: request.TypeAdvisor, Total: 1, Pending: 0},
	}
	assert.Equal(t, want, folders)
}

func TestService_FUT(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	req := f.approvedInit(t)

	fut, err := f.svc.FUT(ctx, f.student, req.ID)
	if err != nil {
		t.Fatalf("FUT() error = %v", err)
	}
	assert.Equal(t, "DIRECTOR DE LA ESCUELA PROFESIONAL DE EPISI", fut.Addressee)
	assert.Equal(t, "Quispe", fut.Paterno)
	assert.Equal(t, "Mamani", fut.Materno)
	assert.Equal(t, "Juan Carlos", fut.Nombres)
	assert.Equal(t, "2019204051", fut.Document)
	assert.Equal(t, "SOLICITUD DE INICIO DE TRÁMITE DE GRADOS Y TÍTULOS", fut.Subject)

	if _, err = f.svc.FUT(ctx, f.otherSchool, req.ID); errors.Cause(err) != request.ErrNotFound {
		t.Errorf("FUT() error = %v, wantErr %v", err, request.ErrNotFound)
	}
}

func TestStale(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	now := time.Now()
	old := testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusPending, "", now.Add(-10*24*time.Hour))
	testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusPending, "", now)
	testutil.CreateRequest(t, f.repo, f.student, "EPISI", request.TypeInit, request.StatusApproved, "", now.Add(-10*24*time.Hour))

	stale, err := f.svc.Stale(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Stale() error = %v", err)
	}
	if assert.Len(t, stale, 1) {
		assert.Equal(t, old.ID, stale[0].ID)
	}
}
