package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	testutil "github.com/trezcool/nexus/tests"
)

func setup(t *testing.T) (user.Service, user.Repository) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo), repo
}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	testutil.CreateUser(t, repo, user.RoleStudent, "Juan Perez", "juan", "")
	testutil.CreateUser(t, repo, user.RoleSchool, "Ingeniería Civil", "epic", "", testutil.WithCode("EPIC"))

	tests := []struct {
		name      string
		nu        user.NewUser
		wantErr   bool
		wantField string
		wantCount int // students after the call
	}{
		{
			name:      "duplicate username in role",
			nu:        user.NewUser{Role: user.RoleStudent, Name: "Other Juan", Username: "juan", Password: "s3cr3tpass", Career: "EPISI"},
			wantErr:   true,
			wantField: "username",
			wantCount: 1,
		},
		{
			name:      "same username in another role",
			nu:        user.NewUser{Role: user.RoleAdvisor, Name: "Juan Advisor", Username: "juan", Password: "s3cr3tpass", Career: "EPISI"},
			wantCount: 1,
		},
		{
			name:      "duplicate school code",
			nu:        user.NewUser{Role: user.RoleSchool, Name: "Civil 2", Username: "civil2", Password: "s3cr3tpass", Code: "epic"},
			wantErr:   true,
			wantField: "code",
			wantCount: 1,
		},
		{
			name:      "new student",
			nu:        user.NewUser{Role: user.RoleStudent, Name: "Maria Quispe", Username: "maria", Password: "s3cr3tpass", Career: "EPISI", Code: "2020101"},
			wantCount: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.nu)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantField != "" {
				var verr *core.ValidationError
				if !errors.As(err, &verr) || verr.Fields[0].Field != tt.wantField {
					t.Errorf("Create() error = %v, want field error on %s", err, tt.wantField)
				}
			}
			if n, _ := svc.Count(ctx, user.RoleStudent); n != tt.wantCount {
				t.Errorf("Count() = %d, want %d", n, tt.wantCount)
			}
		})
	}
}

func TestService_Create_advisorDefaultsToActive(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	adv, err := svc.Create(ctx, user.NewUser{
		Role:      user.RoleAdvisor,
		Name:      "Ana López",
		Username:  "alopez",
		Password:  "s3cr3tpass",
		Career:    "EPISI",
		Specialty: "Redes",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	assert.Equal(t, user.StatusActive, adv.Status)

	actives, err := svc.ActiveAdvisors(ctx)
	if err != nil {
		t.Fatalf("ActiveAdvisors() error = %v", err)
	}
	if assert.Len(t, actives, 1) {
		assert.Equal(t, adv.ID, actives[0].ID)
	}

	if _, err = svc.SetAvailability(ctx, adv.ID, user.StatusInactive); err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}
	actives, _ = svc.ActiveAdvisors(ctx)
	assert.Empty(t, actives)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	juan := testutil.CreateUser(t, repo, user.RoleStudent, "Juan Perez", "juan", "", testutil.WithCareer("EPISI"))
	testutil.CreateUser(t, repo, user.RoleStudent, "Rosa Diaz", "rosa", "")

	tests := []struct {
		name    string
		uu      user.UpdateUser
		wantErr bool
		want    func(user.User) bool
	}{
		{name: "username taken", uu: user.UpdateUser{Username: "rosa"}, wantErr: true},
		{name: "keep own username", uu: user.UpdateUser{Username: "juan", Name: "Juan P."}, want: func(u user.User) bool { return u.Name == "Juan P." }},
		{name: "shallow merge", uu: user.UpdateUser{Code: "2020"}, want: func(u user.User) bool { return u.Code == "2020" && u.Career == "EPISI" && u.Name == "Juan P." }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Update(ctx, juan.ID, tt.uu)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Update() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want != nil && !tt.want(got) {
				t.Errorf("Update() got = %+v", got)
			}
			if got.ID != "" && got.ID != juan.ID {
				t.Errorf("Update() changed ID to %s", got.ID)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	admin := testutil.CreateUser(t, repo, user.RoleAdmin, "Admin", "admin", "")

	if err := svc.Delete(ctx, admin.ID); errors.Cause(err) != user.ErrLastAdmin {
		t.Errorf("Delete() error = %v, wantErr %v", err, user.ErrLastAdmin)
	}
	if n, _ := svc.Count(ctx, user.RoleAdmin); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	other := testutil.CreateUser(t, repo, user.RoleAdmin, "Other Admin", "other", "")
	if err := svc.Delete(ctx, admin.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, other.ID); errors.Cause(err) != user.ErrLastAdmin {
		t.Errorf("Delete() error = %v, wantErr %v", err, user.ErrLastAdmin)
	}
	if _, err := svc.GetByID(ctx, admin.ID); errors.Cause(err) != user.ErrNotFound {
		t.Errorf("GetByID() error = %v, wantErr %v", err, user.ErrNotFound)
	}
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	juan := testutil.CreateUser(t, repo, user.RoleStudent, "Juan Perez", "juan", "", testutil.WithCareer("EPISI"))
	rosa := testutil.CreateUser(t, repo, user.RoleStudent, "Rosa Diaz", "rosa", "", testutil.WithCareer("EPIC"))
	ana := testutil.CreateUser(t, repo, user.RoleAdvisor, "Ana López", "alopez", "", testutil.WithCareer("EPISI"))
	luis := testutil.CreateUser(t, repo, user.RoleAdvisor, "Luis Rojas", "lrojas", "", testutil.WithStatus(user.StatusInactive))
	legacy := testutil.CreateUser(t, repo, user.RoleAdvisor, "Old Record", "old", "", testutil.WithStatus(""))
	epic := testutil.CreateUser(t, repo, user.RoleSchool, "Ingeniería Civil", "epic", "", testutil.WithCode("EPIC"), func(u *user.User) {
		u.Faculty = "Facultad de Ingeniería"
	})

	tests := []struct {
		name   string
		filter user.QueryFilter
		want   []user.User
	}{
		{name: "all students", filter: user.QueryFilter{Role: user.RoleStudent}, want: []user.User{juan, rosa}},
		{name: "search name", filter: user.QueryFilter{Role: user.RoleStudent, Search: "PEREZ"}, want: []user.User{juan}},
		{name: "search username", filter: user.QueryFilter{Role: user.RoleStudent, Search: "ros"}, want: []user.User{rosa}},
		{name: "career", filter: user.QueryFilter{Role: user.RoleStudent, Career: "EPIC"}, want: []user.User{rosa}},
		{name: "career all", filter: user.QueryFilter{Role: user.RoleStudent, Career: "all"}, want: []user.User{juan, rosa}},
		{name: "active advisors", filter: user.QueryFilter{Role: user.RoleAdvisor, Status: "active"}, want: []user.User{ana, legacy}},
		{name: "inactive advisors", filter: user.QueryFilter{Role: user.RoleAdvisor, Status: "inactive"}, want: []user.User{luis}},
		{name: "school faculty", filter: user.QueryFilter{Role: user.RoleSchool, Search: "facultad"}, want: []user.User{epic}},
		{name: "school code", filter: user.QueryFilter{Role: user.RoleSchool, Search: "epi"}, want: []user.User{epic}},
		{name: "no match", filter: user.QueryFilter{Role: user.RoleJury}, want: []user.User{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter, nil)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)
	student := testutil.CreateUser(t, repo, user.RoleStudent, "Shared Student", "shared", "student-pwd")
	school := testutil.CreateUser(t, repo, user.RoleSchool, "Shared School", "shared", "school-pwd", testutil.WithCode("SHR"))

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantID  string
		wantErr error
	}{
		{name: "unknown username", uname: "nobody", pwd: "x", wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", uname: "shared", pwd: "nope", wantErr: user.ErrInvalidCredentials},
		{name: "higher priority role first", uname: "shared", pwd: "school-pwd", wantID: school.ID},
		{name: "falls back to lower role", uname: " SHARED ", pwd: "student-pwd", wantID: student.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Authenticate(ctx, tt.uname, tt.pwd)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				assert.Equal(t, tt.wantID, got.ID)
				assert.NotNil(t, got.LastLogin)
			}
		})
	}
}

func TestService_Seed(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	for i := 0; i < 2; i++ {
		if err := svc.Seed(ctx); err != nil {
			t.Fatalf("Seed() error = %v", err)
		}
	}
	if n, _ := svc.Count(ctx, user.RoleAdmin); n != 1 {
		t.Errorf("admins = %d, want 1", n)
	}
	if n, _ := svc.Count(ctx, user.RoleSchool); n != 6 {
		t.Errorf("schools = %d, want 6", n)
	}

	admin, err := svc.Authenticate(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	assert.Equal(t, "Administrador Principal", admin.Name)

	episi, err := svc.GetByUsername(ctx, user.RoleSchool, "episi")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	assert.Equal(t, "EPISI", episi.Code)
}

func TestNewUser_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{name: "valid", nu: user.NewUser{Role: user.RoleJury, Name: "Carlos Ruiz", Username: "cruiz", Password: "x9$kTq2!"}},
		{name: "invalid username", nu: user.NewUser{Role: user.RoleJury, Name: "Carlos Ruiz", Username: "c ruiz!", Password: "x9$kTq2!"}, wantErr: true},
		{name: "short password", nu: user.NewUser{Role: user.RoleJury, Name: "Carlos Ruiz", Username: "cruiz", Password: "abc"}, wantErr: true},
		{name: "password with space", nu: user.NewUser{Role: user.RoleJury, Name: "Carlos Ruiz", Username: "cruiz", Password: "abc def ghi"}, wantErr: true},
		{name: "password like username", nu: user.NewUser{Role: user.RoleJury, Name: "Carlos Ruiz", Username: "carlitos", Password: "carlitos1"}, wantErr: true},
		{name: "student needs career", nu: user.NewUser{Role: user.RoleStudent, Name: "Eva Soto", Username: "esoto", Password: "x9$kTq2!"}, wantErr: true},
		{name: "school needs code", nu: user.NewUser{Role: user.RoleSchool, Name: "Escuela", Username: "esc", Password: "x9$kTq2!"}, wantErr: true},
		{name: "invalid status", nu: user.NewUser{Role: user.RoleAdvisor, Name: "Eva Soto", Username: "esoto", Password: "x9$kTq2!", Career: "EPIC", Status: "busy"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.nu.Validate(validate); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
