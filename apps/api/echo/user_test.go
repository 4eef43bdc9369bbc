package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/nexus/apps/api/echo"
	"github.com/trezcool/nexus/core/user"
	testutil "github.com/trezcool/nexus/tests"
)

func Test_userApi_login(t *testing.T) {
	f := setup(t)

	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{
			name: "Username required", body: []byte(`{"password":"Pa$$w0rd"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"username":"this field is required"}`),
		},
		{name: "Unknown user", body: []byte(`{"username":"lol","password":"Pa$$w0rd"}`), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "Wrong password", body: []byte(`{"username":"admin","password":"lol"}`), wantCode: http.StatusBadRequest, wantData: authFailed},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/auth/login"
	}
	runHTTPTests(t, f, tests)

	t.Run("Logged in", func(t *testing.T) {
		var res echoapi.LoginResponse
		code := f.do(t, http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Username: " ADMIN ", Password: "Pa$$w0rd"}, &res)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, res.Token)
		if assert.NotNil(t, res.User) {
			assert.Equal(t, f.admin.ID, res.User.ID)
			assert.NotNil(t, res.User.LastLogin)
		}

		var me user.User
		code = f.do(t, http.MethodGet, "/v1/auth/me", res.Token, nil, &me)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, f.admin.Username, me.Username)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setup(t)

	expired := time.Now().Add(-2 * f.conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := echoapi.GenerateToken(f.conf, f.student, expired)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: f.token(t, f.student)},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/auth/token-refresh"
	}
	runHTTPTests(t, f, tests)
}

func Test_userApi_query(t *testing.T) {
	f := setup(t)
	idle := testutil.CreateUser(t, f.usrRepo, user.RoleAdvisor, "Luis Rojas", "lrojas", "",
		testutil.WithCareer("EPIC"), testutil.WithStatus(user.StatusInactive))

	adminToken := f.token(t, f.admin)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", path: "/v1/students", token: f.token(t, f.student), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "Students", path: "/v1/students", token: adminToken, wantData: marchallList(t, f.student)},
		{name: "Schools", path: "/v1/schools", token: adminToken, wantData: marchallList(t, f.school)},
		{name: "Jury (empty)", path: "/v1/jury", token: adminToken, wantData: marchallList(t)},
		{name: "Advisors as student", path: "/v1/advisors", token: f.token(t, f.student), wantData: marchallList(t, f.advisor, idle)},
		{name: "Advisors as advisor", path: "/v1/advisors", token: f.token(t, f.advisor), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "status=inactive", path: "/v1/advisors?status=inactive", token: adminToken, wantData: marchallList(t, idle)},
		{name: "career=all", path: "/v1/advisors?career=all", token: adminToken, wantData: marchallList(t, f.advisor, idle)},
		{name: "search=ana", path: "/v1/advisors?search=ana", token: adminToken, wantData: marchallList(t, f.advisor)},
		{name: "Roles", path: "/v1/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
		{
			name: "Unknown ordering field", path: "/v1/advisors?ordering=name,-password_hash", token: adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"ordering": `cannot order by "password_hash", use one of name, username, created_at`}),
		},
	})

	t.Run("ordering", func(t *testing.T) {
		var advisors []user.User
		code := f.do(t, http.MethodGet, "/v1/advisors?ordering=-name", adminToken, nil, &advisors)
		assert.Equal(t, http.StatusOK, code)
		if assert.Len(t, advisors, 2) {
			assert.Equal(t, idle.ID, advisors[0].ID)
			assert.Equal(t, f.advisor.ID, advisors[1].ID)
		}

		code = f.do(t, http.MethodGet, "/v1/advisors?ordering=+NAME", adminToken, nil, &advisors)
		assert.Equal(t, http.StatusOK, code)
		if assert.Len(t, advisors, 2) {
			assert.Equal(t, f.advisor.ID, advisors[0].ID)
		}
	})
}

func Test_userApi_detail(t *testing.T) {
	f := setup(t)
	adminToken := f.token(t, f.admin)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	runHTTPTests(t, f, []httpTest{
		{name: "Retrieve", path: "/v1/students/" + f.student.ID, token: adminToken, wantData: marchallObj(t, f.student)},
		{name: "Wrong collection", path: "/v1/advisors/" + f.student.ID, token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "Unknown ID", path: "/v1/students/lol", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "No self-deletion", method: http.MethodDelete, path: "/v1/admins/" + f.admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	})

	t.Run("Create", func(t *testing.T) {
		var errs map[string]string
		code := f.do(t, http.MethodPost, "/v1/schools", adminToken, user.NewUser{Name: "Ingeniería Civil", Username: "epic", Password: "s3cr3t!!"}, &errs)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]string{"code": "this field is required"}, errs)

		var school user.User
		code = f.do(t, http.MethodPost, "/v1/schools", adminToken,
			user.NewUser{Name: "Ingeniería Civil", Username: "epic", Password: "s3cr3t!!", Code: "epic"}, &school)
		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, user.RoleSchool, school.Role)
		assert.Equal(t, "EPIC", school.Code)

		code = f.do(t, http.MethodPost, "/v1/schools", adminToken,
			user.NewUser{Name: "Otra", Username: "otra", Password: "s3cr3t!!", Code: "Epic"}, &errs)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, map[string]string{"code": user.ErrCodeExists.Error()}, errs)
	})

	t.Run("Update", func(t *testing.T) {
		var usr user.User
		code := f.do(t, http.MethodPut, "/v1/advisors/"+f.advisor.ID, adminToken, user.UpdateUser{Specialty: "Redes"}, &usr)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Redes", usr.Specialty)
		assert.Equal(t, f.advisor.Name, usr.Name)
	})

	t.Run("Delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+f.student.ID, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/students/"+f.student.ID, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_setAvailability(t *testing.T) {
	f := setup(t)
	path := "/v1/advisors/me/availability"

	runHTTPTests(t, f, []httpTest{
		{
			name: "Advisor required", method: http.MethodPut, path: path, token: f.token(t, f.student), body: []byte(`{"status":"inactive"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Invalid status", method: http.MethodPut, path: path, token: f.token(t, f.advisor), body: []byte(`{"status":"lol"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"status":"status must be one of [active inactive]"}`),
		},
	})

	var usr user.User
	code := f.do(t, http.MethodPut, path, f.token(t, f.advisor), echoapi.AvailabilityRequest{Status: "INACTIVE"}, &usr)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, user.StatusInactive, usr.Status)
	assert.False(t, usr.IsAvailable())
}
