package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/nexus/core"
)

// Roles: one collection per role.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
	RoleAdvisor = "advisor"
	RoleJury    = "jury"
	RoleSchool  = "school"
)

// Advisor availability
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	AllRoles = []string{RoleAdmin, RoleSchool, RoleAdvisor, RoleJury, RoleStudent}

	// OrderFields are the fields a Query may be ordered by.
	OrderFields = []string{"name", "username", "created_at"}

	// login lookup order when a username exists in several collections
	rolePriorities = map[string]int{
		RoleAdmin:   50,
		RoleSchool:  40,
		RoleAdvisor: 30,
		RoleJury:    20,
		RoleStudent: 10,
	}

	Roles = []Role{
		{Name: "Administrador", Value: RoleAdmin, Collection: "admins"},
		{Name: "Estudiante", Value: RoleStudent, Collection: "students"},
		{Name: "Asesor", Value: RoleAdvisor, Collection: "advisors"},
		{Name: "Jurado", Value: RoleJury, Collection: "jury"},
		{Name: "Escuela", Value: RoleSchool, Collection: "schools"},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// RoleLabel is the display name of role.
func RoleLabel(role string) string {
	for _, r := range Roles {
		if r.Value == role {
			return r.Name
		}
	}
	return role
}

type Role struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Collection string `json:"collection"`
}

// User is a record of any of the five collections (admins, students, advisors, jury, schools).
type User struct {
	ID           string     `json:"id" db:"id"`
	Role         string     `json:"role" db:"role"`
	Name         string     `json:"name" db:"name"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email,omitempty" db:"email"`
	PasswordHash []byte     `json:"-" db:"password_hash"`
	Career       string     `json:"career,omitempty" db:"career"`       // student, advisor
	Code         string     `json:"code,omitempty" db:"code"`           // student code, school code
	Specialty    string     `json:"specialty,omitempty" db:"specialty"` // advisor
	Status       string     `json:"status,omitempty" db:"status"`       // advisor
	Faculty      string     `json:"faculty,omitempty" db:"faculty"`     // school
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`         // UTC
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`         // UTC
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsAdvisor() bool { return u.Role == RoleAdvisor }
func (u User) IsJury() bool    { return u.Role == RoleJury }
func (u User) IsSchool() bool  { return u.Role == RoleSchool }

// IsAvailable reports whether an advisor takes new students. A missing status counts as active.
func (u User) IsAvailable() bool {
	return u.Status == "" || u.Status == StatusActive
}

// MailAddress returns the user's address, if any.
func (u User) MailAddress() (mail.Address, bool) {
	if u.Email == "" {
		return mail.Address{}, false
	}
	return mail.Address{Name: u.Name, Address: u.Email}, true
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Role      string `json:"-" validate:"required,oneof=admin student advisor jury school"`
	Name      string `json:"name" validate:"required"`
	Username  string `json:"username" validate:"required,max=128,username"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password" validate:"required"`
	Career    string `json:"career"`
	Code      string `json:"code" validate:"omitempty,max=64"`
	Specialty string `json:"specialty"`
	Status    string `json:"status" validate:"omitempty,oneof=active inactive"`
	Faculty   string `json:"faculty"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Career = core.CleanString(nu.Career)
	nu.Code = core.CleanString(nu.Code)
	nu.Specialty = core.CleanString(nu.Specialty)
	nu.Status = core.CleanString(nu.Status, true /* lower */)
	nu.Faculty = core.CleanString(nu.Faculty)
	if nu.Role == RoleSchool {
		nu.Code = strings.ToUpper(nu.Code)
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return requireRoleFields(nu.Role, nu.Career, nu.Code)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Empty fields keep their current value.
type UpdateUser struct {
	Name      string `json:"name"`
	Username  string `json:"username" validate:"omitempty,max=128,username"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password"`
	Career    string `json:"career"`
	Code      string `json:"code" validate:"omitempty,max=64"`
	Specialty string `json:"specialty"`
	Status    string `json:"status" validate:"omitempty,oneof=active inactive"`
	Faculty   string `json:"faculty"`

	origUsr User
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	uu.origUsr = origUsr
	uu.Name = core.CleanString(uu.Name)
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Career = core.CleanString(uu.Career)
	uu.Code = core.CleanString(uu.Code)
	if origUsr.IsSchool() {
		uu.Code = strings.ToUpper(uu.Code)
	}
	uu.Specialty = core.CleanString(uu.Specialty)
	uu.Status = core.CleanString(uu.Status, true /* lower */)
	uu.Faculty = core.CleanString(uu.Faculty)
	return validate.Struct(uu)
}

// merge applies the set fields of uu to usr.
func (uu UpdateUser) merge(usr User) User {
	set := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	set(&usr.Name, uu.Name)
	set(&usr.Username, uu.Username)
	set(&usr.Email, uu.Email)
	set(&usr.Career, uu.Career)
	set(&usr.Code, uu.Code)
	set(&usr.Specialty, uu.Specialty)
	set(&usr.Status, uu.Status)
	set(&usr.Faculty, uu.Faculty)
	return usr
}

func requireRoleFields(role, career, code string) error {
	var flds []core.FieldError
	switch role {
	case RoleStudent, RoleAdvisor:
		if career == "" {
			flds = append(flds, core.FieldError{Field: "career", Error: "this field is required"})
		}
	case RoleSchool:
		if code == "" {
			flds = append(flds, core.FieldError{Field: "code", Error: "this field is required"})
		}
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// GetFilter selects a single User: by ID, or by Role and Username.
type GetFilter struct {
	ID       string
	Role     string
	Username string
}

type QueryFilter struct {
	Role     string `query:"-"`
	Username string `query:"-"` // exact match, across roles when Role is empty
	Search   string `query:"search"`
	Career   string `query:"career"`
	Status   string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Username = core.CleanString(qf.Username, true /* lower */)
	qf.Career = core.CleanString(qf.Career)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	if qf.Career == "all" {
		qf.Career = ""
	}
	if qf.Status == "all" {
		qf.Status = ""
	}
}

// Match reports whether usr satisfies every set field of the filter.
// Search is a case-insensitive substring match on name or username (schools: name, faculty or code).
func (qf QueryFilter) Match(usr User) bool {
	if qf.Role != "" && usr.Role != qf.Role {
		return false
	}
	if qf.Username != "" && usr.Username != qf.Username {
		return false
	}
	if qf.Search != "" {
		var found bool
		if usr.IsSchool() {
			found = core.ContainsFold(usr.Name, qf.Search) ||
				core.ContainsFold(usr.Faculty, qf.Search) ||
				core.ContainsFold(usr.Code, qf.Search)
		} else {
			found = core.ContainsFold(usr.Name, qf.Search) || core.ContainsFold(usr.Username, qf.Search)
		}
		if !found {
			return false
		}
	}
	if qf.Career != "" && usr.Career != qf.Career {
		return false
	}
	if qf.Status != "" {
		if (qf.Status == StatusActive) != usr.IsAvailable() {
			return false
		}
	}
	return true
}
