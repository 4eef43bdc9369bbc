package user

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound           = errors.New("user not found")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrCodeExists         = errors.New("a school with this code already exists")
	ErrLastAdmin          = errors.New("the last administrator cannot be deleted")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAdvisor         = errors.New("user is not an advisor")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists if usr.Username is taken within usr.Role
		// or ErrCodeExists if usr is a school whose Code is taken. usr itself (same ID) is ignored.
		CheckUniqueness(ctx context.Context, usr User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields (see QueryFilter.Match).
		QueryUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		CountUsers(ctx context.Context, role string) (int, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// DeleteUser returns ErrLastAdmin, leaving the collection unchanged, when usr is the only admin left.
		DeleteUser(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, id string) error
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, role, uname string) (User, error)
		Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]User, error)
		Count(ctx context.Context, role string) (int, error)
		Authenticate(ctx context.Context, uname, pwd string) (User, error)
		SetAvailability(ctx context.Context, advisorID, status string) (User, error)
		ActiveAdvisors(ctx context.Context) ([]User, error)
		SetPassword(ctx context.Context, id, pwd string) (User, error)
		Seed(ctx context.Context) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) checkUniqueness(ctx context.Context, usr User) error {
	return uniquenessError(svc.repo.CheckUniqueness(ctx, usr))
}

// uniquenessError turns the repository uniqueness errors into field validation errors.
func uniquenessError(err error) error {
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case ErrUsernameExists:
		return core.NewFieldError("username", errors.Cause(err))
	case ErrCodeExists:
		return core.NewFieldError("code", errors.Cause(err))
	}
	return err
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Role:      nu.Role,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Career:    nu.Career,
		Code:      nu.Code,
		Specialty: nu.Specialty,
		Status:    nu.Status,
		Faculty:   nu.Faculty,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.IsAdvisor() && usr.Status == "" {
		usr.Status = StatusActive
	}
	if err := svc.checkUniqueness(ctx, usr); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, uniquenessError(err)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr = uu.merge(usr)
	usr.UpdatedAt = nowFunc().UTC()

	if err := svc.checkUniqueness(ctx, usr); err != nil {
		return User{}, err
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, uniquenessError(err)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteUser(ctx, id)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsername(ctx context.Context, role, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Role: role, Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter, orderings...)
}

func (svc *service) Count(ctx context.Context, role string) (int, error) {
	return svc.repo.CountUsers(ctx, role)
}

// Authenticate looks the username up in every collection and checks the password of the first match,
// in role priority order (admin, school, advisor, jury, student).
func (svc *service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{Username: core.CleanString(uname, true /* lower */)})
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by username")
	}
	sort.SliceStable(users, func(i, j int) bool { return RolePriority(users[i].Role) > RolePriority(users[j].Role) })

	for _, usr := range users {
		if usr.CheckPassword(pwd) != nil {
			continue
		}
		now := nowFunc().UTC()
		usr.LastLogin = &now
		return svc.repo.UpdateUser(ctx, usr)
	}
	return User{}, ErrInvalidCredentials
}

func (svc *service) SetAvailability(ctx context.Context, advisorID, status string) (User, error) {
	usr, err := svc.GetByID(ctx, advisorID)
	if err != nil {
		return User{}, err
	}
	if !usr.IsAdvisor() {
		return User{}, ErrNotAdvisor
	}
	usr.Status = status
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ActiveAdvisors(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, QueryFilter{Role: RoleAdvisor, Status: StatusActive}, core.DBOrdering{Field: "name", Ascending: true})
}

func (svc *service) SetPassword(ctx context.Context, id, pwd string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Seed inserts the default administrator and schools, skipping those already present.
func (svc *service) Seed(ctx context.Context) error {
	for _, seed := range seeds() {
		_, err := svc.repo.GetUser(ctx, GetFilter{Role: seed.Role, Username: seed.Username})
		if err == nil {
			continue
		}
		if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding seed "+seed.Username)
		}
		now := nowFunc().UTC()
		usr := User{
			Role:      seed.Role,
			Name:      seed.Name,
			Username:  seed.Username,
			Code:      seed.Code,
			Faculty:   seed.Faculty,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := usr.SetPassword(seed.Password); err != nil {
			return errors.Wrap(err, "hashing password")
		}
		if _, err := svc.repo.CreateUser(ctx, usr); err != nil {
			return errors.Wrap(err, "creating seed "+seed.Username)
		}
	}
	return nil
}

type seed struct {
	Role, Name, Username, Password, Code, Faculty string
}

func seeds() []seed {
	const engineering = "Facultad de Ingeniería"
	schools := []struct{ code, name, faculty string }{
		{"EPISI", "Ingeniería de Sistemas e Informática", engineering},
		{"EPIC", "Ingeniería Civil", engineering},
		{"EPIM", "Ingeniería de Minas", engineering},
		{"EPIAG", "Ingeniería Agroindustrial", engineering},
		{"EPIAM", "Ingeniería Ambiental", engineering},
		{"EPGP", "Gestión Pública y Desarrollo Social", "Facultad de Ciencias Jurídicas"},
	}

	all := []seed{{Role: RoleAdmin, Name: "Administrador Principal", Username: "admin", Password: "admin123"}}
	for _, s := range schools {
		uname := strings.ToLower(s.code)
		all = append(all, seed{Role: RoleSchool, Name: s.name, Username: uname, Password: "123", Code: s.code, Faculty: s.faculty})
	}
	return all
}
