package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, usr user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(usr)
}

func (repo *userRepository) checkUniqueness(usr user.User) error {
	for _, u := range repo.db.table {
		if u.ID == usr.ID || u.Role != usr.Role {
			continue
		}
		if u.Username == usr.Username {
			return user.ErrUsernameExists
		}
		if usr.IsSchool() && usr.Code != "" && strings.EqualFold(u.Code, usr.Code) {
			return user.ErrCodeExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(usr); err != nil {
		return user.User{}, err
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.table {
		if usr.Role == filter.Role && usr.Username == filter.Username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}
	sortUsers(users, orderings)
	return users, nil
}

// sortUsers sorts by the first ordering (name, username or created_at); by name by default.
func sortUsers(users []user.User, orderings []core.DBOrdering) {
	ord := core.DBOrdering{Field: "name", Ascending: true}
	if len(orderings) > 0 {
		ord = orderings[0]
	}
	less := func(a, b user.User) bool {
		switch ord.Field {
		case "username":
			return a.Username < b.Username
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		if ord.Ascending {
			return less(users[i], users[j])
		}
		return less(users[j], users[i])
	})
}

func (repo *userRepository) CountUsers(ctx context.Context, role string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, usr := range repo.db.table {
		if role == "" || usr.Role == role {
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr); err != nil {
		return user.User{}, err
	}
	// role and creation date are immutable
	usr.Role = origUsr.Role
	usr.CreatedAt = origUsr.CreatedAt
	if usr.PasswordHash == nil {
		usr.PasswordHash = origUsr.PasswordHash
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	if usr.IsAdmin() {
		var admins int
		for _, u := range repo.db.table {
			if u.IsAdmin() {
				admins++
			}
		}
		if admins <= 1 {
			return user.ErrLastAdmin
		}
	}
	delete(repo.db.table, id)
	return nil
}
