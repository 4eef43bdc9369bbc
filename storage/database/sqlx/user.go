package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/user"
)

const userColumns = `id, role, name, username, email, password_hash, career, code, specialty, status, faculty,
	created_at, updated_at, last_login`

var userOrderings = columnsOf(user.OrderFields)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func userUniquenessErr(err error) error {
	if constraint, ok := uniqueViolated(err); ok {
		switch constraint {
		case "accounts_role_username_key":
			return user.ErrUsernameExists
		case "accounts_school_code_key":
			return user.ErrCodeExists
		}
	}
	return err
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, usr user.User) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var taken bool
	q := `SELECT EXISTS (SELECT 1 FROM accounts WHERE role = $1 AND username = $2 AND id::text <> $3)`
	if err := repo.db.GetContext(ctx, &taken, q, usr.Role, usr.Username, usr.ID); err != nil {
		return errors.Wrap(err, "checking username")
	}
	if taken {
		return user.ErrUsernameExists
	}

	if usr.IsSchool() && usr.Code != "" {
		q = `SELECT EXISTS (SELECT 1 FROM accounts WHERE role = 'school' AND UPPER(code) = UPPER($1) AND id::text <> $2)`
		if err := repo.db.GetContext(ctx, &taken, q, usr.Code, usr.ID); err != nil {
			return errors.Wrap(err, "checking school code")
		}
		if taken {
			return user.ErrCodeExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if usr.ID == "" {
		usr.ID = newID()
	}
	if usr.PasswordHash == nil {
		usr.PasswordHash = []byte{}
	}
	q := `INSERT INTO accounts (` + userColumns + `)
		VALUES (:id, :role, :name, :username, :email, :password_hash, :career, :code, :specialty, :status, :faculty,
			:created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, usr); err != nil {
		return user.User{}, userUniquenessErr(err)
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var (
		usr user.User
		err error
	)
	if filter.ID != "" {
		err = repo.db.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM accounts WHERE id::text = $1`, filter.ID)
	} else {
		err = repo.db.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM accounts WHERE role = $1 AND username = $2`,
			filter.Role, filter.Username)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return usr, nil
}

// userWhere translates filter into a WHERE clause (see user.QueryFilter.Match).
func userWhere(filter user.QueryFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Role != "" {
		conds = append(conds, "role = "+arg(filter.Role))
	}
	if filter.Username != "" {
		conds = append(conds, "username = "+arg(filter.Username))
	}
	if filter.Search != "" {
		p := arg(likePattern(filter.Search))
		conds = append(conds, "(name ILIKE "+p+" OR (role <> 'school' AND username ILIKE "+p+
			") OR (role = 'school' AND (faculty ILIKE "+p+" OR code ILIKE "+p+")))")
	}
	if filter.Career != "" {
		conds = append(conds, "career = "+arg(filter.Career))
	}
	if filter.Status == user.StatusActive {
		conds = append(conds, "status IN ('', 'active')")
	} else if filter.Status != "" {
		conds = append(conds, "status NOT IN ('', 'active')")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(orderings []core.DBOrdering, allowed map[string]string, dflt string) string {
	safe := core.SafeOrderings(orderings, allowed)
	if len(safe) == 0 {
		return " ORDER BY " + dflt
	}
	parts := make([]string, len(safe))
	for i, ord := range safe {
		parts[i] = ord.String()
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	where, args := userWhere(filter)
	q := `SELECT ` + userColumns + ` FROM accounts` + where + orderBy(orderings, userOrderings, "name ASC")

	users := make([]user.User, 0)
	if err := repo.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return users, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, role string) (int, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var n int
	if err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE $1 = '' OR role = $1`, role); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return n, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	q := `UPDATE accounts SET
			name = :name, username = :username, email = :email, password_hash = COALESCE(:password_hash, password_hash),
			career = :career, code = :code, specialty = :specialty, status = :status, faculty = :faculty,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(dbCtx, q, usr)
	if err != nil {
		return user.User{}, userUniquenessErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

// DeleteUser locks the admin rows so that two concurrent deletions cannot remove the last admins.
func (repo *userRepository) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var role string
	if err = tx.GetContext(ctx, &role, `SELECT role FROM accounts WHERE id::text = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "selecting user")
	}
	if role == user.RoleAdmin {
		var adminIDs []string
		if err = tx.SelectContext(ctx, &adminIDs, `SELECT id::text FROM accounts WHERE role = 'admin' FOR UPDATE`); err != nil {
			return errors.Wrap(err, "locking admins")
		}
		if len(adminIDs) <= 1 {
			err = user.ErrLastAdmin
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM accounts WHERE id::text = $1`, id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return tx.Commit()
}
