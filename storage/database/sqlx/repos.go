package sqlxrepos

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// backslash is the default LIKE escape character in postgres
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// uniqueViolated returns the name of the unique constraint err violates, from either driver.
func uniqueViolated(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// likePattern turns s into an ILIKE substring pattern matching s literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// columnsOf maps API order fields to the columns of the same name.
func columnsOf(fields []string) map[string]string {
	cols := make(map[string]string, len(fields))
	for _, f := range fields {
		cols[f] = f
	}
	return cols
}

func newID() string {
	return uuid.NewString()
}
