package sqlxrepos

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

func TestInsertRequestQuery(t *testing.T) {
	row := newRequestRow(request.Request{
		ID:         "8f0c2b9e-3f7a-4c57-9a55-0f4f6e1a2b3c",
		StudentID:  "1d4e5f60-7a8b-4c9d-8e0f-112233445566",
		Type:       request.TypeInit,
		Status:     request.StatusPending,
		PreviousID: "",
		Date:       time.Now().UTC(),
	})

	// what lib/pq and pgx receive
	q, args, err := sqlx.Named(insertRequestQuery, row)
	require.NoError(t, err)
	q = sqlx.Rebind(sqlx.DOLLAR, q)

	assert.Contains(t, q, "CAST(NULLIF($17, '') AS uuid)")
	assert.NotContains(t, q, "):uuid")
	if assert.Len(t, args, 19) {
		assert.Equal(t, "", args[16])
	}
}

func TestUserWhere(t *testing.T) {
	tests := []struct {
		name      string
		filter    user.QueryFilter
		wantWhere string
		wantArgs  []interface{}
	}{
		{name: "no filter"},
		{
			name:      "role",
			filter:    user.QueryFilter{Role: user.RoleStudent},
			wantWhere: " WHERE role = $1",
			wantArgs:  []interface{}{user.RoleStudent},
		},
		{
			name:      "plain search",
			filter:    user.QueryFilter{Search: "ana"},
			wantWhere: " WHERE (name ILIKE $1 OR (role <> 'school' AND username ILIKE $1) OR (role = 'school' AND (faculty ILIKE $1 OR code ILIKE $1)))",
			wantArgs:  []interface{}{"%ana%"},
		},
		{
			name:      "wildcards are escaped",
			filter:    user.QueryFilter{Role: user.RoleStudent, Search: `50%_a\b`},
			wantWhere: " WHERE role = $1 AND (name ILIKE $2 OR (role <> 'school' AND username ILIKE $2) OR (role = 'school' AND (faculty ILIKE $2 OR code ILIKE $2)))",
			wantArgs:  []interface{}{user.RoleStudent, `%50\%\_a\\b%`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := userWhere(tt.filter)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
