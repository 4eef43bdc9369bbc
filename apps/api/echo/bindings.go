package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
)

// orderingParam lists the sort fields, comma separated, "-" prefixed for descending order (eg. ?ordering=-created_at,name).
const orderingParam = "ordering"

// bindOrderings reads the ordering query param. A field outside allowed is a validation error on "ordering".
func bindOrderings(ctx echo.Context, allowed []string) ([]core.DBOrdering, error) {
	raw := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if raw == "" {
		return nil, nil
	}

	var orderings []core.DBOrdering
	for _, field := range strings.Split(raw, ",") {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		ord := core.DBOrdering{Field: strings.TrimPrefix(field, "-"), Ascending: !strings.HasPrefix(field, "-")}
		if !isAllowed(ord.Field, allowed) {
			return nil, core.NewFieldError(orderingParam, errors.Errorf("cannot order by %q, use one of %s", ord.Field, strings.Join(allowed, ", ")))
		}
		orderings = append(orderings, ord)
	}
	return orderings, nil
}

func isAllowed(field string, allowed []string) bool {
	for _, f := range allowed {
		if f == field {
			return true
		}
	}
	return false
}
