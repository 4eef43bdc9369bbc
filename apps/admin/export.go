package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	"github.com/trezcool/nexus/services/export"
)

// export writes every request and every account to the workbook at path.
func (cli *commandLine) export(path string) (err error) {
	ctx := context.Background()
	reqs, err := cli.reqSvc.Query(ctx, user.User{Role: user.RoleAdmin}, request.Filter{})
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	users, err := cli.usrSvc.Query(ctx, user.QueryFilter{}, nil)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing workbook")
		}
	}()

	if err = export.Write(f, export.RequestsSheet(reqs), export.AccountsSheet(users)); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	fmt.Fprintf(cli.out, "%d requests and %d accounts exported to %s\n", len(reqs), len(users), path)
	return nil
}
