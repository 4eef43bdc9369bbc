package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/user"
)

func (cli *commandLine) seed() error {
	if err := cli.usrSvc.Seed(context.Background()); err != nil {
		return errors.Wrap(err, "seeding accounts")
	}
	fmt.Fprintln(cli.out, "Default accounts are in place.")
	return nil
}

// createAdmin creates an administrator, applying the same validation as the API.
func (cli *commandLine) createAdmin(uname, name, pwd string) error {
	nu := user.NewUser{
		Role:     user.RoleAdmin,
		Name:     name,
		Username: uname,
		Password: pwd,
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	cli.logger.Info("administrator created", map[string]interface{}{"username": usr.Username}, usr)
	fmt.Fprintf(cli.out, "Administrator %q created.\n", usr.Username)
	return nil
}

func (cli *commandLine) resetPassword(role, uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsername(ctx, role, uname)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: pwd}
	if err := uu.Validate(usr, cli.validate); err != nil {
		return err
	}
	if _, err := cli.usrSvc.SetPassword(ctx, usr.ID, pwd); err != nil {
		return err
	}
	cli.logger.Info("password reset", usr)
	fmt.Fprintf(cli.out, "Password of %q updated.\n", usr.Username)
	return nil
}
