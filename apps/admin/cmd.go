package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB // nil with the in-memory store
	usrSvc   user.Service
	reqSvc   request.Service
	validate *validator.Validate
	logger   core.Logger
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                    - run a goose command (up, down, status, redo, ...)")
	fmt.Fprintln(cli.out, "  seed                                      - create the default administrator and schools")
	fmt.Fprintln(cli.out, "  createadmin -username USERNAME -name NAME - create an administrator")
	fmt.Fprintln(cli.out, "  resetpassword -role ROLE -username USERNAME - reset an account's password")
	fmt.Fprintln(cli.out, "  export -out FILE                          - export the requests and accounts to a workbook")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ContinueOnError)
	createAdminUname := createAdminCmd.String("username", "", "The administrator's username. The password will be prompted next.")
	createAdminName := createAdminCmd.String("name", "", "The administrator's full name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordRole := resetPasswordCmd.String("role", user.RoleAdmin, "The account's role: admin, student, advisor, jury or school.")
	resetPasswordUname := resetPasswordCmd.String("username", "", "The account's username. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportOut := exportCmd.String("out", "", "The workbook to write (.xlsx).")

	for _, cmd := range []*flag.FlagSet{createAdminCmd, resetPasswordCmd, exportCmd} {
		cmd.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "seed":
		return cli.seed()

	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *createAdminUname == "" || *createAdminName == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(*createAdminUname, *createAdminName, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" || !user.IsValidRole(*resetPasswordRole) {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordRole, *resetPasswordUname, pwd)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *exportOut == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(*exportOut)

	default:
		cli.printUsage()
		return errHelp
	}
}
