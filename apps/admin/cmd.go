package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	out        io.Writer
	staffSvc   *staff.Service
	settingSvc *setting.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -role ROLE[,ROLE] - create a staff member")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset a staff member's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  editwindow [-set MINUTES -admin USERNAME|EMAIL] - show or change the edit window")
}

func (cli *commandLine) promptPassword(label string) (string, error) {
	fmt.Fprint(cli.out, label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	return string(pwd), err
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The staff member's full name.")
	addUserUname := addUserCmd.String("username", "", "The staff member's username.")
	addUserEmail := addUserCmd.String("email", "", "The staff member's email.")
	addUserRoles := addUserCmd.String("role", "", "Comma separated roles: "+strings.Join(staff.AllRoles, ", ")+".")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The staff member's username or email. The password will be prompted next.")

	editWindowCmd := flag.NewFlagSet("editwindow", flag.ExitOnError)
	editWindowSet := editWindowCmd.Int("set", 0, "The new edit window, in minutes.")
	editWindowAdmin := editWindowCmd.String("admin", "", "The administrator making the change.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") || *addUserRoles == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, strings.Split(*addUserRoles, ","))

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "editwindow":
		if err := editWindowCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *editWindowSet == 0 {
			return cli.showEditWindow()
		}
		if *editWindowAdmin == "" {
			editWindowCmd.Usage()
			return errHelp
		}
		return cli.setEditWindow(*editWindowAdmin, *editWindowSet)

	default:
		cli.printUsage()
		return errHelp
	}
}
