package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/ellahos/ellahos/core/tenant"
	"github.com/ellahos/ellahos/core/user"
	"github.com/ellahos/ellahos/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	// mockable
	migrateFuncs = map[string]func(ctx context.Context, db *sql.DB) error{
		"up":     database.Migrate,
		"status": database.MigrationStatus,
	}

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	validate  *validator.Validate
	tenantSvc *tenant.Service
	usrSvc    *user.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|status - apply pending migrations or print their status")
	fmt.Println("  addtenant -name NAME -slug SLUG - create a tenant")
	fmt.Println("  adduser -tenant SLUG -email EMAIL -name NAME [-role ROLE] - create a user, the password is prompted")
	fmt.Println("  resetpassword -email EMAIL - reset a user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addTenantCmd := flag.NewFlagSet("addtenant", flag.ContinueOnError)
	addTenantName := addTenantCmd.String("name", "", "The agency's name.")
	addTenantSlug := addTenantCmd.String("slug", "", "Unique short name of the tenant.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserTenant := addUserCmd.String("tenant", "", "The tenant's slug.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", "admin", "The user's role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2])

	case "addtenant":
		if err := addTenantCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addTenantName == "" || *addTenantSlug == "" {
			addTenantCmd.Usage()
			return errHelp
		}
		return cli.addTenant(*addTenantName, *addTenantSlug)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserTenant == "" || *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserTenant, user.NewUser{
			FullName:        *addUserName,
			Email:           *addUserEmail,
			Role:            *addUserRole,
			Password:        pwd,
			PasswordConfirm: pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) migrate(command string) error {
	fn, ok := migrateFuncs[command]
	if !ok {
		return fmt.Errorf("%q: no such command", command)
	}
	return fn(context.Background(), cli.db)
}

func (cli *commandLine) addTenant(name, slug string) error {
	t, err := cli.tenantSvc.Create(context.Background(), name, slug)
	if err != nil {
		return err
	}
	fmt.Printf("tenant %s created: %s\n", t.Slug, t.ID)
	return nil
}

func (cli *commandLine) addUser(tenantSlug string, nu user.NewUser) error {
	ctx := context.Background()
	t, err := cli.tenantSvc.GetBySlug(ctx, tenantSlug)
	if err != nil {
		return err
	}
	if err = nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, t.ID, nu)
	if err != nil {
		return err
	}
	fmt.Printf("user %s created: %s\n", usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.usrSvc.SetPassword(context.Background(), email, pwd)
}
