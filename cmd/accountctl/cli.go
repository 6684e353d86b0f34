package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/nickmous/beanstash/internal/account"
	"github.com/nickmous/beanstash/internal/model"
)

// Accounts is the provisioning surface the CLI drives.
type Accounts interface {
	Create(ctx context.Context, in account.NewAccount) (model.Account, error)
	Activate(ctx context.Context, username string) (model.Account, error)
	Deactivate(ctx context.Context, username string) (model.Account, error)
	Delete(ctx context.Context, username string) (model.Account, error)
	Purge(ctx context.Context, id string) (model.Account, error)
	List(ctx context.Context, all bool) ([]model.Account, error)
}

// CLI dispatches subcommands.
type CLI struct {
	Accounts Accounts
	Stdin    io.Reader
	Stdout   io.Writer
	// Password prompts for a new password on the terminal.
	Password func(w io.Writer) (string, error)
}

var errUsage = errors.New("usage: accountctl <create|activate|deactivate|delete|purge|list> [flags]")

func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return c.create(ctx, rest)
	case "activate":
		return c.byUsername(ctx, cmd, rest, c.Accounts.Activate)
	case "deactivate":
		return c.byUsername(ctx, cmd, rest, c.Accounts.Deactivate)
	case "delete":
		return c.byUsername(ctx, cmd, rest, c.Accounts.Delete)
	case "purge":
		return c.purge(ctx, rest)
	case "list":
		return c.list(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func (c *CLI) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.Stdout)
	return fs
}

func (c *CLI) create(ctx context.Context, args []string) error {
	fs := c.flags("create")
	username := fs.String("username", "", "login name (case-sensitive)")
	email := fs.String("email", "", "email address")
	inactive := fs.Bool("inactive", false, "create the account disabled")
	fromStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		password string
		err      error
	)
	if *fromStdin {
		password, err = readLine(c.Stdin)
	} else {
		password, err = c.Password(c.Stdout)
	}
	if err != nil {
		return err
	}

	a, err := c.Accounts.Create(ctx, account.NewAccount{
		Username: *username,
		Email:    *email,
		Password: password,
		Inactive: *inactive,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "created %s (%s)\n", a.Username, a.ID)
	return nil
}

func (c *CLI) byUsername(ctx context.Context, name string, args []string, op func(context.Context, string) (model.Account, error)) error {
	fs := c.flags(name)
	username := fs.String("username", "", "login name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("%s: -username is required", name)
	}
	a, err := op(ctx, *username)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "%s %s (%s)\n", pastTense(name), a.Username, a.ID)
	return nil
}

func (c *CLI) purge(ctx context.Context, args []string) error {
	fs := c.flags("purge")
	id := fs.String("id", "", "account id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("purge: -id is required")
	}
	a, err := c.Accounts.Purge(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "purged %s (%s)\n", a.Username, a.ID)
	return nil
}

func (c *CLI) list(ctx context.Context, args []string) error {
	fs := c.flags("list")
	all := fs.Bool("all", false, "include soft-deleted accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	accounts, err := c.Accounts.List(ctx, *all)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tACTIVE\tDELETED")
	for _, a := range accounts {
		deleted := "-"
		if a.DeletedAt != nil {
			deleted = a.DeletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", a.ID, a.Username, a.Email, a.Active, deleted)
	}
	return tw.Flush()
}

func pastTense(cmd string) string {
	if strings.HasSuffix(cmd, "e") {
		return cmd + "d"
	}
	return cmd + "ed"
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// terminalPassword prompts twice without echo and checks both entries match.
func terminalPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use -password-stdin")
	}
	fmt.Fprint(w, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	fmt.Fprint(w, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
