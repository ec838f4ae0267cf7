package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/guard"
)

var (
	errUsage         = errors.New("usage: mailsync <command> [flags] [args]; run 'mailsync help' for the list")
	errLoginRequired = errors.New("not logged in, run 'mailsync login' first")
	errAdminRequired = errors.New("admin privileges required")
)

type command struct {
	name    string
	args    string
	summary string
	route   guard.Route
	run     func(ctx context.Context, a *app, args []string) error
}

var (
	authed = guard.Route{RequiresAuth: true}
	admin  = guard.Route{RequiresAuth: true, RequiresAdmin: true}
)

// commands is assigned in init because help refers back to it
var commands []command

func init() {
	commands = []command{
		{name: "login", args: "-u USER [-p PASSWORD]", summary: "sign in and remember the token", run: runLogin},
		{name: "register", args: "-u USER -e EMAIL [-p PASSWORD]", summary: "create a user", run: runRegister},
		{name: "logout", summary: "forget the stored token", run: runLogout},
		{name: "whoami", summary: "show the signed-in user", route: authed, run: runWhoami},
		{name: "accounts", summary: "list mail accounts", route: authed, run: runAccounts},
		{name: "add-account", args: "-email ADDR -refresh-token TOKEN -client-id ID", summary: "add one mail account", route: authed, run: runAddAccount},
		{name: "import", args: "FILE", summary: "bulk import accounts, one email----password----refreshToken----clientId per line", route: authed, run: runImport},
		{name: "delete-account", args: "ID", summary: "remove a mail account", route: authed, run: runDeleteAccount},
		{name: "sync", args: "[ID]", summary: "fetch new mail for one or all accounts", route: authed, run: runSync},
		{name: "emails", args: "[-account ID] [-status read|unread] [-category NAME]", summary: "list messages", route: authed, run: runEmails},
		{name: "show", args: "ID", summary: "print a message with detected codes and links", route: authed, run: runShow},
		{name: "read", args: "ID", summary: "mark a message read", route: authed, run: runMarkRead(true)},
		{name: "unread", args: "ID", summary: "mark a message unread", route: authed, run: runMarkRead(false)},
		{name: "categorize", args: "ID CATEGORY", summary: "move a message to a category", route: authed, run: runCategorize},
		{name: "export", args: "ID [-o FILE]", summary: "write a message as .eml", route: authed, run: runExport},
		{name: "view", args: "FILE", summary: "print a saved .eml file", run: runView},
		{name: "watch", summary: "follow new mail until interrupted", route: authed, run: runWatch},
		{name: "users", summary: "list all users", route: admin, run: runUsers},
		{name: "help", summary: "show this list", run: runHelp},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// dispatch runs the command named by args[0] once the stored session has
// been verified and the command's route allows the caller.
func dispatch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}

	select {
	case <-a.session.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	switch guard.Decide(a.session, cmd.route) {
	case guard.RedirectLogin:
		return errLoginRequired
	case guard.RedirectHome:
		return errAdminRequired
	}

	a.logger.Debug("Running command", "command", cmd.name)
	return cmd.run(ctx, a, args[1:])
}

// newFlags returns a flag set whose parse errors are usage errors
func newFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %v: %w", fs.Name(), err, errUsage)
	}
	return nil
}

// exactArgs parses flags and requires n positional arguments
func exactArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d: %w", fs.Name(), n, fs.NArg(), errUsage)
	}
	return fs.Args(), nil
}

// remote turns a service error into the message shown to the user. A
// rejected token is reported as a login error.
func remote(err error, fallback string) error {
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%s: %w", api.Detail(err, fallback), errLoginRequired)
	}
	return errors.New(api.Detail(err, fallback))
}

// prompt reads one line from stdin when value is empty
func prompt(a *app, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func runHelp(_ context.Context, a *app, _ []string) error {
	fmt.Fprintln(a.out, "Usage: mailsync <command> [flags] [args]")
	fmt.Fprintln(a.out)

	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.name)
	}
	sort.Strings(names)

	tw := table(a.out)
	for _, name := range names {
		c, _ := lookup(name)
		line := c.name
		if c.args != "" {
			line += " " + c.args
		}
		fmt.Fprintf(tw, "  %s\t%s\n", line, c.summary)
	}
	return tw.Flush()
}
