package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mixelka/inboxsync/pkg/models"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (prompted when empty)")
	if _, err := exactArgs(fs, args, 0); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("login: -u is required: %w", errUsage)
	}

	pass, err := prompt(a, "Password", *password)
	if err != nil {
		return err
	}

	res := a.session.Login(ctx, *username, pass)
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", res.User.Username)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "register")
	username := fs.String("u", "", "username")
	email := fs.String("e", "", "email address")
	password := fs.String("p", "", "password (prompted when empty)")
	if _, err := exactArgs(fs, args, 0); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("register: -u and -e are required: %w", errUsage)
	}

	pass, err := prompt(a, "Password", *password)
	if err != nil {
		return err
	}

	res := a.session.Register(ctx, *username, *email, pass)
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintf(a.out, "Registered %s, run 'mailsync login' to sign in\n", res.User.Username)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	a.session.Logout(ctx)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	user := a.session.User()
	if user == nil {
		return errLoginRequired
	}
	role := "user"
	if user.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", user.Username, user.Email, role)
	return nil
}

func runUsers(ctx context.Context, a *app, _ []string) error {
	users, err := a.client.ListUsers(ctx, a.session.Token())
	if err != nil {
		return remote(err, "Failed to list users")
	}

	tw := table(a.out)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tACTIVE\tADMIN")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", u.ID, u.Username, u.Email, u.IsActive, u.IsAdmin)
	}
	return tw.Flush()
}

func runAccounts(ctx context.Context, a *app, _ []string) error {
	if res := a.accounts.FetchAccounts(ctx); !res.Success {
		return errors.New(res.Error)
	}

	list := a.accounts.Accounts()
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No accounts")
		return nil
	}

	tw := table(a.out)
	fmt.Fprintln(tw, "ID\tEMAIL\tLAST SYNC")
	for _, acc := range list {
		last := "never"
		if acc.LastSync != nil && !acc.LastSync.IsZero() {
			last = acc.LastSync.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", acc.ID, acc.EmailAddress, last)
	}
	return tw.Flush()
}

func runAddAccount(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "add-account")
	email := fs.String("email", "", "email address")
	refreshToken := fs.String("refresh-token", "", "OAuth refresh token")
	clientID := fs.String("client-id", "", "OAuth client id")
	if _, err := exactArgs(fs, args, 0); err != nil {
		return err
	}
	if *email == "" || *refreshToken == "" || *clientID == "" {
		return fmt.Errorf("add-account: -email, -refresh-token and -client-id are required: %w", errUsage)
	}

	created, res := a.accounts.AddAccount(ctx, *email, *refreshToken, *clientID)
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", created.EmailAddress, created.ID)
	return nil
}

// readDescriptors parses a bulk import file. Blank lines and lines starting
// with # are skipped.
func readDescriptors(path string) ([]models.AccountDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	var out []models.AccountDescriptor
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := models.ParseAccountDescriptor(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no accounts to import", path)
	}
	return out, nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "import")
	rest, err := exactArgs(fs, args, 1)
	if err != nil {
		return err
	}

	descriptors, err := readDescriptors(rest[0])
	if err != nil {
		return err
	}

	count, res := a.accounts.BulkImport(ctx, descriptors)
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Imported %d of %d accounts\n", count, len(descriptors))
	return nil
}

func runDeleteAccount(ctx context.Context, a *app, args []string) error {
	rest, err := exactArgs(newFlags(a, "delete-account"), args, 1)
	if err != nil {
		return err
	}
	if res := a.accounts.DeleteAccount(ctx, rest[0]); !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintf(a.out, "Deleted %s\n", rest[0])
	return nil
}

func runSync(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "sync")
	if err := parse(fs, args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		id := fs.Arg(0)
		if res := a.accounts.SyncAccount(ctx, id); !res.Success {
			return errors.New(res.Error)
		}
		fmt.Fprintf(a.out, "Synced %s\n", id)
		return nil
	default:
		return fmt.Errorf("sync: at most one account id: %w", errUsage)
	}

	if res := a.accounts.FetchAccounts(ctx); !res.Success {
		return errors.New(res.Error)
	}

	a.syncer.OnProgress(func(done, total int, res models.AccountSyncResult) {
		status := "ok"
		if !res.Success && res.Error != nil {
			status = "failed: " + *res.Error
		}
		fmt.Fprintf(a.out, "[%d/%d] %s %s\n", done, total, res.Account, status)
	})

	batch := a.syncer.SyncAll(ctx)
	if batch.Error != "" {
		return errors.New(batch.Error)
	}
	if failed := batch.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d accounts failed to sync", len(failed), batch.Count)
	}
	fmt.Fprintf(a.out, "Synced %d accounts\n", batch.Count)
	return nil
}
