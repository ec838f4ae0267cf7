package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mixelka/inboxsync/internal/eml"
	"github.com/mixelka/inboxsync/internal/formatter"
	"github.com/mixelka/inboxsync/internal/messages"
	"github.com/mixelka/inboxsync/internal/parser"
	"github.com/mixelka/inboxsync/internal/realtime"
	"github.com/mixelka/inboxsync/internal/telegram"
	"github.com/mixelka/inboxsync/pkg/models"
)

const subjectWidth = 60

func runEmails(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "emails")
	accountID := fs.String("account", "", "only messages of this account id")
	status := fs.String("status", "", "read or unread")
	category := fs.String("category", "", "only messages in this category")
	if _, err := exactArgs(fs, args, 0); err != nil {
		return err
	}

	filter := messages.Filter{AccountID: *accountID, Category: *category}
	switch *status {
	case "":
	case "read", "unread":
		isRead := *status == "read"
		filter.IsRead = &isRead
	default:
		return fmt.Errorf("emails: -status must be read or unread: %w", errUsage)
	}

	if res := a.messages.FetchEmails(ctx, filter); !res.Success {
		return errors.New(res.Error)
	}

	list := a.messages.Emails()
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No messages")
		return nil
	}

	tw := table(a.out)
	fmt.Fprintln(tw, "\tID\tDATE\tFROM\tCATEGORY\tSUBJECT")
	for _, m := range list {
		mark := " "
		if !m.IsRead {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, m.ID, formatDate(m.DateReceived), m.Sender, m.Category, shorten(m.Subject, subjectWidth))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d messages, %d unread\n", len(list), a.messages.UnreadCount())
	return nil
}

func runShow(ctx context.Context, a *app, args []string) error {
	rest, err := exactArgs(newFlags(a, "show"), args, 1)
	if err != nil {
		return err
	}

	msg, err := a.messages.FetchEmailByID(ctx, rest[0])
	if err != nil {
		return remote(err, "Failed to fetch email")
	}
	return printMessage(a.out, *msg)
}

func printMessage(w io.Writer, msg models.Message) error {
	fmt.Fprintf(w, "From:     %s\n", msg.Sender)
	fmt.Fprintf(w, "To:       %s\n", msg.Recipients)
	fmt.Fprintf(w, "Date:     %s\n", formatDate(msg.DateReceived))
	fmt.Fprintf(w, "Subject:  %s\n", msg.Subject)
	fmt.Fprintf(w, "Category: %s\n", msg.Category)
	fmt.Fprintln(w)

	body, err := parser.Body(msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, body)

	if codes := parser.MessageCodes(msg); len(codes) > 0 {
		fmt.Fprintln(w)
		for _, c := range codes {
			fmt.Fprintf(w, "Code (%s): %s\n", c.Type, c.Value)
		}
	}

	links, err := parser.Links(msg.BodyHTML)
	if err != nil {
		return err
	}
	if len(links) > 0 {
		fmt.Fprintln(w)
		for i, l := range links {
			fmt.Fprintf(w, "[%d] %s %s\n", i+1, l.Text, l.URL)
		}
	}

	if len(msg.Attachments) > 0 {
		fmt.Fprintln(w)
		for _, att := range msg.Attachments {
			fmt.Fprintf(w, "Attachment: %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
		}
	}
	return nil
}

func runMarkRead(read bool) func(ctx context.Context, a *app, args []string) error {
	name := "unread"
	if read {
		name = "read"
	}
	return func(ctx context.Context, a *app, args []string) error {
		rest, err := exactArgs(newFlags(a, name), args, 1)
		if err != nil {
			return err
		}

		mark := a.messages.MarkAsUnread
		if read {
			mark = a.messages.MarkAsRead
		}
		if err := mark(ctx, rest[0]); err != nil {
			return remote(err, "Failed to update email")
		}
		fmt.Fprintf(a.out, "Marked %s as %s\n", rest[0], name)
		return nil
	}
}

func runCategorize(ctx context.Context, a *app, args []string) error {
	rest, err := exactArgs(newFlags(a, "categorize"), args, 2)
	if err != nil {
		return err
	}
	if err := a.messages.UpdateCategory(ctx, rest[0], rest[1]); err != nil {
		return remote(err, "Failed to update category")
	}
	fmt.Fprintf(a.out, "Moved %s to %s\n", rest[0], rest[1])
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "export")
	output := fs.String("o", "", "output file (stdout when empty)")
	// accept the id before or after -o
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := parse(fs, args); err != nil {
		return err
	}
	if id == "" && fs.NArg() == 1 {
		id = fs.Arg(0)
	} else if id == "" || fs.NArg() != 0 {
		return fmt.Errorf("export: expected one message id: %w", errUsage)
	}

	msg, err := a.messages.FetchEmailByID(ctx, id)
	if err != nil {
		return remote(err, "Failed to fetch email")
	}

	if *output == "" {
		return eml.Write(a.out, *msg)
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *output, err)
	}
	if err := eml.Write(f, *msg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}
	fmt.Fprintf(a.out, "Wrote %s\n", *output)
	return nil
}

// runView prints an exported message without contacting the service
func runView(_ context.Context, a *app, args []string) error {
	rest, err := exactArgs(newFlags(a, "view"), args, 1)
	if err != nil {
		return err
	}

	f, err := os.Open(rest[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", rest[0], err)
	}
	defer f.Close()

	msg, err := eml.Read(f)
	if err != nil {
		return err
	}
	return printMessage(a.out, msg)
}

// runWatch keeps the realtime channel open until ctx is cancelled. New mail
// is printed and, when configured, forwarded to Telegram.
func runWatch(ctx context.Context, a *app, _ []string) error {
	ch := realtime.New(realtime.Deps{
		Identity:    a.session,
		Invalidator: a.messages,
		Endpoint:    a.client,
		Logger:      a.logger,
		RetryDelay:  a.cfg.ReconnectDelay,
	})
	ch.OnNewEmail(func(_ context.Context, ev models.NewEmailEvent) {
		fmt.Fprintf(a.out, "%s  %s  %s\n", formatDate(ev.Date), ev.Sender, ev.Subject)
	})

	a.messages.Invalidate(ctx)

	if a.cfg.TelegramEnabled() {
		if res := a.accounts.FetchAccounts(ctx); !res.Success {
			a.logger.Warn("Initial account fetch failed", "error", res.Error)
		}

		tg, err := telegram.NewBot(telegram.BotDeps{
			Config:    a.cfg,
			Messages:  a.messages,
			Accounts:  a.accounts,
			Syncer:    a.syncer,
			Formatter: formatter.NewTelegramFormatter(),
			Logger:    a.logger,
		})
		if err != nil {
			return err
		}
		ch.OnNewEmail(tg.NotifyNewEmail)
		go tg.Start(ctx)
		a.logger.Info("telegram notifier enabled", "chat_id", a.cfg.TelegramChatID)
	}

	fmt.Fprintln(a.out, "Watching for new mail, press Ctrl+C to stop")
	if err := ch.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	ch.Disconnect()
	return nil
}

func formatDate(t models.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
