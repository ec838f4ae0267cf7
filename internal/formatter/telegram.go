// Package formatter renders messages and reports as Telegram HTML.
package formatter

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/mixelka/inboxsync/pkg/models"
)

const dateLayout = "02.01.2006 15:04"

// TelegramFormatter formats messages for Telegram
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Telegram caps messages at 4096 including markup
	}
}

// FormatEmail formats a fetched message with its readable body and codes
func (f *TelegramFormatter) FormatEmail(msg models.Message, body string, codes []models.DetectedCode) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>From:</b> %s\n", html.EscapeString(msg.Sender))
	if msg.Recipients != "" {
		fmt.Fprintf(&sb, "<b>To:</b> %s\n", html.EscapeString(msg.Recipients))
	}
	fmt.Fprintf(&sb, "<b>Subject:</b> %s\n", html.EscapeString(subjectOrPlaceholder(msg.Subject)))
	if !msg.DateReceived.IsZero() {
		fmt.Fprintf(&sb, "<b>Date:</b> %s\n", msg.DateReceived.Format(dateLayout))
	}
	if msg.Category != "" && msg.Category != models.DefaultCategory {
		fmt.Fprintf(&sb, "<b>Category:</b> %s\n", html.EscapeString(msg.Category))
	}
	if n := len(msg.Attachments); n > 0 {
		fmt.Fprintf(&sb, "<b>Attachments:</b> %d\n", n)
	}
	sb.WriteString("\n")

	writeCodes(&sb, codes)

	room := f.maxLength - sb.Len() - 50
	sb.WriteString(html.EscapeString(truncate(body, room)))
	if len([]rune(body)) > room && room > 0 {
		sb.WriteString("\n\n<i>... (truncated)</i>")
	}

	return sb.String()
}

// FormatNotification formats a new_email push event. The event carries no
// body, so codes can only come from the subject.
func (f *TelegramFormatter) FormatNotification(ev models.NewEmailEvent, codes []models.DetectedCode) string {
	var sb strings.Builder

	sb.WriteString("<b>New email</b>\n")
	fmt.Fprintf(&sb, "<b>From:</b> %s\n", html.EscapeString(ev.Sender))
	fmt.Fprintf(&sb, "<b>Subject:</b> %s\n", html.EscapeString(subjectOrPlaceholder(ev.Subject)))
	if !ev.Date.IsZero() {
		fmt.Fprintf(&sb, "<b>Date:</b> %s\n", ev.Date.Format(dateLayout))
	}

	if len(codes) > 0 {
		sb.WriteString("\n")
		writeCodes(&sb, codes)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatStatus formats the unread and per-category counters
func (f *TelegramFormatter) FormatStatus(accounts, total, unread int, categories map[string]int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>Accounts:</b> %d\n", accounts)
	fmt.Fprintf(&sb, "<b>Emails:</b> %d (%d unread)\n", total, unread)

	if len(categories) > 0 {
		sb.WriteString("\n<b>Categories:</b>\n")
		names := make([]string, 0, len(categories))
		for name := range categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			label := name
			if label == "" {
				label = "(none)"
			}
			fmt.Fprintf(&sb, "  %s: %d\n", html.EscapeString(label), categories[name])
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatSyncResult formats one bulk sync run
func (f *TelegramFormatter) FormatSyncResult(res models.SyncBatchResult) string {
	if res.Error != "" {
		return "Sync failed: " + html.EscapeString(res.Error)
	}

	var sb strings.Builder
	failed := len(res.Failed())
	fmt.Fprintf(&sb, "<b>Synced %d/%d accounts</b>\n", res.Count-failed, res.Count)

	for _, r := range res.Results {
		if r.Success {
			fmt.Fprintf(&sb, "OK %s\n", html.EscapeString(r.Account))
			continue
		}
		detail := ""
		if r.Error != nil {
			detail = *r.Error
		}
		fmt.Fprintf(&sb, "FAIL %s: <code>%s</code>\n", html.EscapeString(r.Account), html.EscapeString(detail))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func writeCodes(sb *strings.Builder, codes []models.DetectedCode) {
	if len(codes) == 0 {
		return
	}
	sb.WriteString("<b>Codes:</b> ")
	for i, code := range codes {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(sb, "<code>%s</code>", html.EscapeString(code.Value))
	}
	sb.WriteString("\n\n")
}

func subjectOrPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no subject)"
	}
	return s
}

// truncate cuts s to maxLen runes
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
