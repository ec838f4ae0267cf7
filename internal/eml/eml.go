// Package eml exports fetched messages as RFC 5322 files and reads them back.
package eml

import (
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/inboxsync/pkg/models"
)

const (
	headerID       = "X-Mailsync-Id"
	headerAccount  = "X-Mailsync-Account"
	headerCategory = "X-Mailsync-Category"
)

// Write encodes msg with its text and HTML bodies as inline alternatives.
// Attachment metadata is not exported since content never reaches the client.
func Write(w io.Writer, msg models.Message) error {
	var h mail.Header

	if !msg.DateReceived.IsZero() {
		h.SetDate(msg.DateReceived.Time)
	}
	h.SetSubject(msg.Subject)
	if id := strings.Trim(msg.MessageID, "<> "); id != "" {
		h.SetMessageID(id)
	}
	setAddresses(&h, "From", msg.Sender)
	setAddresses(&h, "To", msg.Recipients)

	h.Set(headerID, msg.ID)
	h.Set(headerAccount, msg.EmailAccountID)
	if msg.Category != "" {
		h.Set(headerCategory, msg.Category)
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create inline writer: %w", err)
	}

	if msg.BodyText != "" || msg.BodyHTML == "" {
		if err := writePart(iw, "text/plain", msg.BodyText); err != nil {
			return err
		}
	}
	if msg.BodyHTML != "" {
		if err := writePart(iw, "text/html", msg.BodyHTML); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return fmt.Errorf("failed to close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close mail writer: %w", err)
	}
	return nil
}

func writePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	pw, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

// setAddresses writes a parsed address list, or the raw value when it does
// not parse (the service stores sender strings as received)
func setAddresses(h *mail.Header, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	list, err := mail.ParseAddressList(value)
	if err != nil {
		h.Set(key, value)
		return
	}
	h.SetAddressList(key, list)
}

// Read decodes a message written by Write or any other MIME email
func Read(r io.Reader) (models.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	var msg models.Message
	msg.ID = mr.Header.Get(headerID)
	msg.EmailAccountID = mr.Header.Get(headerAccount)
	msg.Category = mr.Header.Get(headerCategory)

	if msg.Subject, err = mr.Header.Subject(); err != nil {
		return models.Message{}, fmt.Errorf("failed to decode subject: %w", err)
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.DateReceived = models.Timestamp{Time: date}
	}
	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	}
	msg.Sender = addresses(&mr.Header, "From")
	msg.Recipients = addresses(&mr.Header, "To")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Message{}, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return models.Message{}, fmt.Errorf("failed to read %s body: %w", ct, err)
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				msg.BodyHTML = string(body)
			case strings.HasPrefix(ct, "text/plain"):
				msg.BodyText = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			msg.Attachments = append(msg.Attachments, models.Attachment{Filename: filename, ContentType: ct})
		}
	}

	return msg, nil
}

func addresses(h *mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return h.Get(key)
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.String()
	}
	return strings.Join(out, ", ")
}
