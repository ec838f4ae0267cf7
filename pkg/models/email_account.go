package models

import (
	"fmt"
	"strings"
)

// EmailAccount is a mail account registered with the aggregation service
type EmailAccount struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	EmailAddress string     `json:"email_address"`
	LastSync     *Timestamp `json:"last_sync,omitempty"`
	CreatedAt    Timestamp  `json:"created_at"`
}

// NewEmailAccount is the payload for POST /email-accounts
type NewEmailAccount struct {
	EmailAddress string `json:"email_address"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

// Separators accepted in bulk import lines. The first one is used when encoding.
var descriptorSeparators = []string{"----", "——"}

// AccountDescriptor is one entry of a bulk import
type AccountDescriptor struct {
	EmailAddress string
	Password     string
	RefreshToken string
	ClientID     string
}

// Line encodes the descriptor in the bulk import wire format:
// email----password----refreshToken----clientId
func (d AccountDescriptor) Line() string {
	sep := descriptorSeparators[0]
	return strings.Join([]string{d.EmailAddress, d.Password, d.RefreshToken, d.ClientID}, sep)
}

// ParseAccountDescriptor parses a bulk import line. Both "----" and "——"
// separators are accepted and exactly four fields are required.
func ParseAccountDescriptor(line string) (AccountDescriptor, error) {
	line = strings.TrimSpace(line)
	for _, sep := range descriptorSeparators {
		if !strings.Contains(line, sep) {
			continue
		}
		parts := strings.Split(line, sep)
		if len(parts) != 4 {
			return AccountDescriptor{}, fmt.Errorf("expected 4 fields separated by %q, got %d", sep, len(parts))
		}
		return AccountDescriptor{
			EmailAddress: strings.TrimSpace(parts[0]),
			Password:     parts[1],
			RefreshToken: parts[2],
			ClientID:     strings.TrimSpace(parts[3]),
		}, nil
	}
	return AccountDescriptor{}, fmt.Errorf("no field separator in line")
}
