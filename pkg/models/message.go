package models

// DefaultCategory is the category the service assigns when none is set
const DefaultCategory = "inbox"

// Message is a fetched email
type Message struct {
	ID             string       `json:"id"`
	EmailAccountID string       `json:"email_account_id"`
	MessageID      string       `json:"message_id"`
	Subject        string       `json:"subject"`
	Sender         string       `json:"sender"`
	Recipients     string       `json:"recipients"`
	DateReceived   Timestamp    `json:"date_received"`
	BodyText       string       `json:"body_text"`
	BodyHTML       string       `json:"body_html"`
	IsRead         bool         `json:"is_read"`
	Category       string       `json:"category"`
	CreatedAt      Timestamp    `json:"created_at"`
	Attachments    []Attachment `json:"attachments"`
}

// Attachment is attachment metadata; content is not transferred to the client
type Attachment struct {
	ID          string    `json:"id"`
	EmailID     string    `json:"email_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	FilePath    string    `json:"file_path"`
	Size        int64     `json:"size"`
	CreatedAt   Timestamp `json:"created_at"`
}

// DetectedCode represents a detected verification code
type DetectedCode struct {
	Type  string `json:"type"`  // "otp", "verification", "code", "security", "token"
	Value string `json:"value"` // The code itself
}
