package models

import "encoding/json"

// EventTypeNewEmail is the only push event kind the client acts upon
const EventTypeNewEmail = "new_email"

// Event is an inbound push frame
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEmailEvent is the data of a new_email event
type NewEmailEvent struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Sender  string    `json:"sender"`
	Date    Timestamp `json:"date"`
}
