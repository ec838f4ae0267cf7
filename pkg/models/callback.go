package models

// CallbackAction type of callback action
type CallbackAction string

const (
	CallbackMarkRead   CallbackAction = "mr"
	CallbackMarkUnread CallbackAction = "mu"
	CallbackShowCode   CallbackAction = "sc"
)

// CallbackData structure for inline button callback. Telegram limits callback
// data to 64 bytes, so keys stay short.
type CallbackData struct {
	Action    CallbackAction `json:"a"`
	MessageID string         `json:"m"`
	CodeIndex int            `json:"c,omitempty"`
}
