package formatter

import (
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/inboxsync/pkg/models"
)

// maxCallbackData is Telegram's limit for inline button payloads
const maxCallbackData = 64

// codeButtonLimit caps the number of code buttons on one message
const codeButtonLimit = 4

// BuildEmailKeyboard creates the inline keyboard for a message: one button
// per detected code, then a read/unread toggle.
func BuildEmailKeyboard(msgID string, codes []appmodels.DetectedCode, isRead bool) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	var codeButtons []models.InlineKeyboardButton
	for i, code := range codes {
		if i == codeButtonLimit {
			break
		}
		data, err := EncodeCallback(appmodels.CallbackData{
			Action:    appmodels.CallbackShowCode,
			MessageID: msgID,
			CodeIndex: i,
		})
		if err != nil {
			continue
		}
		codeButtons = append(codeButtons, models.InlineKeyboardButton{
			Text:         code.Value,
			CallbackData: data,
		})
	}
	// two code buttons per row
	for i := 0; i < len(codeButtons); i += 2 {
		end := min(i+2, len(codeButtons))
		rows = append(rows, codeButtons[i:end])
	}

	toggle := appmodels.CallbackData{Action: appmodels.CallbackMarkRead, MessageID: msgID}
	label := "Mark read"
	if isRead {
		toggle.Action = appmodels.CallbackMarkUnread
		label = "Mark unread"
	}
	if data, err := EncodeCallback(toggle); err == nil {
		rows = append(rows, []models.InlineKeyboardButton{{Text: label, CallbackData: data}})
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// EncodeCallback encodes callback data, failing when it exceeds Telegram's limit
func EncodeCallback(data appmodels.CallbackData) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode callback: %w", err)
	}
	if len(b) > maxCallbackData {
		return "", fmt.Errorf("callback data is %d bytes, limit is %d", len(b), maxCallbackData)
	}
	return string(b), nil
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (appmodels.CallbackData, error) {
	var cb appmodels.CallbackData
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return cb, fmt.Errorf("failed to decode callback: %w", err)
	}
	if cb.Action == "" || cb.MessageID == "" {
		return cb, fmt.Errorf("incomplete callback %q", data)
	}
	return cb, nil
}
