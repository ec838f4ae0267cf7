package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the aggregation service
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string // human-readable detail from the response payload, if any
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error on %s %s (status %d): %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("API error on %s %s (status %d)", e.Method, e.Path, e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the service
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Detail returns the best human-readable description of err: the remote
// detail when the service sent one, else the error's own message, else fallback.
func Detail(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// RemoteDetail returns the detail the service sent with err, or fallback.
// Transport errors and responses without a detail yield fallback.
func RemoteDetail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// errorPayload is the FastAPI error body. Detail is either a string or a
// list of validation items.
type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

type validationItem struct {
	Msg string `json:"msg"`
	Loc []any  `json:"loc"`
}

// parseDetail extracts the detail message from an error response body
func parseDetail(body []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}

	var items []validationItem
	if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
