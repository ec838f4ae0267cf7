package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mixelka/inboxsync/pkg/models"
)

// MessageQuery filters GET /emails. Empty fields are not sent.
type MessageQuery struct {
	AccountID string
	IsRead    *bool
	Category  string
}

func (q MessageQuery) values() url.Values {
	v := url.Values{}
	if q.AccountID != "" {
		v.Set("account_id", q.AccountID)
	}
	if q.IsRead != nil {
		v.Set("is_read", strconv.FormatBool(*q.IsRead))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	return v
}

// Login exchanges credentials for a bearer token (form-encoded)
func (c *Client) Login(ctx context.Context, username, password string) (*models.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token models.Token
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", form: form}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Register creates a new user
func (c *Client) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", json: reg}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the profile of the token's owner
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", token: token}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAccounts returns all registered mail accounts
func (c *Client) ListAccounts(ctx context.Context, token string) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	if err := c.do(ctx, request{method: http.MethodGet, path: "/email-accounts", token: token}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateAccount registers one mail account
func (c *Client) CreateAccount(ctx context.Context, token string, acc models.NewEmailAccount) (*models.EmailAccount, error) {
	var created models.EmailAccount
	if err := c.do(ctx, request{method: http.MethodPost, path: "/email-accounts", token: token, json: acc}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

type bulkImportRequest struct {
	EmailAccounts []string `json:"email_accounts"`
}

// BulkImport registers many accounts in one call and returns those created
func (c *Client) BulkImport(ctx context.Context, token string, descriptors []models.AccountDescriptor) ([]models.EmailAccount, error) {
	lines := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		lines = append(lines, d.Line())
	}

	var created []models.EmailAccount
	req := request{
		method: http.MethodPost,
		path:   "/email-accounts/bulk-import",
		token:  token,
		json:   bulkImportRequest{EmailAccounts: lines},
	}
	if err := c.do(ctx, req, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteAccount removes a mail account
func (c *Client) DeleteAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/email-accounts/" + url.PathEscape(id), token: token}, nil)
}

// SyncAccount triggers a server-side fetch for one account
func (c *Client) SyncAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/email-accounts/" + url.PathEscape(id) + "/sync", token: token}, nil)
}

// ListMessages returns messages matching the query; filtering is server-side
func (c *Client) ListMessages(ctx context.Context, token string, q MessageQuery) ([]models.Message, error) {
	var messages []models.Message
	req := request{method: http.MethodGet, path: "/emails", token: token, query: q.values()}
	if err := c.do(ctx, req, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage returns one message with attachment metadata
func (c *Client) GetMessage(ctx context.Context, token, id string) (*models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, request{method: http.MethodGet, path: "/emails/" + url.PathEscape(id), token: token}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks a message as read
func (c *Client) MarkRead(ctx context.Context, token, id string) (*models.Message, error) {
	return c.patchMessage(ctx, token, id, "/read", nil)
}

// MarkUnread marks a message as unread
func (c *Client) MarkUnread(ctx context.Context, token, id string) (*models.Message, error) {
	return c.patchMessage(ctx, token, id, "/unread", nil)
}

type categoryRequest struct {
	Category string `json:"category"`
}

// UpdateCategory moves a message to a category
func (c *Client) UpdateCategory(ctx context.Context, token, id, category string) (*models.Message, error) {
	return c.patchMessage(ctx, token, id, "/category", categoryRequest{Category: category})
}

func (c *Client) patchMessage(ctx context.Context, token, id, suffix string, body any) (*models.Message, error) {
	var msg models.Message
	req := request{
		method: http.MethodPatch,
		path:   "/emails/" + url.PathEscape(id) + suffix,
		token:  token,
		json:   body,
	}
	if err := c.do(ctx, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListUsers returns all users; admin only
func (c *Client) ListUsers(ctx context.Context, token string) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users", token: token}, &users); err != nil {
		return nil, err
	}
	return users, nil
}
