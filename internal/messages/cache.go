// Package messages mirrors a filtered set of fetched emails plus one
// focused message.
package messages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/pkg/models"
)

// API is the subset of the remote service the cache needs
type API interface {
	ListMessages(ctx context.Context, token string, q api.MessageQuery) ([]models.Message, error)
	GetMessage(ctx context.Context, token, id string) (*models.Message, error)
	MarkRead(ctx context.Context, token, id string) (*models.Message, error)
	MarkUnread(ctx context.Context, token, id string) (*models.Message, error)
	UpdateCategory(ctx context.Context, token, id, category string) (*models.Message, error)
}

// TokenSource provides the current credential
type TokenSource interface {
	Token() string
}

// Deps contains cache dependencies
type Deps struct {
	API     API
	Session TokenSource
	Logger  *slog.Logger
}

// Filter narrows FetchEmails. Zero fields are not sent.
type Filter struct {
	AccountID string
	IsRead    *bool
	Category  string
}

// Result is the outcome of a list fetch. Fetch failures are reported here
// and in Status rather than as errors.
type Result struct {
	Success bool
	Error   string
}

// Status is advisory state for observers
type Status struct {
	Loading bool
	Error   string
}

// Cache holds the fetched list and the focused message. Local state only
// changes after the remote call has succeeded.
type Cache struct {
	api     API
	session TokenSource
	logger  *slog.Logger

	mu       sync.RWMutex
	emails   []models.Message
	current  *models.Message
	inFlight int
	err      string
}

// New creates an empty cache
func New(deps Deps) *Cache {
	return &Cache{
		api:     deps.API,
		session: deps.Session,
		logger:  deps.Logger.With("component", "messages"),
	}
}

func (c *Cache) begin() {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
}

// FetchEmails replaces the list with the server's result for filter. A
// failure keeps the previous list and is recorded in Status.
func (c *Cache) FetchEmails(ctx context.Context, filter Filter) Result {
	c.begin()
	list, err := c.api.ListMessages(ctx, c.session.Token(), api.MessageQuery{
		AccountID: filter.AccountID,
		IsRead:    filter.IsRead,
		Category:  filter.Category,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if err != nil {
		c.err = api.Detail(err, "Failed to fetch emails")
		c.logger.Warn("Failed to fetch emails", "error", err)
		return Result{Error: c.err}
	}
	c.err = ""
	c.emails = list
	return Result{Success: true}
}

// Invalidate discards the cached list in favour of an unfiltered refetch
func (c *Cache) Invalidate(ctx context.Context) {
	c.FetchEmails(ctx, Filter{})
}

// FetchEmailByID focuses a message. The focused message is cleared first and
// stays nil when the fetch fails.
func (c *Cache) FetchEmailByID(ctx context.Context, id string) (*models.Message, error) {
	c.mu.Lock()
	c.current = nil
	c.inFlight++
	c.mu.Unlock()

	msg, err := c.api.GetMessage(ctx, c.session.Token(), id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if err != nil {
		c.err = api.Detail(err, "Failed to fetch email")
		c.logger.Warn("Failed to fetch email", "id", id, "error", err)
		return nil, err
	}
	c.err = ""
	c.current = msg
	out := *msg
	return &out, nil
}

// Lookup returns the cached list entry for id, or fetches the message
// without touching the list, the focused message or Status.
func (c *Cache) Lookup(ctx context.Context, id string) (*models.Message, error) {
	if msg, ok := c.Find(id); ok {
		return &msg, nil
	}
	msg, err := c.api.GetMessage(ctx, c.session.Token(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get email %s: %w", id, err)
	}
	return msg, nil
}

// MarkAsRead marks a message read remotely, then locally
func (c *Cache) MarkAsRead(ctx context.Context, id string) error {
	if _, err := c.api.MarkRead(ctx, c.session.Token(), id); err != nil {
		return fmt.Errorf("failed to mark email %s as read: %w", id, err)
	}
	c.patch(id, func(m *models.Message) { m.IsRead = true })
	return nil
}

// MarkAsUnread marks a message unread remotely, then locally
func (c *Cache) MarkAsUnread(ctx context.Context, id string) error {
	if _, err := c.api.MarkUnread(ctx, c.session.Token(), id); err != nil {
		return fmt.Errorf("failed to mark email %s as unread: %w", id, err)
	}
	c.patch(id, func(m *models.Message) { m.IsRead = false })
	return nil
}

// UpdateCategory relabels a message remotely, then locally
func (c *Cache) UpdateCategory(ctx context.Context, id, category string) error {
	if _, err := c.api.UpdateCategory(ctx, c.session.Token(), id, category); err != nil {
		return fmt.Errorf("failed to update category of email %s: %w", id, err)
	}
	c.patch(id, func(m *models.Message) { m.Category = category })
	return nil
}

// patch applies fn to a copy of the list entry and of the focused message
// when their id matches
func (c *Cache) patch(id string, fn func(*models.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.emails {
		if c.emails[i].ID == id {
			updated := c.emails[i]
			fn(&updated)
			c.emails[i] = updated
		}
	}

	if c.current != nil && c.current.ID == id {
		updated := *c.current
		fn(&updated)
		c.current = &updated
	}
}

// Emails returns a copy of the cached list
func (c *Cache) Emails() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.emails))
	copy(out, c.emails)
	return out
}

// Find returns the cached list entry with id
func (c *Cache) Find(id string) (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.emails {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Current returns a copy of the focused message, nil if none
func (c *Cache) Current() *models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	m := *c.current
	return &m
}

// UnreadCount is the number of cached messages not yet read
func (c *Cache) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.emails {
		if !m.IsRead {
			n++
		}
	}
	return n
}

// CategoryCounts maps each category label, including "", to its message count
func (c *Cache) CategoryCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, m := range c.emails {
		counts[m.Category]++
	}
	return counts
}

// Status returns the advisory state
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{Loading: c.inFlight > 0, Error: c.err}
}
