// Package accounts mirrors the user's registered mail accounts.
package accounts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/pkg/models"
)

// API is the subset of the remote service the cache needs
type API interface {
	ListAccounts(ctx context.Context, token string) ([]models.EmailAccount, error)
	CreateAccount(ctx context.Context, token string, acc models.NewEmailAccount) (*models.EmailAccount, error)
	BulkImport(ctx context.Context, token string, descriptors []models.AccountDescriptor) ([]models.EmailAccount, error)
	DeleteAccount(ctx context.Context, token, id string) error
	SyncAccount(ctx context.Context, token, id string) error
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

// Result is the outcome of one operation. OpID identifies it in Status.
type Result struct {
	OpID    uuid.UUID
	Success bool
	Error   string
}

// Status is advisory state shared by all operations on the cache
type Status struct {
	Loading   bool
	LastError string
	LastOpID  uuid.UUID
}

// Cache is the local account list. The list only changes after a confirmed
// remote success.
type Cache struct {
	api     API
	session TokenSource
	logger  *slog.Logger

	mu        sync.RWMutex
	accounts  []models.EmailAccount
	inFlight  int
	lastError string
	lastOpID  uuid.UUID
}

// New creates an empty cache
func New(deps Deps) *Cache {
	return &Cache{
		api:     deps.API,
		session: deps.Session,
		logger:  deps.Logger.With("component", "accounts"),
	}
}

// begin registers an operation in flight
func (c *Cache) begin() uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	return id
}

// finish records the outcome of op and applies mutate under the lock
func (c *Cache) finish(op uuid.UUID, err error, fallback string, mutate func()) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight--
	c.lastOpID = op

	if err != nil {
		detail := api.Detail(err, fallback)
		c.lastError = detail
		return Result{OpID: op, Error: detail}
	}

	c.lastError = ""
	if mutate != nil {
		mutate()
	}
	return Result{OpID: op, Success: true}
}

// FetchAccounts replaces the list with the remote one. Concurrent fetches are
// not ordered: the last response to arrive wins.
func (c *Cache) FetchAccounts(ctx context.Context) Result {
	op := c.begin()
	list, err := c.api.ListAccounts(ctx, c.session.Token())
	if err != nil {
		c.logger.Warn("Failed to fetch accounts", "op", op, "error", err)
	}
	return c.finish(op, err, "Failed to fetch email accounts", func() {
		c.accounts = list
	})
}

// AddAccount creates one account and appends it to the list
func (c *Cache) AddAccount(ctx context.Context, email, refreshToken, clientID string) (*models.EmailAccount, Result) {
	op := c.begin()
	created, err := c.api.CreateAccount(ctx, c.session.Token(), models.NewEmailAccount{
		EmailAddress: email,
		RefreshToken: refreshToken,
		ClientID:     clientID,
	})
	if err != nil {
		c.logger.Warn("Failed to add account", "op", op, "email", email, "error", err)
		return nil, c.finish(op, err, "Failed to add email account", nil)
	}

	c.logger.Info("Added account", "op", op, "email", created.EmailAddress, "id", created.ID)
	res := c.finish(op, nil, "", func() {
		c.accounts = append(c.accounts, *created)
	})
	return created, res
}

// BulkImport creates many accounts in one call and returns how many were
// created. A failed call applies nothing locally.
func (c *Cache) BulkImport(ctx context.Context, descriptors []models.AccountDescriptor) (int, Result) {
	op := c.begin()
	created, err := c.api.BulkImport(ctx, c.session.Token(), descriptors)
	if err != nil {
		c.logger.Warn("Bulk import failed", "op", op, "count", len(descriptors), "error", err)
		return 0, c.finish(op, err, "Failed to import email accounts", nil)
	}

	c.logger.Info("Imported accounts", "op", op, "requested", len(descriptors), "created", len(created))
	res := c.finish(op, nil, "", func() {
		c.accounts = append(c.accounts, created...)
	})
	return len(created), res
}

// DeleteAccount removes an account remotely, then locally
func (c *Cache) DeleteAccount(ctx context.Context, id string) Result {
	op := c.begin()
	err := c.api.DeleteAccount(ctx, c.session.Token(), id)
	if err != nil {
		c.logger.Warn("Failed to delete account", "op", op, "id", id, "error", err)
	}
	return c.finish(op, err, "Failed to delete email account", func() {
		kept := c.accounts[:0:0]
		for _, a := range c.accounts {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		c.accounts = kept
	})
}

// SyncAccount triggers a remote sync of one account. The local list is not
// touched; sync status shows up on the next fetch.
func (c *Cache) SyncAccount(ctx context.Context, id string) Result {
	op := c.begin()
	err := c.api.SyncAccount(ctx, c.session.Token(), id)
	if err != nil {
		c.logger.Warn("Failed to sync account", "op", op, "id", id, "error", err)
	}
	return c.finish(op, err, "Failed to sync email account", nil)
}

// Accounts returns a copy of the cached list
func (c *Cache) Accounts() []models.EmailAccount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.EmailAccount, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Find returns the cached account with id
func (c *Cache) Find(id string) (models.EmailAccount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return models.EmailAccount{}, false
}

// Status returns the advisory state
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Loading:   c.inFlight > 0,
		LastError: c.lastError,
		LastOpID:  c.lastOpID,
	}
}
