// Package session owns the bearer credential and the authenticated user's profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/tokenstore"
	"github.com/mixelka/inboxsync/pkg/models"
)

// DefaultTokenTTL is how long a persisted credential is kept
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrTokenExpired is reported when a JWT credential is past its exp claim
var ErrTokenExpired = errors.New("token expired")

// API is the subset of the remote service the session needs
type API interface {
	Login(ctx context.Context, username, password string) (*models.Token, error)
	Register(ctx context.Context, reg models.Registration) (*models.User, error)
	Me(ctx context.Context, token string) (*models.User, error)
}

// Deps contains session dependencies
type Deps struct {
	API      API
	Store    tokenstore.Store
	Logger   *slog.Logger
	TokenTTL time.Duration
}

// Result is the outcome of Login and Register
type Result struct {
	Success bool
	Message string
	User    *models.User
}

// Manager holds the session state. isAuthenticated is equivalent to a
// credential being present, and the profile is never set without one.
type Manager struct {
	api    API
	store  tokenstore.Store
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	token string
	user  *models.User

	ready chan struct{}
}

// New creates the manager. A persisted credential is adopted immediately and
// its profile is fetched in the background; Ready is closed when that fetch ends.
func New(ctx context.Context, deps Deps) *Manager {
	ttl := deps.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	m := &Manager{
		api:    deps.API,
		store:  deps.Store,
		logger: deps.Logger.With("component", "session"),
		ttl:    ttl,
		ready:  make(chan struct{}),
	}

	token, err := m.store.Get(ctx, tokenstore.TokenKey)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			m.logger.Warn("Failed to read persisted token", "error", err)
		}
		close(m.ready)
		return m
	}

	m.token = token
	m.logger.Debug("Adopted persisted token")

	go func() {
		defer close(m.ready)
		// the startup fetch outlives a cancelled constructor context
		_ = m.FetchUserInfo(context.WithoutCancel(ctx))
	}()

	return m
}

// Ready is closed once the startup profile fetch has completed
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Login exchanges credentials for a token, persists it and fetches the profile.
// On failure the previous state is left untouched.
func (m *Manager) Login(ctx context.Context, username, password string) Result {
	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.logger.Info("Login failed", "username", username, "error", err)
		return Result{Message: api.RemoteDetail(err, "Login failed")}
	}
	if token.AccessToken == "" {
		return Result{Message: "Login failed: empty token"}
	}

	m.mu.Lock()
	m.token = token.AccessToken
	m.user = nil
	m.mu.Unlock()

	if err := m.store.Set(ctx, tokenstore.TokenKey, token.AccessToken, m.ttl); err != nil {
		m.logger.Warn("Failed to persist token", "error", err)
	}

	if err := m.FetchUserInfo(ctx); err != nil {
		return Result{Message: api.RemoteDetail(err, "Failed to load user profile")}
	}

	user := m.User()
	m.logger.Info("Logged in", "username", username)
	return Result{Success: true, User: user}
}

// Register creates a new user. It does not log in.
func (m *Manager) Register(ctx context.Context, username, email, password string) Result {
	user, err := m.api.Register(ctx, models.Registration{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		m.logger.Info("Registration failed", "username", username, "error", err)
		return Result{Message: api.RemoteDetail(err, "Registration failed")}
	}

	m.logger.Info("Registered user", "username", username)
	return Result{Success: true, User: user}
}

// FetchUserInfo loads the profile for the current credential. It is a no-op
// without a credential. Any failure logs the session out.
func (m *Manager) FetchUserInfo(ctx context.Context) error {
	token := m.Token()
	if token == "" {
		return nil
	}

	user, err := m.fetchProfile(ctx, token)
	if err != nil {
		m.logger.Warn("Profile fetch failed, logging out", "error", err)
		m.logoutIfCurrent(ctx, token)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a logout or new login happened meanwhile
	if m.token != token {
		return nil
	}
	m.user = user
	return nil
}

func (m *Manager) fetchProfile(ctx context.Context, token string) (*models.User, error) {
	if expired(token, time.Now()) {
		return nil, ErrTokenExpired
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return user, nil
}

// expired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens and tokens without exp are left to the server.
func expired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Logout clears the credential and profile and removes the persisted token
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.forget(ctx)
}

func (m *Manager) logoutIfCurrent(ctx context.Context, token string) {
	m.mu.Lock()
	if m.token != token {
		m.mu.Unlock()
		return
	}
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.forget(ctx)
}

func (m *Manager) forget(ctx context.Context) {
	if err := m.store.Delete(ctx, tokenstore.TokenKey); err != nil {
		m.logger.Warn("Failed to remove persisted token", "error", err)
	}
}

// Token returns the current credential, empty when logged out
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns a copy of the profile, nil when not loaded
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// UserID returns the profile id, empty when not loaded
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.IsAdmin
}
