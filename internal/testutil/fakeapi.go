// Package testutil provides an in-process fake of the mail aggregation
// service for package tests.
package testutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/mixelka/inboxsync/pkg/models"
)

const apiPrefix = "/api/v1"

type fakeUser struct {
	user     models.User
	password string
}

// FakeAPI is a fake aggregation service backed by an httptest.Server
type FakeAPI struct {
	server   *httptest.Server
	secret   []byte
	upgrader websocket.Upgrader

	mu           sync.Mutex
	nextID       int
	users        map[string]*fakeUser // by username
	accounts     []models.EmailAccount
	messages     []models.Message
	syncFailures map[string]string // account id -> detail
	failures     map[string]int    // "METHOD /path" -> status forced for next call
	calls        map[string]int
	queries      []url.Values
	sockets      map[string][]*websocket.Conn
	dials        map[string]int
	rejectWS     bool
}

// NewFakeAPI starts a fake service that is closed when the test ends
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeAPI{
		secret:       []byte("fake-secret"),
		users:        make(map[string]*fakeUser),
		syncFailures: make(map[string]string),
		failures:     make(map[string]int),
		calls:        make(map[string]int),
		sockets:      make(map[string][]*websocket.Conn),
		dials:        make(map[string]int),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	f.server = httptest.NewServer(f.router())
	t.Cleanup(f.Close)

	return f
}

// BaseURL is the API root including the version prefix
func (f *FakeAPI) BaseURL() string {
	return f.server.URL + apiPrefix
}

// WSURL is the push endpoint root
func (f *FakeAPI) WSURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

// Close drops all sockets and stops the server
func (f *FakeAPI) Close() {
	f.mu.Lock()
	for id, conns := range f.sockets {
		for _, c := range conns {
			_ = c.Close()
		}
		delete(f.sockets, id)
	}
	f.mu.Unlock()
	f.server.Close()
}

// AddUser registers a user directly
func (f *FakeAPI) AddUser(username, password string, admin bool) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(username, username+"@example.com", password, admin)
}

func (f *FakeAPI) addUserLocked(username, email, password string, admin bool) models.User {
	u := models.User{
		ID:        f.newIDLocked("user"),
		Username:  username,
		Email:     email,
		IsActive:  true,
		IsAdmin:   admin,
		CreatedAt: models.Timestamp{Time: time.Now().UTC()},
	}
	f.users[username] = &fakeUser{user: u, password: password}
	return u
}

// IssueToken mints an HS256 token for userID expiring after ttl
func (f *FakeAPI) IssueToken(userID string, ttl time.Duration) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// AddAccount stores an account owned by userID
func (f *FakeAPI) AddAccount(userID, email string) models.EmailAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addAccountLocked(userID, email)
}

func (f *FakeAPI) addAccountLocked(userID, email string) models.EmailAccount {
	acc := models.EmailAccount{
		ID:           f.newIDLocked("acc"),
		UserID:       userID,
		EmailAddress: email,
		CreatedAt:    models.Timestamp{Time: time.Now().UTC()},
	}
	f.accounts = append(f.accounts, acc)
	return acc
}

// AddMessage stores a message; ID and Category are filled in when empty
func (f *FakeAPI) AddMessage(msg models.Message) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.ID == "" {
		msg.ID = f.newIDLocked("msg")
	}
	if msg.Category == "" {
		msg.Category = models.DefaultCategory
	}
	f.messages = append(f.messages, msg)
	return msg
}

// FailSync makes POST /email-accounts/{id}/sync fail with detail
func (f *FakeAPI) FailSync(accountID, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncFailures[accountID] = detail
}

// FailNext makes the next call to route ("GET /users/me") answer status
func (f *FakeAPI) FailNext(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
}

// RejectSockets makes the push endpoint refuse upgrades
func (f *FakeAPI) RejectSockets(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectWS = reject
}

// Calls returns how many times route ("GET /emails") was hit
func (f *FakeAPI) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls returns the number of API calls made so far
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// LastQuery returns the query of the last GET /emails
func (f *FakeAPI) LastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

// Message returns the stored copy of a message
func (f *FakeAPI) Message(id string) (models.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Dials returns how many push connections userID opened (including rejected ones)
func (f *FakeAPI) Dials(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[userID]
}

// SocketCount returns the number of open push connections for userID
func (f *FakeAPI) SocketCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets[userID])
}

// Push sends an event to every open connection of userID
func (f *FakeAPI) Push(userID string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conns := f.sockets[userID]
	if len(conns) == 0 {
		return errors.New("no open sockets")
	}
	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			return err
		}
	}
	return nil
}

// DropSockets closes every push connection of userID from the server side
func (f *FakeAPI) DropSockets(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.sockets[userID] {
		_ = c.Close()
	}
	delete(f.sockets, userID)
}

func (f *FakeAPI) newIDLocked(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeAPI) router() *gin.Engine {
	r := gin.New()
	r.Use(f.record)

	v1 := r.Group(apiPrefix)
	v1.POST("/auth/login", f.login)
	v1.POST("/auth/register", f.register)

	authed := v1.Group("", f.authenticate)
	authed.GET("/users/me", f.me)
	authed.GET("/users", f.listUsers)
	authed.GET("/email-accounts", f.listAccounts)
	authed.POST("/email-accounts", f.createAccount)
	authed.POST("/email-accounts/bulk-import", f.bulkImport)
	authed.DELETE("/email-accounts/:id", f.deleteAccount)
	authed.POST("/email-accounts/:id/sync", f.syncAccount)
	authed.GET("/emails", f.listMessages)
	authed.GET("/emails/:id", f.getMessage)
	authed.PATCH("/emails/:id/read", f.markRead(true))
	authed.PATCH("/emails/:id/unread", f.markRead(false))
	authed.PATCH("/emails/:id/category", f.updateCategory)

	r.GET("/ws/:userID", f.socket)

	return r
}

// record counts calls and applies forced failures
func (f *FakeAPI) record(c *gin.Context) {
	route := c.Request.Method + " " + strings.TrimPrefix(c.FullPath(), apiPrefix)

	f.mu.Lock()
	f.calls[route]++
	status, fail := f.failures[route]
	delete(f.failures, route)
	f.mu.Unlock()

	if fail {
		c.AbortWithStatusJSON(status, gin.H{"detail": http.StatusText(status)})
		return
	}
	c.Next()
}

func (f *FakeAPI) authenticate(c *gin.Context) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return f.secret, nil
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}

	f.mu.Lock()
	var found *fakeUser
	for _, u := range f.users {
		if u.user.ID == claims.Subject {
			found = u
		}
	}
	f.mu.Unlock()

	if found == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		return
	}
	c.Set("user", found.user)
	c.Next()
}

func currentUser(c *gin.Context) models.User {
	return c.MustGet("user").(models.User)
}

func (f *FakeAPI) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	f.mu.Lock()
	u, ok := f.users[username]
	f.mu.Unlock()

	if !ok || u.password != password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
		return
	}
	c.JSON(http.StatusOK, models.Token{
		AccessToken: f.IssueToken(u.user.ID, time.Hour),
		TokenType:   "bearer",
	})
}

func (f *FakeAPI) register(c *gin.Context) {
	var reg models.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": err.Error(), "loc": []string{"body"}}}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[reg.Username]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		return
	}
	c.JSON(http.StatusOK, f.addUserLocked(reg.Username, reg.Email, reg.Password, len(f.users) == 0))
}

func (f *FakeAPI) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (f *FakeAPI) listUsers(c *gin.Context) {
	if !currentUser(c).IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"detail": "The user doesn't have enough privileges"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) listAccounts(c *gin.Context) {
	user := currentUser(c)

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.EmailAccount{}
	for _, a := range f.accounts {
		if a.UserID == user.ID {
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) createAccount(c *gin.Context) {
	var in models.NewEmailAccount
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	user := currentUser(c)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.UserID == user.ID && a.EmailAddress == in.EmailAddress {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email account already exists"})
			return
		}
	}
	c.JSON(http.StatusOK, f.addAccountLocked(user.ID, in.EmailAddress))
}

func (f *FakeAPI) bulkImport(c *gin.Context) {
	var in struct {
		EmailAccounts []string `json:"email_accounts"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	user := currentUser(c)

	f.mu.Lock()
	defer f.mu.Unlock()
	created := []models.EmailAccount{}
	for _, line := range in.EmailAccounts {
		d, err := models.ParseAccountDescriptor(line)
		if err != nil {
			continue
		}
		created = append(created, f.addAccountLocked(user.ID, d.EmailAddress))
	}
	c.JSON(http.StatusOK, created)
}

func (f *FakeAPI) deleteAccount(c *gin.Context) {
	id := c.Param("id")

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.accounts {
		if a.ID == id {
			f.accounts = append(f.accounts[:i], f.accounts[i+1:]...)
			c.JSON(http.StatusOK, a)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Email account not found"})
}

func (f *FakeAPI) syncAccount(c *gin.Context) {
	id := c.Param("id")

	f.mu.Lock()
	defer f.mu.Unlock()
	if detail, ok := f.syncFailures[id]; ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": detail})
		return
	}
	for _, a := range f.accounts {
		if a.ID == id {
			c.JSON(http.StatusOK, a)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Email account not found"})
}

func (f *FakeAPI) listMessages(c *gin.Context) {
	q := c.Request.URL.Query()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	out := []models.Message{}
	for _, m := range f.messages {
		if v := q.Get("account_id"); v != "" && m.EmailAccountID != v {
			continue
		}
		if v := q.Get("is_read"); v != "" && fmt.Sprint(m.IsRead) != v {
			continue
		}
		if v := q.Get("category"); v != "" && m.Category != v {
			continue
		}
		out = append(out, m)
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) findMessageLocked(id string) int {
	for i, m := range f.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (f *FakeAPI) getMessage(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.findMessageLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Email not found"})
		return
	}
	c.JSON(http.StatusOK, f.messages[i])
}

func (f *FakeAPI) markRead(read bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		i := f.findMessageLocked(c.Param("id"))
		if i < 0 {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Email not found"})
			return
		}
		f.messages[i].IsRead = read
		c.JSON(http.StatusOK, f.messages[i])
	}
}

func (f *FakeAPI) updateCategory(c *gin.Context) {
	var in struct {
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.findMessageLocked(c.Param("id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Email not found"})
		return
	}
	f.messages[i].Category = in.Category
	c.JSON(http.StatusOK, f.messages[i])
}

func (f *FakeAPI) socket(c *gin.Context) {
	userID := c.Param("userID")

	f.mu.Lock()
	f.dials[userID]++
	reject := f.rejectWS
	f.mu.Unlock()

	if reject {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "push unavailable"})
		return
	}

	ws, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.sockets[userID] = append(f.sockets[userID], ws)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		conns := f.sockets[userID]
		for i, conn := range conns {
			if conn == ws {
				f.sockets[userID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
