package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/inboxsync/internal/config"
	"github.com/mixelka/inboxsync/internal/eml"
	"github.com/mixelka/inboxsync/internal/testutil"
	"github.com/mixelka/inboxsync/internal/tokenstore"
	"github.com/mixelka/inboxsync/pkg/models"
)

// syncBuffer is written by the realtime goroutine during watch
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type harness struct {
	fake *testutil.FakeAPI
	app  *app
	out  *syncBuffer
}

func newHarness(t *testing.T, stdin string) *harness {
	t.Helper()
	fake := testutil.NewFakeAPI(t)

	store, err := tokenstore.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		APIURL:         fake.BaseURL(),
		WSURL:          fake.WSURL(),
		HTTPTimeout:    5 * time.Second,
		TokenTTL:       time.Hour,
		ReconnectDelay: 50 * time.Millisecond,
	}
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &harness{
		fake: fake,
		app:  newApp(context.Background(), cfg, logger, store, strings.NewReader(stdin), out),
		out:  out,
	}
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.out.Reset()
	return dispatch(context.Background(), h.app, args)
}

func (h *harness) login(t *testing.T, username string, admin bool) models.User {
	t.Helper()
	user := h.fake.AddUser(username, "secret", admin)
	require.NoError(t, h.run(t, "login", "-u", username, "-p", "secret"))
	return user
}

func TestDispatch_Usage(t *testing.T) {
	h := newHarness(t, "")

	assert.ErrorIs(t, h.run(t), errUsage)
	assert.ErrorIs(t, h.run(t, "frobnicate"), errUsage)
	assert.ErrorIs(t, h.run(t, "login"), errUsage)
	assert.ErrorIs(t, h.run(t, "login", "-bogus"), errUsage)
}

func TestDispatch_GuardsAuthenticatedCommands(t *testing.T) {
	h := newHarness(t, "")

	for _, name := range []string{"whoami", "accounts", "emails", "sync", "watch", "users"} {
		assert.ErrorIs(t, h.run(t, name), errLoginRequired, name)
	}
	assert.Zero(t, h.fake.TotalCalls())

	require.NoError(t, h.run(t, "help"))
	assert.Contains(t, h.out.String(), "categorize ID CATEGORY")
}

func TestUsers_AdminOnly(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)

	assert.ErrorIs(t, h.run(t, "users"), errAdminRequired)
	assert.Zero(t, h.fake.Calls("GET /users"))

	h.fake.AddUser("root", "secret", true)
	require.NoError(t, h.run(t, "login", "-u", "root", "-p", "secret"))
	require.NoError(t, h.run(t, "users"))
	assert.Contains(t, h.out.String(), "alice")
	assert.Contains(t, h.out.String(), "root")
}

func TestLogin_PromptsForPassword(t *testing.T) {
	h := newHarness(t, "secret\n")
	h.fake.AddUser("alice", "secret", false)

	require.NoError(t, h.run(t, "login", "-u", "alice"))
	assert.Contains(t, h.out.String(), "Password: ")
	assert.Contains(t, h.out.String(), "Logged in as alice")

	require.NoError(t, h.run(t, "whoami"))
	assert.Equal(t, "alice <alice@example.com> (user)\n", h.out.String())

	require.NoError(t, h.run(t, "logout"))
	assert.ErrorIs(t, h.run(t, "whoami"), errLoginRequired)
}

func TestLogin_ShowsRemoteDetail(t *testing.T) {
	h := newHarness(t, "")
	h.fake.AddUser("alice", "secret", false)

	err := h.run(t, "login", "-u", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Incorrect username or password", err.Error())
}

func TestRegister(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.run(t, "register", "-u", "bob", "-e", "bob@example.com", "-p", "pw"))
	assert.Contains(t, h.out.String(), "Registered bob")

	err := h.run(t, "register", "-u", "bob", "-e", "bob@example.com", "-p", "pw")
	require.Error(t, err)
	assert.Equal(t, "Username already registered", err.Error())
}

func TestImportAndAccounts(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)

	path := filepath.Join(t.TempDir(), "accounts.txt")
	content := strings.Join([]string{
		"# exported accounts",
		"a@example.com----pw----rt-a----client-a",
		"",
		"b@example.com——pw——rt-b——client-b",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, h.run(t, "import", path))
	assert.Equal(t, "Imported 2 of 2 accounts\n", h.out.String())

	require.NoError(t, h.run(t, "accounts"))
	assert.Contains(t, h.out.String(), "a@example.com")
	assert.Contains(t, h.out.String(), "b@example.com")
	assert.Contains(t, h.out.String(), "never")
}

func TestImport_RejectsMalformedLine(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)

	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("a@example.com----pw----rt\n"), 0o600))

	err := h.run(t, "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts.txt:1")
	assert.Zero(t, h.fake.Calls("POST /email-accounts/bulk-import"))
}

func TestSync_ReportsEachAccount(t *testing.T) {
	h := newHarness(t, "")
	user := h.login(t, "alice", false)
	h.fake.AddAccount(user.ID, "a@example.com")
	bad := h.fake.AddAccount(user.ID, "b@example.com")
	h.fake.FailSync(bad.ID, "Token refresh failed")

	err := h.run(t, "sync")
	require.Error(t, err)
	assert.Equal(t, "1 of 2 accounts failed to sync", err.Error())

	out := h.out.String()
	assert.Contains(t, out, "[1/2] a@example.com ok")
	assert.Contains(t, out, "[2/2] b@example.com failed: Token refresh failed")
}

func TestSync_NoAccounts(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)

	err := h.run(t, "sync")
	require.Error(t, err)
	assert.Equal(t, "No accounts to sync", err.Error())
	assert.Zero(t, h.fake.Calls("POST /email-accounts/:id/sync"))
}

func TestEmails_FilterAndMarkRead(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)
	unread := h.fake.AddMessage(models.Message{Subject: "Welcome", Sender: "team@example.com"})
	h.fake.AddMessage(models.Message{Subject: "Old news", Sender: "news@example.com", IsRead: true})

	require.NoError(t, h.run(t, "emails", "-status", "unread"))
	assert.Equal(t, "false", h.fake.LastQuery().Get("is_read"))
	assert.Contains(t, h.out.String(), "Welcome")
	assert.NotContains(t, h.out.String(), "Old news")
	assert.Contains(t, h.out.String(), "1 messages, 1 unread")

	assert.ErrorIs(t, h.run(t, "emails", "-status", "maybe"), errUsage)

	require.NoError(t, h.run(t, "read", unread.ID))
	msg, ok := h.fake.Message(unread.ID)
	require.True(t, ok)
	assert.True(t, msg.IsRead)

	require.NoError(t, h.run(t, "categorize", unread.ID, "work"))
	msg, _ = h.fake.Message(unread.ID)
	assert.Equal(t, "work", msg.Category)

	err := h.run(t, "unread", "missing")
	require.Error(t, err)
	assert.Equal(t, "Email not found", err.Error())
}

func TestShow_PrintsCodesAndLinks(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)
	msg := h.fake.AddMessage(models.Message{
		Subject:  "Your sign-in code",
		Sender:   "no-reply@example.com",
		BodyHTML: `<p>Your verification code is 482913</p><p><a href="https://example.com/help">Help</a></p>`,
		Attachments: []models.Attachment{
			{Filename: "terms.pdf", ContentType: "application/pdf", Size: 1024},
		},
	})

	require.NoError(t, h.run(t, "show", msg.ID))
	out := h.out.String()
	assert.Contains(t, out, "Subject:  Your sign-in code")
	assert.Contains(t, out, "482913")
	assert.Contains(t, out, "https://example.com/help")
	assert.Contains(t, out, "terms.pdf (application/pdf, 1024 bytes)")
}

func TestExport_WritesEML(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)
	msg := h.fake.AddMessage(models.Message{
		Subject:  "Invoice",
		Sender:   "billing@example.com",
		BodyText: "Amount due: 10 EUR",
	})

	path := filepath.Join(t.TempDir(), "invoice.eml")
	require.NoError(t, h.run(t, "export", msg.ID, "-o", path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	back, err := eml.Read(f)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", back.Subject)
	assert.Contains(t, back.BodyText, "Amount due: 10 EUR")
}

func TestView_PrintsExportedFile(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)
	msg := h.fake.AddMessage(models.Message{
		Subject:  "Your sign-in code",
		Sender:   "no-reply@example.com",
		BodyText: "Your verification code is 482913",
		Category: "security",
	})

	path := filepath.Join(t.TempDir(), "code.eml")
	require.NoError(t, h.run(t, "export", msg.ID, "-o", path))
	require.NoError(t, h.run(t, "logout"))
	calls := h.fake.TotalCalls()

	require.NoError(t, h.run(t, "view", path))
	out := h.out.String()
	assert.Contains(t, out, "Subject:  Your sign-in code")
	assert.Contains(t, out, "Category: security")
	assert.Contains(t, out, "482913")
	assert.Equal(t, calls, h.fake.TotalCalls())

	assert.ErrorIs(t, h.run(t, "view"), errUsage)
	assert.Error(t, h.run(t, "view", filepath.Join(t.TempDir(), "missing.eml")))
}

func TestShow_RejectedTokenAsksForLogin(t *testing.T) {
	h := newHarness(t, "")
	h.login(t, "alice", false)
	msg := h.fake.AddMessage(models.Message{Subject: "Hello"})

	h.fake.FailNext("GET /emails/:id", http.StatusUnauthorized)
	err := h.run(t, "show", msg.ID)
	require.ErrorIs(t, err, errLoginRequired)
	assert.Contains(t, err.Error(), "Unauthorized")

	h.fake.FailNext("PATCH /emails/:id/read", http.StatusInternalServerError)
	err = h.run(t, "read", msg.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errLoginRequired)
}

func TestWatch_PrintsNewMailUntilCancelled(t *testing.T) {
	h := newHarness(t, "")
	user := h.login(t, "alice", false)
	h.out.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatch(ctx, h.app, []string{"watch"}) }()

	require.Eventually(t, func() bool { return h.fake.SocketCount(user.ID) == 1 }, 2*time.Second, 5*time.Millisecond)

	h.fake.AddMessage(models.Message{Subject: "Fresh", Sender: "x@example.com"})
	require.NoError(t, h.fake.Push(user.ID, map[string]any{
		"type": "new_email",
		"data": map[string]any{"id": "msg-9", "subject": "Fresh", "sender": "x@example.com"},
	}))

	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), "x@example.com  Fresh")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, h.app.messages.Emails(), 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
