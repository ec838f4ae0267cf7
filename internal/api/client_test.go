package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/testutil"
	"github.com/mixelka/inboxsync/pkg/models"
)

func newClient(fake *testutil.FakeAPI) *api.Client {
	return api.NewClient(api.Config{BaseURL: fake.BaseURL(), Timeout: 5 * time.Second})
}

func TestLogin(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser("alice", "secret", false)
	c := newClient(fake)
	ctx := context.Background()

	token, err := c.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)

	_, err = c.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "Incorrect username or password", api.Detail(err, "fallback"))
}

func TestRegister_DuplicateReturnsDetail(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	c := newClient(fake)
	ctx := context.Background()

	user, err := c.Register(ctx, models.Registration{Username: "bob", Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.True(t, user.IsAdmin, "first user is admin")

	_, err = c.Register(ctx, models.Registration{Username: "bob", Email: "bob@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, "Username already registered", api.Detail(err, ""))

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestMe_RequiresBearer(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", true)
	c := newClient(fake)
	ctx := context.Background()

	_, err := c.Me(ctx, "not-a-token")
	assert.True(t, api.IsUnauthorized(err))

	me, err := c.Me(ctx, fake.IssueToken(user.ID, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.True(t, me.IsAdmin)
}

func TestListUsers_AdminOnly(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	admin := fake.AddUser("root", "pw", true)
	user := fake.AddUser("alice", "pw", false)
	c := newClient(fake)
	ctx := context.Background()

	users, err := c.ListUsers(ctx, fake.IssueToken(admin.ID, time.Hour))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	_, err = c.ListUsers(ctx, fake.IssueToken(user.ID, time.Hour))
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "The user doesn't have enough privileges", api.Detail(err, ""))
}

func TestListMessages_PassesFiltersVerbatim(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", false)
	token := fake.IssueToken(user.ID, time.Hour)
	c := newClient(fake)
	ctx := context.Background()

	fake.AddMessage(models.Message{EmailAccountID: "acc-1", Sender: "a@x.com", Category: "work"})
	fake.AddMessage(models.Message{EmailAccountID: "acc-1", Sender: "b@x.com", IsRead: true})
	fake.AddMessage(models.Message{EmailAccountID: "acc-2", Sender: "c@x.com"})

	all, err := c.ListMessages(ctx, token, api.MessageQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Empty(t, fake.LastQuery())

	unread := false
	filtered, err := c.ListMessages(ctx, token, api.MessageQuery{AccountID: "acc-1", IsRead: &unread, Category: "work"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a@x.com", filtered[0].Sender)

	q := fake.LastQuery()
	assert.Equal(t, "acc-1", q.Get("account_id"))
	assert.Equal(t, "false", q.Get("is_read"))
	assert.Equal(t, "work", q.Get("category"))
}

func TestBulkImport_SendsDescriptorLines(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", false)
	token := fake.IssueToken(user.ID, time.Hour)
	c := newClient(fake)

	created, err := c.BulkImport(context.Background(), token, []models.AccountDescriptor{
		{EmailAddress: "a@x.com", Password: "p", RefreshToken: "r", ClientID: "c"},
		{EmailAddress: "b@x.com", Password: "p", RefreshToken: "r", ClientID: "c"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "a@x.com", created[0].EmailAddress)
	assert.Equal(t, user.ID, created[1].UserID)
}

func TestSyncAccount_ErrorDetail(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", false)
	token := fake.IssueToken(user.ID, time.Hour)
	acc := fake.AddAccount(user.ID, "a@x.com")
	fake.FailSync(acc.ID, "rate limited")
	c := newClient(fake)

	err := c.SyncAccount(context.Background(), token, acc.ID)
	require.Error(t, err)
	assert.Equal(t, "rate limited", api.Detail(err, ""))
}

func TestUpdateCategory(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", false)
	token := fake.IssueToken(user.ID, time.Hour)
	msg := fake.AddMessage(models.Message{Sender: "a@x.com"})
	c := newClient(fake)

	updated, err := c.UpdateCategory(context.Background(), token, msg.ID, "receipts")
	require.NoError(t, err)
	assert.Equal(t, "receipts", updated.Category)

	stored, ok := fake.Message(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "receipts", stored.Category)
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base, ws, want string
	}{
		{"http://localhost:8000/api/v1", "", "ws://localhost:8000/ws/u-1"},
		{"https://mail.example.com/api/v1/", "", "wss://mail.example.com/ws/u-1"},
		{"https://mail.example.com/api/v1", "wss://push.example.com/", "wss://push.example.com/ws/u-1"},
	}

	for _, tc := range cases {
		c := api.NewClient(api.Config{BaseURL: tc.base, WSURL: tc.ws})
		got, err := c.WebSocketURL("u-1")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestRequestPacing(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	fake.AddUser("alice", "secret", false)
	c := api.NewClient(api.Config{BaseURL: fake.BaseURL(), RequestsPerSecond: 20})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Login(ctx, "alice", "secret")
		require.NoError(t, err)
	}
	// burst of 1: the 2nd and 3rd calls each wait ~50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
