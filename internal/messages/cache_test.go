package messages_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/messages"
	"github.com/mixelka/inboxsync/internal/testutil"
	"github.com/mixelka/inboxsync/pkg/models"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newCache(t *testing.T) (*messages.Cache, *testutil.FakeAPI) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	user := fake.AddUser("alice", "secret", false)
	c := messages.New(messages.Deps{
		API:     api.NewClient(api.Config{BaseURL: fake.BaseURL(), Timeout: 5 * time.Second}),
		Session: staticToken(fake.IssueToken(user.ID, time.Hour)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, fake
}

func seed(fake *testutil.FakeAPI) []models.Message {
	return []models.Message{
		fake.AddMessage(models.Message{EmailAccountID: "acc-1", Subject: "one", Category: "work"}),
		fake.AddMessage(models.Message{EmailAccountID: "acc-1", Subject: "two", IsRead: true}),
		fake.AddMessage(models.Message{EmailAccountID: "acc-2", Subject: "three", Category: "work"}),
	}
}

func TestFetchEmails_FiltersPassedThrough(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	seed(fake)

	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)
	assert.Len(t, c.Emails(), 3)

	read := true
	require.True(t, c.FetchEmails(ctx, messages.Filter{IsRead: &read}).Success)
	require.Len(t, c.Emails(), 1)
	assert.Equal(t, "two", c.Emails()[0].Subject)
	assert.Equal(t, "true", fake.LastQuery().Get("is_read"))

	require.True(t, c.FetchEmails(ctx, messages.Filter{AccountID: "acc-2", Category: "work"}).Success)
	require.Len(t, c.Emails(), 1)
	assert.Equal(t, "three", c.Emails()[0].Subject)
}

func TestFetchEmails_FailureRecordedAndListKept(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	seed(fake)
	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)

	fake.FailNext("GET /emails", http.StatusServiceUnavailable)
	res := c.FetchEmails(ctx, messages.Filter{})
	assert.False(t, res.Success)
	assert.Equal(t, "Service Unavailable", res.Error)
	assert.Len(t, c.Emails(), 3)
	assert.Equal(t, messages.Status{Error: "Service Unavailable"}, c.Status())

	c.Invalidate(ctx)
	assert.Equal(t, messages.Status{}, c.Status())
}

func TestFetchEmailByID(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	msgs := seed(fake)

	got, err := c.FetchEmailByID(ctx, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Subject)
	require.NotNil(t, c.Current())
	assert.Equal(t, msgs[0].ID, c.Current().ID)

	_, err = c.FetchEmailByID(ctx, "msg-missing")
	require.Error(t, err)
	assert.Nil(t, c.Current(), "focused message is cleared before fetching")
	assert.Equal(t, "Email not found", c.Status().Error)
}

func TestMarkReadThenUnread_KeepsListAndFocusConsistent(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	msgs := seed(fake)
	id := msgs[0].ID

	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)
	_, err := c.FetchEmailByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, c.MarkAsRead(ctx, id))
	entry, ok := c.Find(id)
	require.True(t, ok)
	assert.True(t, entry.IsRead)
	assert.True(t, c.Current().IsRead)

	require.NoError(t, c.MarkAsUnread(ctx, id))
	entry, _ = c.Find(id)
	assert.False(t, entry.IsRead)
	assert.False(t, c.Current().IsRead)
	assert.Equal(t, entry.IsRead, c.Current().IsRead)
}

func TestWriteFailuresPropagateWithoutLocalChange(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	msgs := seed(fake)
	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)
	before := c.Emails()

	fake.FailNext("PATCH /emails/:id/read", http.StatusInternalServerError)
	err := c.MarkAsRead(ctx, msgs[0].ID)
	require.Error(t, err)
	assert.Equal(t, "Internal Server Error", api.Detail(err, ""))

	err = c.UpdateCategory(ctx, "msg-missing", "spam")
	require.Error(t, err)
	assert.Equal(t, "Email not found", api.Detail(err, ""))

	assert.Equal(t, before, c.Emails())
}

func TestUpdateCategory(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	msgs := seed(fake)
	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)

	require.NoError(t, c.UpdateCategory(ctx, msgs[1].ID, "receipts"))
	entry, _ := c.Find(msgs[1].ID)
	assert.Equal(t, "receipts", entry.Category)
	assert.Nil(t, c.Current(), "no focused message to update")
}

func TestDerivedCounts(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	seed(fake)
	fake.AddMessage(models.Message{Subject: "four", Category: "work"})
	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)

	assert.Equal(t, 3, c.UnreadCount())

	counts := c.CategoryCounts()
	assert.Equal(t, map[string]int{"work": 3, models.DefaultCategory: 1}, counts)
	assert.Equal(t, counts, c.CategoryCounts())

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, len(c.Emails()), total)
}

func TestDerivedCounts_EmptyCategoryIsCounted(t *testing.T) {
	c, fake := newCache(t)
	ctx := context.Background()
	msgs := seed(fake)

	// the service stores an explicit empty label as is
	require.NoError(t, c.UpdateCategory(ctx, msgs[0].ID, ""))
	require.True(t, c.FetchEmails(ctx, messages.Filter{}).Success)

	counts := c.CategoryCounts()
	assert.Equal(t, 1, counts[""])

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, len(c.Emails()), total)
}
