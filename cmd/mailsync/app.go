package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/mixelka/inboxsync/internal/accounts"
	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/config"
	"github.com/mixelka/inboxsync/internal/messages"
	"github.com/mixelka/inboxsync/internal/session"
	"github.com/mixelka/inboxsync/internal/syncer"
	"github.com/mixelka/inboxsync/internal/tokenstore"
)

// app is the composition root shared by all commands
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	in     *bufio.Reader
	out    io.Writer

	client   *api.Client
	session  *session.Manager
	accounts *accounts.Cache
	messages *messages.Cache
	syncer   *syncer.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, store tokenstore.Store, in io.Reader, out io.Writer) *app {
	client := api.NewClient(api.Config{
		BaseURL:           cfg.APIURL,
		WSURL:             cfg.WSURL,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	sess := session.New(ctx, session.Deps{
		API:      client,
		Store:    store,
		Logger:   logger,
		TokenTTL: cfg.TokenTTL,
	})

	accountCache := accounts.New(accounts.Deps{API: client, Session: sess, Logger: logger})
	messageCache := messages.New(messages.Deps{API: client, Session: sess, Logger: logger})

	return &app{
		cfg:      cfg,
		logger:   logger,
		in:       bufio.NewReader(in),
		out:      out,
		client:   client,
		session:  sess,
		accounts: accountCache,
		messages: messageCache,
		syncer:   syncer.New(accountCache, logger),
	}
}
