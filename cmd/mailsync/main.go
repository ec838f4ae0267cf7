package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/inboxsync/internal/config"
	"github.com/mixelka/inboxsync/internal/tokenstore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger; stdout is reserved for command output
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open token store", "error", err)
		os.Exit(1)
	}

	a := newApp(ctx, cfg, logger, store, os.Stdin, os.Stdout)
	err = dispatch(ctx, a, os.Args[1:])
	closeStore()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore opens the credential store selected by TOKEN_STORE
func openStore(ctx context.Context, cfg *config.Config) (tokenstore.Store, func(), error) {
	switch cfg.TokenStore {
	case config.TokenStoreKeyring:
		dir, err := expandHome(cfg.KeyringDir)
		if err != nil {
			return nil, nil, err
		}
		store, err := tokenstore.NewKeyringStore(tokenstore.KeyringOptions{FileDir: dir})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		store, err := tokenstore.NewSQLiteStore(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
