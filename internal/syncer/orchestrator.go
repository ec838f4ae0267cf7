// Package syncer runs the remote sync across every cached account.
package syncer

import (
	"context"
	"log/slog"

	"github.com/mixelka/inboxsync/internal/accounts"
	"github.com/mixelka/inboxsync/pkg/models"
)

// ErrNoAccounts is the batch error when there is nothing to sync
const ErrNoAccounts = "No accounts to sync"

// Source provides the work list and executes one account sync
type Source interface {
	Accounts() []models.EmailAccount
	SyncAccount(ctx context.Context, id string) accounts.Result
}

// ProgressFunc is called after each account with its 1-based position
type ProgressFunc func(done, total int, res models.AccountSyncResult)

// Orchestrator syncs accounts one at a time
type Orchestrator struct {
	source     Source
	logger     *slog.Logger
	onProgress ProgressFunc
}

// New creates an orchestrator over source
func New(source Source, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		source: source,
		logger: logger.With("component", "syncer"),
	}
}

// OnProgress sets the per-account callback
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.onProgress = fn
}

// SyncAll syncs every account sequentially. A failing account does not stop
// the batch; the overall flag is the AND of all outcomes. Failures are never
// returned as errors, callers inspect the result.
func (o *Orchestrator) SyncAll(ctx context.Context) models.SyncBatchResult {
	list := o.source.Accounts()
	if len(list) == 0 {
		return models.SyncBatchResult{Error: ErrNoAccounts, Results: []models.AccountSyncResult{}}
	}

	o.logger.Info("Syncing accounts", "count", len(list))

	batch := models.SyncBatchResult{
		Success: true,
		Count:   len(list),
		Results: make([]models.AccountSyncResult, 0, len(list)),
	}

	for i, acc := range list {
		res := o.source.SyncAccount(ctx, acc.ID)

		entry := models.AccountSyncResult{Account: acc.EmailAddress, Success: res.Success}
		if !res.Success {
			detail := res.Error
			if detail == "" {
				detail = "Sync failed"
			}
			entry.Error = &detail
			batch.Success = false
			o.logger.Warn("Account sync failed", "email", acc.EmailAddress, "error", detail)
		}

		batch.Results = append(batch.Results, entry)
		if o.onProgress != nil {
			o.onProgress(i+1, len(list), entry)
		}
	}

	o.logger.Info("Sync finished", "count", batch.Count, "failed", len(batch.Failed()))
	return batch
}
