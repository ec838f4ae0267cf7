package models

// AccountSyncResult is the outcome of syncing one account in a batch
type AccountSyncResult struct {
	Account string  `json:"account"`
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

// SyncBatchResult aggregates one bulk sync run. Success is the AND over all
// entries; Error is only set when the batch could not start.
type SyncBatchResult struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Results []AccountSyncResult `json:"results"`
	Error   string              `json:"error,omitempty"`
}

// Failed returns the entries that did not succeed
func (r SyncBatchResult) Failed() []AccountSyncResult {
	var failed []AccountSyncResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}
