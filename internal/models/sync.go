package models

import "time"

// BankSyncResult is the outcome of reconciling one bank against its provider
type BankSyncResult struct {
	BankID    int64  `json:"bank_id"`
	BankCode  string `json:"bank_code"`
	Success   bool   `json:"success"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"` // Plans for unknown cards
	Error     string `json:"error,omitempty"`
}

// SyncReport aggregates the per-bank results of a reconciliation run
type SyncReport struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Results    []BankSyncResult `json:"results"`
}

// Failed returns the number of banks that could not be reconciled
func (r SyncReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}
