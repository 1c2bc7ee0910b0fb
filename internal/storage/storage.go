// Package storage persists wallet transaction history and user preferences.
package storage

import "context"

// HistoryStore records transactions per wallet.
type HistoryStore interface {
	AddTransaction(ctx context.Context, rec *TxRecord) error
	// ResolveTransaction moves a pending record to its final status. It
	// reports false, without writing, when the record is missing or already resolved.
	ResolveTransaction(ctx context.Context, hash string, res Resolution) (bool, error)
	GetTransaction(ctx context.Context, hash string) (*TxRecord, error)
	ListTransactions(ctx context.Context, owner string, limit, offset int) (*PaginatedTxRecords, error)
	ListPending(ctx context.Context) ([]TxRecord, error)
	ClearHistory(ctx context.Context, owner string) (int64, error)
}

// PreferenceStore is a string key-value store.
type PreferenceStore interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}

// Storage defines the persistence interface for the swap core.
type Storage interface {
	HistoryStore
	PreferenceStore

	Close() error
}
