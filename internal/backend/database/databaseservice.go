package database

import (
	"context"
	"errors"
)

// PartitionImages is the partition holding binary image records.
const PartitionImages = "images"

// ErrNotInitialized is returned by any data operation invoked before Open completed.
var ErrNotInitialized = errors.New("store not initialized")

// Record is the persisted shape of a binary image record. This layout is the
// stable on-disk contract; schema upgrades may add partitions but never
// change these columns.
type Record struct {
	ID          string
	FileName    string
	MimeType    string
	Payload     []byte
	CategoryID  string
	WorkspaceID string
	IsFavorite  bool
	CreatedAt   int64 // unix milliseconds
}

type StoreService interface {
	// Open creates or opens the database and applies pending schema
	// migrations. Idempotent; concurrent callers share one initialization.
	// After a failed Open the next call retries from scratch.
	Open(ctx context.Context) error
	Close() error

	// GetAll returns every record in a partition. Order is not guaranteed.
	GetAll(ctx context.Context, partition string) ([]*Record, error)
	// Put upserts a single record by id.
	Put(ctx context.Context, partition string, record *Record) error
	// PutAll upserts a batch in one transaction; partial failure aborts the
	// whole batch.
	PutAll(ctx context.Context, partition string, records []*Record) error
	// Delete removes one record; deleting an absent id is not an error.
	Delete(ctx context.Context, partition string, id string) error
	// Clear removes every record in a partition.
	Clear(ctx context.Context, partition string) error

	// GetState/SetState/DeleteState access the string-keyed state store used
	// for serialized structured state (category and workspace lists and
	// their selectors).
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key string, value string) error
	DeleteState(ctx context.Context, key string) error
}
