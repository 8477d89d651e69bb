package simplemedia

import (
	"context"
	"time"
)

// ObjectStore defines the interface for object storage backends
type ObjectStore interface {
	// Put writes an object under params.Key
	Put(ctx context.Context, params PutParams) error

	// BatchDelete removes all keys in as few calls as the backend allows.
	// It fails if any key could not be deleted.
	BatchDelete(ctx context.Context, keys []string) error

	// URL returns the public address of an object
	URL(key string) string
}

// Repository defines the interface for media metadata persistence
type Repository interface {
	// Insert stores a new record and fills in ID, CreatedAt and UpdatedAt
	Insert(ctx context.Context, media *MediaObject) error
	FindByIDs(ctx context.Context, ids []int64) ([]*MediaObject, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]*MediaObject, error)

	// FindUnownedBefore returns media without owner created strictly before the given time
	FindUnownedBefore(ctx context.Context, before time.Time) ([]*MediaObject, error)

	// BulkSetOwner and BulkClearOwner are single set-based updates and return
	// the number of affected rows
	BulkSetOwner(ctx context.Context, ownerID int64, ids []int64) (int64, error)
	BulkClearOwner(ctx context.Context, ownerID int64) (int64, error)

	// ClaimUnowned sets ownerID only on rows in ids that have no owner when
	// the update runs
	ClaimUnowned(ctx context.Context, ownerID int64, ids []int64) (int64, error)

	DeleteAll(ctx context.Context, ids []int64) (int64, error)

	// RunInTransaction runs fn in a transaction carried by the context passed
	// to fn. Nested calls join the outer transaction.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OwnerDirectory answers whether an owner record exists. The owner domain
// implements it; the media core never loads owners.
type OwnerDirectory interface {
	OwnerExists(ctx context.Context, ownerID int64) (bool, error)
}

// OwnerDirectoryFunc adapts a function to the OwnerDirectory interface.
type OwnerDirectoryFunc func(ctx context.Context, ownerID int64) (bool, error)

func (f OwnerDirectoryFunc) OwnerExists(ctx context.Context, ownerID int64) (bool, error) {
	return f(ctx, ownerID)
}
