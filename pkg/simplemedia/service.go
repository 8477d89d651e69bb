package simplemedia

import (
	"context"
	"time"
)

// Service defines the main interface for the media lifecycle
type Service interface {
	// Upload validates the file, writes it to the object store and records it
	// without an owner
	Upload(ctx context.Context, file *UploadFile, mediaType MediaType) (*MediaObject, error)

	// Ownership operations
	AssignOwner(ctx context.Context, ownerID int64, mediaIDs []int64) error
	ClearOwner(ctx context.Context, ownerID int64) error
	ClaimForOwner(ctx context.Context, ownerID int64, mediaIDs []int64) ([]*MediaObject, error)
	ReplaceOwnerMedia(ctx context.Context, ownerID int64, mediaIDs []int64) ([]*MediaObject, error)

	// Lookups
	GetMedia(ctx context.Context, id int64) (*MediaObject, error)
	FindByIDs(ctx context.Context, mediaIDs []int64) ([]*MediaObject, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]*MediaObject, error)
	FindUnownedOlderThan(ctx context.Context, threshold time.Time) ([]*MediaObject, error)

	// DeleteMany removes objects from the store and then their metadata
	DeleteMany(ctx context.Context, objects []*MediaObject) error

	// RunInTransaction exposes the repository transaction to composite flows
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// URL returns the public address of the media
	URL(media *MediaObject) string
}
