package simplemedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

// sniffLen is how much of the body is read to detect a missing content type.
const sniffLen = 3072

// service implements the Service interface
type service struct {
	repository Repository
	store      ObjectStore
	owners     OwnerDirectory
	keys       objectkey.Generator
	logger     *slog.Logger
	publicRead bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithObjectStore sets the object store
func WithObjectStore(store ObjectStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithOwnerDirectory enables owner existence checks in owner flows
func WithOwnerDirectory(owners OwnerDirectory) Option {
	return func(s *service) {
		s.owners = owners
	}
}

// WithKeyGenerator overrides the storage key generator
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithPublicRead controls whether uploads are written public-readable (default true)
func WithPublicRead(publicRead bool) Option {
	return func(s *service) {
		s.publicRead = publicRead
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keys:       objectkey.NewUUIDGenerator(),
		logger:     slog.Default(),
		publicRead: true,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	s.logger = s.logger.With("component", "media-service")
	return s, nil
}

// Upload operations

func (s *service) Upload(ctx context.Context, file *UploadFile, mediaType MediaType) (*MediaObject, error) {
	if err := ValidateUpload(file); err != nil {
		metrics.RecordUpload(string(mediaType), "invalid", 0)
		return nil, err
	}

	prefix, ok := mediaType.Prefix()
	if !ok {
		metrics.RecordUpload(string(mediaType), "invalid", 0)
		return nil, ErrUnknownMediaType
	}

	ext, _ := Extension(file.FileName)
	key := s.keys.GenerateKey(prefix, ext)

	body, contentType, err := detectContentType(file)
	if err != nil {
		return nil, &StorageError{Op: "put", Keys: []string{key}, Kind: ErrObjectStoreWrite, Err: err}
	}

	start := time.Now()
	err = s.store.Put(ctx, PutParams{
		Key:         key,
		Body:        body,
		Size:        file.Size,
		ContentType: contentType,
		PublicRead:  s.publicRead,
	})
	if err != nil {
		metrics.RecordStoreOperation("put", "error", time.Since(start).Seconds())
		metrics.RecordUpload(string(mediaType), "error", 0)
		s.logger.Error("Failed to put object", "key", key, "error", err)
		return nil, &StorageError{Op: "put", Keys: []string{key}, Kind: ErrObjectStoreWrite, Err: err}
	}
	metrics.RecordStoreOperation("put", "success", time.Since(start).Seconds())

	media := &MediaObject{
		MediaType:   mediaType,
		StorageKey:  key,
		FileName:    file.FileName,
		ContentType: contentType,
		Size:        file.Size,
	}
	if err := s.repository.Insert(ctx, media); err != nil {
		// The object stays in the store without a row; no compensating delete.
		metrics.RecordUpload(string(mediaType), "error", 0)
		s.logger.Error("Object stored but metadata insert failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to insert media metadata: %w", err)
	}

	metrics.RecordUpload(string(mediaType), "success", file.Size)
	s.logger.Info("Media uploaded", "media_id", media.ID, "key", key, "size", file.Size)
	return media, nil
}

// detectContentType keeps a declared content type and sniffs the body head
// when none was declared.
func detectContentType(file *UploadFile) (io.Reader, string, error) {
	if file.ContentType != "" && file.ContentType != "application/octet-stream" {
		return file.Reader, file.ContentType, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file.Reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	return io.MultiReader(bytes.NewReader(head), file.Reader), mimetype.Detect(head).String(), nil
}

// Ownership operations

func (s *service) AssignOwner(ctx context.Context, ownerID int64, mediaIDs []int64) error {
	if len(mediaIDs) == 0 {
		return nil
	}

	n, err := s.repository.BulkSetOwner(ctx, ownerID, mediaIDs)
	if err != nil {
		return fmt.Errorf("failed to assign owner %d: %w", ownerID, err)
	}

	s.logger.Debug("Owner assigned", "owner_id", ownerID, "requested", len(mediaIDs), "updated", n)
	return nil
}

func (s *service) ClearOwner(ctx context.Context, ownerID int64) error {
	n, err := s.repository.BulkClearOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to clear owner %d: %w", ownerID, err)
	}

	s.logger.Debug("Owner cleared", "owner_id", ownerID, "updated", n)
	return nil
}

// ClaimForOwner attaches the unattached subset of mediaIDs to ownerID and
// returns the media that ends up attached to it. Media already attached to
// another owner is left alone, also when that owner wins a concurrent claim
// between the lookup and the update.
func (s *service) ClaimForOwner(ctx context.Context, ownerID int64, mediaIDs []int64) ([]*MediaObject, error) {
	if err := s.checkOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	var claimed []*MediaObject
	err := s.repository.RunInTransaction(ctx, func(ctx context.Context) error {
		found, err := s.FindByIDs(ctx, mediaIDs)
		if err != nil {
			return err
		}

		var free []int64
		for _, m := range found {
			if !m.IsAttached() {
				free = append(free, m.ID)
			}
		}
		if len(free) == 0 {
			return nil
		}

		n, err := s.repository.ClaimUnowned(ctx, ownerID, free)
		if err != nil {
			return fmt.Errorf("failed to claim media for owner %d: %w", ownerID, err)
		}
		s.logger.Debug("Media claimed", "owner_id", ownerID, "requested", len(mediaIDs), "claimed", n)

		after, err := s.repository.FindByIDs(ctx, free)
		if err != nil {
			return err
		}
		for _, m := range after {
			if m.IsOwnedBy(ownerID) {
				claimed = append(claimed, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// ReplaceOwnerMedia makes mediaIDs the complete set of media attached to
// ownerID. Stale links are cleared first in the same transaction.
func (s *service) ReplaceOwnerMedia(ctx context.Context, ownerID int64, mediaIDs []int64) ([]*MediaObject, error) {
	if err := s.checkOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	var result []*MediaObject
	err := s.repository.RunInTransaction(ctx, func(ctx context.Context) error {
		if len(mediaIDs) > 0 {
			if _, err := s.FindByIDs(ctx, mediaIDs); err != nil {
				return err
			}
		}

		if err := s.ClearOwner(ctx, ownerID); err != nil {
			return err
		}
		if err := s.AssignOwner(ctx, ownerID, mediaIDs); err != nil {
			return err
		}

		var err error
		result, err = s.FindByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *service) checkOwner(ctx context.Context, ownerID int64) error {
	if s.owners == nil {
		return nil
	}

	exists, err := s.owners.OwnerExists(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to look up owner %d: %w", ownerID, err)
	}
	if !exists {
		return fmt.Errorf("owner %d: %w", ownerID, ErrOwnerNotFound)
	}
	return nil
}

// Lookups

func (s *service) GetMedia(ctx context.Context, id int64) (*MediaObject, error) {
	found, err := s.repository.FindByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrMediaNotFound
	}
	return found[0], nil
}

// FindByIDs fails only when nothing matches; partial misses are not reported.
func (s *service) FindByIDs(ctx context.Context, mediaIDs []int64) ([]*MediaObject, error) {
	found, err := s.repository.FindByIDs(ctx, mediaIDs)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrMediaIDsNotFound
	}
	return found, nil
}

func (s *service) FindByOwner(ctx context.Context, ownerID int64) ([]*MediaObject, error) {
	return s.repository.FindByOwner(ctx, ownerID)
}

func (s *service) FindUnownedOlderThan(ctx context.Context, threshold time.Time) ([]*MediaObject, error) {
	return s.repository.FindUnownedBefore(ctx, threshold)
}

// Deletion

// DeleteMany passes an empty list straight through as an empty batch delete.
func (s *service) DeleteMany(ctx context.Context, objects []*MediaObject) error {
	keys := StorageKeys(objects)

	return s.repository.RunInTransaction(ctx, func(ctx context.Context) error {
		start := time.Now()
		if err := s.store.BatchDelete(ctx, keys); err != nil {
			metrics.RecordStoreOperation("batch_delete", "error", time.Since(start).Seconds())
			s.logger.Error("Failed to delete objects", "count", len(keys), "error", err)
			return &StorageError{Op: "batch_delete", Keys: keys, Kind: ErrObjectStoreDelete, Err: err}
		}
		metrics.RecordStoreOperation("batch_delete", "success", time.Since(start).Seconds())

		n, err := s.repository.DeleteAll(ctx, IDs(objects))
		if err != nil {
			s.logger.Error("Objects deleted but metadata delete failed", "count", len(keys), "error", err)
			return fmt.Errorf("failed to delete media metadata: %w", err)
		}

		s.logger.Info("Media deleted", "objects", len(keys), "rows", n)
		return nil
	})
}

func (s *service) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.repository.RunInTransaction(ctx, fn)
}

func (s *service) URL(media *MediaObject) string {
	return s.store.URL(media.StorageKey)
}
