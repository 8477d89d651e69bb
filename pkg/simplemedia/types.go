package simplemedia

import (
	"io"
	"strings"
	"time"
)

// MediaType selects the storage path prefix of an upload.
type MediaType string

// Media type constants (typed).
const (
	MediaTypeProduct MediaType = "PRODUCT"
)

var mediaTypePrefixes = map[MediaType]string{
	MediaTypeProduct: "product/",
}

// Prefix returns the storage key prefix for the media type.
func (t MediaType) Prefix() (string, bool) {
	prefix, ok := mediaTypePrefixes[t]
	return prefix, ok
}

// IsValid reports whether the media type is known.
func (t MediaType) IsValid() bool {
	_, ok := mediaTypePrefixes[t]
	return ok
}

// ParseMediaType accepts the type name in any case, e.g. "product".
func ParseMediaType(s string) (MediaType, error) {
	t := MediaType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrUnknownMediaType
	}
	return t, nil
}

// MediaObject is one stored file together with its metadata record.
//
// OwnerID is a weak reference: the owner's lifecycle is independent and the
// store keeps no foreign key. A nil OwnerID means the media is unattached.
type MediaObject struct {
	ID          int64     `json:"id"`
	MediaType   MediaType `json:"media_type"`
	StorageKey  string    `json:"storage_key"`
	FileName    string    `json:"file_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	OwnerID     *int64    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAttached reports whether the media points at an owner.
func (m *MediaObject) IsAttached() bool {
	return m.OwnerID != nil
}

// IsOwnedBy reports whether the media points at the given owner.
func (m *MediaObject) IsOwnedBy(ownerID int64) bool {
	return m.OwnerID != nil && *m.OwnerID == ownerID
}

// UploadFile carries the raw upload and the metadata the client declared.
type UploadFile struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// PutParams contains parameters for writing an object.
type PutParams struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	PublicRead  bool
}

// IDs returns the identifiers of the given media in order.
func IDs(objects []*MediaObject) []int64 {
	ids := make([]int64, 0, len(objects))
	for _, o := range objects {
		ids = append(ids, o.ID)
	}
	return ids
}

// StorageKeys returns the storage keys of the given media in order.
func StorageKeys(objects []*MediaObject) []string {
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.StorageKey)
	}
	return keys
}
