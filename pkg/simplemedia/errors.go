package simplemedia

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrValidation matches every upload validation failure via errors.Is
	ErrValidation = errors.New("validation failed")

	// ErrMissingFile indicates the upload is absent or empty
	ErrMissingFile = &ValidationError{Code: "missing_file", Message: "file is missing or empty"}

	// ErrMissingExtension indicates the original filename has no extension
	ErrMissingExtension = &ValidationError{Code: "missing_extension", Message: "file name has no extension"}

	// ErrUnsupportedExtension indicates the extension is not an allowed image type
	ErrUnsupportedExtension = &ValidationError{Code: "unsupported_extension", Message: "file extension is not allowed"}

	// ErrUnknownMediaType indicates the declared media type has no storage prefix
	ErrUnknownMediaType = &ValidationError{Code: "unknown_media_type", Message: "unknown media type"}

	// ErrObjectStoreWrite indicates the object store rejected a put
	ErrObjectStoreWrite = errors.New("object store write failed")

	// ErrObjectStoreDelete indicates the object store rejected a batch delete
	ErrObjectStoreDelete = errors.New("object store delete failed")

	// ErrMediaIDsNotFound indicates a lookup by explicit ids matched nothing
	ErrMediaIDsNotFound = errors.New("no media found for the given ids")

	// ErrMediaNotFound indicates a single media lookup matched nothing
	ErrMediaNotFound = errors.New("media not found")

	// ErrOwnerNotFound indicates the owner record does not exist
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrDuplicateStorageKey indicates a record with the same storage key exists
	ErrDuplicateStorageKey = errors.New("storage key already exists")
)

// ValidationError describes why an upload was rejected before any side effect.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError represents a failed object store call
type StorageError struct {
	Op   string
	Keys []string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for keys [%s]: %v", e.Op, strings.Join(e.Keys, ", "), e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *StorageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMediaIDsNotFound) ||
		errors.Is(err, ErrMediaNotFound) ||
		errors.Is(err, ErrOwnerNotFound)
}
