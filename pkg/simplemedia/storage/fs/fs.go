package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Backend is a filesystem implementation of the simplemedia.ObjectStore interface
type Backend struct {
	mu        sync.Mutex
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // Public prefix objects are served under
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   filepath.Clean(config.BaseDir),
		urlPrefix: strings.TrimRight(config.URLPrefix, "/"),
	}, nil
}

// path resolves key below baseDir, refusing keys that escape it
func (b *Backend) path(key string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.baseDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// Put writes the body to baseDir/key. The file is written under a temporary
// name and renamed so readers never see a partial object.
func (b *Backend) Put(ctx context.Context, params simplemedia.PutParams) error {
	filePath, err := b.path(params.Key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, params.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// BatchDelete removes every key. Missing files are not an error.
func (b *Backend) BatchDelete(ctx context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, key := range keys {
		filePath, err := b.path(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := os.Remove(filePath); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
			}
			continue
		}

		b.cleanupEmptyDirectories(filepath.Dir(filePath))
	}

	return errors.Join(errs...)
}

// URL returns urlPrefix/key, or a file:// URL when no prefix is configured
func (b *Backend) URL(key string) string {
	if b.urlPrefix == "" {
		return "file://" + filepath.ToSlash(filepath.Join(b.baseDir, key))
	}
	return b.urlPrefix + "/" + strings.TrimLeft(key, "/")
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
