package memory

import (
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Object is a stored object as kept by the in-memory backend
type Object struct {
	Data        []byte
	ContentType string
	PublicRead  bool
}

// Backend is an in-memory implementation of the simplemedia.ObjectStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]Object),
	}
}

// Put stores the object body
func (b *Backend) Put(ctx context.Context, params simplemedia.PutParams) error {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.Key] = Object{
		Data:        data,
		ContentType: contentType,
		PublicRead:  params.PublicRead,
	}
	return nil
}

// BatchDelete removes the keys; missing keys are ignored like S3 does
func (b *Backend) BatchDelete(ctx context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range keys {
		delete(b.objects, key)
	}
	return nil
}

// URL returns a memory:// address for the key
func (b *Backend) URL(key string) string {
	return "memory://" + key
}

// Get returns a stored object
func (b *Backend) Get(key string) (Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Exists reports whether key is stored
func (b *Backend) Exists(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
