package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	media  map[int64]*simplemedia.MediaObject
	keys   map[string]int64 // storage_key -> id
	owners map[int64]struct{}
	nextID int64
	now    func() time.Time

	// txMu serializes transactions. Each transaction logs how to undo its own
	// writes; writes outside it are never touched by a rollback.
	txMu sync.Mutex
}

// Option configures the in-memory repository
type Option func(*Repository)

// WithClock overrides the time source used for CreatedAt and UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New creates a new in-memory repository
func New(opts ...Option) *Repository {
	r := &Repository{
		media:  make(map[int64]*simplemedia.MediaObject),
		keys:   make(map[string]int64),
		owners: make(map[int64]struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Insert(ctx context.Context, media *simplemedia.MediaObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[media.StorageKey]; exists {
		return simplemedia.ErrDuplicateStorageKey
	}

	r.nextID++
	now := r.now().UTC()
	media.ID = r.nextID
	media.CreatedAt = now
	media.UpdatedAt = now

	// Create a copy to avoid external modifications
	r.media[media.ID] = clone(media)
	r.keys[media.StorageKey] = media.ID

	if tx := r.txFrom(ctx); tx != nil {
		id, key := media.ID, media.StorageKey
		tx.record(func() {
			if r.keys[key] == id {
				delete(r.keys, key)
				delete(r.media, id)
			}
		})
	}
	return nil
}

func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]*simplemedia.MediaObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{}, len(ids))
	var result []*simplemedia.MediaObject
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if m, exists := r.media[id]; exists {
			result = append(result, clone(m))
		}
	}

	sortByID(result)
	return result, nil
}

func (r *Repository) FindByOwner(ctx context.Context, ownerID int64) ([]*simplemedia.MediaObject, error) {
	return r.filter(func(m *simplemedia.MediaObject) bool {
		return m.IsOwnedBy(ownerID)
	}), nil
}

func (r *Repository) FindUnownedBefore(ctx context.Context, before time.Time) ([]*simplemedia.MediaObject, error) {
	return r.filter(func(m *simplemedia.MediaObject) bool {
		return !m.IsAttached() && m.CreatedAt.Before(before)
	}), nil
}

func (r *Repository) BulkSetOwner(ctx context.Context, ownerID int64, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setOwner(ctx, ownerID, ids, func(*simplemedia.MediaObject) bool { return true }), nil
}

func (r *Repository) ClaimUnowned(ctx context.Context, ownerID int64, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setOwner(ctx, ownerID, ids, func(m *simplemedia.MediaObject) bool { return !m.IsAttached() }), nil
}

// setOwner must be called with mu held
func (r *Repository) setOwner(ctx context.Context, ownerID int64, ids []int64, match func(*simplemedia.MediaObject) bool) int64 {
	tx := r.txFrom(ctx)
	now := r.now().UTC()
	var n int64
	for _, id := range uniqueIDs(ids) {
		m, exists := r.media[id]
		if !exists || !match(m) {
			continue
		}
		if tx != nil {
			tx.record(r.restoreOwner(id, m.OwnerID, m.UpdatedAt, func(cur *simplemedia.MediaObject) bool {
				return cur.IsOwnedBy(ownerID)
			}))
		}
		owner := ownerID
		m.OwnerID = &owner
		m.UpdatedAt = now
		n++
	}
	return n
}

func (r *Repository) BulkClearOwner(ctx context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.txFrom(ctx)
	now := r.now().UTC()
	var n int64
	for id, m := range r.media {
		if m.IsOwnedBy(ownerID) {
			if tx != nil {
				tx.record(r.restoreOwner(id, m.OwnerID, m.UpdatedAt, func(cur *simplemedia.MediaObject) bool {
					return !cur.IsAttached()
				}))
			}
			m.OwnerID = nil
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *Repository) DeleteAll(ctx context.Context, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.txFrom(ctx)
	var n int64
	for _, id := range uniqueIDs(ids) {
		m, exists := r.media[id]
		if !exists {
			continue
		}
		delete(r.keys, m.StorageKey)
		delete(r.media, id)
		n++

		if tx != nil {
			deleted := m
			tx.record(func() {
				if _, taken := r.keys[deleted.StorageKey]; taken {
					return
				}
				if _, exists := r.media[deleted.ID]; exists {
					return
				}
				r.media[deleted.ID] = deleted
				r.keys[deleted.StorageKey] = deleted.ID
			})
		}
	}
	return n, nil
}

type txKey struct{}

// transaction holds the undo steps of one RunInTransaction call, newest last.
// Steps run with mu held.
type transaction struct {
	repo *Repository
	undo []func()
}

// record must be called with mu held
func (tx *transaction) record(step func()) {
	tx.undo = append(tx.undo, step)
}

func (r *Repository) txFrom(ctx context.Context) *transaction {
	if tx, ok := ctx.Value(txKey{}).(*transaction); ok && tx.repo == r {
		return tx
	}
	return nil
}

// RunInTransaction runs fn and reverts the writes fn made if it fails.
// Writes from outside the transaction survive a rollback, and IDs handed
// out inside it are not reused.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.txFrom(ctx) != nil {
		return fn(ctx)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &transaction{repo: r}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		r.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// restoreOwner returns an undo step that puts back a row's previous owner.
// The row is left alone when it is gone or stillIs reports that another
// writer has changed it since.
func (r *Repository) restoreOwner(id int64, prev *int64, prevUpdated time.Time, stillIs func(*simplemedia.MediaObject) bool) func() {
	var owner *int64
	if prev != nil {
		v := *prev
		owner = &v
	}
	return func() {
		cur, exists := r.media[id]
		if !exists || !stillIs(cur) {
			return
		}
		cur.OwnerID = owner
		cur.UpdatedAt = prevUpdated
	}
}

// AddOwner registers an owner for OwnerExists
func (r *Repository) AddOwner(ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[ownerID] = struct{}{}
}

// OwnerExists implements simplemedia.OwnerDirectory
func (r *Repository) OwnerExists(ctx context.Context, ownerID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.owners[ownerID]
	return exists, nil
}

// Len returns the number of stored records
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.media)
}

func (r *Repository) filter(match func(*simplemedia.MediaObject) bool) []*simplemedia.MediaObject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplemedia.MediaObject
	for _, m := range r.media {
		if match(m) {
			result = append(result, clone(m))
		}
	}

	sortByID(result)
	return result
}

func clone(m *simplemedia.MediaObject) *simplemedia.MediaObject {
	c := *m
	if m.OwnerID != nil {
		owner := *m.OwnerID
		c.OwnerID = &owner
	}
	return &c
}

func sortByID(media []*simplemedia.MediaObject) {
	sort.Slice(media, func(i, j int) bool {
		return media[i].ID < media[j].ID
	})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
