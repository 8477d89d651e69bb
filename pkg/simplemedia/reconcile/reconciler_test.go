package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

var now = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

type env struct {
	svc     simplemedia.Service
	repo    *memory.Repository
	store   *memorystorage.Backend
	created time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: memorystorage.New(), created: now}
	e.repo = memory.New(memory.WithClock(func() time.Time { return e.created }))

	svc, err := simplemedia.New(
		simplemedia.WithRepository(e.repo),
		simplemedia.WithObjectStore(e.store),
	)
	require.NoError(t, err)
	e.svc = svc
	return e
}

// uploadAged uploads a file whose record was created age ago
func (e *env) uploadAged(t *testing.T, age time.Duration) *simplemedia.MediaObject {
	t.Helper()
	e.created = now.Add(-age)
	m, err := e.svc.Upload(context.Background(), &simplemedia.UploadFile{
		FileName:    "cat.png",
		ContentType: "image/png",
		Size:        3,
		Reader:      strings.NewReader("png"),
	}, simplemedia.MediaTypeProduct)
	require.NoError(t, err)
	return m
}

func clock() time.Time { return now }

const day = 24 * time.Hour

func TestSweep_DeletesOnlyStaleUnattached(t *testing.T) {
	e := newEnv(t)
	tenDays := e.uploadAged(t, 10*day)
	sixDays := e.uploadAged(t, 6*day)
	oneDay := e.uploadAged(t, 1*day)
	ownedOld := e.uploadAged(t, 30*day)
	require.NoError(t, e.svc.AssignOwner(context.Background(), 42, []int64{ownedOld.ID}))

	r := reconcile.New(e.svc, reconcile.WithClock(clock))
	result, err := r.Sweep(context.Background(), reconcile.SweepOptions{})
	require.NoError(t, err)

	assert.Equal(t, now.Add(-reconcile.DefaultRetention), result.Threshold)
	assert.Equal(t, 1, result.Found)
	assert.Equal(t, 1, result.Deleted)
	assert.False(t, result.Shared)
	assert.Equal(t, []int64{tenDays.ID}, simplemedia.IDs(result.Candidates))

	assert.False(t, e.store.Exists(tenDays.StorageKey))
	assert.True(t, e.store.Exists(sixDays.StorageKey))
	assert.True(t, e.store.Exists(oneDay.StorageKey))
	assert.True(t, e.store.Exists(ownedOld.StorageKey))
	assert.Equal(t, 3, e.repo.Len())
}

func TestSweep_RetentionScenario(t *testing.T) {
	e := newEnv(t)
	tenDays := e.uploadAged(t, 10*day)
	sixDays := e.uploadAged(t, 6*day)
	oneDay := e.uploadAged(t, 1*day)

	// Sweep runs two days later: ten and six days become twelve and eight
	r := reconcile.New(e.svc, reconcile.WithClock(func() time.Time { return now.Add(2 * day) }))
	result, err := r.Sweep(context.Background(), reconcile.SweepOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Deleted)
	assert.ElementsMatch(t, []int64{tenDays.ID, sixDays.ID}, simplemedia.IDs(result.Candidates))
	assert.Equal(t, "Successfully deleted 2 unattached images", result.Message())

	remaining, err := e.svc.FindByIDs(context.Background(), []int64{tenDays.ID, sixDays.ID, oneDay.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{oneDay.ID}, simplemedia.IDs(remaining))
	assert.Equal(t, 1, e.store.Len())
}

func TestSweep_CustomRetention(t *testing.T) {
	e := newEnv(t)
	e.uploadAged(t, 10*day)
	e.uploadAged(t, 6*day)
	e.uploadAged(t, 1*day)

	r := reconcile.New(e.svc, reconcile.WithClock(clock), reconcile.WithRetention(5*day))
	result, err := r.Sweep(context.Background(), reconcile.SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 1, e.repo.Len())
}

func TestSweep_NothingToDo(t *testing.T) {
	e := newEnv(t)
	e.uploadAged(t, 1*day)

	r := reconcile.New(e.svc, reconcile.WithClock(clock))
	result, err := r.Sweep(context.Background(), reconcile.SweepOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Found)
	assert.Zero(t, result.Deleted)
	assert.True(t, strings.HasPrefix(result.Message(), "Nothing to do"))
	assert.Equal(t, 1, e.repo.Len())
}

func TestSweep_DryRun(t *testing.T) {
	e := newEnv(t)
	stale := e.uploadAged(t, 10*day)

	r := reconcile.New(e.svc, reconcile.WithClock(clock))
	result, err := r.Sweep(context.Background(), reconcile.SweepOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Found)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, "Dry run: 1 unattached images would be deleted", result.Message())
	assert.True(t, e.store.Exists(stale.StorageKey))
	assert.Equal(t, 1, e.repo.Len())
}

// failingStore rejects every batch delete
type failingStore struct {
	*memorystorage.Backend
}

func (s failingStore) BatchDelete(ctx context.Context, keys []string) error {
	return errors.New("access denied")
}

func TestSweep_StoreFailureKeepsMetadata(t *testing.T) {
	store := failingStore{Backend: memorystorage.New()}
	current := now.Add(-10 * day)
	repo := memory.New(memory.WithClock(func() time.Time { return current }))
	svc, err := simplemedia.New(simplemedia.WithRepository(repo), simplemedia.WithObjectStore(store))
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), &simplemedia.UploadFile{
		FileName: "cat.png", Size: 3, Reader: strings.NewReader("png"),
	}, simplemedia.MediaTypeProduct)
	require.NoError(t, err)

	r := reconcile.New(svc, reconcile.WithClock(clock))
	_, err = r.Sweep(context.Background(), reconcile.SweepOptions{})
	assert.ErrorIs(t, err, simplemedia.ErrObjectStoreDelete)
	assert.Equal(t, 1, repo.Len())
}

// blockingService holds the candidate scan open until release is closed
type blockingService struct {
	simplemedia.Service

	entered  chan struct{}
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (s *blockingService) FindUnownedOlderThan(ctx context.Context, threshold time.Time) ([]*simplemedia.MediaObject, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	<-s.release
	return s.Service.FindUnownedOlderThan(ctx, threshold)
}

func TestSweep_OverlappingCallsShareOneRun(t *testing.T) {
	e := newEnv(t)
	e.uploadAged(t, 10*day)
	e.uploadAged(t, 9*day)

	svc := &blockingService{
		Service: e.svc,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := reconcile.New(svc, reconcile.WithClock(clock))

	const callers = 5
	results := make([]*reconcile.SweepResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = r.Sweep(context.Background(), reconcile.SweepOptions{})
	}()
	<-svc.entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Sweep(context.Background(), reconcile.SweepOptions{})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(svc.release)
	wg.Wait()

	assert.Equal(t, int32(1), svc.maxSeen.Load())

	shared := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Shared {
			shared++
		}
	}
	assert.Positive(t, shared)
	assert.Zero(t, e.repo.Len())
	assert.Zero(t, e.store.Len())
}

func TestSweep_CancelledCallerDoesNotAbortRun(t *testing.T) {
	e := newEnv(t)
	e.uploadAged(t, 10*day)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := reconcile.New(e.svc, reconcile.WithClock(clock))
	result, err := r.Sweep(ctx, reconcile.SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}
