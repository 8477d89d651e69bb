package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	svc, err := simplemedia.New(
		simplemedia.WithRepository(memory.New()),
		simplemedia.WithObjectStore(memorystorage.New()),
	)
	require.NoError(t, err)
	return New(svc)
}

func TestScheduler_DefaultSchedule(t *testing.T) {
	s := NewScheduler(newTestReconciler(t), "", nil)
	assert.Equal(t, DefaultSchedule, s.schedule)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(newTestReconciler(t), "every monday", nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every monday")
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	s := NewScheduler(newTestReconciler(t), "0 3 * * 0", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RunSweep(t *testing.T) {
	r := newTestReconciler(t)
	s := NewScheduler(r, DefaultSchedule, nil)

	// A scheduled tick on an empty store completes without error
	s.run(context.Background())
}
