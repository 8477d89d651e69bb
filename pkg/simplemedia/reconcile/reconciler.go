package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultRetention is how long unattached media survives before it is swept
const DefaultRetention = 7 * 24 * time.Hour

// Reconciler deletes media that never got an owner within the retention window.
type Reconciler struct {
	svc       simplemedia.Service
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
	group     singleflight.Group
}

// Option configures the reconciler
type Option func(*Reconciler)

// WithRetention overrides DefaultRetention
func WithRetention(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithClock sets the time source used to compute the threshold
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a new Reconciler instance.
func New(svc simplemedia.Service, opts ...Option) *Reconciler {
	r := &Reconciler{
		svc:       svc,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "orphan-reconciler")
	return r
}

// SweepOptions configures a sweep.
type SweepOptions struct {
	// DryRun if true, reports candidates without deleting them
	DryRun bool
}

// SweepResult contains statistics about a sweep.
type SweepResult struct {
	// Threshold is the creation time candidates had to be older than
	Threshold time.Time `json:"threshold"`

	// Found is the number of unattached media older than Threshold
	Found int `json:"found"`

	// Deleted is the number of media removed; zero on a dry run
	Deleted int `json:"deleted"`

	// DryRun mirrors SweepOptions.DryRun
	DryRun bool `json:"dry_run"`

	// Shared is set when this call joined a sweep already in flight
	Shared bool `json:"shared"`

	// Candidates are the media selected by the sweep
	Candidates []*simplemedia.MediaObject `json:"-"`
}

// Message is the human-readable outcome of the sweep.
func (r *SweepResult) Message() string {
	switch {
	case r.Found == 0:
		return "Nothing to do: no unattached images older than " + r.Threshold.Format(time.RFC3339)
	case r.DryRun:
		return fmt.Sprintf("Dry run: %d unattached images would be deleted", r.Found)
	default:
		return fmt.Sprintf("Successfully deleted %d unattached images", r.Deleted)
	}
}

// Sweep deletes every unattached media created before now minus the
// retention window, in one transaction. Overlapping calls with the same
// options share a single run; the run is not cancelled when one of the
// waiting callers goes away.
func (r *Reconciler) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	key := "sweep"
	if opts.DryRun {
		key = "sweep-dry-run"
	}

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.sweep(context.WithoutCancel(ctx), opts)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*SweepResult)
	result.Shared = shared
	return &result, nil
}

func (r *Reconciler) sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{
		Threshold: r.now().Add(-r.retention),
		DryRun:    opts.DryRun,
	}

	err := r.svc.RunInTransaction(ctx, func(ctx context.Context) error {
		candidates, err := r.svc.FindUnownedOlderThan(ctx, result.Threshold)
		if err != nil {
			return fmt.Errorf("failed to find unattached media: %w", err)
		}
		result.Found = len(candidates)
		result.Candidates = candidates

		if len(candidates) == 0 || opts.DryRun {
			return nil
		}

		if err := r.svc.DeleteMany(ctx, candidates); err != nil {
			return err
		}
		result.Deleted = len(candidates)
		return nil
	})
	if err != nil {
		metrics.RecordSweep("error", 0, time.Since(start).Seconds())
		r.logger.Error("Sweep failed", "threshold", result.Threshold, "found", result.Found, "error", err)
		return nil, err
	}

	status := "success"
	switch {
	case result.Found == 0:
		status = "noop"
		r.logger.Info("Sweep found nothing to do", "threshold", result.Threshold)
	case opts.DryRun:
		status = "dry_run"
		r.logger.Info("Sweep dry run", "threshold", result.Threshold, "found", result.Found)
	default:
		r.logger.Info("Sweep deleted unattached media", "threshold", result.Threshold, "deleted", result.Deleted)
	}
	metrics.RecordSweep(status, result.Deleted, time.Since(start).Seconds())

	return result, nil
}
