// Package pipeline orchestrates the reconciliation stages and records
// each pass in the run journal.
package pipeline

import (
	"context"
	"log"
	"time"

	"fleetsync/internal/events"
	"fleetsync/internal/journal"
	"fleetsync/internal/odometer"
	"fleetsync/internal/reconciler"
	"fleetsync/internal/violations"
)

// ScheduleSyncer reconciles the trip schedule.
type ScheduleSyncer interface {
	Sync(ctx context.Context) reconciler.Stats
	Sweep(ctx context.Context, days int) reconciler.Stats
}

// OdometerFiller back-fills odometer readings.
type OdometerFiller interface {
	Run(ctx context.Context) odometer.Stats
}

// ViolationPipeline ingests and classifies violations.
type ViolationPipeline interface {
	Ingest(ctx context.Context) violations.Stats
	Classify(ctx context.Context) violations.Stats
}

// ViewRefresher keeps the join view current in the background.
type ViewRefresher interface {
	Run(ctx context.Context, interval time.Duration)
}

// RunRecorder persists completed stage runs.
type RunRecorder interface {
	Record(r journal.Run) error
}

// Options tunes the runner.
type Options struct {
	SweepDays       int
	CycleInterval   time.Duration
	RefreshInterval time.Duration
}

// Runner drives the pipeline stages in order: schedule sync, odometer
// fill, violation ingest, violation classify. The join view refreshes on
// its own schedule in the background.
type Runner struct {
	sync    ScheduleSyncer
	odo     OdometerFiller
	viol    ViolationPipeline
	view    ViewRefresher
	journal RunRecorder
	bus     *events.Publisher
	opts    Options
}

// New creates a Runner. journal and bus may be nil; view may be nil when
// no background refresh is wanted.
func New(sync ScheduleSyncer, odo OdometerFiller, viol ViolationPipeline, view ViewRefresher,
	jr RunRecorder, bus *events.Publisher, opts Options) *Runner {
	if opts.SweepDays < 1 {
		opts.SweepDays = 10
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = 5 * time.Minute
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Hour
	}
	return &Runner{sync: sync, odo: odo, viol: viol, view: view, journal: jr, bus: bus, opts: opts}
}

// Start runs cycles until the context is canceled. The first cycle
// starts immediately.
func (r *Runner) Start(ctx context.Context) {
	if r.view != nil {
		go r.view.Run(ctx, r.opts.RefreshInterval)
	}

	r.RunCycle(ctx)

	ticker := time.NewTicker(r.opts.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("pipeline stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full pass of every stage. Stages are
// independent: a failing stage is journaled and the rest still run.
func (r *Runner) RunCycle(ctx context.Context) {
	r.timed(ctx, "sync", func(ctx context.Context) (int, int) {
		s := r.sync.Sync(ctx)
		if r.bus != nil {
			if err := r.bus.PublishSyncCompleted(ctx, s.Days, s.Succeeded, s.Failed); err != nil {
				log.Printf("❌ publish sync event: %v", err)
			}
		}
		return s.Succeeded, s.Failed
	})

	r.timed(ctx, "odometer", func(ctx context.Context) (int, int) {
		s := r.odo.Run(ctx)
		return s.CarriedOver + s.Estimated + s.Approximated, s.Failed
	})

	r.timed(ctx, "violations", func(ctx context.Context) (int, int) {
		in := r.viol.Ingest(ctx)
		cl := r.viol.Classify(ctx)
		return in.Inserted + cl.Classified + cl.Inconsistent, in.Failed + cl.Failed
	})
}

// RunSweep executes one cancellation sweep over the trailing window.
func (r *Runner) RunSweep(ctx context.Context) reconciler.Stats {
	var stats reconciler.Stats
	r.timed(ctx, "sweep", func(ctx context.Context) (int, int) {
		stats = r.sync.Sweep(ctx, r.opts.SweepDays)
		return stats.Deleted, stats.Failed
	})
	return stats
}

// timed runs one stage and journals its outcome.
func (r *Runner) timed(ctx context.Context, stage string, fn func(ctx context.Context) (int, int)) {
	start := time.Now()
	succeeded, failed := fn(ctx)

	if r.journal == nil {
		return
	}
	err := r.journal.Record(journal.Run{
		Stage:     stage,
		StartedAt: start,
		Finished:  time.Now(),
		Succeeded: succeeded,
		Failed:    failed,
	})
	if err != nil {
		log.Printf("❌ journal %s run: %v", stage, err)
	}
}
