package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fleetsync/internal/journal"
	"fleetsync/internal/odometer"
	"fleetsync/internal/reconciler"
	"fleetsync/internal/violations"
)

type fakeStages struct {
	synced     int
	swept      int
	sweptDays  int
	odoRuns    int
	ingests    int
	classifies atomic.Int32
}

func (f *fakeStages) Sync(ctx context.Context) reconciler.Stats {
	f.synced++
	return reconciler.Stats{Days: 2, Succeeded: 2}
}

func (f *fakeStages) Sweep(ctx context.Context, days int) reconciler.Stats {
	f.swept++
	f.sweptDays = days
	return reconciler.Stats{Days: days, Deleted: 3}
}

func (f *fakeStages) Run(ctx context.Context) odometer.Stats {
	f.odoRuns++
	return odometer.Stats{Estimated: 5, Failed: 1}
}

func (f *fakeStages) Ingest(ctx context.Context) violations.Stats {
	f.ingests++
	return violations.Stats{Inserted: 4}
}

func (f *fakeStages) Classify(ctx context.Context) violations.Stats {
	f.classifies.Add(1)
	return violations.Stats{Classified: 4}
}

type fakeJournal struct {
	runs []journal.Run
}

func (f *fakeJournal) Record(r journal.Run) error {
	f.runs = append(f.runs, r)
	return nil
}

func TestRunCycleExecutesAllStages(t *testing.T) {
	stages := &fakeStages{}
	jr := &fakeJournal{}
	r := New(stages, stages, stages, nil, jr, nil, Options{})

	r.RunCycle(context.Background())

	if stages.synced != 1 || stages.odoRuns != 1 || stages.ingests != 1 || stages.classifies.Load() != 1 {
		t.Fatalf("stage calls = %+v", stages)
	}
	if len(jr.runs) != 3 {
		t.Fatalf("journaled %d runs, want 3", len(jr.runs))
	}

	byStage := make(map[string]journal.Run)
	for _, run := range jr.runs {
		byStage[run.Stage] = run
	}
	if byStage["sync"].Succeeded != 2 {
		t.Errorf("sync run = %+v", byStage["sync"])
	}
	if byStage["odometer"].Succeeded != 5 || byStage["odometer"].Failed != 1 {
		t.Errorf("odometer run = %+v", byStage["odometer"])
	}
	if byStage["violations"].Succeeded != 8 {
		t.Errorf("violations run = %+v", byStage["violations"])
	}
}

func TestRunSweepUsesConfiguredWindow(t *testing.T) {
	stages := &fakeStages{}
	r := New(stages, stages, stages, nil, nil, nil, Options{SweepDays: 7})

	stats := r.RunSweep(context.Background())

	if stages.swept != 1 || stages.sweptDays != 7 {
		t.Fatalf("sweep calls = %+v", stages)
	}
	if stats.Deleted != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	stages := &fakeStages{}
	r := New(stages, stages, stages, nil, nil, nil, Options{CycleInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	// The first cycle runs before the first tick.
	deadline := time.After(2 * time.Second)
	for stages.classifies.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no cycle before first tick")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not stop on cancel")
	}
}
