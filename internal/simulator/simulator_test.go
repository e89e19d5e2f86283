package simulator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/scheduler"
	"github.com/lanecast/lanecast/internal/simulator"
	"github.com/lanecast/lanecast/internal/stats"
	"github.com/lanecast/lanecast/pkg/estimate"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
)

func chainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	team := &graph.Team{Name: "core", ParallelLanes: 2}
	g, err := graph.Link([]*graph.WorkItem{
		{Key: "A", Team: team, Estimator: estimate.LogNormal{Median: 3, Sigma: 0.4}},
		{Key: "B", Team: team, BlockedBy: []string{"A"}, Estimator: estimate.LogNormal{Median: 2, Sigma: 0.4}},
		{Key: "C", Team: team, Estimator: estimate.LogNormal{Median: 4, Sigma: 0.4}},
	}, nil)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	return g
}

func TestRun_ProgressAndCompletion(t *testing.T) {
	g := chainGraph(t)

	var percents []float64
	var completions int
	var summary simulator.Summary

	sim := simulator.New(g, simulator.Options{
		BatchSize:  10,
		BatchCount: 5,
		Workers:    3,
		Seed:       42,
		OnBatch: func(r simulator.BatchReport) {
			percents = append(percents, r.PercentComplete)
			if len(r.Outcomes) != 10 {
				t.Errorf("batch %d: expected 10 outcomes, got %d", r.Batch, len(r.Outcomes))
			}
			for i := range r.Records.Items {
				if !r.Records.Items[i].IsSorted() {
					t.Errorf("batch %d: record %d unsorted", r.Batch, i)
				}
			}
		},
		OnComplete: func(s simulator.Summary) {
			completions++
			summary = s
		},
	})

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []float64{20, 40, 60, 80, 100}
	if len(percents) != len(want) {
		t.Fatalf("expected %d batch callbacks, got %d", len(want), len(percents))
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Errorf("batch %d percent = %v, want %v", i, percents[i], want[i])
		}
	}
	if completions != 1 {
		t.Errorf("expected OnComplete once, got %d", completions)
	}
	if summary.Trials != 50 || summary.Seed != 42 || summary.FailedTrials != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if sim.PercentComplete() != 100 {
		t.Errorf("expected 100%% complete, got %v", sim.PercentComplete())
	}
}

func TestRun_DependencyOrderingInEveryTrial(t *testing.T) {
	g := chainGraph(t)
	a, _ := g.Lookup("A")
	b, _ := g.Lookup("B")

	sim := simulator.New(g, simulator.Options{
		BatchSize:  20,
		BatchCount: 10,
		Workers:    4,
		OnBatch: func(r simulator.BatchReport) {
			for _, o := range r.Outcomes {
				if o.Start[b.Index] < o.Due(a.Index) {
					t.Fatalf("trial %d: B starts before A finishes", o.Trial)
				}
			}
		},
	})
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func collect(t *testing.T, g *graph.Graph, workers int) *stats.RecordSet {
	t.Helper()
	sim := simulator.New(g, simulator.Options{BatchSize: 8, BatchCount: 4, Workers: workers, Seed: 7})
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var out *stats.RecordSet
	sim.View(func(rs *stats.RecordSet, _ float64, _ int) {
		out = rs.Clone()
	})
	return out
}

func TestRun_ReproducibleAcrossWorkerCounts(t *testing.T) {
	one := collect(t, chainGraph(t), 1)
	many := collect(t, chainGraph(t), 4)

	for i := range one.Items {
		x, y := one.Items[i], many.Items[i]
		for j := range x.DueDays {
			if x.DueDays[j] != y.DueDays[j] {
				t.Fatalf("item %d trial %d: %v != %v", i, j, x.DueDays[j], y.DueDays[j])
			}
		}
		for j := range x.Tracks {
			if x.Tracks[j] != y.Tracks[j] {
				t.Fatalf("item %d: track order differs between worker counts", i)
			}
		}
	}
}

func TestRun_StopKeepsRecordedTrials(t *testing.T) {
	g := chainGraph(t)
	var completed atomic.Bool

	var sim *simulator.Simulator
	sim = simulator.New(g, simulator.Options{
		BatchSize:  5,
		BatchCount: 100,
		YieldDelay: time.Millisecond,
		OnBatch: func(r simulator.BatchReport) {
			if r.Batch == 2 {
				sim.Stop()
				sim.Stop()
			}
		},
		OnComplete: func(simulator.Summary) {
			completed.Store(true)
		},
	})

	err := sim.Run(context.Background())
	if !errors.Is(err, simulator.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if completed.Load() {
		t.Errorf("OnComplete must not fire after teardown")
	}

	sim.View(func(rs *stats.RecordSet, percent float64, _ int) {
		if rs.Trials != 15 {
			t.Errorf("expected 15 recorded trials, got %d", rs.Trials)
		}
		if percent != 3 {
			t.Errorf("expected 3%% complete, got %v", percent)
		}
	})
}

func TestRun_StopDuringFinalBatchCompletes(t *testing.T) {
	g := chainGraph(t)
	var completions int

	var sim *simulator.Simulator
	sim = simulator.New(g, simulator.Options{
		BatchSize:  2,
		BatchCount: 3,
		Workers:    2,
		OnBatch: func(r simulator.BatchReport) {
			if r.PercentComplete == 100 {
				sim.Stop()
			}
		},
		OnComplete: func(simulator.Summary) {
			completions++
		},
	})

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("expected a completed run, got %v", err)
	}
	if completions != 1 {
		t.Errorf("expected OnComplete once, got %d", completions)
	}
	sim.View(func(rs *stats.RecordSet, percent float64, _ int) {
		if rs.Trials != 6 || percent != 100 {
			t.Errorf("expected 6 trials at 100%%, got %d at %v", rs.Trials, percent)
		}
	})
}

func TestRun_ContextCancel(t *testing.T) {
	g := chainGraph(t)
	ctx, cancel := context.WithCancel(context.Background())

	sim := simulator.New(g, simulator.Options{
		BatchSize:  5,
		BatchCount: 100,
		YieldDelay: 10 * time.Millisecond,
		OnBatch: func(r simulator.BatchReport) {
			if r.Batch == 0 {
				cancel()
			}
		},
	})

	if err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sim.PercentComplete() != 1 {
		t.Errorf("expected exactly one batch, got %v%%", sim.PercentComplete())
	}
}

func TestRun_SkipsFailedTrials(t *testing.T) {
	g := chainGraph(t)
	var calls atomic.Int64

	sim := simulator.New(g, simulator.Options{BatchSize: 10, BatchCount: 2, Workers: 2})
	simulator.SetScheduleFunc(sim, func(g *graph.Graph, st *scheduler.TrialState) error {
		if calls.Add(1)%4 == 0 {
			return &scheduler.InvariantError{Item: "B", Blocker: "A"}
		}
		return scheduler.ScheduleTrial(g, st)
	})

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sim.View(func(rs *stats.RecordSet, _ float64, failed int) {
		if failed != 5 {
			t.Errorf("expected 5 failed trials, got %d", failed)
		}
		if rs.Trials != 15 {
			t.Errorf("expected 15 recorded trials, got %d", rs.Trials)
		}
	})
}

func TestRun_AbortOnTrialError(t *testing.T) {
	g := chainGraph(t)
	sim := simulator.New(g, simulator.Options{BatchSize: 4, BatchCount: 3, AbortOnTrialError: true})
	simulator.SetScheduleFunc(sim, func(*graph.Graph, *scheduler.TrialState) error {
		return &scheduler.InvariantError{Item: "B", Blocker: "A"}
	})

	err := sim.Run(context.Background())
	if !errors.Is(err, scheduler.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	g := chainGraph(t)
	sim := simulator.New(g, simulator.Options{
		BatchSize:  2,
		BatchCount: 1,
		Logger:     logger.NewNopLogger(),
	})
	simulator.SetScheduleFunc(sim, func(*graph.Graph, *scheduler.TrialState) error {
		panic("boom")
	})

	if err := sim.Run(context.Background()); err == nil {
		t.Fatal("expected error from panicking trial")
	}
}

func TestRun_OnlyOnce(t *testing.T) {
	sim := simulator.New(chainGraph(t), simulator.Options{BatchSize: 1, BatchCount: 1})
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := sim.Run(context.Background()); !errors.Is(err, simulator.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestView_ConcurrentWithRun(t *testing.T) {
	sim := simulator.New(chainGraph(t), simulator.Options{BatchSize: 10, BatchCount: 20})

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				sim.View(func(rs *stats.RecordSet, _ float64, _ int) {
					for i := range rs.Items {
						_ = stats.BandsFor(&rs.Items[i], types.Percentile(85))
					}
				})
			}
		}
	}()

	err := sim.Run(context.Background())
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
