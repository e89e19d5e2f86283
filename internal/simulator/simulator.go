// Package simulator runs Monte Carlo trials over a linked graph in batches.
//
// Each batch fans its trials out to worker goroutines. Every worker owns a
// private scheduler.TrialState, and every trial draws from an RNG derived from
// the run seed and the trial index, so outcomes are reproducible regardless of
// worker count. Between batches the run yields for YieldDelay; Stop and
// context cancellation take effect at that point and never interrupt a batch
// in flight.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/scheduler"
	"github.com/lanecast/lanecast/internal/stats"
	"github.com/lanecast/lanecast/pkg/estimate"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
)

var (
	// ErrStopped is returned by Run after Stop
	ErrStopped = errors.New("simulation stopped")
	// ErrAlreadyStarted is returned when Run is called twice
	ErrAlreadyStarted = errors.New("simulation already started")
)

// Options configures a run. Zero values fall back to defaults.
type Options struct {
	BatchSize         int
	BatchCount        int
	YieldDelay        time.Duration
	Workers           int
	Seed              uint64
	AbortOnTrialError bool

	// OnBatch is called on the Run goroutine after every batch
	OnBatch func(BatchReport)
	// OnComplete is called once after the final batch, never after teardown
	OnComplete func(Summary)

	Logger logger.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = types.DefaultBatchSize
	}
	if o.BatchCount <= 0 {
		o.BatchCount = types.DefaultBatchCount
	}
	if o.YieldDelay < 0 {
		o.YieldDelay = 0
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Workers > o.BatchSize {
		o.Workers = o.BatchSize
	}
	if o.Seed == 0 {
		o.Seed = estimate.RandomSeed()
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	return o
}

// BatchReport describes one finished batch. Records is the cumulative record
// set and must not be retained or modified after the callback returns.
type BatchReport struct {
	Batch           int
	Outcomes        []*stats.Outcome
	Records         *stats.RecordSet
	PercentComplete float64
	TrialsCompleted int
	FailedTrials    int
}

// Summary describes a completed run
type Summary struct {
	Batches      int
	Trials       int
	FailedTrials int
	Seed         uint64
	Duration     time.Duration
}

// Simulator runs trials over one graph. It is single-use.
type Simulator struct {
	graph  *graph.Graph
	opts   Options
	log    logger.Logger
	states []*scheduler.TrialState

	schedule func(*graph.Graph, *scheduler.TrialState) error

	mu       sync.RWMutex
	records  *stats.RecordSet
	batches  int
	failed   int
	started  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// New prepares a simulator for g
func New(g *graph.Graph, opts Options) *Simulator {
	opts = opts.withDefaults()
	s := &Simulator{
		graph:    g,
		opts:     opts,
		log:      opts.Logger.WithComponent("simulator"),
		states:   make([]*scheduler.TrialState, opts.Workers),
		schedule: scheduler.ScheduleTrial,
		records:  stats.NewRecordSet(g.Len()),
		stopped:  make(chan struct{}),
	}
	for i := range s.states {
		s.states[i] = scheduler.NewTrialState(g)
	}
	return s
}

// Seed returns the seed the run uses
func (s *Simulator) Seed() uint64 {
	return s.opts.Seed
}

// Options returns the effective options
func (s *Simulator) Options() Options {
	return s.opts
}

// Stop prevents the next batch from starting. Recorded trials are kept.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *Simulator) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// PercentComplete returns completed batches as a share of all batches
func (s *Simulator) PercentComplete() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percent()
}

func (s *Simulator) percent() float64 {
	return float64(s.batches) * 100 / float64(s.opts.BatchCount)
}

// View calls fn with the current records under a read lock
func (s *Simulator) View(fn func(rs *stats.RecordSet, percentComplete float64, failedTrials int)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.records, s.percent(), s.failed)
}

// Run executes every batch. It returns nil after the final batch, ErrStopped
// after Stop, ctx.Err() after cancellation, or the first trial error when
// AbortOnTrialError is set.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	began := time.Now()
	s.log.Debug("Starting simulation",
		logger.WithField("batchSize", s.opts.BatchSize),
		logger.WithField("batchCount", s.opts.BatchCount),
		logger.WithField("workers", s.opts.Workers),
		logger.WithField("seed", s.opts.Seed))

	for b := 0; b < s.opts.BatchCount; b++ {
		if s.isStopped() {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		outcomes, err := s.runBatch(ctx, b)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b, err)
		}

		report := s.merge(b, outcomes)
		if s.opts.OnBatch != nil {
			s.opts.OnBatch(report)
		}

		if b == s.opts.BatchCount-1 {
			break
		}

		if err := s.yield(ctx); err != nil {
			return err
		}
	}

	// A Stop during the final batch has nothing left to cancel.
	s.mu.RLock()
	summary := Summary{
		Batches:      s.batches,
		Trials:       s.records.Trials,
		FailedTrials: s.failed,
		Seed:         s.opts.Seed,
		Duration:     time.Since(began),
	}
	s.mu.RUnlock()

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(summary)
	}
	return nil
}

// yield pauses between batches; this is where teardown takes effect
func (s *Simulator) yield(ctx context.Context) error {
	timer := time.NewTimer(s.opts.YieldDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runBatch runs one batch of trials. A nil outcome marks a skipped trial.
// In-flight batches ignore parent cancellation so a batch is recorded whole or not at all.
func (s *Simulator) runBatch(ctx context.Context, batch int) ([]*stats.Outcome, error) {
	outcomes := make([]*stats.Outcome, s.opts.BatchSize)
	first := batch * s.opts.BatchSize

	group, gctx := NewSafeGroup(context.WithoutCancel(ctx), s.log)
	group.SetLimit(len(s.states))
	for w := range s.states {
		st := s.states[w]
		group.Go(func() error {
			for k := w; k < len(outcomes); k += len(s.states) {
				if gctx.Err() != nil {
					return nil
				}
				out, err := s.runTrial(st, first+k)
				if err != nil {
					if s.opts.AbortOnTrialError {
						return fmt.Errorf("trial %d: %w", first+k, err)
					}
					s.log.Debug("Trial skipped",
						logger.WithField("trial", first+k),
						logger.WithError(err))
					continue
				}
				outcomes[k] = out
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Simulator) runTrial(st *scheduler.TrialState, trial int) (*stats.Outcome, error) {
	st.Resample(s.graph, estimate.TrialRand(s.opts.Seed, trial))
	if err := s.schedule(s.graph, st); err != nil {
		return nil, err
	}
	return &stats.Outcome{
		Trial:   trial,
		Start:   append([]float64(nil), st.Start...),
		Effort:  append([]float64(nil), st.Effort...),
		Track:   append([]int(nil), st.Track...),
		Delayed: append([]bool(nil), st.Delayed...),
	}, nil
}

// merge records outcomes in trial order
func (s *Simulator) merge(batch int, outcomes []*stats.Outcome) BatchReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := 0
	recorded := make([]*stats.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o == nil {
			failed++
			continue
		}
		s.records.Add(o)
		recorded = append(recorded, o)
	}
	s.failed += failed
	s.batches++

	if failed > 0 {
		s.log.Warn("Skipped failed trials",
			logger.WithField("batch", batch),
			logger.WithField("failed", failed))
	}

	return BatchReport{
		Batch:           batch,
		Outcomes:        recorded,
		Records:         s.records,
		PercentComplete: s.percent(),
		TrialsCompleted: s.records.Trials,
		FailedTrials:    s.failed,
	}
}
