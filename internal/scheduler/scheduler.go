// Package scheduler assigns a start day and lane to every linked item for one trial.
package scheduler

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/lanes"
)

// ErrInvariant is wrapped by InvariantError
var ErrInvariant = errors.New("scheduling invariant violated")

// InvariantError reports an item whose blocker had no start day when it was needed.
// It aborts the trial it occurred in.
type InvariantError struct {
	Item    string
	Blocker string
}

func (e *InvariantError) Error() string {
	if e.Blocker == "" {
		return fmt.Sprintf("%v: item %s was never scheduled", ErrInvariant, e.Item)
	}
	return fmt.Sprintf("%v: item %s is ready but blocker %s has no start day", ErrInvariant, e.Item, e.Blocker)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// TrialState is the mutable per-trial data for a graph, indexed by LinkedItem.Index.
// A TrialState belongs to one goroutine; reuse it across trials with Reset.
type TrialState struct {
	Effort    []float64
	Start     []float64
	Scheduled []bool
	Track     []int
	Delayed   []bool
	// Lanes holds the committed slots of each team, indexed by team index
	Lanes [][]lanes.Lane
}

// NewTrialState allocates state for g with deterministic efforts
func NewTrialState(g *graph.Graph) *TrialState {
	n := g.Len()
	st := &TrialState{
		Effort:    make([]float64, n),
		Start:     make([]float64, n),
		Scheduled: make([]bool, n),
		Track:     make([]int, n),
		Delayed:   make([]bool, n),
		Lanes:     make([][]lanes.Lane, len(g.Teams)),
	}
	for i, team := range g.Teams {
		st.Lanes[i] = lanes.New(team.Lanes())
	}
	for _, item := range g.Items {
		st.Effort[item.Index] = item.Effort()
	}
	st.Reset()
	return st
}

// Reset clears start days, tracks and lanes. Efforts are left untouched.
func (st *TrialState) Reset() {
	for i := range st.Start {
		st.Start[i] = 0
		st.Scheduled[i] = false
		st.Track[i] = -1
		st.Delayed[i] = false
	}
	for _, ls := range st.Lanes {
		lanes.Reset(ls)
	}
}

// Resample resets the state and draws a fresh effort for every item
func (st *TrialState) Resample(g *graph.Graph, r *rand.Rand) {
	st.Reset()
	for _, item := range g.Items {
		effort := 0.0
		if item.Estimator != nil {
			effort = item.Estimator.Resample(r)
		}
		if effort < 0 {
			effort = 0
		}
		st.Effort[item.Index] = effort
	}
}

// Due returns the finish day of item i
func (st *TrialState) Due(i int) float64 {
	return st.Start[i] + st.Effort[i]
}

// ScheduleTrial plans every item of g into st. Items are visited in graph order,
// but an item is only placed once all of its blockers are placed; the blocker's
// own placement recurses into the items it unblocks.
func ScheduleTrial(g *graph.Graph, st *TrialState) error {
	for _, item := range g.Items {
		if err := planItem(st, item); err != nil {
			return err
		}
	}

	for _, item := range g.Items {
		if st.Scheduled[item.Index] {
			continue
		}
		err := &InvariantError{Item: item.Key}
		for _, b := range item.BlockedBy {
			if !st.Scheduled[b.Index] {
				err.Blocker = b.Key
				break
			}
		}
		return err
	}
	return nil
}

func planItem(st *TrialState, item *graph.LinkedItem) error {
	i := item.Index
	if st.Scheduled[i] {
		return nil
	}
	if !ready(st, item) {
		return nil
	}

	readyDay := 0.0
	for _, b := range item.BlockedBy {
		if !st.Scheduled[b.Index] {
			return &InvariantError{Item: item.Key, Blocker: b.Key}
		}
		readyDay = max(readyDay, st.Due(b.Index))
	}

	p := lanes.Schedule(st.Lanes[item.TeamIndex], i, st.Effort[i], readyDay)
	st.Start[i] = p.Start
	st.Track[i] = p.Track
	st.Delayed[i] = p.Delayed
	st.Scheduled[i] = true

	for _, next := range item.Blocks {
		if err := planItem(st, next); err != nil {
			return err
		}
	}
	return nil
}

func ready(st *TrialState, item *graph.LinkedItem) bool {
	for _, b := range item.BlockedBy {
		if !st.Scheduled[b.Index] {
			return false
		}
	}
	return true
}
