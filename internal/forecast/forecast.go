// Package forecast wraps a simulation run and reduces its records to results.
package forecast

import (
	"context"
	"sort"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/internal/simulator"
	"github.com/lanecast/lanecast/internal/stats"
	"github.com/lanecast/lanecast/pkg/types"
)

// CompletionKey names the synthetic overall-completion result
const CompletionKey = "__completion__"

// Kind tags an ItemResult variant
type Kind string

const (
	KindFull       Kind = "full"
	KindCompletion Kind = "completion"
)

// ItemResult is either a FullResult or a SyntheticCompletionResult
type ItemResult interface {
	Kind() Kind
	ResultKey() string
	ResultBand() stats.Band
}

// FullResult is the result for one real work item
type FullResult struct {
	Key            string     `json:"key"`
	Title          string     `json:"title,omitempty"`
	Team           string     `json:"team"`
	Type           string     `json:"type,omitempty"`
	Parent         string     `json:"parent,omitempty"`
	BlockedBy      []string   `json:"blockedBy,omitempty"`
	Effort         float64    `json:"effortDays"`
	CriticalWeight float64    `json:"criticalWeight"`
	DelayedShare   float64    `json:"delayedShare"`
	Band           stats.Band `json:"band"`
}

func (r FullResult) Kind() Kind             { return KindFull }
func (r FullResult) ResultKey() string      { return r.Key }
func (r FullResult) ResultBand() stats.Band { return r.Band }

// SyntheticCompletionResult is the band of the latest due day across all items
type SyntheticCompletionResult struct {
	Band stats.Band `json:"band"`
}

func (r SyntheticCompletionResult) Kind() Kind             { return KindCompletion }
func (r SyntheticCompletionResult) ResultKey() string      { return CompletionKey }
func (r SyntheticCompletionResult) ResultBand() stats.Band { return r.Band }

// Result is a point-in-time view of a session
type Result struct {
	PercentComplete   float64                   `json:"percentComplete"`
	UncertaintyWeight types.UncertaintyWeight   `json:"uncertaintyWeight"`
	TrialsCompleted   int                       `json:"trialsCompleted"`
	FailedTrials      int                       `json:"failedTrials"`
	Completion        SyntheticCompletionResult `json:"completion"`
	Items             map[string]FullResult     `json:"items"`
	Teams             []stats.TeamTracks        `json:"teams"`

	order []string
}

// All returns the completion result followed by every item in graph order
func (r *Result) All() []ItemResult {
	out := make([]ItemResult, 0, len(r.order)+1)
	out = append(out, r.Completion)
	for _, key := range r.order {
		out = append(out, r.Items[key])
	}
	return out
}

// Keys returns item keys in graph order
func (r *Result) Keys() []string {
	return append([]string(nil), r.order...)
}

// SortedByDue returns item results ordered by their high due day
func (r *Result) SortedByDue() []FullResult {
	out := make([]FullResult, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.Items[key])
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Band.DueHigh < out[b].Band.DueHigh
	})
	return out
}

// Session runs one simulation over a linked graph
type Session struct {
	graph *graph.Graph
	sim   *simulator.Simulator
}

// NewSession prepares a session; opts are passed to the simulator
func NewSession(g *graph.Graph, opts simulator.Options) *Session {
	return &Session{graph: g, sim: simulator.New(g, opts)}
}

// Graph returns the linked graph
func (s *Session) Graph() *graph.Graph {
	return s.graph
}

// Seed returns the run seed
func (s *Session) Seed() uint64 {
	return s.sim.Seed()
}

// TotalTrials returns the number of trials a full run records
func (s *Session) TotalTrials() int {
	o := s.sim.Options()
	return o.BatchSize * o.BatchCount
}

// Run runs the simulation to completion or teardown
func (s *Session) Run(ctx context.Context) error {
	return s.sim.Run(ctx)
}

// Stop tears the session down after the batch in flight
func (s *Session) Stop() {
	s.sim.Stop()
}

// PercentComplete returns run progress in [0, 100]
func (s *Session) PercentComplete() float64 {
	return s.sim.PercentComplete()
}

// Records returns a copy of the raw trial records gathered so far
func (s *Session) Records() *stats.RecordSet {
	var out *stats.RecordSet
	s.sim.View(func(rs *stats.RecordSet, _ float64, _ int) {
		out = rs.Clone()
	})
	return out
}

// Snapshot reduces the records gathered so far under weight w. It is safe to
// call while Run is in progress.
func (s *Session) Snapshot(w types.UncertaintyWeight) *Result {
	var res *Result
	s.sim.View(func(rs *stats.RecordSet, percent float64, failed int) {
		res = Build(s.graph, rs, w)
		res.PercentComplete = percent
		res.FailedTrials = failed
	})
	return res
}

// Build reduces a record set for g under weight w
func Build(g *graph.Graph, rs *stats.RecordSet, w types.UncertaintyWeight) *Result {
	bands := make([]stats.Band, g.Len())
	res := &Result{
		UncertaintyWeight: w,
		TrialsCompleted:   rs.Trials,
		Completion:        SyntheticCompletionResult{Band: stats.BandsFor(&rs.Completion, w)},
		Items:             make(map[string]FullResult, g.Len()),
		order:             make([]string, 0, g.Len()),
	}

	for _, item := range g.Items {
		band := stats.BandsFor(&rs.Items[item.Index], w)
		bands[item.Index] = band

		blockedBy := make([]string, len(item.BlockedBy))
		for i, b := range item.BlockedBy {
			blockedBy[i] = b.Key
		}
		parent := ""
		if item.Parent != nil {
			parent = item.Parent.Key
		}

		res.Items[item.Key] = FullResult{
			Key:            item.Key,
			Title:          item.Title,
			Team:           item.Team.Name,
			Type:           item.HierarchyType,
			Parent:         parent,
			BlockedBy:      blockedBy,
			Effort:         item.Effort(),
			CriticalWeight: item.CriticalWeight,
			DelayedShare:   rs.DelayedShare(item.Index),
			Band:           band,
		}
		res.order = append(res.order, item.Key)
	}

	res.Teams = stats.GroupByTeam(g, bands)
	return res
}
