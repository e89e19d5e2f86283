// Package graph links work items into a blocking graph and ranks them by critical weight.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lanecast/lanecast/pkg/estimate"
	"github.com/lanecast/lanecast/pkg/logger"
)

var (
	// ErrCycle is wrapped by CycleError
	ErrCycle = errors.New("blocking graph contains a cycle")
	// ErrDuplicateKey is returned when two items share a key
	ErrDuplicateKey = errors.New("duplicate item key")
	// ErrMissingTeam is returned when an item has no team
	ErrMissingTeam = errors.New("item has no team")
)

// CycleError carries the keys along a blocking cycle; the first key is repeated at the end
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// Team is a pool of capacity with a fixed number of parallel lanes
type Team struct {
	Name              string
	ParallelLanes     int
	ThroughputPerLane float64
	Index             int
}

// Lanes returns the lane count, never less than one
func (t *Team) Lanes() int {
	if t.ParallelLanes < 1 {
		return 1
	}
	return t.ParallelLanes
}

// WorkItem is the immutable input for one schedulable unit
type WorkItem struct {
	Key           string
	Title         string
	Team          *Team
	HierarchyType string
	ParentKey     string
	// BlockedBy holds keys of items that must finish before this one starts
	BlockedBy []string
	// Blocks holds keys of items waiting on this one
	Blocks    []string
	Estimator estimate.Estimator
}

// Effort returns the deterministic effort in days
func (w *WorkItem) Effort() float64 {
	if w.Estimator == nil {
		return 0
	}
	return w.Estimator.Deterministic()
}

// LinkedItem wraps a WorkItem with resolved graph edges
type LinkedItem struct {
	*WorkItem

	Index     int
	TeamIndex int

	Parent    *LinkedItem
	Children  []*LinkedItem
	Blocks    []*LinkedItem
	BlockedBy []*LinkedItem

	CriticalWeight float64
}

// DropReason explains why a blocking edge was discarded
type DropReason string

const (
	DropUnknownTarget DropReason = "unknown-target"
	DropCrossType     DropReason = "cross-type"
	DropSelf          DropReason = "self"
)

// DroppedEdge records a discarded edge; From blocks To
type DroppedEdge struct {
	From   string
	To     string
	Reason DropReason
}

// Graph is the linked item set for one scheduling session
type Graph struct {
	// Items are ordered by critical weight, heaviest first
	Items   []*LinkedItem
	ByKey   map[string]*LinkedItem
	Teams   []*Team
	Dropped []DroppedEdge
}

// Len returns the number of items
func (g *Graph) Len() int {
	return len(g.Items)
}

// Team returns the team with the given index
func (g *Graph) Team(i int) *Team {
	return g.Teams[i]
}

// Lookup finds an item by key
func (g *Graph) Lookup(key string) (*LinkedItem, bool) {
	item, ok := g.ByKey[key]
	return item, ok
}

type edge struct {
	from, to int
}

// Link builds the blocking graph. Edges to unknown keys are dropped silently,
// self and cross-type edges are dropped with a warning. A blocking cycle is
// reported as a *CycleError before any weights are computed.
func Link(items []*WorkItem, log logger.Logger) (*Graph, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("linker")

	nodes := make([]*LinkedItem, len(items))
	index := make(map[string]int, len(items))
	g := &Graph{ByKey: make(map[string]*LinkedItem, len(items))}
	teamIndex := make(map[*Team]int)

	for i, item := range items {
		if _, exists := index[item.Key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, item.Key)
		}
		if item.Team == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingTeam, item.Key)
		}
		ti, ok := teamIndex[item.Team]
		if !ok {
			ti = len(g.Teams)
			teamIndex[item.Team] = ti
			item.Team.Index = ti
			g.Teams = append(g.Teams, item.Team)
		}
		index[item.Key] = i
		nodes[i] = &LinkedItem{WorkItem: item, TeamIndex: ti}
	}

	for _, n := range nodes {
		if n.ParentKey == "" {
			continue
		}
		if pi, ok := index[n.ParentKey]; ok && nodes[pi] != n {
			n.Parent = nodes[pi]
			nodes[pi].Children = append(nodes[pi].Children, n)
		}
	}

	seen := make(map[edge]struct{})
	addEdge := func(from, to string) {
		fi, fok := index[from]
		ti, tok := index[to]
		switch {
		case !fok || !tok:
			g.Dropped = append(g.Dropped, DroppedEdge{From: from, To: to, Reason: DropUnknownTarget})
			// Unknown targets are dropped silently; Debug only.
			log.Debug("Dropped edge to unknown item", logger.WithField("from", from), logger.WithField("to", to))
			return
		case fi == ti:
			g.Dropped = append(g.Dropped, DroppedEdge{From: from, To: to, Reason: DropSelf})
			log.Warn("Dropped self-blocking edge", logger.WithField("item", from))
			return
		case nodes[fi].HierarchyType != nodes[ti].HierarchyType:
			g.Dropped = append(g.Dropped, DroppedEdge{From: from, To: to, Reason: DropCrossType})
			log.Warn("Dropped edge between different hierarchy types",
				logger.WithField("from", from),
				logger.WithField("to", to),
				logger.WithField("fromType", nodes[fi].HierarchyType),
				logger.WithField("toType", nodes[ti].HierarchyType))
			return
		}
		e := edge{from: fi, to: ti}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		nodes[fi].Blocks = append(nodes[fi].Blocks, nodes[ti])
		nodes[ti].BlockedBy = append(nodes[ti].BlockedBy, nodes[fi])
	}

	for _, item := range items {
		for _, blocker := range item.BlockedBy {
			addEdge(blocker, item.Key)
		}
		for _, blocked := range item.Blocks {
			addEdge(item.Key, blocked)
		}
	}

	if path := findCycle(nodes); path != nil {
		return nil, &CycleError{Path: path}
	}

	computeWeights(nodes)

	sorted := make([]*LinkedItem, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].CriticalWeight > sorted[b].CriticalWeight
	})
	for i, n := range sorted {
		n.Index = i
		g.ByKey[n.Key] = n
	}
	for _, n := range sorted {
		sortByPriority(n.Blocks)
		sortByPriority(n.BlockedBy)
		sortByPriority(n.Children)
	}
	g.Items = sorted

	log.Debug("Linked items",
		logger.WithField("items", len(sorted)),
		logger.WithField("teams", len(g.Teams)),
		logger.WithField("dropped", len(g.Dropped)))

	return g, nil
}

// sortByPriority orders by final item index, which already ranks by weight
func sortByPriority(items []*LinkedItem) {
	sort.Slice(items, func(a, b int) bool {
		return items[a].Index < items[b].Index
	})
}

const (
	white = iota
	gray
	black
)

// findCycle runs a DFS over blocks edges and returns the first cycle found
func findCycle(nodes []*LinkedItem) []string {
	color := make(map[*LinkedItem]int, len(nodes))
	var stack []*LinkedItem

	var visit func(n *LinkedItem) []string
	visit = func(n *LinkedItem) []string {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range n.Blocks {
			switch color[next] {
			case gray:
				var path []string
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						for _, s := range stack[i:] {
							path = append(path, s.Key)
						}
						break
					}
				}
				return append(path, next.Key)
			case white:
				if p := visit(next); p != nil {
					return p
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, n := range nodes {
		if color[n] == white {
			if p := visit(n); p != nil {
				return p
			}
		}
	}
	return nil
}

// computeWeights memoizes weight(i) = effort(i) + max(weight(b) for b in blocks)
func computeWeights(nodes []*LinkedItem) {
	done := make(map[*LinkedItem]bool, len(nodes))
	var weight func(n *LinkedItem) float64
	weight = func(n *LinkedItem) float64 {
		if done[n] {
			return n.CriticalWeight
		}
		longest := 0.0
		for _, b := range n.Blocks {
			if w := weight(b); w > longest {
				longest = w
			}
		}
		n.CriticalWeight = n.Effort() + longest
		done[n] = true
		return n.CriticalWeight
	}
	for _, n := range nodes {
		weight(n)
	}
}
