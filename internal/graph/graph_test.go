package graph_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/pkg/estimate"
	"github.com/lanecast/lanecast/pkg/logger"
	"github.com/lanecast/lanecast/pkg/types"
)

func newItem(key string, team *graph.Team, effort float64, blockedBy ...string) *graph.WorkItem {
	return &graph.WorkItem{
		Key:       key,
		Team:      team,
		BlockedBy: blockedBy,
		Estimator: estimate.Fixed(effort),
	}
}

func mustLink(t *testing.T, items []*graph.WorkItem) *graph.Graph {
	t.Helper()
	g, err := graph.Link(items, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	return g
}

func TestLink_CriticalWeight(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	// A -> B -> D, A -> C
	items := []*graph.WorkItem{
		newItem("A", team, 3),
		newItem("B", team, 2, "A"),
		newItem("C", team, 10, "A"),
		newItem("D", team, 1, "B"),
	}
	g := mustLink(t, items)

	want := map[string]float64{"A": 13, "B": 3, "C": 10, "D": 1}
	for key, w := range want {
		item, ok := g.Lookup(key)
		if !ok {
			t.Fatalf("item %s missing", key)
		}
		if item.CriticalWeight != w {
			t.Errorf("weight(%s) = %v, want %v", key, item.CriticalWeight, w)
		}
	}

	for _, item := range g.Items {
		longest := 0.0
		for _, b := range item.Blocks {
			longest = math.Max(longest, b.CriticalWeight)
		}
		if item.CriticalWeight != item.Effort()+longest {
			t.Errorf("recursion does not hold for %s", item.Key)
		}
	}
}

func TestLink_SortedByWeight(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	items := []*graph.WorkItem{
		newItem("small", team, 1),
		newItem("big", team, 5),
		newItem("tie", team, 1),
	}
	g := mustLink(t, items)

	got := []string{g.Items[0].Key, g.Items[1].Key, g.Items[2].Key}
	want := []string{"big", "small", "tie"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	for i, item := range g.Items {
		if item.Index != i {
			t.Errorf("item %s has index %d, want %d", item.Key, item.Index, i)
		}
	}
}

func TestLink_BlocksOrderedByWeight(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	items := []*graph.WorkItem{
		newItem("root", team, 1),
		newItem("light", team, 1, "root"),
		newItem("heavy", team, 8, "root"),
	}
	g := mustLink(t, items)

	root, _ := g.Lookup("root")
	if len(root.Blocks) != 2 || root.Blocks[0].Key != "heavy" {
		t.Fatalf("expected heavy first in blocks, got %v", keys(root.Blocks))
	}
}

func TestLink_MergesBothDirections(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	a := newItem("A", team, 1)
	a.Blocks = []string{"B"}
	b := newItem("B", team, 1, "A")
	g := mustLink(t, []*graph.WorkItem{a, b})

	itemA, _ := g.Lookup("A")
	itemB, _ := g.Lookup("B")
	if len(itemA.Blocks) != 1 || len(itemB.BlockedBy) != 1 {
		t.Fatalf("expected one de-duplicated edge, got blocks=%d blockedBy=%d",
			len(itemA.Blocks), len(itemB.BlockedBy))
	}
}

func TestLink_DropsEdges(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	epic := newItem("E", team, 1)
	epic.HierarchyType = "epic"
	story := newItem("S", team, 1, "E", "MISSING", "S")
	story.HierarchyType = "story"

	var buf bytes.Buffer
	g, err := graph.Link([]*graph.WorkItem{epic, story}, logger.CreateLoggerWithOutput("info", &buf))
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	reasons := map[graph.DropReason]int{}
	for _, d := range g.Dropped {
		reasons[d.Reason]++
	}
	if reasons[graph.DropCrossType] != 1 || reasons[graph.DropUnknownTarget] != 1 || reasons[graph.DropSelf] != 1 {
		t.Errorf("unexpected drop reasons: %v", reasons)
	}

	s, _ := g.Lookup("S")
	if len(s.BlockedBy) != 0 {
		t.Errorf("expected no surviving edges, got %v", keys(s.BlockedBy))
	}

	output := buf.String()
	if !strings.Contains(output, "hierarchy types") {
		t.Errorf("expected cross-type warning, got %q", output)
	}
	if strings.Contains(output, "MISSING") {
		t.Errorf("unknown targets should be dropped silently, got %q", output)
	}
}

func TestLink_DetectsCycle(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	items := []*graph.WorkItem{
		newItem("A", team, 1, "C"),
		newItem("B", team, 1, "A"),
		newItem("C", team, 1, "B"),
		newItem("D", team, 1),
	}

	_, err := graph.Link(items, nil)
	if !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	var cycleErr *graph.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Path) != 4 || cycleErr.Path[0] != cycleErr.Path[3] {
		t.Errorf("expected closed path of 3 items, got %v", cycleErr.Path)
	}
}

func TestLink_ParentChildren(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}
	parent := newItem("P", team, 1)
	child := newItem("C", team, 1)
	child.ParentKey = "P"
	orphan := newItem("O", team, 1)
	orphan.ParentKey = "NOPE"

	g := mustLink(t, []*graph.WorkItem{parent, child, orphan})

	p, _ := g.Lookup("P")
	c, _ := g.Lookup("C")
	o, _ := g.Lookup("O")
	if len(p.Children) != 1 || p.Children[0] != c || c.Parent != p {
		t.Errorf("parent/child links not set")
	}
	if o.Parent != nil {
		t.Errorf("orphan should have no parent")
	}
}

func TestLink_Errors(t *testing.T) {
	team := &graph.Team{Name: "core", ParallelLanes: 1}

	_, err := graph.Link([]*graph.WorkItem{newItem("A", team, 1), newItem("A", team, 2)}, nil)
	if !errors.Is(err, graph.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	_, err = graph.Link([]*graph.WorkItem{newItem("A", nil, 1)}, nil)
	if !errors.Is(err, graph.ErrMissingTeam) {
		t.Errorf("expected ErrMissingTeam, got %v", err)
	}
}

func TestLink_TeamsInFirstAppearanceOrder(t *testing.T) {
	web := &graph.Team{Name: "web", ParallelLanes: 2}
	api := &graph.Team{Name: "api", ParallelLanes: 0}
	g := mustLink(t, []*graph.WorkItem{
		newItem("W1", web, 1),
		newItem("A1", api, 5),
		newItem("W2", web, 1),
	})

	if len(g.Teams) != 2 || g.Team(0) != web || g.Team(1) != api {
		t.Fatalf("unexpected team order")
	}
	a1, _ := g.Lookup("A1")
	if a1.TeamIndex != 1 {
		t.Errorf("expected team index 1, got %d", a1.TeamIndex)
	}
	if api.Lanes() != 1 {
		t.Errorf("expected lane count clamped to 1, got %d", api.Lanes())
	}
}

func TestFromPlan(t *testing.T) {
	plan := &types.Plan{
		Teams: []types.TeamSpec{
			{Name: "core", ParallelLanes: 2, ThroughputPerLane: types.FloatPtr(2)},
		},
		Items: []types.ItemSpec{
			{Key: "A", Team: "core", EffortDays: types.FloatPtr(3), Confidence: types.FloatPtr(100)},
			{Key: "B", Team: "core", Points: types.FloatPtr(8), BlockedBy: []string{"A"}},
		},
	}

	items, err := graph.FromPlan(plan)
	if err != nil {
		t.Fatalf("FromPlan failed: %v", err)
	}
	if items[0].Effort() != 3 {
		t.Errorf("expected effort 3, got %v", items[0].Effort())
	}
	if _, ok := items[0].Estimator.(estimate.Fixed); !ok {
		t.Errorf("expected fixed estimator at full confidence, got %T", items[0].Estimator)
	}
	if items[1].Effort() != 4 {
		t.Errorf("expected points/throughput = 4, got %v", items[1].Effort())
	}
	if items[0].Team != items[1].Team {
		t.Errorf("items of one team should share the team value")
	}

	plan.Items = append(plan.Items, types.ItemSpec{Key: "C", Team: "ghost"})
	if _, err := graph.FromPlan(plan); !errors.Is(err, graph.ErrUnknownTeam) {
		t.Errorf("expected ErrUnknownTeam, got %v", err)
	}
}

func keys(items []*graph.LinkedItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Key
	}
	return out
}
