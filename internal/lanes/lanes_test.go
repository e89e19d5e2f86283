package lanes_test

import (
	"math/rand/v2"
	"testing"

	"github.com/lanecast/lanecast/internal/lanes"
)

func TestSchedule_EmptyLaneFastPath(t *testing.T) {
	ls := lanes.New(2)

	p := lanes.Schedule(ls, 0, 3, 0)
	if p.Track != 0 || p.Start != 0 || p.Delayed {
		t.Fatalf("unexpected first placement: %+v", p)
	}

	p = lanes.Schedule(ls, 1, 3, 0)
	if p.Track != 1 || p.Start != 0 || p.Delayed {
		t.Fatalf("expected second item on empty lane 1, got %+v", p)
	}
}

func TestSchedule_AppendToEarliestFreeLane(t *testing.T) {
	ls := lanes.New(2)
	lanes.Schedule(ls, 0, 5, 0)
	lanes.Schedule(ls, 1, 2, 0)

	p := lanes.Schedule(ls, 2, 1, 0)
	if p.Track != 1 || p.Start != 2 {
		t.Fatalf("expected append on lane 1 at day 2, got %+v", p)
	}
	if !p.Delayed {
		t.Errorf("expected delayed placement")
	}
}

func TestSchedule_AppendRespectsEarliest(t *testing.T) {
	ls := lanes.New(1)
	lanes.Schedule(ls, 0, 2, 0)

	p := lanes.Schedule(ls, 1, 1, 10)
	if p.Start != 10 || p.Delayed {
		t.Fatalf("expected start at earliest day 10 without delay, got %+v", p)
	}
}

func TestSchedule_PrependIntoGap(t *testing.T) {
	ls := lanes.New(1)
	lanes.Schedule(ls, 0, 2, 5) // occupies [5,7)

	p := lanes.Schedule(ls, 1, 3, 0)
	if p.Start != 0 || p.Track != 0 {
		t.Fatalf("expected gap placement at day 0, got %+v", p)
	}
	if got := ls[0].Slots[0].Item; got != 1 {
		t.Errorf("expected gap item first in lane, got item %d", got)
	}

	// gap [3,5) is too small for effort 3, so it goes after the last slot
	p = lanes.Schedule(ls, 2, 3, 0)
	if p.Start != 7 {
		t.Fatalf("expected append at 7, got %+v", p)
	}
	if !lanes.NonOverlapping(ls) {
		t.Errorf("lanes overlap: %+v", ls)
	}
}

func TestSchedule_EarliestGapAcrossLanes(t *testing.T) {
	ls := lanes.New(2)
	lanes.Schedule(ls, 0, 1, 4) // lane 0: [4,5)
	lanes.Schedule(ls, 1, 1, 2) // lane 1: [2,3)

	p := lanes.Schedule(ls, 2, 1, 0)
	if p.Track != 0 || p.Start != 0 {
		t.Fatalf("expected tie resolved to lane 0 at day 0, got %+v", p)
	}

	p = lanes.Schedule(ls, 3, 2, 1)
	if p.Track != 0 || p.Start != 1 {
		t.Fatalf("expected gap [1,3) on lane 0, got %+v", p)
	}
}

func TestSchedule_NonOverlapRandomized(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		ls := lanes.New(1 + r.IntN(4))
		for item := 0; item < 40; item++ {
			effort := r.Float64() * 5
			earliest := r.Float64() * 20
			p := lanes.Schedule(ls, item, effort, earliest)
			if p.Start < earliest {
				t.Fatalf("start %v before earliest %v", p.Start, earliest)
			}
			if p.Delayed != (p.Start > earliest) {
				t.Fatalf("delayed flag mismatch: %+v earliest=%v", p, earliest)
			}
		}
		if !lanes.NonOverlapping(ls) {
			t.Fatalf("round %d: lanes overlap", round)
		}
	}
}

func TestReset(t *testing.T) {
	ls := lanes.New(0)
	if len(ls) != 1 {
		t.Fatalf("expected at least one lane, got %d", len(ls))
	}
	lanes.Schedule(ls, 0, 1, 0)
	lanes.Reset(ls)
	if len(ls[0].Slots) != 0 {
		t.Errorf("expected empty lane after reset")
	}
}
