// Package lanes packs work into a team's parallel lanes.
//
// Placement is greedy first-fit: an item goes into the earliest gap that can
// hold it across all lanes, otherwise after the lane that frees up first.
package lanes

// Slot is one committed interval in a lane
type Slot struct {
	Start  float64
	Effort float64
	Item   int
}

// End returns the day the slot finishes
func (s Slot) End() float64 {
	return s.Start + s.Effort
}

// Lane is an ordered sequence of non-overlapping slots
type Lane struct {
	Slots []Slot
}

// Placement is the outcome of one Schedule call
type Placement struct {
	Start float64
	Track int
	// Delayed is set when lane contention pushed Start past the requested earliest day
	Delayed bool
}

// New allocates n empty lanes
func New(n int) []Lane {
	if n < 1 {
		n = 1
	}
	return make([]Lane, n)
}

// Reset empties every lane, keeping allocated capacity
func Reset(lanes []Lane) {
	for i := range lanes {
		lanes[i].Slots = lanes[i].Slots[:0]
	}
}

// Schedule commits item into lanes at the earliest feasible start not before
// earliest and returns where it went. lanes is modified in place.
func Schedule(lanes []Lane, item int, effort, earliest float64) Placement {
	for i := range lanes {
		if len(lanes[i].Slots) == 0 {
			return commit(lanes, i, 0, Slot{Start: earliest, Effort: effort, Item: item}, earliest)
		}
	}

	// gap before a committed slot
	track, pos := -1, 0
	var start float64
	for i := range lanes {
		slots := lanes[i].Slots
		for j := range slots {
			candidate := earliest
			if j > 0 {
				candidate = max(earliest, slots[j-1].End())
			}
			if candidate+effort <= slots[j].Start {
				if track < 0 || candidate < start {
					track, pos, start = i, j, candidate
				}
				break
			}
		}
	}

	if track < 0 {
		for i := range lanes {
			slots := lanes[i].Slots
			candidate := max(earliest, slots[len(slots)-1].End())
			if track < 0 || candidate < start {
				track, pos, start = i, len(slots), candidate
			}
		}
	}

	return commit(lanes, track, pos, Slot{Start: start, Effort: effort, Item: item}, earliest)
}

func commit(lanes []Lane, track, pos int, slot Slot, earliest float64) Placement {
	slots := append(lanes[track].Slots, Slot{})
	copy(slots[pos+1:], slots[pos:])
	slots[pos] = slot
	lanes[track].Slots = slots

	return Placement{Start: slot.Start, Track: track, Delayed: slot.Start > earliest}
}

// NonOverlapping reports whether adjacent slots never overlap
func (l Lane) NonOverlapping() bool {
	for i := 1; i < len(l.Slots); i++ {
		if l.Slots[i-1].End() > l.Slots[i].Start {
			return false
		}
	}
	return true
}

// NonOverlapping reports whether every lane is free of overlaps
func NonOverlapping(lanes []Lane) bool {
	for _, l := range lanes {
		if !l.NonOverlapping() {
			return false
		}
	}
	return true
}
