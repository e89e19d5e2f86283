// Package stats accumulates trial outcomes and reduces them to percentile bands.
package stats

import (
	"math"
	"sort"

	"github.com/lanecast/lanecast/internal/graph"
	"github.com/lanecast/lanecast/pkg/types"
)

// TrialRecord holds the outcomes of one item across trials. StartDays, DueDays
// and EffortDays are each kept ascending; Tracks is in insertion order.
type TrialRecord struct {
	StartDays  []float64
	DueDays    []float64
	EffortDays []float64
	Tracks     []int
}

// Insert adds one trial outcome. A negative track is not recorded.
func (r *TrialRecord) Insert(start, due, effort float64, track int) {
	r.StartDays = insertSorted(r.StartDays, start)
	r.DueDays = insertSorted(r.DueDays, due)
	r.EffortDays = insertSorted(r.EffortDays, effort)
	if track >= 0 {
		r.Tracks = append(r.Tracks, track)
	}
}

// Len returns the number of recorded trials
func (r *TrialRecord) Len() int {
	return len(r.DueDays)
}

// IsSorted reports whether every day array is non-decreasing
func (r *TrialRecord) IsSorted() bool {
	return sort.Float64sAreSorted(r.StartDays) &&
		sort.Float64sAreSorted(r.DueDays) &&
		sort.Float64sAreSorted(r.EffortDays)
}

func (r *TrialRecord) clone() TrialRecord {
	return TrialRecord{
		StartDays:  append([]float64(nil), r.StartDays...),
		DueDays:    append([]float64(nil), r.DueDays...),
		EffortDays: append([]float64(nil), r.EffortDays...),
		Tracks:     append([]int(nil), r.Tracks...),
	}
}

// insertSorted places v after any equal values
func insertSorted(a []float64, v float64) []float64 {
	i := sort.Search(len(a), func(i int) bool { return a[i] > v })
	a = append(a, 0)
	copy(a[i+1:], a[i:])
	a[i] = v
	return a
}

// Outcome is the result of one trial, indexed by LinkedItem.Index
type Outcome struct {
	Trial  int
	Start  []float64
	Effort []float64
	Track  []int
	// Delayed marks items pushed back by lane contention
	Delayed []bool
}

// Due returns the finish day of item i
func (o *Outcome) Due(i int) float64 {
	return o.Start[i] + o.Effort[i]
}

// Completion returns the earliest start and latest due day across items
func (o *Outcome) Completion() (start, due float64) {
	if len(o.Start) == 0 {
		return 0, 0
	}
	start, due = math.Inf(1), math.Inf(-1)
	for i := range o.Start {
		start = min(start, o.Start[i])
		due = max(due, o.Due(i))
	}
	return start, due
}

// RecordSet holds a TrialRecord per item plus the overall completion record
type RecordSet struct {
	Items      []TrialRecord
	Completion TrialRecord
	// Delayed counts, per item, the trials in which lane contention delayed it
	Delayed []int
	Trials  int
}

// NewRecordSet allocates records for n items
func NewRecordSet(n int) *RecordSet {
	return &RecordSet{Items: make([]TrialRecord, n), Delayed: make([]int, n)}
}

// Add records one trial
func (rs *RecordSet) Add(o *Outcome) {
	for i := range rs.Items {
		rs.Items[i].Insert(o.Start[i], o.Due(i), o.Effort[i], o.Track[i])
		if i < len(o.Delayed) && o.Delayed[i] {
			rs.Delayed[i]++
		}
	}
	start, due := o.Completion()
	rs.Completion.Insert(start, due, due-start, -1)
	rs.Trials++
}

// Clone returns a deep copy
func (rs *RecordSet) Clone() *RecordSet {
	out := &RecordSet{
		Items:      make([]TrialRecord, len(rs.Items)),
		Completion: rs.Completion.clone(),
		Delayed:    append([]int(nil), rs.Delayed...),
		Trials:     rs.Trials,
	}
	for i := range rs.Items {
		out.Items[i] = rs.Items[i].clone()
	}
	return out
}

// DelayedShare returns the fraction of trials in which item i was delayed by contention
func (rs *RecordSet) DelayedShare(i int) float64 {
	if rs.Trials == 0 {
		return 0
	}
	return float64(rs.Delayed[i]) / float64(rs.Trials)
}

// Band is the presentation summary of one record under an uncertainty weight
type Band struct {
	StartLow       float64 `json:"startLow"`
	DueLow         float64 `json:"dueLow"`
	DueHigh        float64 `json:"dueHigh"`
	AdjustedEffort float64 `json:"adjustedEffort"`
	// ModalTrack is -1 when no track was recorded
	ModalTrack int `json:"modalTrack"`
}

// BandsFor reduces a record. The average weight uses arithmetic means; a
// percentile W reads dueHigh and adjustedEffort at round(n*W/100) and
// startLow and dueLow at the mirrored index.
func BandsFor(r *TrialRecord, w types.UncertaintyWeight) Band {
	band := Band{ModalTrack: ModalTrack(r.Tracks)}
	n := r.Len()
	if n == 0 {
		return band
	}

	p, fixed := w.Value()
	if !fixed {
		band.StartLow = mean(r.StartDays)
		band.DueLow = mean(r.DueDays)
		band.DueHigh = band.DueLow
		band.AdjustedEffort = mean(r.EffortDays)
		return band
	}

	high := int(math.Round(float64(n) * p / 100))
	high = min(max(high, 0), n-1)
	low := max(n-1-high, 0)

	band.DueHigh = r.DueDays[high]
	band.StartLow = r.StartDays[low]
	band.DueLow = r.DueDays[low]
	band.AdjustedEffort = r.EffortDays[high]
	return band
}

func mean(a []float64) float64 {
	sum := 0.0
	for _, v := range a {
		sum += v
	}
	return sum / float64(len(a))
}

// ModalTrack returns the most frequent track. Ties go to the track seen first.
func ModalTrack(tracks []int) int {
	if len(tracks) == 0 {
		return -1
	}
	counts := make(map[int]int)
	var order []int
	for _, t := range tracks {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	best := order[0]
	for _, t := range order[1:] {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

// Entry is one item placed on a presentation track
type Entry struct {
	Key   string `json:"key"`
	Title string `json:"title,omitempty"`
	Band  Band   `json:"band"`
}

// TeamTracks groups a team's items by modal track
type TeamTracks struct {
	Team   string    `json:"team"`
	Tracks [][]Entry `json:"tracks"`
}

// GroupByTeam partitions items by team, then by modal track. bands is indexed
// by LinkedItem.Index. Items without a modal track are left out; entries within
// a track are ordered by StartLow.
func GroupByTeam(g *graph.Graph, bands []Band) []TeamTracks {
	out := make([]TeamTracks, len(g.Teams))
	for i, team := range g.Teams {
		out[i] = TeamTracks{Team: team.Name, Tracks: make([][]Entry, team.Lanes())}
	}

	for _, item := range g.Items {
		band := bands[item.Index]
		tracks := out[item.TeamIndex].Tracks
		if band.ModalTrack < 0 || band.ModalTrack >= len(tracks) {
			continue
		}
		tracks[band.ModalTrack] = append(tracks[band.ModalTrack], Entry{
			Key:   item.Key,
			Title: item.Title,
			Band:  band,
		})
	}

	for _, tt := range out {
		for _, entries := range tt.Tracks {
			sort.SliceStable(entries, func(a, b int) bool {
				return entries[a].Band.StartLow < entries[b].Band.StartLow
			})
		}
	}
	return out
}
