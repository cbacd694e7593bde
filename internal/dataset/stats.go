package dataset

import (
	"math"
	"sort"
)

// Snapshot is the finalized view of one (metric, class) distribution. N=0
// means "no data", not "zero-valued data".
type Snapshot struct {
	Mean float64
	Std  float64
	N    int
}

type statKey struct {
	metric   string
	positive bool
}

// welford holds the running state of Welford's single-pass algorithm: count,
// running mean and the running sum of squared deviations (M2). O(1) memory
// per key no matter how many values are pushed.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) push(value float64) {
	w.n++
	delta := value - w.mean
	w.mean += delta / float64(w.n)
	// Uses the post-update mean; this is what keeps the recurrence
	// numerically stable.
	w.m2 += delta * (value - w.mean)
}

// Accumulator maintains running mean/variance per (metric, class) pair
// without storing raw samples.
type Accumulator struct {
	states map[statKey]*welford
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{states: make(map[statKey]*welford)}
}

// Push adds one observation for a metric under the given class.
func (a *Accumulator) Push(metric string, positive bool, value float64) {
	key := statKey{metric: metric, positive: positive}
	state, ok := a.states[key]
	if !ok {
		state = &welford{}
		a.states[key] = state
	}
	state.push(value)
}

// Snapshot finalizes the distribution for a (metric, class) key. Keys with no
// observations report zero mean/std and N=0.
func (a *Accumulator) Snapshot(metric string, positive bool) Snapshot {
	state, ok := a.states[statKey{metric: metric, positive: positive}]
	if !ok || state.n == 0 {
		return Snapshot{}
	}
	variance := state.m2 / float64(state.n)
	return Snapshot{
		Mean: state.mean,
		Std:  math.Sqrt(variance),
		N:    state.n,
	}
}

// Metrics returns the sorted union of metric names observed in either class.
func (a *Accumulator) Metrics() []string {
	seen := make(map[string]struct{}, len(a.states))
	for key := range a.states {
		seen[key.metric] = struct{}{}
	}
	metrics := make([]string, 0, len(seen))
	for m := range seen {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}
