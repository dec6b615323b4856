// Package stats computes descriptive statistics over 3-axis sensor readings.
//
// Everything in this package is a pure function of its input: no I/O, no shared state, safe to call
// from any number of goroutines.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
)

// ErrEmptyInput is returned whenever a summary is requested over zero values. Callers treat it as
// "no matching data".
var ErrEmptyInput = errors.New("stats: no values to summarize")

type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Median float64 `json:"median"`
}

// Mean is derived from Sum and Count.
func (s Summary) Mean() float64 {
	return s.Sum / float64(s.Count)
}

type AxesSummary struct {
	X Summary `json:"x"`
	Y Summary `json:"y"`
	Z Summary `json:"z"`
}

// Vector is anything that carries one x/y/z sample.
type Vector interface {
	Axes() (x, y, z float64)
}

// Summarize returns min, max, count, sum and median of values. The input slice is not modified.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptyInput
	}
	lowest, highest := values[0], values[0]
	for _, v := range values[1:] {
		lowest = math.Min(lowest, v)
		highest = math.Max(highest, v)
	}
	return Summary{
		Min:    lowest,
		Max:    highest,
		Count:  len(values),
		Sum:    lo.Sum(values),
		Median: median(values),
	}, nil
}

func median(values []float64) float64 {
	// sort.Float64s orders NaN first, which would hide it.
	if lo.ContainsBy(values, math.IsNaN) {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// SummarizeAxes summarizes the x, y and z columns of readings independently.
func SummarizeAxes[V Vector](readings []V) (AxesSummary, error) {
	if len(readings) == 0 {
		return AxesSummary{}, ErrEmptyInput
	}
	xs := make([]float64, len(readings))
	ys := make([]float64, len(readings))
	zs := make([]float64, len(readings))
	for i, r := range readings {
		xs[i], ys[i], zs[i] = r.Axes()
	}

	var out AxesSummary
	var err error
	if out.X, err = Summarize(xs); err != nil {
		return AxesSummary{}, err
	}
	if out.Y, err = Summarize(ys); err != nil {
		return AxesSummary{}, err
	}
	if out.Z, err = Summarize(zs); err != nil {
		return AxesSummary{}, err
	}
	return out, nil
}

type GroupSummary[K comparable] struct {
	Key     K
	Summary AxesSummary
}

// Grouped holds the pooled summary and one summary per known group. PerGroup is ordered by first
// appearance in the known-group list.
type Grouped[K comparable] struct {
	Aggregated AxesSummary
	PerGroup   []GroupSummary[K]
}

func (g Grouped[K]) Lookup(key K) (AxesSummary, bool) {
	for _, gs := range g.PerGroup {
		if gs.Key == key {
			return gs.Summary, true
		}
	}
	return AxesSummary{}, false
}

// SummarizeGrouped summarizes all readings together and then each known group on its own. A known
// group without readings fails the whole call with an error wrapping ErrEmptyInput; filter groups
// beforehand to get partial results.
func SummarizeGrouped[V Vector, K comparable](readings []V, groups []K, keyOf func(V) K) (Grouped[K], error) {
	aggregated, err := SummarizeAxes(readings)
	if err != nil {
		return Grouped[K]{}, err
	}

	byKey := lo.GroupBy(readings, keyOf)
	out := Grouped[K]{Aggregated: aggregated}
	for _, key := range lo.Uniq(groups) {
		summary, err := SummarizeAxes(byKey[key])
		if err != nil {
			return Grouped[K]{}, fmt.Errorf("group %v: %w", key, err)
		}
		out.PerGroup = append(out.PerGroup, GroupSummary[K]{Key: key, Summary: summary})
	}
	return out, nil
}
