package main

import "sort"

// concurrencyStats summarizes the ns/msg samples at one concurrency level:
// mean of the fastest 5%, median, and mean of the slowest 5%.
type concurrencyStats struct {
	x      float64 // plotted position (category index plus offset)
	level  float64 // producers + consumers
	low    float64
	median float64
	high   float64
}

// statsPoints implements plotter.XYer and plotter.YErrorer.
type statsPoints []concurrencyStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].x, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	return s[i].median - s[i].low, s[i].high - s[i].median
}

// buildStats summarizes samples keyed by concurrency level, sorted by level.
func buildStats(samples map[float64][]float64) []concurrencyStats {
	out := make([]concurrencyStats, 0, len(samples))
	for level, vals := range samples {
		if len(vals) == 0 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		out = append(out, concurrencyStats{
			x:      level,
			level:  level,
			low:    averageOfRange(sorted, 0.0, 0.05),
			median: median(sorted),
			high:   averageOfRange(sorted, 0.95, 1.0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].level < out[j].level })
	return out
}

// averageOfRange averages sortedVals over the fractional index window
// [startFrac, endFrac). A window too small to hold a sample falls back to
// the median.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	start := max(int(float64(n)*startFrac), 0)
	end := min(int(float64(n)*endFrac), n)
	if start >= end {
		return median(sortedVals)
	}
	sum := 0.0
	for _, v := range sortedVals[start:end] {
		sum += v
	}
	return sum / float64(end-start)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}
