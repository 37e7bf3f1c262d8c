package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"os"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// The report schema written by cmd/bench, reduced to what the graphs use.
type benchmarkResult struct {
	Implementation      string `json:"implementation"`
	GoMaxProcs          int    `json:"gomaxprocs"`
	NumProducers        int    `json:"num_producers"`
	NumConsumers        int    `json:"num_consumers"`
	NumMessagesConsumed int64  `json:"num_messages_consumed"`
	ActualElapsed       string `json:"actual_elapsed"`
}

type transferRecord struct {
	Implementation string  `json:"implementation"`
	NsPerItem      float64 `json:"ns_per_item"`
	Verified       bool    `json:"verified"`
}

type session struct {
	SystemInfo struct {
		NumCPU int `json:"num_cpu"`
	} `json:"system_info"`
	Benchmarks []benchmarkResult `json:"benchmarks"`
	Transfers  []transferRecord  `json:"transfers"`
}

// samplesByProcs maps GOMAXPROCS -> implementation -> producers+consumers -> ns/msg samples.
type samplesByProcs map[int]map[string]map[float64][]float64

var (
	background = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	foreground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing test sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	sessions, err := loadSessions(*jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	samples := collectSamples(sessions)
	procs := make([]int, 0, len(samples))
	for p := range samples {
		procs = append(procs, p)
	}
	sort.Ints(procs)

	for _, p := range procs {
		filename := fmt.Sprintf("%s_%d.png", *outputPrefix, p)
		if err := saveLatencyPlot(filename, p, samples[p]); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving plot for %d CPU(s): %v\n", p, err)
			continue
		}
		fmt.Printf("Graph for %d CPU(s) saved to %s\n", p, filename)
	}

	if transfers := lastTransfers(sessions); len(transfers) > 0 {
		filename := *outputPrefix + "_transfer.png"
		if err := saveTransferPlot(filename, transfers); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving transfer plot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Transfer graph saved to %s\n", filename)
	}
}

func loadSessions(path string) ([]session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var sessions []session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sessions, nil
}

// collectSamples converts every timed run into a ns/msg sample.
func collectSamples(sessions []session) samplesByProcs {
	out := make(samplesByProcs)
	for _, s := range sessions {
		for _, b := range s.Benchmarks {
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesConsumed == 0 {
				continue
			}
			procs := b.GoMaxProcs
			if procs == 0 {
				procs = s.SystemInfo.NumCPU
			}
			if out[procs] == nil {
				out[procs] = make(map[string]map[float64][]float64)
			}
			impls := out[procs]
			if impls[b.Implementation] == nil {
				impls[b.Implementation] = make(map[float64][]float64)
			}
			level := float64(b.NumProducers + b.NumConsumers)
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed)
			impls[b.Implementation][level] = append(impls[b.Implementation][level], nsPerMsg)
		}
	}
	return out
}

// lastTransfers returns the transfer records of the newest session that has any.
func lastTransfers(sessions []session) []transferRecord {
	for i := len(sessions) - 1; i >= 0; i-- {
		if len(sessions[i].Transfers) > 0 {
			return sessions[i].Transfers
		}
	}
	return nil
}

func newDarkPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	p.BackgroundColor = background
	p.Title.TextStyle.Color = foreground
	p.X.Label.TextStyle.Color = foreground
	p.Y.Label.TextStyle.Color = foreground
	p.X.Color = foreground
	p.Y.Color = foreground
	p.X.Tick.Label.Color = foreground
	p.Y.Tick.Label.Color = foreground
	p.X.Tick.Color = foreground
	p.Y.Tick.Color = foreground
	p.Legend.TextStyle.Color = foreground
	p.Legend.Top = true
	p.Legend.Left = true
	return p
}

// saveLatencyPlot draws median ns/msg against concurrency for each
// implementation, with 5%/95% error bars.
func saveLatencyPlot(filename string, procs int, impls map[string]map[float64][]float64) error {
	p := newDarkPlot(
		fmt.Sprintf("Time per message vs. concurrency, GOMAXPROCS=%d", procs),
		"NumProducers + NumConsumers",
		"Time per Msg [log scale]",
	)
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
		ticks := plot.LogTicks{}.Ticks(min, max)
		for i := range ticks {
			if ticks[i].Label != "" {
				ticks[i].Label = formatNs(ticks[i].Value)
			}
		}
		return ticks
	})
	p.Add(plotter.NewGrid())

	// Concurrency levels become evenly spaced categories.
	levelSet := make(map[float64]struct{})
	names := make([]string, 0, len(impls))
	for name, byLevel := range impls {
		names = append(names, name)
		for level := range byLevel {
			levelSet[level] = struct{}{}
		}
	}
	sort.Strings(names)
	levels := make([]float64, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Float64s(levels)

	category := make(map[float64]float64, len(levels))
	ticks := make([]plot.Tick, 0, len(levels))
	for i, level := range levels {
		category[level] = float64(i)
		ticks = append(ticks, plot.Tick{Value: float64(i), Label: strconv.FormatFloat(level, 'f', -1, 64)})
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	// Spread implementations slightly so error bars do not overlap.
	const spread = 0.4
	step := spread / float64(max(len(names), 1))
	for i, name := range names {
		stats := buildStats(impls[name])
		if len(stats) == 0 {
			continue
		}
		offset := -spread/2 + step/2 + float64(i)*step
		for j := range stats {
			stats[j].x = category[stats[j].level] + offset
		}
		pts := statsPoints(stats)

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("line for %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("scatter for %s: %w", name, err)
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Shape = plotutil.Shape(i)
		scatter.GlyphStyle.Radius = vg.Points(4)

		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return fmt.Errorf("error bars for %s: %w", name, err)
		}
		bars.Color = plotutil.Color(i)

		p.Add(line, scatter, bars)
		p.Legend.Add(name, line, scatter)
	}

	return p.Save(12*vg.Inch, 9*vg.Inch, filename)
}

// saveTransferPlot draws ns/item per implementation for a transfer run.
// Runs that failed verification are drawn in red.
func saveTransferPlot(filename string, transfers []transferRecord) error {
	p := newDarkPlot("Transfer check: time per item", "", "ns/item")
	p.Add(plotter.NewGrid())

	names := make([]string, len(transfers))
	for i, t := range transfers {
		names[i] = t.Implementation
		values := make(plotter.Values, len(transfers))
		values[i] = t.NsPerItem

		bar, err := plotter.NewBarChart(values, vg.Points(40))
		if err != nil {
			return fmt.Errorf("bar for %s: %w", t.Implementation, err)
		}
		bar.Color = plotutil.Color(i)
		if !t.Verified {
			bar.Color = color.RGBA{R: 220, G: 40, B: 40, A: 255}
		}
		bar.LineStyle.Width = 0
		p.Add(bar)
	}
	p.NominalX(names...)

	return p.Save(8*vg.Inch, 6*vg.Inch, filename)
}

// formatNs formats a nanosecond value in ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
