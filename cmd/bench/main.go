package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoBoundedQueue/internal/queue"
	"github.com/i5heu/GoBoundedQueue/internal/testbench"
	"github.com/i5heu/GoBoundedQueue/pkg/boundedqueue"
	"github.com/i5heu/GoBoundedQueue/pkg/buffered"
	"github.com/i5heu/GoBoundedQueue/pkg/coarsequeue"
	"github.com/i5heu/GoBoundedQueue/pkg/config"
)

// BenchmarkResult holds results for one timed run.
type BenchmarkResult struct {
	Implementation      string              `json:"implementation"`
	Capacity            uint64              `json:"capacity"`
	GoMaxProcs          int                 `json:"gomaxprocs"`
	NumProducers        int                 `json:"num_producers"`
	NumConsumers        int                 `json:"num_consumers"`
	NumMessages         int64               `json:"num_messages"`          // produced count
	NumMessagesConsumed int64               `json:"num_messages_consumed"` // consumed count
	TestDuration        string              `json:"test_duration"`         // e.g. "5s"
	ActualElapsed       string              `json:"actual_elapsed"`        // measured time
	Throughput          float64             `json:"throughput_msgs_sec"`   // based on consumed count
	Stats               *boundedqueue.Stats `json:"stats,omitempty"`
	Timestamp           int64               `json:"timestamp"`
	GoVersion           string              `json:"go_version"`
}

// TransferRecord holds the outcome of one writer/reader transfer run.
type TransferRecord struct {
	Implementation string  `json:"implementation"`
	Capacity       uint64  `json:"capacity"`
	NumProducers   int     `json:"num_producers"`
	NumConsumers   int     `json:"num_consumers"`
	Items          int     `json:"items"`
	Elapsed        string  `json:"elapsed"`
	NsPerItem      float64 `json:"ns_per_item"`
	Verified       bool    `json:"verified"`
	Error          string  `json:"error,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete test session.
type FullReport struct {
	RunID       string            `json:"run_id"`
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks,omitempty"`
	Transfers   []TransferRecord  `json:"transfers,omitempty"`
}

type benchQueue = queue.BlockingQueue[int]

// Implementation describes one queue under test.
type Implementation struct {
	name        string
	description string
	pkgName     string
	features    []string
	newQueue    func(capacity uint64) (benchQueue, error)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	defaults := config.FromEnv(config.Default())

	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	testIterations := fs.Int("iter", defaults.Iterations, "Number of test iterations per concurrency setting")
	cpuMaxFlag := fs.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	capacity := fs.Uint64("capacity", defaults.Capacity, "Queue capacity")
	duration := fs.Duration("duration", defaults.Duration, "Length of each timed run")
	jsonExport := fs.Bool("json", false, "Append results as JSON to -jsonfile")
	jsonFile := fs.String("jsonfile", "test-results.json", "Path to the JSON results file")
	highConcurrency := fs.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownTable := fs.Bool("markdown-table", false, "Output markdown table from -jsonfile and exit")
	progressFlag := fs.Bool("progress", false, "Display a progress bar with ETA")
	transfer := fs.Bool("transfer", false, "Run the writer/reader transfer check instead of timed runs")
	producers := fs.Int("producers", defaults.NumProducers, "Writers for -transfer")
	consumers := fs.Int("consumers", defaults.NumConsumers, "Readers for -transfer")
	items := fs.Int("items", defaults.TotalItems, "Distinct integers moved by -transfer")
	verbose := fs.Bool("v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if *markdownTable {
		return outputMarkdownTable(stdout, *jsonFile)
	}

	cfg := config.Config{
		Capacity:     *capacity,
		NumProducers: *producers,
		NumConsumers: *consumers,
		TotalItems:   *items,
		Duration:     *duration,
		Iterations:   *testIterations,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	impls := getImplementations(logger)
	var report FullReport
	if *transfer {
		report = runTransfers(stdout, logger, impls, cfg)
	} else {
		report = runBenchmarks(stdout, logger, impls, cfg, *cpuMaxFlag, *highConcurrency, *progressFlag, stderr)
	}

	if *jsonExport {
		if err := appendReport(*jsonFile, report); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nWrote results to %s\n", *jsonFile)
	}

	for _, tr := range report.Transfers {
		if !tr.Verified {
			return errors.New("transfer verification failed")
		}
	}
	return nil
}

func newReport(sysInfo SystemInfo) FullReport {
	return FullReport{
		RunID:       uuid.NewString(),
		SessionTime: time.Now().Format(time.RFC3339),
		SystemInfo:  sysInfo,
	}
}

// runTransfers pushes cfg.TotalItems distinct integers through each
// implementation and checks that exactly those integers come out.
func runTransfers(stdout io.Writer, logger *slog.Logger, impls []Implementation, cfg config.Config) FullReport {
	report := newReport(gatherSystemInfo(logger))
	fmt.Fprintf(stdout, "Transfer: %d items, capacity=%d, writers=%d, readers=%d\n",
		cfg.TotalItems, cfg.Capacity, cfg.NumProducers, cfg.NumConsumers)

	for _, impl := range impls {
		rec := TransferRecord{
			Implementation: impl.name,
			Capacity:       cfg.Capacity,
			NumProducers:   cfg.NumProducers,
			NumConsumers:   cfg.NumConsumers,
			Items:          cfg.TotalItems,
		}
		q, err := impl.newQueue(cfg.Capacity)
		if err == nil {
			var res testbench.TransferResult
			res, err = testbench.RunTransfer(q, cfg.Concurrency(), cfg.TotalItems)
			if err == nil {
				rec.Elapsed = res.Elapsed.String()
				rec.NsPerItem = float64(res.Elapsed.Nanoseconds()) / float64(cfg.TotalItems)
				err = testbench.VerifyTransfer(res.Received, cfg.TotalItems)
			}
			logger.Debug("transfer finished", "impl", impl.name, "queue_size", q.Size())
		}
		if err != nil {
			rec.Error = err.Error()
			logger.Error("transfer failed", "impl", impl.name, "err", err)
		} else {
			rec.Verified = true
		}
		fmt.Fprintf(stdout, "    %-26s verified=%-5t took=%-12s %.0f ns/item\n",
			impl.name, rec.Verified, rec.Elapsed, rec.NsPerItem)
		report.Transfers = append(report.Transfers, rec)
	}
	return report
}

func runBenchmarks(
	stdout io.Writer,
	logger *slog.Logger,
	impls []Implementation,
	cfg config.Config,
	cpuMax int,
	highConcurrency bool,
	showProgress bool,
	progressOut io.Writer,
) FullReport {
	trueCPUCount := runtime.NumCPU()
	var cpuSettings []int
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}
	if cpuMax > 0 {
		cpuSettings = []int{min(cpuMax, trueCPUCount)}
	} else {
		for _, v := range commonCPUs {
			if v <= trueCPUCount {
				cpuSettings = append(cpuSettings, v)
			}
		}
	}

	concurrencyConfigs := []testbench.Config{
		{NumProducers: 1, NumConsumers: 1},
		{NumProducers: 2, NumConsumers: 2},
		{NumProducers: 10, NumConsumers: 10},
		{NumProducers: 50, NumConsumers: 50},
	}
	if highConcurrency {
		concurrencyConfigs = append(concurrencyConfigs,
			testbench.Config{NumProducers: 100, NumConsumers: 100},
			testbench.Config{NumProducers: 250, NumConsumers: 250},
			testbench.Config{NumProducers: 500, NumConsumers: 500},
		)
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		total := len(cpuSettings) * len(concurrencyConfigs) * cfg.Iterations * len(impls)
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("benchmarking"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	sysInfo := gatherSystemInfo(logger)
	sysInfo.TrueCPU = trueCPUCount
	report := newReport(sysInfo)
	previousProcs := runtime.GOMAXPROCS(0)
	defer runtime.GOMAXPROCS(previousProcs)

	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		report.SystemInfo.SimulatedCPUCount = max(report.SystemInfo.SimulatedCPUCount, cpus)

		fmt.Fprintf(stdout, "\n=============================\n")
		fmt.Fprintf(stdout, "GOMAXPROCS = %d\n", cpus)
		fmt.Fprintf(stdout, "=============================\n")

		for _, cc := range concurrencyConfigs {
			fmt.Fprintf(stdout, "  [Concurrency: producers=%d, consumers=%d]\n", cc.NumProducers, cc.NumConsumers)
			for iteration := 1; iteration <= cfg.Iterations; iteration++ {
				fmt.Fprintf(stdout, "    iteration %d/%d\n", iteration, cfg.Iterations)
				for _, impl := range impls {
					runtime.GC()
					q, err := impl.newQueue(cfg.Capacity)
					if err != nil {
						logger.Error("cannot construct queue", "impl", impl.name, "err", err)
						continue
					}

					produced, consumed, actualTime := testbench.RunTimedTest(
						q, cc, cfg.Duration, func(i int) int { return i },
					)
					throughput := float64(consumed) / actualTime.Seconds()

					fmt.Fprintf(stdout, "    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, produced, consumed, throughput, actualTime)

					result := BenchmarkResult{
						Implementation:      impl.name,
						Capacity:            cfg.Capacity,
						GoMaxProcs:          cpus,
						NumProducers:        cc.NumProducers,
						NumConsumers:        cc.NumConsumers,
						NumMessages:         produced,
						NumMessagesConsumed: consumed,
						TestDuration:        cfg.Duration.String(),
						ActualElapsed:       actualTime.String(),
						Throughput:          throughput,
						Timestamp:           time.Now().Unix(),
						GoVersion:           runtime.Version(),
					}
					if s, ok := q.(interface{ Stats() boundedqueue.Stats }); ok {
						st := s.Stats()
						result.Stats = &st
					}
					report.Benchmarks = append(report.Benchmarks, result)

					if bar != nil {
						_ = bar.Add(1)
					}
				}
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return report
}

// appendReport appends report to the JSON array stored in filename,
// creating the file if needed.
func appendReport(filename string, report FullReport) error {
	var previous []FullReport
	data, err := os.ReadFile(filename)
	switch {
	case err == nil && len(data) > 0:
		if err := json.Unmarshal(data, &previous); err != nil {
			return fmt.Errorf("parse %s: %w", filename, err)
		}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("read %s: %w", filename, err)
	}

	out, err := json.MarshalIndent(append(previous, report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// outputMarkdownTable renders the last session in jsonFile as Markdown.
func outputMarkdownTable(w io.Writer, jsonFile string) error {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", jsonFile, err)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("parse %s: %w", jsonFile, err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions found in %s", jsonFile)
	}
	last := sessions[len(sessions)-1]

	meta := make(map[string]Implementation)
	for _, impl := range getImplementations(nil) {
		meta[impl.name] = impl
	}

	if len(last.Benchmarks) > 0 {
		best := make(map[string]float64)
		for _, b := range last.Benchmarks {
			best[b.Implementation] = max(best[b.Implementation], b.Throughput)
		}
		names := make([]string, 0, len(best))
		for name := range best {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return best[names[i]] > best[names[j]] })

		fmt.Fprintln(w, "## Last Session Benchmark Summary")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Implementation             | Package         | Features                    | Peak Throughput (msgs/sec) |")
		fmt.Fprintln(w, "|----------------------------|-----------------|-----------------------------|----------------------------|")
		for _, name := range names {
			m := meta[name]
			fmt.Fprintf(w, "| %-26s | %-15s | %-27s | %26.0f |\n",
				name, m.pkgName, strings.Join(m.features, ", "), best[name])
		}
	}

	if len(last.Transfers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "## Last Session Transfer Check")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "| Implementation             | Items   | Writers | Readers | Elapsed      | Verified |")
		fmt.Fprintln(w, "|----------------------------|---------|---------|---------|--------------|----------|")
		for _, t := range last.Transfers {
			fmt.Fprintf(w, "| %-26s | %7d | %7d | %7d | %-12s | %-8t |\n",
				t.Implementation, t.Items, t.NumProducers, t.NumConsumers, t.Elapsed, t.Verified)
		}
	}
	return nil
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo(logger *slog.Logger) SystemInfo {
	info := SystemInfo{
		NumCPU: runtime.NumCPU(),
		GOARCH: runtime.GOARCH,
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUSpeedMHz = infos[0].Mhz
	} else if logger != nil {
		logger.Debug("cpu info unavailable", "err", err)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
	} else if logger != nil {
		logger.Debug("memory info unavailable", "err", err)
	}
	return info
}

// getImplementations enumerates the queues under test. logger, if non-nil,
// is handed to implementations that accept one.
func getImplementations(logger *slog.Logger) []Implementation {
	return []Implementation{
		{
			name:        "SplitLockBoundedQueue",
			pkgName:     "boundedqueue",
			description: "Circular buffer with separate insertion and removal locks and an atomic occupancy counter.",
			features:    []string{"MPMC", "FIFO", "Blocking", "Fine-Grained-Locks"},
			newQueue: func(capacity uint64) (benchQueue, error) {
				return boundedqueue.New[int](capacity, boundedqueue.WithLogger(logger))
			},
		},
		{
			name:        "CoarseLockQueue",
			pkgName:     "coarsequeue",
			description: "The same circular buffer behind a single mutex.",
			features:    []string{"MPMC", "FIFO", "Blocking"},
			newQueue: func(capacity uint64) (benchQueue, error) {
				return coarsequeue.New[int](capacity)
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "buffered",
			description: "A buffered channel; the runtime's own bounded MPMC queue.",
			features:    []string{"MPMC", "FIFO", "Blocking"},
			newQueue: func(capacity uint64) (benchQueue, error) {
				return buffered.New[int](capacity), nil
			},
		},
	}
}
