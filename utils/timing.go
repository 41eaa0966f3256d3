package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether run statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where run statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// RunStats holds timing and datapath counters of one run
type RunStats struct {
	TotalTime   time.Duration
	LoadTime    time.Duration
	ComputeTime time.Duration
	VerifyTime  time.Duration
	StoreTime   time.Duration

	Ticks      int64
	MACOps     int64
	Samples    int
	Violations int
	MaxError   float64
}

// PrintRunStats prints run statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintRunStats(label string, stats *RunStats) {
	if !Verbose {
		return
	}
	pct := func(d time.Duration) float64 {
		if stats.TotalTime == 0 {
			return 0
		}
		return float64(d) / float64(stats.TotalTime) * 100
	}
	fmt.Fprintf(Output, "\n=== %s ===\n", label)
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	fmt.Fprintf(Output, "  Load: %v (%.1f%%)\n", stats.LoadTime, pct(stats.LoadTime))
	fmt.Fprintf(Output, "  Compute: %v (%.1f%%)\n", stats.ComputeTime, pct(stats.ComputeTime))
	fmt.Fprintf(Output, "  Verify: %v (%.1f%%)\n", stats.VerifyTime, pct(stats.VerifyTime))
	fmt.Fprintf(Output, "  Store: %v (%.1f%%)\n", stats.StoreTime, pct(stats.StoreTime))
	fmt.Fprintln(Output, "\nDatapath:")
	fmt.Fprintf(Output, "  Ticks: %d\n", stats.Ticks)
	fmt.Fprintf(Output, "  MAC operations: %d\n", stats.MACOps)
	if stats.Samples > 0 {
		fmt.Fprintf(Output, "  Samples: %d\n", stats.Samples)
		fmt.Fprintf(Output, "  Violations: %d\n", stats.Violations)
		fmt.Fprintf(Output, "  Max error: %.3f\n", stats.MaxError)
	}
	if stats.Ticks > 0 && stats.ComputeTime > 0 {
		fmt.Fprintf(Output, "  Simulated ticks per µs: %.2f\n", float64(stats.Ticks)/DurationUS(stats.ComputeTime))
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
