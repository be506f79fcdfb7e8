package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for different operations
type TimingStats struct {
	TotalTime        time.Duration
	ModelInitTime    time.Duration
	InputLoadingTime time.Duration
	ForwardPassTime  time.Duration
	// Split inference only.
	HeadTime     time.Duration
	TransferTime time.Duration
	OutputTime   time.Duration
}

func percent(part, whole time.Duration) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, runs int) {
	if !Verbose {
		return
	}
	if runs <= 0 {
		runs = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Forward passes: %d\n", runs)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Model initialization: %v (%.1f%%)\n", stats.ModelInitTime, percent(stats.ModelInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Input loading: %v (%.1f%%)\n", stats.InputLoadingTime, percent(stats.InputLoadingTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Forward pass: %v (%.1f%%)\n", stats.ForwardPassTime, percent(stats.ForwardPassTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Output writing: %v (%.1f%%)\n", stats.OutputTime, percent(stats.OutputTime, stats.TotalTime))
	if stats.TransferTime > 0 {
		fmt.Fprintln(Output, "\nForward pass breakdown:")
		fmt.Fprintf(Output, "  Local head: %v (%.1f%% of forward)\n", stats.HeadTime, percent(stats.HeadTime, stats.ForwardPassTime))
		fmt.Fprintf(Output, "  Remote round trip: %v (%.1f%% of forward)\n", stats.TransferTime, percent(stats.TransferTime, stats.ForwardPassTime))
	}
	fmt.Fprintln(Output, "\nPerformance metrics:")
	fmt.Fprintf(Output, "  Average forward pass time: %v\n", stats.ForwardPassTime/time.Duration(runs))
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
