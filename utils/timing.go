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

// ExplainStats holds timing information for one explanation run.
type ExplainStats struct {
	TotalTime     time.Duration
	ModelInitTime time.Duration
	ImageLoadTime time.Duration
	MapTime       time.Duration // forward/backward passes + map algebra
	RenderTime    time.Duration
}

// PrintExplainStats prints detailed timing statistics for a run of the given
// number of forward/backward samples. Respects the Verbose flag - does
// nothing if Verbose is false.
func PrintExplainStats(stats *ExplainStats, samples int) {
	if !Verbose {
		return
	}
	if samples < 1 {
		samples = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Samples evaluated: %d (%v per sample)\n", samples, stats.MapTime/time.Duration(samples))
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	fmt.Fprintf(Output, "  Model construction: %v (%.1f%%)\n", stats.ModelInitTime, pct(stats.ModelInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Image loading: %v (%.1f%%)\n", stats.ImageLoadTime, pct(stats.ImageLoadTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Map computation: %v (%.1f%%)\n", stats.MapTime, pct(stats.MapTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Rendering: %v (%.1f%%)\n", stats.RenderTime, pct(stats.RenderTime, stats.TotalTime))
}

func pct(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
