/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/moamenhredeen/oasplugin/internal/benchmarker"
	"github.com/moamenhredeen/oasplugin/internal/generator"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/moamenhredeen/oasplugin/internal/output"
	"github.com/spf13/cobra"
)

var (
	// Benchmark-specific flags
	benchArgs         []string
	benchExample      bool
	benchOutputFormat string
	benchOutputFile   string
	benchFilter       string
	benchTags         []string
	benchPlugin       pluginFlags
)

// benchmarkCmd represents the benchmark command
var benchmarkCmd = &cobra.Command{
	Use:   "benchmark [openapi-spec-file]",
	Short: "Benchmark API performance",
	Long: `Benchmark plugin functions by measuring response times and throughput.

This command calls each function repeatedly through the operation runner and
collects performance metrics including latency percentiles (p50, p90, p99),
requests per second, and error rates by class.

Examples:
  # Basic benchmark with defaults (100 iterations, 1 concurrent)
  oasplugin benchmark openapi.yaml --arg Authorization="Bearer t"

  # High-load benchmark with concurrency
  oasplugin benchmark openapi.yaml -n 1000 -c 10 --filter getTodos

  # Rate-limited benchmark with generated arguments
  oasplugin benchmark openapi.yaml -n 500 --rate 50 --example

  # Export results to JSON
  oasplugin benchmark openapi.yaml -o json --output-file results.json`,
	Args: cobra.ExactArgs(1),
	Run:  runBenchmark,
}

func runBenchmark(cmd *cobra.Command, args []string) {
	// Create benchmark configuration
	config := benchmarker.Config{
		Iterations:       cfg.Benchmark.Iterations,
		Concurrency:      cfg.Benchmark.Concurrency,
		WarmupRuns:       cfg.Benchmark.Warmup,
		RateLimit:        cfg.Benchmark.Rate,
		Timeout:          cfg.Timeout,
		DisableKeepAlive: cfg.Benchmark.NoKeepAlive,
	}

	sharedArgs, err := parseKeyValues(benchArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := cfg.HTTPClient(benchmarker.NewHTTPClient(config))
	_, p, err := benchPlugin.loadPlugin(ctx, args[0], client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plugin: %v\n", err)
		os.Exit(1)
	}

	functions := filterFunctions(p.Functions(), benchFilter, benchTags)
	if len(functions) == 0 {
		fmt.Println("No operations found matching the criteria")
		os.Exit(0)
	}

	gen := generator.NewGenerator()
	targets := make([]benchmarker.Target, 0, len(functions))
	for _, fn := range functions {
		callArgs := maps.Clone(sharedArgs)
		if benchExample {
			if err := fillExamples(fn, callArgs, gen); err != nil {
				fmt.Fprintf(os.Stderr, "Error preparing %s: %v\n", fn.Name(), err)
				os.Exit(1)
			}
		}
		targets = append(targets, benchmarker.Target{Function: fn, Args: callArgs})
	}

	// Create benchmarker
	bench := benchmarker.NewBenchmarker(config)
	config = bench.Config()

	// Print benchmark info
	fmt.Printf("\n%s\n", white("=== Benchmark Configuration ==="))
	fmt.Printf("Functions:   %d\n", len(targets))
	fmt.Printf("Iterations:  %d per function\n", config.Iterations)
	fmt.Printf("Concurrency: %d\n", config.Concurrency)
	fmt.Printf("Warmup:      %d iterations\n", config.WarmupRuns)
	if config.RateLimit > 0 {
		fmt.Printf("Rate Limit:  %.0f req/sec\n", config.RateLimit)
	}
	fmt.Printf("Timeout:     %v\n", config.Timeout)
	fmt.Printf("Keep-Alive:  %v\n", !config.DisableKeepAlive)
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\n\nBenchmark interrupted, generating partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var s *spinner.Spinner
	var phaseStartTime time.Time

	// Create event handler for live output
	onEvent := func(event benchmarker.BenchmarkEvent) {
		prefix := fmt.Sprintf("[%d/%d]", event.Index+1, event.Total)

		switch event.Type {
		case benchmarker.EventWarmupStarting:
			phaseStartTime = time.Now()
			if isTTY {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = fmt.Sprintf(" %s %s - Warming up...", prefix, event.Function)
				s.Start()
			} else {
				fmt.Printf("%s %s - Warming up (%d iterations)...\n", prefix, event.Function, event.MaxIter)
			}

		case benchmarker.EventWarmupProgress:
			if isTTY && s != nil {
				s.Suffix = fmt.Sprintf(" %s %s - Warmup %d/%d", prefix, event.Function, event.Progress, event.MaxIter)
			}

		case benchmarker.EventWarmupCompleted:
			if isTTY && s != nil {
				s.Stop()
			}
			elapsed := time.Since(phaseStartTime)
			fmt.Printf("%s %s Warmup completed in %v\n", prefix, yellow("●"), elapsed.Round(time.Millisecond))

		case benchmarker.EventBenchmarkStarting:
			phaseStartTime = time.Now()
			if isTTY {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = fmt.Sprintf(" %s %s - Benchmarking 0/%d...", prefix, event.Function, event.MaxIter)
				s.Start()
			} else {
				fmt.Printf("%s %s - Running benchmark (%d iterations)...\n", prefix, event.Function, event.MaxIter)
			}

		case benchmarker.EventBenchmarkProgress:
			if isTTY && s != nil {
				avgMs := float64(event.RunningAvg.Microseconds()) / 1000
				s.Suffix = fmt.Sprintf(" %s %s - %d/%d (avg: %.1fms, %.1f req/s, %d errors)",
					prefix, event.Function, event.Progress, event.MaxIter, avgMs, event.RunningReqSec, event.ErrorCount)
			}

		case benchmarker.EventBenchmarkCompleted:
			if isTTY && s != nil {
				s.Stop()
			}
			displayBenchmarkResult(prefix, event.Result, time.Since(phaseStartTime))
		}
	}

	// Run benchmarks
	summary := bench.BenchmarkFunctions(ctx, targets, onEvent)

	// Handle output format
	if benchOutputFormat != "" {
		format, err := output.ParseFormat(benchOutputFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := output.ExportBenchmarkSummary(summary, format, benchOutputFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error exporting results: %v\n", err)
			os.Exit(1)
		}

		// If writing to file, still show summary
		if benchOutputFile != "" {
			fmt.Printf("\nResults exported to: %s\n", benchOutputFile)
			displayBenchmarkSummary(summary)
		}
		return
	}

	displayBenchmarkSummary(summary)
}

func displayBenchmarkResult(prefix string, result *models.BenchmarkResult, elapsed time.Duration) {
	// Status indicator based on error rate
	var status string
	if result.ErrorRate == 0 {
		status = green("✓")
	} else if result.ErrorRate < 5 {
		status = yellow("●")
	} else {
		status = red("✗")
	}

	fmt.Printf("%s %s %s %s %s\n", prefix, status, result.Method, result.Path, result.Function)

	avgMs := float64(result.AvgTime.Microseconds()) / 1000
	p99Ms := float64(result.P99Time.Microseconds()) / 1000
	fmt.Printf("    %s avg: %.2fms | p99: %.2fms | %.1f req/s | errors: %d (%.1f%%)\n",
		cyan("→"),
		avgMs, p99Ms, result.RequestsPerSec,
		result.ErrorCount, result.ErrorRate)

	if !verbose {
		return
	}

	minMs := float64(result.MinTime.Microseconds()) / 1000
	maxMs := float64(result.MaxTime.Microseconds()) / 1000
	p50Ms := float64(result.P50Time.Microseconds()) / 1000
	p90Ms := float64(result.P90Time.Microseconds()) / 1000

	fmt.Printf("    Latency:  min=%.2fms | p50=%.2fms | p90=%.2fms | max=%.2fms\n",
		minMs, p50Ms, p90Ms, maxMs)
	fmt.Printf("    Duration: %v | Success: %d | Errors: %d\n",
		elapsed.Round(time.Millisecond), result.SuccessCount, result.ErrorCount)

	if len(result.StatusCodes) > 0 {
		fmt.Printf("    Status codes: %s\n", output.FormatStatusCodes(result.StatusCodes))
	}
	if len(result.ErrorKinds) > 0 {
		var kinds []string
		for kind, count := range result.ErrorKinds {
			kinds = append(kinds, fmt.Sprintf("%s:%d", kind, count))
		}
		fmt.Printf("    Error kinds: %s\n", strings.Join(kinds, ", "))
	}

	if len(result.SampleErrors) > 0 {
		fmt.Printf("    Sample errors:\n")
		for _, e := range result.SampleErrors {
			fmt.Printf("      - %s\n", red(e))
		}
	}
}

func displayBenchmarkSummary(summary models.BenchmarkSummary) {
	fmt.Println()
	fmt.Printf("%s\n", white("=== Benchmark Summary ==="))
	fmt.Printf("Total Functions:    %d\n", summary.TotalFunctions)
	fmt.Printf("Total Requests:     %d\n", summary.TotalRequests)
	fmt.Printf("Total Duration:     %v\n", summary.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Overall Throughput: %s\n", cyan(fmt.Sprintf("%.1f req/sec", summary.OverallReqsPerSec)))
	fmt.Println()

	// Latency summary
	fmt.Printf("%s\n", white("Latency Overview:"))
	fmt.Printf("  Min: %.2fms\n", float64(summary.OverallMinTime.Microseconds())/1000)
	fmt.Printf("  Avg: %.2fms\n", float64(summary.OverallAvgTime.Microseconds())/1000)
	fmt.Printf("  Max: %.2fms\n", float64(summary.OverallMaxTime.Microseconds())/1000)
	fmt.Println()

	// Error summary
	if summary.TotalErrors > 0 {
		fmt.Printf("%s\n", white("Error Summary:"))
		fmt.Printf("  Total Errors: %s\n", red(summary.TotalErrors))
		fmt.Printf("  Error Rate:   %s\n", red(fmt.Sprintf("%.2f%%", summary.OverallErrorRate)))
		fmt.Println()
	} else {
		fmt.Printf("Errors: %s\n", green("0"))
		fmt.Println()
	}

	// Per-function table (if verbose or few functions)
	if verbose || len(summary.Results) <= 10 {
		fmt.Printf("%s\n", white("Per-Function Results:"))
		fmt.Printf("%-32s %-8s %10s %10s %10s %10s\n",
			"FUNCTION", "METHOD", "AVG(ms)", "P99(ms)", "REQ/S", "ERR%")
		fmt.Println(strings.Repeat("-", 85))

		for _, r := range summary.Results {
			name := r.Function
			if len(name) > 30 {
				name = name[:27] + "..."
			}
			fmt.Printf("%-32s %-8s %10.2f %10.2f %10.1f %10.1f\n",
				name, r.Method,
				float64(r.AvgTime.Microseconds())/1000,
				float64(r.P99Time.Microseconds())/1000,
				r.RequestsPerSec,
				r.ErrorRate)
		}
	}
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	flags := benchmarkCmd.Flags()
	benchPlugin.register(benchmarkCmd)
	flags.StringVar(&benchFilter, "filter", "", "Filter by path pattern, operation ID or function name")
	flags.StringSliceVar(&benchTags, "tags", []string{}, "Filter by OpenAPI tags")
	flags.StringArrayVarP(&benchArgs, "arg", "a", nil, "Argument passed to every function as name=value (repeatable)")
	flags.BoolVar(&benchExample, "example", false, "Generate sample values for missing required arguments")

	// Benchmark-specific flags, bound to the [benchmark] config section
	flags.IntP("iterations", "n", 100, "Number of requests per function")
	flags.IntP("concurrency", "c", 1, "Number of concurrent requests")
	flags.IntP("warmup", "w", 5, "Number of warmup iterations (discarded from stats)")
	flags.Float64P("rate", "r", 0, "Max requests per second (0 = unlimited)")
	flags.Bool("no-keepalive", false, "Disable HTTP connection reuse")
	for key, flag := range map[string]string{
		"benchmark.iterations":   "iterations",
		"benchmark.concurrency":  "concurrency",
		"benchmark.warmup":       "warmup",
		"benchmark.rate":         "rate",
		"benchmark.no_keepalive": "no-keepalive",
	} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}

	// Output flags
	flags.StringVarP(&benchOutputFormat, "output", "o", "", "Output format: json, csv")
	flags.StringVar(&benchOutputFile, "output-file", "", "Write output to file (default: stdout)")
}
