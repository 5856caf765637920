package benchmarker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"golang.org/x/time/rate"
)

// EventType represents the type of benchmark event
type EventType int

const (
	// EventWarmupStarting indicates warmup phase is starting for a function
	EventWarmupStarting EventType = iota
	// EventWarmupProgress indicates warmup progress
	EventWarmupProgress
	// EventWarmupCompleted indicates warmup phase completed
	EventWarmupCompleted
	// EventBenchmarkStarting indicates benchmark is starting for a function
	EventBenchmarkStarting
	// EventBenchmarkProgress indicates benchmark progress (periodic updates)
	EventBenchmarkProgress
	// EventBenchmarkCompleted indicates benchmark completed for a function
	EventBenchmarkCompleted
)

// Invoker is a callable operation, usually a *plugin.Function
type Invoker interface {
	FullyQualifiedName() string
	Operation() *models.Operation
	Invoke(ctx context.Context, args map[string]any) (*models.RunnerResult, error)
}

// Target pairs a function with the arguments every iteration is called with
type Target struct {
	Function Invoker
	Args     map[string]any
}

// BenchmarkEvent represents an event during benchmark execution
type BenchmarkEvent struct {
	Type     EventType
	Function string
	Result   *models.BenchmarkResult // nil until completed
	Index    int                     // current target index (0-based)
	Total    int                     // total number of targets
	Progress int                     // current iteration count
	MaxIter  int                     // max iterations for this phase

	// Running stats (for progress events)
	RunningAvg    time.Duration
	RunningReqSec float64
	ErrorCount    int
}

// OnBenchmarkEvent is a callback function for benchmark events
type OnBenchmarkEvent func(event BenchmarkEvent)

// Config holds benchmark configuration
type Config struct {
	Iterations       int           // Number of calls per function
	Concurrency      int           // Number of concurrent workers
	WarmupRuns       int           // Number of warmup iterations (discarded)
	RateLimit        float64       // Max requests per second (0 = unlimited)
	Timeout          time.Duration // Per-request timeout of the HTTP client
	DisableKeepAlive bool          // Disable HTTP connection reuse
}

// DefaultConfig returns default benchmark configuration
func DefaultConfig() Config {
	return Config{
		Iterations:  100,
		Concurrency: 1,
		WarmupRuns:  5,
		Timeout:     30 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.Iterations < 1 {
		c.Iterations = 1
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.WarmupRuns < 0 {
		c.WarmupRuns = 0
	}
	return c
}

// NewHTTPClient builds the client the benchmarked functions should run with.
// The transport keeps one idle connection per worker unless keepalive is off.
func NewHTTPClient(config Config) *http.Client {
	config = config.normalized()
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DisableKeepAlives:   config.DisableKeepAlive,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: config.Concurrency,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// Benchmarker invokes functions repeatedly and collects latency statistics
type Benchmarker struct {
	config  Config
	limiter *rate.Limiter
}

// NewBenchmarker creates a new benchmarker instance
func NewBenchmarker(config Config) *Benchmarker {
	config = config.normalized()

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), max(1, int(config.RateLimit)))
	}

	return &Benchmarker{
		config:  config,
		limiter: limiter,
	}
}

// Config returns the effective configuration
func (b *Benchmarker) Config() Config {
	return b.config
}

// callResult holds the outcome of a single call
type callResult struct {
	Duration   time.Duration
	StatusCode int
	Kind       string
	Error      string
}

// BenchmarkFunction benchmarks a single target
func (b *Benchmarker) BenchmarkFunction(
	ctx context.Context,
	target Target,
	onEvent OnBenchmarkEvent,
	index, total int,
) (models.BenchmarkResult, error) {
	if target.Function == nil {
		return models.BenchmarkResult{}, fmt.Errorf("benchmark: function is nil")
	}

	name := target.Function.FullyQualifiedName()
	result := models.BenchmarkResult{
		Function:    name,
		Iterations:  b.config.Iterations,
		Concurrency: b.config.Concurrency,
		WarmupRuns:  b.config.WarmupRuns,
		StatusCodes: make(map[int]int),
		ErrorKinds:  make(map[string]int),
	}
	if op := target.Function.Operation(); op != nil {
		result.OperationID = op.ID
		result.Method = op.Method
		result.Path = op.Path
	}

	emit := func(ev BenchmarkEvent) {
		if onEvent == nil {
			return
		}
		ev.Function = name
		ev.Index = index
		ev.Total = total
		onEvent(ev)
	}

	// Warmup phase, single-threaded and not measured
	if b.config.WarmupRuns > 0 {
		emit(BenchmarkEvent{Type: EventWarmupStarting, MaxIter: b.config.WarmupRuns})
	}
	for i := 0; i < b.config.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		b.call(ctx, target)

		if (i+1)%max(1, b.config.WarmupRuns/5) == 0 {
			emit(BenchmarkEvent{Type: EventWarmupProgress, Progress: i + 1, MaxIter: b.config.WarmupRuns})
		}
	}
	if b.config.WarmupRuns > 0 {
		emit(BenchmarkEvent{Type: EventWarmupCompleted})
	}

	emit(BenchmarkEvent{Type: EventBenchmarkStarting, MaxIter: b.config.Iterations})

	startTime := time.Now()
	results := b.runConcurrent(ctx, target, emit, startTime)
	result.TotalDuration = time.Since(startTime)

	result = processResults(result, results)

	emit(BenchmarkEvent{Type: EventBenchmarkCompleted, Result: &result})

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// runConcurrent executes the measured iterations with a worker pool. Slots
// that were never run because ctx ended stay nil.
func (b *Benchmarker) runConcurrent(
	ctx context.Context,
	target Target,
	emit func(BenchmarkEvent),
	startTime time.Time,
) []*callResult {
	results := make([]*callResult, b.config.Iterations)
	jobs := make(chan int, b.config.Iterations)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed int
	var totalDuration time.Duration
	var errorCount int

	// ~5% intervals
	progressInterval := max(1, b.config.Iterations/20)

	for w := 0; w < b.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}

				if b.limiter != nil {
					if err := b.limiter.Wait(ctx); err != nil {
						return
					}
				}

				res := b.call(ctx, target)
				results[i] = &res

				mu.Lock()
				completed++
				totalDuration += res.Duration
				if res.Error != "" {
					errorCount++
				}
				ev := BenchmarkEvent{
					Type:       EventBenchmarkProgress,
					Progress:   completed,
					MaxIter:    b.config.Iterations,
					RunningAvg: totalDuration / time.Duration(completed),
					ErrorCount: errorCount,
				}
				mu.Unlock()

				if ev.Progress%progressInterval == 0 {
					if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
						ev.RunningReqSec = float64(ev.Progress) / elapsed
					}
					emit(ev)
				}
			}
		}()
	}

	for i := 0; i < b.config.Iterations; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}

// call invokes the target once and classifies the outcome
func (b *Benchmarker) call(ctx context.Context, target Target) callResult {
	startTime := time.Now()
	res, err := target.Function.Invoke(ctx, target.Args)
	result := callResult{Duration: time.Since(startTime)}

	if err == nil {
		result.StatusCode = res.StatusCode
		return result
	}

	result.Error = err.Error()
	result.Kind = classify(err)
	var remote *errs.RemoteOperationError
	if errors.As(err, &remote) {
		result.StatusCode = remote.StatusCode
	}
	return result
}

func classify(err error) string {
	switch {
	case errors.Is(err, errs.ErrRemoteOperation):
		return "remote"
	case errors.Is(err, errs.ErrTransport):
		return "transport"
	case errors.Is(err, errs.ErrAuthentication):
		return "auth"
	case errors.Is(err, errs.ErrMissingParameter), errors.Is(err, errs.ErrSchemaValidation), errors.Is(err, errs.ErrUnexpectedBody):
		return "validation"
	default:
		return "other"
	}
}

// processResults calculates statistics from raw results
func processResults(result models.BenchmarkResult, raw []*callResult) models.BenchmarkResult {
	var durations []time.Duration
	var totalDuration time.Duration
	seen := make(map[string]bool)

	for _, r := range raw {
		if r == nil {
			continue
		}
		if r.Error != "" {
			result.ErrorCount++
			result.ErrorKinds[r.Kind]++
			if len(result.SampleErrors) < 5 && !seen[r.Error] {
				result.SampleErrors = append(result.SampleErrors, r.Error)
				seen[r.Error] = true
			}
		} else {
			result.SuccessCount++
			durations = append(durations, r.Duration)
			totalDuration += r.Duration
		}

		if r.StatusCode > 0 {
			result.StatusCodes[r.StatusCode]++
		}
	}

	// Timing stats come from successful calls only
	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool {
			return durations[i] < durations[j]
		})

		result.MinTime = durations[0]
		result.MaxTime = durations[len(durations)-1]
		result.AvgTime = totalDuration / time.Duration(len(durations))
		result.P50Time = percentile(durations, 50)
		result.P90Time = percentile(durations, 90)
		result.P99Time = percentile(durations, 99)
	}

	attempts := result.Attempts()
	if result.TotalDuration > 0 {
		result.RequestsPerSec = float64(attempts) / result.TotalDuration.Seconds()
	}
	if attempts > 0 {
		result.ErrorRate = float64(result.ErrorCount) / float64(attempts) * 100
	}

	return result
}

// percentile calculates the p-th percentile from sorted durations
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := float64(len(sorted)-1) * float64(p) / 100.0
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	// Linear interpolation
	weight := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// BenchmarkFunctions benchmarks every target in order with live event reporting
func (b *Benchmarker) BenchmarkFunctions(
	ctx context.Context,
	targets []Target,
	onEvent OnBenchmarkEvent,
) models.BenchmarkSummary {
	summary := models.BenchmarkSummary{
		Iterations:  b.config.Iterations,
		Concurrency: b.config.Concurrency,
		WarmupRuns:  b.config.WarmupRuns,
		Results:     make([]models.BenchmarkResult, 0, len(targets)),
	}

	startTime := time.Now()

	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}

		result, err := b.BenchmarkFunction(ctx, target, onEvent, i, len(targets))
		if err != nil && result.Attempts() == 0 {
			result.SampleErrors = append(result.SampleErrors, err.Error())
			result.ErrorCount = result.Iterations
			result.ErrorRate = 100
		}
		summary.AddResult(result)
	}

	summary.Finalize(time.Since(startTime))
	return summary
}
