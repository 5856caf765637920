package models

import "time"

// BenchmarkResult holds the measurements for one benchmarked function
type BenchmarkResult struct {
	Function    string `json:"function"`
	OperationID string `json:"operation_id"`
	Method      string `json:"method"`
	Path        string `json:"path"`

	Iterations  int `json:"iterations"`
	Concurrency int `json:"concurrency"`
	WarmupRuns  int `json:"warmup_runs"`

	// Timings cover successful calls only
	MinTime time.Duration `json:"min_time_ns"`
	MaxTime time.Duration `json:"max_time_ns"`
	AvgTime time.Duration `json:"avg_time_ns"`
	P50Time time.Duration `json:"p50_time_ns"`
	P90Time time.Duration `json:"p90_time_ns"`
	P99Time time.Duration `json:"p99_time_ns"`

	RequestsPerSec float64       `json:"requests_per_sec"`
	TotalDuration  time.Duration `json:"total_duration_ns"`

	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`

	// StatusCodes counts responses by HTTP status, including non-2xx
	// responses reported as remote operation errors
	StatusCodes map[int]int `json:"status_codes"`
	// ErrorKinds counts failures by class: transport, remote, auth,
	// validation, other
	ErrorKinds map[string]int `json:"error_kinds,omitempty"`

	// SampleErrors keeps the first few distinct error messages
	SampleErrors []string `json:"sample_errors,omitempty"`
}

// Attempts is the number of measured calls that produced an outcome
func (r BenchmarkResult) Attempts() int {
	return r.SuccessCount + r.ErrorCount
}

// BenchmarkSummary aggregates the results of a benchmark run
type BenchmarkSummary struct {
	TotalFunctions int `json:"total_functions"`
	Iterations     int `json:"iterations_per_function"`
	Concurrency    int `json:"concurrency"`
	WarmupRuns     int `json:"warmup_runs"`

	OverallMinTime time.Duration `json:"overall_min_time_ns"`
	OverallMaxTime time.Duration `json:"overall_max_time_ns"`
	OverallAvgTime time.Duration `json:"overall_avg_time_ns"`

	TotalRequests     int           `json:"total_requests"`
	TotalSuccesses    int           `json:"total_successes"`
	TotalErrors       int           `json:"total_errors"`
	OverallErrorRate  float64       `json:"overall_error_rate"`
	TotalDuration     time.Duration `json:"total_duration_ns"`
	OverallReqsPerSec float64       `json:"overall_requests_per_sec"`

	Results []BenchmarkResult `json:"results"`
}

// AddResult appends a result and refreshes the aggregates
func (s *BenchmarkSummary) AddResult(result BenchmarkResult) {
	s.Results = append(s.Results, result)
	s.TotalFunctions = len(s.Results)
	s.TotalRequests += result.Attempts()
	s.TotalSuccesses += result.SuccessCount
	s.TotalErrors += result.ErrorCount

	if result.SuccessCount > 0 {
		if s.OverallMinTime == 0 || result.MinTime < s.OverallMinTime {
			s.OverallMinTime = result.MinTime
		}
		if result.MaxTime > s.OverallMaxTime {
			s.OverallMaxTime = result.MaxTime
		}
	}

	if s.TotalRequests > 0 {
		s.OverallErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests) * 100
	}

	// Average weighted by successful calls, the population AvgTime is taken over
	var weighted time.Duration
	var successes int
	for _, r := range s.Results {
		weighted += r.AvgTime * time.Duration(r.SuccessCount)
		successes += r.SuccessCount
	}
	if successes > 0 {
		s.OverallAvgTime = weighted / time.Duration(successes)
	}
}

// Finalize records the wall clock duration of the run
func (s *BenchmarkSummary) Finalize(totalDuration time.Duration) {
	s.TotalDuration = totalDuration
	if totalDuration > 0 {
		s.OverallReqsPerSec = float64(s.TotalRequests) / totalDuration.Seconds()
	}
}
