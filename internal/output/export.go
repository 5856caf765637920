package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
)

// Format represents the output format type
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// RunRecord is the exported form of one function call
type RunRecord struct {
	Function    string  `json:"function"`
	OperationID string  `json:"operation_id"`
	StatusCode  int     `json:"status_code,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	DurationMS  float64 `json:"duration_ms"`
	Content     any     `json:"content,omitempty"`
	Body        string  `json:"body,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// NewRunRecord converts a call outcome. Either result or err is set; a
// remote operation error still carries the status code and body.
func NewRunRecord(function string, result *models.RunnerResult, err error) RunRecord {
	rec := RunRecord{Function: function}
	if result != nil {
		rec.OperationID = result.OperationID
		rec.StatusCode = result.StatusCode
		rec.ContentType = result.ContentType
		rec.DurationMS = millis(result.Duration)
		rec.Content = result.Content
		// Decoded content already carries JSON bodies
		if result.Content == nil {
			rec.Body = result.Text()
		}
	}
	if err != nil {
		rec.Error = err.Error()
		var remote *errs.RemoteOperationError
		if errors.As(err, &remote) {
			rec.OperationID = remote.OperationID
			rec.StatusCode = remote.StatusCode
			rec.Body = string(remote.Body)
		}
	}
	return rec
}

// ExportRunRecords exports call outcomes to filePath, or stdout when empty
func ExportRunRecords(records []RunRecord, format Format, filePath string) error {
	return export(filePath, func(w io.Writer) error {
		return WriteRunRecords(w, records, format)
	})
}

// WriteRunRecords writes call outcomes in the given format
func WriteRunRecords(w io.Writer, records []RunRecord, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatCSV:
		return writeRunCSV(w, records)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// ExportBenchmarkSummary exports benchmark results to filePath, or stdout when empty
func ExportBenchmarkSummary(summary models.BenchmarkSummary, format Format, filePath string) error {
	return export(filePath, func(w io.Writer) error {
		return WriteBenchmarkSummary(w, summary, format)
	})
}

// WriteBenchmarkSummary writes benchmark results in the given format
func WriteBenchmarkSummary(w io.Writer, summary models.BenchmarkSummary, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, summary)
	case FormatCSV:
		return writeBenchmarkCSV(w, summary)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func export(filePath string, write func(io.Writer) error) error {
	w, closer, err := getWriter(filePath)
	if err != nil {
		return err
	}
	if closer == nil {
		return write(w)
	}

	if err := write(w); err != nil {
		closer.Close()
		return err
	}
	return closer.Close()
}

// getWriter returns an io.Writer for output (stdout or file)
func getWriter(filePath string) (io.Writer, io.Closer, error) {
	if filePath == "" {
		return os.Stdout, nil, nil
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeRunCSV writes one row per call. Content is flattened to compact JSON.
func writeRunCSV(w io.Writer, records []RunRecord) error {
	cw := csv.NewWriter(w)

	header := []string{
		"function", "operation_id", "status_code", "content_type",
		"duration_ms", "body", "error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		body := r.Body
		if r.Content != nil {
			data, err := json.Marshal(r.Content)
			if err != nil {
				return fmt.Errorf("encode content of %s: %w", r.Function, err)
			}
			body = string(data)
		}
		row := []string{
			r.Function,
			r.OperationID,
			strconv.Itoa(r.StatusCode),
			r.ContentType,
			fmt.Sprintf("%.2f", r.DurationMS),
			body,
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// writeBenchmarkCSV writes one row per benchmarked function
func writeBenchmarkCSV(w io.Writer, summary models.BenchmarkSummary) error {
	cw := csv.NewWriter(w)

	header := []string{
		"function", "method", "path", "operation_id", "iterations", "concurrency",
		"min_ms", "max_ms", "avg_ms", "p50_ms", "p90_ms", "p99_ms",
		"requests_per_sec", "success_count", "error_count", "error_rate", "status_codes",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range summary.Results {
		row := []string{
			r.Function,
			r.Method,
			r.Path,
			r.OperationID,
			strconv.Itoa(r.Iterations),
			strconv.Itoa(r.Concurrency),
			fmt.Sprintf("%.2f", millis(r.MinTime)),
			fmt.Sprintf("%.2f", millis(r.MaxTime)),
			fmt.Sprintf("%.2f", millis(r.AvgTime)),
			fmt.Sprintf("%.2f", millis(r.P50Time)),
			fmt.Sprintf("%.2f", millis(r.P90Time)),
			fmt.Sprintf("%.2f", millis(r.P99Time)),
			fmt.Sprintf("%.2f", r.RequestsPerSec),
			strconv.Itoa(r.SuccessCount),
			strconv.Itoa(r.ErrorCount),
			fmt.Sprintf("%.2f", r.ErrorRate),
			FormatStatusCodes(r.StatusCodes),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatStatusCodes renders a status distribution as "200:5 404:1"
func FormatStatusCodes(codes map[int]int) string {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, code := range keys {
		parts = append(parts, fmt.Sprintf("%d:%d", code, codes[code]))
	}
	return strings.Join(parts, " ")
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// ParseFormat parses a string into a Format, returning error if invalid
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("invalid format '%s': must be 'json' or 'csv'", s)
	}
}
