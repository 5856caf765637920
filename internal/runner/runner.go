// Package runner executes extracted OpenAPI operations over HTTP.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/moamenhredeen/oasplugin/internal/validator"
)

// Runner turns an operation descriptor plus arguments into one HTTP call.
// It holds no per-call state and is safe for concurrent use.
type Runner struct {
	params    execution.Parameters
	validator *validator.Validator
	logger    *slog.Logger
}

// New creates a runner. params may be nil; the HTTP client is borrowed and
// never closed.
func New(params *execution.Parameters) *Runner {
	p := params.WithDefaults()
	return &Runner{
		params:    p,
		validator: validator.NewValidator(),
		logger:    p.Logger,
	}
}

// Parameters returns the effective parameters, with defaults applied
func (r *Runner) Parameters() execution.Parameters {
	return r.params
}

// RunOperation validates the arguments, builds the request, authenticates
// it and sends it. A non-2xx response is returned as *errs.RemoteOperationError.
// A body for an operation without a request body fails with errs.ErrUnexpectedBody.
func (r *Runner) RunOperation(ctx context.Context, op *models.Operation, args Arguments) (*models.RunnerResult, error) {
	if op == nil {
		return nil, fmt.Errorf("run operation: operation is nil")
	}

	if err := checkRequired(op, args); err != nil {
		return nil, err
	}

	target, err := buildURL(op, args)
	if err != nil {
		return nil, err
	}

	body, contentType, err := r.encodeBody(op, args)
	if err != nil {
		return nil, err
	}

	authHeaders, err := r.authenticate(ctx, op, target)
	if err != nil {
		return nil, err
	}

	req, err := newRequest(op.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("operation %q: create request: %w", op.ID, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.params.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	applyHeaders(req, args)
	for k, v := range authHeaders {
		req.Header.Set(k, v)
	}

	ctx, cancel := context.WithTimeout(ctx, r.params.Timeout)
	defer cancel()
	req = req.WithContext(ctx)

	callID := uuid.NewString()
	logger := r.logger.With("call_id", callID, "operation", op.ID)
	logger.Debug("sending request", "method", op.Method, "url", target)

	start := time.Now()
	resp, err := r.params.HTTPClient.Do(req)
	if err != nil {
		logger.Debug("request failed", "error", err)
		return nil, &errs.TransportError{OperationID: op.ID, Method: op.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, &errs.TransportError{OperationID: op.ID, Method: op.Method, URL: target, Err: fmt.Errorf("read response: %w", err)}
	}
	logger.Debug("received response", "status", resp.StatusCode, "bytes", len(data), "duration", duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.RemoteOperationError{OperationID: op.ID, StatusCode: resp.StatusCode, Body: data}
	}

	respType := resp.Header.Get("Content-Type")
	return &models.RunnerResult{
		OperationID: op.ID,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: respType,
		Body:        data,
		Content:     parseContent(respType, data),
		Duration:    duration,
	}, nil
}

// encodeBody serializes the request body and validates it against the
// schema of the chosen content type unless dynamic payloads are enabled.
func (r *Runner) encodeBody(op *models.Operation, args Arguments) ([]byte, string, error) {
	if args.Body == nil {
		return nil, "", nil
	}
	if op.RequestBody == nil {
		return nil, "", fmt.Errorf("operation %q: %w", op.ID, errs.ErrUnexpectedBody)
	}

	declared, ct, err := selectContentType(op.ID, op.RequestBody, args.ContentType)
	if err != nil {
		return nil, "", err
	}

	if !r.params.EnableDynamicPayload {
		if schema := op.RequestBody.Content[declared]; schema != nil {
			if violations := r.validator.Validate("body", decodeBody(args.Body), schema); len(violations) > 0 {
				return nil, "", &errs.SchemaValidationError{OperationID: op.ID, ContentType: declared, Violations: violations}
			}
		}
	}

	data, header, err := serializers[ct](args.Body)
	if err != nil {
		return nil, "", fmt.Errorf("operation %q: %w", op.ID, err)
	}
	return data, header, nil
}

func (r *Runner) authenticate(ctx context.Context, op *models.Operation, target string) (map[string]string, error) {
	if r.params.AuthCallback == nil {
		return nil, nil
	}
	headers, err := r.params.AuthCallback(ctx, execution.AuthRequest{
		PluginName:  r.params.PluginName,
		AuthConfig:  r.params.AuthConfig,
		OperationID: op.ID,
		Method:      op.Method,
		URL:         target,
	})
	if err != nil {
		return nil, &errs.AuthenticationError{OperationID: op.ID, Err: err}
	}
	return headers, nil
}
