package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/moamenhredeen/oasplugin/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const todoSpec = "../../testdata/openapi.yaml"

// recordingDoer captures every request and answers with a canned response
type recordingDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	status   int
	header   http.Header
	body     string
	err      error
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, body)

	if d.err != nil {
		return nil, d.err
	}
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	header := d.header
	if header == nil {
		header = http.Header{"Content-Type": []string{"application/json"}}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(d.body)),
		Request:    req,
	}, nil
}

func (d *recordingDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func todoOperations(t *testing.T, params *execution.Parameters) map[string]*models.Operation {
	t.Helper()
	doc, err := parser.ParseFile(todoSpec)
	require.NoError(t, err)
	ops, err := parser.CreateOperations(doc, params)
	require.NoError(t, err)
	return ops
}

// createTodoServer implements a tiny in-memory todo API
func createTodoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/todos":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "title": "Buy milk", "completed": false}})
		case r.Method == http.MethodPost && r.URL.Path == "/todos":
			var todo map[string]any
			if err := json.NewDecoder(r.Body).Decode(&todo); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			todo["id"] = 2
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(todo)
		case r.Method == http.MethodGet && r.URL.Path == "/todos/1":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "title": "Buy milk", "completed": false})
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/todos/"):
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunOperationMissingPathParameter(t *testing.T) {
	doer := &recordingDoer{}
	params := &execution.Parameters{HTTPClient: doer}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodoById"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer abc123"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingParameter))

	var missing *errs.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "id", missing.Name)
	assert.Equal(t, "path", missing.Location)
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationMissingRequiredHeaderAndBody(t *testing.T) {
	doer := &recordingDoer{}
	params := &execution.Parameters{HTTPClient: doer}
	ops := todoOperations(t, params)
	r := New(params)

	_, err := r.RunOperation(context.Background(), ops["getTodos"], Arguments{})
	var missing *errs.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Authorization", missing.Name)

	_, err = r.RunOperation(context.Background(), ops["addTodo"], Arguments{
		HeaderParams: map[string]any{"Authorization": "Bearer abc123"},
	})
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "body", missing.Name)
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationServerOverride(t *testing.T) {
	doer := &recordingDoer{body: `{"id":1,"title":"Buy milk"}`}
	params := &execution.Parameters{HTTPClient: doer, ServerURLOverride: "http://urloverride.com"}
	ops := todoOperations(t, params)

	result, err := New(params).RunOperation(context.Background(), ops["getTodoById"], Arguments{
		PathParams: map[string]any{"id": 1},
		Headers:    map[string]string{"Authorization": "Bearer abc123"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, doer.calls())
	req := doer.requests[0]
	assert.Equal(t, "urloverride.com", req.URL.Host)
	assert.Equal(t, "/todos/1", req.URL.Path)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
	assert.Equal(t, execution.DefaultUserAgent, req.Header.Get("User-Agent"))

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, map[string]any{"id": 1.0, "title": "Buy milk"}, result.Content)
}

func TestRunOperationAgainstServer(t *testing.T) {
	server := createTodoServer(t)
	params := &execution.Parameters{ServerURLOverride: server.URL, HTTPClient: server.Client()}
	ops := todoOperations(t, params)
	r := New(params)
	auth := map[string]string{"Authorization": "Bearer abc123"}

	result, err := r.RunOperation(context.Background(), ops["getTodos"], Arguments{Headers: auth})
	require.NoError(t, err)
	todos, ok := result.Content.([]any)
	require.True(t, ok)
	assert.Len(t, todos, 1)

	result, err = r.RunOperation(context.Background(), ops["addTodo"], Arguments{
		Headers: auth,
		Body:    map[string]any{"title": "Walk the dog", "completed": false},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "Walk the dog", result.Content.(map[string]any)["title"])

	result, err = r.RunOperation(context.Background(), ops["deleteTodoById"], Arguments{
		Headers:    auth,
		PathParams: map[string]any{"id": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)
	assert.Nil(t, result.Content)
}

func TestRunOperationRemoteError(t *testing.T) {
	doer := &recordingDoer{status: http.StatusBadRequest, body: `{"error":"bad title"}`}
	params := &execution.Parameters{HTTPClient: doer}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodoById"], Arguments{
		PathParams: map[string]any{"id": 1},
		Headers:    map[string]string{"Authorization": "Bearer abc123"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrRemoteOperation))
	var remote *errs.RemoteOperationError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Equal(t, `{"error":"bad title"}`, string(remote.Body))
}

func TestRunOperationTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	doer := &recordingDoer{err: cause}
	params := &execution.Parameters{HTTPClient: doer}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodos"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer abc123"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, errs.ErrRemoteOperation))
}

func TestRunOperationTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	params := &execution.Parameters{
		ServerURLOverride: server.URL,
		HTTPClient:        server.Client(),
		Timeout:           50 * time.Millisecond,
	}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodos"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer abc123"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunOperationAuthCallback(t *testing.T) {
	doer := &recordingDoer{body: `[]`}
	var got execution.AuthRequest
	params := &execution.Parameters{
		HTTPClient: doer,
		PluginName: "todo",
		AuthCallback: func(_ context.Context, req execution.AuthRequest) (map[string]string, error) {
			got = req
			return map[string]string{"Authorization": "Bearer from-callback"}, nil
		},
	}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodos"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer caller"},
	})
	require.NoError(t, err)

	assert.Equal(t, "todo", got.PluginName)
	assert.Equal(t, "getTodos", got.OperationID)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "http://example.com/todos", got.URL)
	assert.Equal(t, "Bearer from-callback", doer.requests[0].Header.Get("Authorization"))
}

func TestRunOperationAuthCallbackError(t *testing.T) {
	doer := &recordingDoer{}
	cause := errors.New("token expired")
	params := &execution.Parameters{
		HTTPClient: doer,
		AuthCallback: func(context.Context, execution.AuthRequest) (map[string]string, error) {
			return nil, cause
		},
	}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["getTodos"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer caller"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationQueryHeaderAndCookie(t *testing.T) {
	doer := &recordingDoer{body: `{}`}
	params := &execution.Parameters{HTTPClient: doer}
	op := &models.Operation{
		ID:        "search",
		Method:    http.MethodGet,
		ServerURL: "http://example.com/api",
		Path:      "/items/{name}",
		Parameters: []*models.Parameter{
			{Name: "name", Location: models.LocationPath, Required: true},
			{Name: "tag", Location: models.LocationQuery},
			{Name: "X-Trace", Location: models.LocationHeader},
			{Name: "session", Location: models.LocationCookie},
		},
	}

	_, err := New(params).RunOperation(context.Background(), op, Arguments{
		PathParams:   map[string]any{"name": "a b/c"},
		QueryParams:  map[string]any{"tag": []string{"x", "y"}, "limit": 10},
		HeaderParams: map[string]any{"X-Trace": "from-param"},
		Headers:      map[string]string{"x-trace": "from-caller"},
		Cookies:      map[string]any{"session": "s1"},
	})
	require.NoError(t, err)

	req := doer.requests[0]
	assert.Equal(t, "/api/items/a%20b%2Fc", req.URL.EscapedPath())
	assert.Equal(t, []string{"x", "y"}, req.URL.Query()["tag"])
	assert.Equal(t, "10", req.URL.Query().Get("limit"))
	assert.Equal(t, "from-caller", req.Header.Get("X-Trace"))

	cookie, err := req.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "s1", cookie.Value)
}

func TestRunOperationUndeclaredPathSegment(t *testing.T) {
	doer := &recordingDoer{}
	op := &models.Operation{ID: "broken", Method: http.MethodGet, ServerURL: "http://example.com", Path: "/things/{thingId}"}

	_, err := New(&execution.Parameters{HTTPClient: doer}).RunOperation(context.Background(), op, Arguments{})

	var missing *errs.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "thingId", missing.Name)
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationSchemaValidation(t *testing.T) {
	doer := &recordingDoer{}
	params := &execution.Parameters{HTTPClient: doer}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["addTodo"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer abc123"},
		Body:    map[string]any{"completed": "no"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSchemaValidation))
	var invalid *errs.SchemaValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "application/json", invalid.ContentType)
	assert.Len(t, invalid.Violations, 2)
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationDynamicPayloadSkipsValidation(t *testing.T) {
	doer := &recordingDoer{status: http.StatusCreated, body: `{}`}
	params := &execution.Parameters{HTTPClient: doer, EnableDynamicPayload: true}
	ops := todoOperations(t, params)

	_, err := New(params).RunOperation(context.Background(), ops["addTodo"], Arguments{
		Headers: map[string]string{"Authorization": "Bearer abc123"},
		Body:    `{"completed":"no"}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"completed":"no"}`, doer.bodies[0])
	assert.Equal(t, "application/json", doer.requests[0].Header.Get("Content-Type"))
}

func TestRunOperationUnsupportedContentType(t *testing.T) {
	doer := &recordingDoer{}
	op := &models.Operation{
		ID:        "upload",
		Method:    http.MethodPost,
		ServerURL: "http://example.com",
		Path:      "/upload",
		RequestBody: &models.RequestBody{
			ContentTypes: []string{"application/octet-stream"},
			Content:      map[string]*models.Schema{"application/octet-stream": nil},
		},
	}

	_, err := New(&execution.Parameters{HTTPClient: doer}).RunOperation(context.Background(), op, Arguments{Body: []byte{1, 2}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnsupportedContentType))
	assert.Equal(t, 0, doer.calls())
}

func TestRunOperationRejectsUnexpectedBody(t *testing.T) {
	server := createTodoServer(t)
	ops := todoOperations(t, &execution.Parameters{ServerURLOverride: server.URL})
	r := New(&execution.Parameters{HTTPClient: server.Client()})

	_, err := r.RunOperation(context.Background(), ops["deleteTodoById"], Arguments{
		PathParams:   map[string]any{"id": 1},
		HeaderParams: map[string]any{"Authorization": "Bearer t"},
		Body:         map[string]any{"title": "dropped"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnexpectedBody))
	assert.Contains(t, err.Error(), "deleteTodoById")

	result, err := r.RunOperation(context.Background(), ops["getTodos"], Arguments{
		HeaderParams: map[string]any{"Authorization": "Bearer t"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestRunOperationFormBody(t *testing.T) {
	doer := &recordingDoer{body: `ok`, header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}}}
	op := &models.Operation{
		ID:        "login",
		Method:    http.MethodPost,
		ServerURL: "http://example.com",
		Path:      "/login",
		RequestBody: &models.RequestBody{
			ContentTypes: []string{"application/xml", "application/x-www-form-urlencoded"},
			Content: map[string]*models.Schema{
				"application/xml":                   nil,
				"application/x-www-form-urlencoded": {Type: []string{"object"}, Required: []string{"user"}},
			},
		},
	}

	result, err := New(&execution.Parameters{HTTPClient: doer}).RunOperation(context.Background(), op, Arguments{
		Body: map[string]any{"user": "ada", "scope": []string{"read", "write"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", doer.requests[0].Header.Get("Content-Type"))
	assert.Equal(t, "scope=read&scope=write&user=ada", doer.bodies[0])
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, "ok", result.Text())
}

func TestRunOperationConcurrentCalls(t *testing.T) {
	server := createTodoServer(t)
	params := &execution.Parameters{ServerURLOverride: server.URL, HTTPClient: server.Client()}
	ops := todoOperations(t, params)
	r := New(params)

	var wg sync.WaitGroup
	failures := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RunOperation(context.Background(), ops["getTodoById"], Arguments{
				PathParams: map[string]any{"id": 1},
				Headers:    map[string]string{"Authorization": "Bearer abc123"},
			})
			if err != nil {
				failures <- err
			}
		}()
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("concurrent call failed: %v", err)
	}
}
