package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/execution"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	todoSpec  = "../../testdata/openapi.yaml"
	vaultSpec = "../../testdata/akv-openapi.yaml"
)

// capturingDoer records requests and answers 200 with an empty JSON object
type capturingDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
}

func (d *capturingDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, body)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Request:    req,
	}, nil
}

func TestFromOpenAPI(t *testing.T) {
	p, err := FromOpenAPI("todo", todoSpec, &execution.Parameters{HTTPClient: &capturingDoer{}})
	require.NoError(t, err)

	assert.Equal(t, "todo", p.Name())
	assert.Equal(t, "API for managing todo lists", p.Description())
	assert.Equal(t, 5, p.Len())

	var names []string
	for _, fn := range p.Functions() {
		names = append(names, fn.Name())
	}
	assert.Equal(t, []string{"addTodo", "deleteTodoById", "getTodoById", "getTodos", "updateTodoById"}, names)

	fn, ok := p.Function("getTodoById")
	require.True(t, ok)
	assert.Equal(t, "todo-getTodoById", fn.FullyQualifiedName())
	assert.Equal(t, "Get a todo by ID", fn.Description())
}

func TestFromOpenAPIInvalidName(t *testing.T) {
	_, err := FromOpenAPI("todo-plugin", todoSpec, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrPlugin))
}

func TestFunctionParametersSchema(t *testing.T) {
	p, err := FromOpenAPI("todo", todoSpec, nil)
	require.NoError(t, err)

	fn, _ := p.Function("updateTodoById")
	schema := fn.Parameters()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"id", "Authorization", "payload"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "completed")

	payload := props["payload"].(map[string]any)
	assert.Equal(t, "object", payload["type"])
	assert.Equal(t, []string{"title"}, payload["required"])

	id := props["id"].(map[string]any)
	assert.Equal(t, "integer", id["type"])
	assert.Equal(t, 1.0, id["minimum"])

	// the schema must be serializable for function calling requests
	_, err = json.Marshal(schema)
	assert.NoError(t, err)
}

func TestFunctionInvoke(t *testing.T) {
	doer := &capturingDoer{}
	p, err := FromOpenAPI("todo", todoSpec, &execution.Parameters{HTTPClient: doer})
	require.NoError(t, err)

	fn, _ := p.Function("updateTodoById")
	result, err := fn.Invoke(context.Background(), map[string]any{
		"id":            3,
		"Authorization": "Bearer abc123",
		"completed":     true,
		"payload":       map[string]any{"title": "Buy milk"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	req := doer.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "http://example.com/todos/3?completed=true", req.URL.String())
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
	assert.JSONEq(t, `{"title":"Buy milk"}`, doer.bodies[0])
}

func TestFunctionInvokeRejectsPayloadWithoutRequestBody(t *testing.T) {
	doer := &capturingDoer{}
	p, err := FromOpenAPI("todo", todoSpec, &execution.Parameters{HTTPClient: doer})
	require.NoError(t, err)

	fn, _ := p.Function("getTodoById")
	_, err = fn.Invoke(context.Background(), map[string]any{
		"id":            1,
		"Authorization": "Bearer abc123",
		PayloadArgument: map[string]any{"title": "ignored"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnexpectedBody))
	assert.Empty(t, doer.requests)
}

func TestFunctionInvokeMissingArgument(t *testing.T) {
	doer := &capturingDoer{}
	p, err := FromOpenAPI("todo", todoSpec, &execution.Parameters{HTTPClient: doer})
	require.NoError(t, err)

	fn, _ := p.Function("getTodoById")
	_, err = fn.Invoke(context.Background(), map[string]any{"Authorization": "Bearer abc123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMissingParameter))
	assert.Empty(t, doer.requests)
}

func TestFunctionInvokeDynamicPayload(t *testing.T) {
	doer := &capturingDoer{}
	p, err := FromOpenAPI("vault", vaultSpec, &execution.Parameters{
		HTTPClient:           doer,
		ServerURLOverride:    "https://override.vault.azure.net",
		EnableDynamicPayload: true,
	})
	require.NoError(t, err)

	fn, _ := p.Function("SetSecret")
	var names []string
	for _, arg := range fn.Arguments() {
		names = append(names, arg.Name)
	}
	assert.Equal(t, []string{"secret_name", "api_version", "value", "enabled"}, names)

	_, err = fn.Invoke(context.Background(), map[string]any{
		"secret_name": "Foo",
		"value":       "Bar",
		"enabled":     true,
	})
	require.NoError(t, err)

	req := doer.requests[0]
	assert.Equal(t, "/secrets/Foo", req.URL.Path)
	assert.Equal(t, "7.0", req.URL.Query().Get("api-version"))
	assert.JSONEq(t, `{"value":"Bar","attributes":{"enabled":true}}`, doer.bodies[0])

	_, err = fn.Invoke(context.Background(), map[string]any{"secret_name": "Foo"})
	var missing *errs.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "value", missing.Name)
}

func TestFunctionInvokeNamespacedPayload(t *testing.T) {
	doer := &capturingDoer{}
	p, err := FromOpenAPI("vault", vaultSpec, &execution.Parameters{
		HTTPClient:               doer,
		EnableDynamicPayload:     true,
		EnablePayloadNamespacing: true,
	})
	require.NoError(t, err)

	fn, _ := p.Function("SetSecret")
	arg := fn.Arguments()[3]
	assert.Equal(t, "attributes.enabled", arg.Name)
	assert.Equal(t, LocationBody, arg.Location)
	assert.False(t, arg.Required)

	_, err = fn.Invoke(context.Background(), map[string]any{
		"secret_name":        "Foo",
		"api_version":        "7.4",
		"value":              "Bar",
		"attributes.enabled": false,
	})
	require.NoError(t, err)
	assert.Equal(t, "7.4", doer.requests[0].URL.Query().Get("api-version"))
	assert.JSONEq(t, `{"value":"Bar","attributes":{"enabled":false}}`, doer.bodies[0])
}

func TestFromOpenAI(t *testing.T) {
	document, err := os.ReadFile(vaultSpec)
	require.NoError(t, err)

	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/openapi.yaml":
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(document)
		default:
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"value":"Bar"}`))
		}
	}))
	defer server.Close()

	manifest := strings.Replace(readFile(t, "../../testdata/akv-openai.json"),
		"https://raw.githubusercontent.com/microsoft/PowerPlatformConnectors/dev/custom-connectors/AzureKeyVault/apiDefinition.swagger.json",
		server.URL+"/openapi.yaml", 1)

	var seen execution.AuthRequest
	p, err := FromOpenAI(context.Background(), "", []byte(manifest), &execution.Parameters{
		HTTPClient:        server.Client(),
		ServerURLOverride: server.URL,
		AuthCallback: func(_ context.Context, req execution.AuthRequest) (map[string]string, error) {
			seen = req
			return map[string]string{"Authorization": "Bearer token"}, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "AzureKeyVault", p.Name())
	assert.Equal(t, "An Azure Key Vault plugin for interacting with secrets.", p.Description())

	fn, ok := p.Function("GetSecret")
	require.True(t, ok)
	result, err := fn.Invoke(context.Background(), map[string]any{"secret_name": "Foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "Bar"}, result.Content)

	require.NotNil(t, seen.AuthConfig)
	assert.Equal(t, "AzureKeyVault", seen.PluginName)
	assert.Equal(t, execution.AuthOAuth, seen.AuthConfig.Type)
	assert.Equal(t, "https://vault.azure.net/.default", seen.AuthConfig.Scope)
	assert.Equal(t, []string{"/openapi.yaml", "/secrets/Foo"}, paths)
}

func TestFunctionArgumentsFromOperation(t *testing.T) {
	op := &models.Operation{
		ID:        "list-items.v2",
		Method:    http.MethodGet,
		ServerURL: "http://example.com",
		Path:      "/items",
		Summary:   "List items",
		Parameters: []*models.Parameter{
			{Name: "page-size", Location: models.LocationQuery, Schema: &models.Schema{Type: []string{"integer"}, Description: "Items per page"}},
		},
	}

	p, err := FromOpenAPI("shop", todoSpec, nil)
	require.NoError(t, err)
	fn := newFunction("shop", op, p.Functions()[0].runner)

	assert.Equal(t, "list_items_v2", fn.Name())
	assert.Equal(t, "List items", fn.Description())
	require.Len(t, fn.Arguments(), 1)
	assert.Equal(t, "page_size", fn.Arguments()[0].Name)
	assert.Equal(t, "Items per page", fn.Arguments()[0].Description)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
