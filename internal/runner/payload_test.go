package runner

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	tests := []struct {
		declared string
		want     ContentType
	}{
		{"application/json", ContentTypeJSON},
		{"application/json; charset=utf-8", ContentTypeJSON},
		{"application/merge-patch+json", ContentTypeJSON},
		{"Application/X-WWW-Form-Urlencoded", ContentTypeForm},
		{"text/plain", ContentTypeText},
		{"multipart/form-data", ContentTypeMultipart},
		{"application/xml", ContentType("application/xml")},
	}
	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseContentType(tt.declared))
		})
	}
}

func TestSelectContentType(t *testing.T) {
	rb := &models.RequestBody{ContentTypes: []string{"application/xml", "text/plain", "application/json"}}

	declared, ct, err := selectContentType("op", rb, "")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", declared)
	assert.Equal(t, ContentTypeText, ct)

	declared, ct, err = selectContentType("op", rb, "application/json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", declared)
	assert.Equal(t, ContentTypeJSON, ct)

	_, _, err = selectContentType("op", rb, "application/xml")
	assert.True(t, errors.Is(err, errs.ErrUnsupportedContentType))
}

func TestSerializeJSON(t *testing.T) {
	data, header, err := serializeJSON(map[string]any{"title": "Buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", header)
	assert.JSONEq(t, `{"title":"Buy milk"}`, string(data))

	data, _, err = serializeJSON(`{"raw":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"raw":true}`, string(data))

	data, _, err = serializeJSON("plain words")
	require.NoError(t, err)
	assert.Equal(t, `"plain words"`, string(data))
}

func TestSerializeText(t *testing.T) {
	data, header, err := serializeText(42)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", header)
	assert.Equal(t, "42", string(data))
}

func TestSerializeFormFromStruct(t *testing.T) {
	type credentials struct {
		User     string `json:"user"`
		Remember bool   `json:"remember"`
	}

	data, _, err := serializeForm(credentials{User: "ada", Remember: true})
	require.NoError(t, err)
	assert.Equal(t, "remember=true&user=ada", string(data))

	_, _, err = serializeForm([]string{"not", "an", "object"})
	assert.Error(t, err)
}

func TestSerializeMultipart(t *testing.T) {
	data, header, err := serializeMultipart(map[string]any{
		"name": "report",
		"file": []byte("hello"),
	})
	require.NoError(t, err)

	mt, params, err := mime.ParseMediaType(header)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mt)

	reader := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	parts := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part)
		require.NoError(t, err)
		parts[part.FormName()] = string(content)
	}

	assert.Equal(t, map[string]string{"name": "report", "file": "hello"}, parts)
}

func TestParseContent(t *testing.T) {
	assert.Equal(t, map[string]any{"a": 1.0}, parseContent("application/json", []byte(`{"a":1}`)))
	assert.Equal(t, "hi", parseContent("text/plain; charset=utf-8", []byte("hi")))
	assert.Nil(t, parseContent("application/octet-stream", []byte{0x1}))
	assert.Nil(t, parseContent("application/json", []byte("not json")))
	assert.Nil(t, parseContent("application/json", nil))
}
