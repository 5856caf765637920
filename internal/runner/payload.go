package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
)

// ContentType is a request media type the runner knows how to serialize
type ContentType string

const (
	ContentTypeJSON      ContentType = "application/json"
	ContentTypeForm      ContentType = "application/x-www-form-urlencoded"
	ContentTypeText      ContentType = "text/plain"
	ContentTypeMultipart ContentType = "multipart/form-data"
)

// serializer encodes a body and returns the bytes plus the Content-Type header value
type serializer func(body any) ([]byte, string, error)

var serializers = map[ContentType]serializer{
	ContentTypeJSON:      serializeJSON,
	ContentTypeForm:      serializeForm,
	ContentTypeText:      serializeText,
	ContentTypeMultipart: serializeMultipart,
}

// ParseContentType reduces a declared media type to the serializer key,
// dropping parameters and mapping structured "+json" suffixes to JSON.
func ParseContentType(declared string) ContentType {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	}
	if strings.HasSuffix(mt, "+json") {
		return ContentTypeJSON
	}
	return ContentType(mt)
}

// Supported reports whether a serializer is registered for ct
func (ct ContentType) Supported() bool {
	_, ok := serializers[ct]
	return ok
}

// selectContentType returns the first declared content type that has a
// serializer. preferred, when non-empty, must be one of the declared types.
func selectContentType(opID string, rb *models.RequestBody, preferred string) (string, ContentType, error) {
	if preferred != "" {
		for _, declared := range rb.ContentTypes {
			if strings.EqualFold(declared, preferred) && ParseContentType(declared).Supported() {
				return declared, ParseContentType(declared), nil
			}
		}
		return "", "", fmt.Errorf("operation %q: content type %q: %w", opID, preferred, errs.ErrUnsupportedContentType)
	}

	for _, declared := range rb.ContentTypes {
		if ct := ParseContentType(declared); ct.Supported() {
			return declared, ct, nil
		}
	}
	return "", "", fmt.Errorf("operation %q: none of %v: %w", opID, rb.ContentTypes, errs.ErrUnsupportedContentType)
}

func serializeJSON(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, string(ContentTypeJSON), nil
	case []byte:
		if json.Valid(b) {
			return b, string(ContentTypeJSON), nil
		}
	case string:
		// models often hand over a JSON document as a string
		if json.Valid([]byte(b)) {
			return []byte(b), string(ContentTypeJSON), nil
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal json body: %w", err)
	}
	return data, string(ContentTypeJSON), nil
}

func serializeForm(body any) ([]byte, string, error) {
	fields, err := asFields(body)
	if err != nil {
		return nil, "", err
	}
	values := url.Values{}
	for _, key := range sortedKeys(fields) {
		for _, v := range formatValues(fields[key]) {
			values.Add(key, v)
		}
	}
	return []byte(values.Encode()), string(ContentTypeForm), nil
}

func serializeText(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case []byte:
		return b, string(ContentTypeText), nil
	case string:
		return []byte(b), string(ContentTypeText), nil
	default:
		return []byte(formatValue(body)), string(ContentTypeText), nil
	}
}

func serializeMultipart(body any) ([]byte, string, error) {
	fields, err := asFields(body)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, key := range sortedKeys(fields) {
		if data, ok := fields[key].([]byte); ok {
			part, err := w.CreateFormFile(key, key)
			if err != nil {
				return nil, "", fmt.Errorf("create multipart file %s: %w", key, err)
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", fmt.Errorf("write multipart file %s: %w", key, err)
			}
			continue
		}
		for _, v := range formatValues(fields[key]) {
			if err := w.WriteField(key, v); err != nil {
				return nil, "", fmt.Errorf("write multipart field %s: %w", key, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// asFields turns a body into a flat field map for the form encodings
func asFields(body any) (map[string]any, error) {
	switch b := body.(type) {
	case map[string]any:
		return b, nil
	case map[string]string:
		out := make(map[string]any, len(b))
		for k, v := range b {
			out[k] = v
		}
		return out, nil
	case url.Values:
		out := make(map[string]any, len(b))
		for k, v := range b {
			out[k] = v
		}
		return out, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode form body: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("form body must be an object: %w", err)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeBody returns the body in the shape encoding/json produces, for validation
func decodeBody(body any) any {
	var raw []byte
	switch b := body.(type) {
	case json.RawMessage:
		raw = b
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		return body
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return body
	}
	return out
}
