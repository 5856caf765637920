package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/moamenhredeen/oasplugin/internal/models"
)

var unresolvedSegment = regexp.MustCompile(`\{([^{}]+)\}`)

// Arguments are the caller supplied values for one operation call
type Arguments struct {
	PathParams   map[string]any
	QueryParams  map[string]any
	HeaderParams map[string]any
	// Headers are sent verbatim and win over header parameters of the same name.
	Headers map[string]string
	Cookies map[string]any
	// Body is rejected with ErrUnexpectedBody when the operation declares no
	// request body.
	Body any
	// ContentType selects one of the declared request content types. Empty
	// picks the first declared type with a serializer.
	ContentType string
}

// checkRequired reports the first required parameter or body without a value
func checkRequired(op *models.Operation, args Arguments) error {
	for _, p := range op.Parameters {
		if !p.Required {
			continue
		}
		var present bool
		switch p.Location {
		case models.LocationPath:
			present = hasValue(args.PathParams, p.Name)
		case models.LocationQuery:
			present = hasValue(args.QueryParams, p.Name)
		case models.LocationHeader:
			present = hasHeader(args, p.Name)
		case models.LocationCookie:
			present = hasValue(args.Cookies, p.Name)
		}
		if !present {
			return &errs.MissingParameterError{OperationID: op.ID, Name: p.Name, Location: string(p.Location)}
		}
	}

	if op.RequestBody != nil && op.RequestBody.Required && args.Body == nil {
		return &errs.MissingParameterError{OperationID: op.ID, Name: "body", Location: "body"}
	}
	return nil
}

func hasValue(values map[string]any, name string) bool {
	v, ok := values[name]
	return ok && v != nil
}

func hasHeader(args Arguments, name string) bool {
	for k, v := range args.HeaderParams {
		if strings.EqualFold(k, name) && v != nil {
			return true
		}
	}
	for k := range args.Headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// buildURL expands the path template and appends the query string
func buildURL(op *models.Operation, args Arguments) (string, error) {
	path := op.Path
	for _, p := range op.ParametersIn(models.LocationPath) {
		v, ok := args.PathParams[p.Name]
		if !ok || v == nil {
			continue
		}
		path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(formatJoined(v)))
	}
	if m := unresolvedSegment.FindStringSubmatch(path); m != nil {
		return "", &errs.MissingParameterError{OperationID: op.ID, Name: m[1], Location: string(models.LocationPath)}
	}

	u, err := url.Parse(op.ServerURL + path)
	if err != nil {
		return "", fmt.Errorf("operation %q: invalid url %q: %w", op.ID, op.ServerURL+path, err)
	}

	query := u.Query()
	for _, name := range sortedKeys(args.QueryParams) {
		v := args.QueryParams[name]
		if v == nil {
			continue
		}
		for _, s := range formatValues(v) {
			query.Add(name, s)
		}
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// applyHeaders sets header parameters, then caller headers, then cookies
func applyHeaders(req *http.Request, args Arguments) {
	for _, name := range sortedKeys(args.HeaderParams) {
		if v := args.HeaderParams[name]; v != nil {
			req.Header.Set(name, formatJoined(v))
		}
	}
	for name, v := range args.Headers {
		req.Header.Set(name, v)
	}
	for _, name := range sortedKeys(args.Cookies) {
		if v := args.Cookies[name]; v != nil {
			req.AddCookie(&http.Cookie{Name: name, Value: formatJoined(v)})
		}
	}
}

func newRequest(method, target string, body []byte) (*http.Request, error) {
	if body == nil {
		return http.NewRequest(method, target, nil)
	}
	return http.NewRequest(method, target, bytes.NewReader(body))
}

// formatValue renders a scalar parameter value the way it appears on the wire
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// formatValues expands arrays into one string per element, for repeated keys
func formatValues(v any) []string {
	if _, ok := v.([]byte); ok {
		return []string{formatValue(v)}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{formatValue(v)}
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, formatValue(rv.Index(i).Interface()))
	}
	return out
}

// formatJoined renders arrays comma separated, the simple style for path and header values
func formatJoined(v any) string {
	return strings.Join(formatValues(v), ",")
}
