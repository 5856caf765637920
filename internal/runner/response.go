package runner

import (
	"encoding/json"
	"mime"
	"strings"
)

// parseContent decodes a response body according to its Content-Type.
// JSON becomes maps, slices and scalars; text becomes a string; anything
// else, or JSON that fails to decode, yields nil and the raw bytes remain
// available on the result.
func parseContent(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		var out any
		if err := json.Unmarshal(body, &out); err != nil {
			return nil
		}
		return out
	case strings.HasPrefix(mt, "text/"), mt == "application/xml", strings.HasSuffix(mt, "+xml"):
		return string(body)
	}
	return nil
}
