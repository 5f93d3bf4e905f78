package nextcloud

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
)

// MetaData describes where a payload came from.
type MetaData struct {
	URI      string    `json:"Uri"`
	Modified time.Time `json:"Modified"`
}

// Envelope is the single response shape everything in this library decodes
// from. Whatever the server returned (JSON object, JSON array, raw text,
// nothing at all) lands here as a map, plus a MetaData entry recording the
// request URI and the Last-Modified header.
type Envelope map[string]any

// Meta returns the MetaData entry.
func (e Envelope) Meta() MetaData {
	md, _ := Decode[MetaData](e["MetaData"])
	return md
}

// List returns the payload of an array response that was wrapped under the
// "List" key, or nil when the payload was not an array.
func (e Envelope) List() []any {
	items, _ := e["List"].([]any)
	return items
}

// Lookup walks a dotted path ("ocs.data.users") through the payload.
// It returns nil when any segment is missing.
func (e Envelope) Lookup(path string) any {
	return lookupPath(map[string]any(e), path)
}

func lookupPath(m map[string]any, path string) any {
	var cur any = m
	for len(path) > 0 {
		key := path
		if i := indexDot(path); i >= 0 {
			key, path = path[:i], path[i+1:]
		} else {
			path = ""
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func indexDot(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// newEnvelope applies the framing rules to a raw response body:
// an object parses as-is, an array is wrapped as {"List": ...}, other text
// becomes {"content": ...}, and an empty body falls back to the response
// headers so callers never receive nothing. The MetaData entry is merged in
// last so it survives whatever the body contained.
func newEnvelope(uri string, resp *http.Response, body []byte) Envelope {
	env := Envelope{}
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		headers := map[string]any{}
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}
		env["headers"] = headers
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &env); err != nil {
			env = Envelope{"content": string(body)}
		}
	case trimmed[0] == '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			env = Envelope{"content": string(body)}
		} else {
			env["List"] = items
		}
	default:
		env["content"] = string(body)
	}

	md := map[string]any{"Uri": uri}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := dateparse.ParseAny(lm); err == nil {
			md["Modified"] = t
		}
	}
	env["MetaData"] = md
	return env
}

// ocsFailure inspects the ocs meta block. A status of "failure" overrides
// HTTP-level success; the returned message comes from ocs.meta.message when
// present.
func (e Envelope) ocsFailure() (string, bool) {
	status, ok := e.Lookup("ocs.meta.status").(string)
	if !ok || status != "failure" {
		return "", false
	}
	if msg, ok := e.Lookup("ocs.meta.message").(string); ok && msg != "" {
		return msg, true
	}
	return "Failure", true
}
