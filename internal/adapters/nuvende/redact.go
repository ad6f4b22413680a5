package nuvende

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

const redactedValue = "***"

var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"authorization": {},
	"client_secret": {},
	"refresh_token": {},
	"secret":        {},
	"token":         {},
}

func isSensitiveKey(key string) bool {
	_, exists := sensitiveKeys[strings.ToLower(key)]
	return exists
}

// RedactHeaders flattens header into a map with credentials masked.
func RedactHeaders(header http.Header) map[string]string {
	if header == nil {
		return nil
	}
	out := make(map[string]string, len(header))
	for key := range header {
		value := header.Get(key)
		if isSensitiveKey(key) {
			value = redactedValue
		}
		out[key] = value
	}
	return out
}

// RedactBody masks sensitive keys of a JSON body. Non-JSON bodies are
// returned unchanged.
func RedactBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return string(body)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return string(body)
	}
	out, err := json.Marshal(RedactValue(decoded))
	if err != nil {
		return string(body)
	}
	return string(out)
}

// RedactValue returns a copy of a decoded JSON value with sensitive keys masked.
func RedactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			if isSensitiveKey(key) {
				out[key] = redactedValue
				continue
			}
			out[key] = RedactValue(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = RedactValue(value)
		}
		return out
	default:
		return v
	}
}
