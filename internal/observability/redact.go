package observability

import (
	"encoding/json"
	"strings"
)

// Keys whose values never belong in an API response or a log line. Ingest
// job params may carry clone credentials; history endpoints pass them
// through here first.
var sensitiveKeys = []string{
	"token", "api_key", "apikey", "authorization", "password", "secret", "bearer", "credential",
}

// RedactJSON rewrites a JSON payload with sensitive values masked. Payloads
// that fail to parse are returned untouched.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(redactValue(v))
	if err != nil {
		return raw
	}
	return b
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if isSensitiveKey(k) {
				val[k] = "[REDACTED]"
			} else {
				val[k] = redactValue(vv)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(val[i])
		}
		return val
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}
