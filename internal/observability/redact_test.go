package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactJSONMasksSensitiveKeys(t *testing.T) {
	in := json.RawMessage(`{"repo":"org/r","github_token":"ghp_abc","nested":{"api_key":"k","ok":1}}`)
	out := RedactJSON(in)

	var v map[string]any
	assert.NoError(t, json.Unmarshal(out, &v))
	assert.Equal(t, "[REDACTED]", v["github_token"])
	assert.Equal(t, "org/r", v["repo"])
	nested := v["nested"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["api_key"])
	assert.Equal(t, float64(1), nested["ok"])
}

func TestRedactJSONPassesThroughBadPayloads(t *testing.T) {
	in := json.RawMessage(`not json`)
	assert.Equal(t, in, RedactJSON(in))
	assert.Empty(t, RedactJSON(nil))
}
