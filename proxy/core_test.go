package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_RedactsSecrets(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"anthropic key", "upstream rejected sk-ant0123456789abcdef", "upstream rejected [redacted]"},
		{"gemini key", "bad key AIzaSyD01234567890123456789012345678", "bad key [redacted]"},
		{"bearer header", "auth header Bearer abc.def.ghi rejected", "auth header [redacted] rejected"},
		{"x-api-key header", "x-api-key: sk-whatever rejected", "[redacted] rejected"},
		{"query param", "call failed at https://host/v1?key=abc123", "call failed at https://host/v1[redacted]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitize(tc.in))
		})
	}
}

func TestSanitize_LeavesOrdinaryTextAlone(t *testing.T) {
	msg := "upstream returned HTTP 503 Service Unavailable"
	assert.Equal(t, msg, sanitize(msg))
}

func TestMetricsStatusClass(t *testing.T) {
	assert.Equal(t, "ok", metricsStatusClass(200))
	assert.Equal(t, "ok", metricsStatusClass(201))
	assert.Equal(t, "ok", metricsStatusClass(299))
	assert.Equal(t, "error", metricsStatusClass(400))
	assert.Equal(t, "error", metricsStatusClass(502))
	assert.Equal(t, "error", metricsStatusClass(199))
}
