package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted keeps remote", []string{"10.0.0.0/8"}, "203.0.113.5:4000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.5:4000"},
		{"trusted cidr uses x-real-ip", []string{"10.0.0.0/8"}, "10.1.2.3:4000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "198.51.100.1"},
		{"trusted single address uses first forwarded hop", []string{"127.0.0.1"}, "127.0.0.1:4000",
			map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"}, "198.51.100.7"},
		{"invalid header ignored", []string{"127.0.0.1/32"}, "127.0.0.1:4000",
			map[string]string{"X-Real-IP": "not-an-ip"}, "127.0.0.1:4000"},
		{"invalid trusted entry skipped", []string{"bogus", ""}, "127.0.0.1:4000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "127.0.0.1:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logging.SetupWriter(&buf, "debug", "json")

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/nope", line["path"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, float64(len("missing")), line["bytes"])
}
