package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthOK(t *testing.T) {
	s := NewServer(config.HTTPConfig{}, map[string]Checker{
		"store": CheckFunc(func(context.Context) error { return nil }),
	}, nil)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthResponse{Status: "ok", Checks: map[string]string{"store": "ok"}}, body)
}

func TestHealthReportsFailingCheck(t *testing.T) {
	s := NewServer(config.HTTPConfig{}, map[string]Checker{
		"store":  CheckFunc(func(context.Context) error { return errors.New("connection refused") }),
		"broker": CheckFunc(func(context.Context) error { return nil }),
	}, nil)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "connection refused", body.Checks["store"])
	assert.Equal(t, "ok", body.Checks["broker"])
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.MessagesReceived.WithLabelValues("socket").Inc()

	rec := get(t, NewServer(config.HTTPConfig{}, nil, m.Handler()), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `medsync_importer_messages_received_total{transport="socket"} 1`)

	rec = get(t, NewServer(config.HTTPConfig{}, nil, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(config.HTTPConfig{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
