package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/config"
	"github.com/Suhaibinator/sayhi/pkg/metrics"
	"github.com/Suhaibinator/sayhi/pkg/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type variant struct {
	name  string
	build func(cfg config.Config, state *AppState, t *testing.T, collector *metrics.Collector) http.Handler
}

var variants = []variant{
	{
		name: config.FrameworkRouter,
		build: func(cfg config.Config, state *AppState, t *testing.T, collector *metrics.Collector) http.Handler {
			return NewRouterHandler(cfg, state, zaptest.NewLogger(t), collector)
		},
	},
	{
		name: config.FrameworkChi,
		build: func(cfg config.Config, state *AppState, t *testing.T, collector *metrics.Collector) http.Handler {
			return NewChiHandler(cfg, state, zaptest.NewLogger(t), collector)
		},
	},
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.txt"), []byte("static hello"), 0o644))

	cfg := config.Default()
	cfg.StaticDir = dir
	cfg.Metrics.Enabled = false
	return cfg
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func assertStamped(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, []string{middleware.SayHiAfter}, rr.Header().Values(middleware.SayHiHeader))
}

func assertUnstamped(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	assert.Empty(t, rr.Header().Values(middleware.SayHiHeader))
}

func TestGreet(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			h := v.build(testConfig(t), NewAppState(), t, nil)

			rr := do(h, http.MethodGet, "/hello/test", "")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "Hello test!", rr.Body.String())
			assertStamped(t, rr)
		})
	}
}

func TestCount(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			state := NewAppState()
			h := v.build(testConfig(t), state, t, nil)

			for i := 1; i <= 2; i++ {
				rr := do(h, http.MethodGet, "/count", "")
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, fmt.Sprintf("Hello, count: %d", i), rr.Body.String())
				assertStamped(t, rr)
			}
			assert.Equal(t, uint32(2), state.Count())
		})
	}
}

func TestCreateRecord(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			h := v.build(testConfig(t), NewAppState(), t, nil)

			before := time.Now().UTC().Add(-time.Second)
			rr := do(h, http.MethodPost, "/record/create", `{"name":"test_record"}`)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assertStamped(t, rr)

			var record RecordCreated
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &record))
			assert.Equal(t, uint64(1234), record.ID)
			assert.Equal(t, "test_record", record.Name)
			assert.WithinRange(t, record.TS, before, time.Now().UTC().Add(time.Second))
		})
	}
}

func TestTry(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		resp    string
		stamped bool
	}{
		{name: "success", body: `{"success":true}`, status: http.StatusOK, resp: `{"success":true}`, stamped: true},
		{name: "rejected", body: `{"success":false}`, status: http.StatusBadRequest, resp: "request failed"},
		{name: "malformed", body: `{"success":`, status: http.StatusBadRequest, resp: "Failed to decode request"},
	}

	for _, v := range variants {
		h := v.build(testConfig(t), NewAppState(), t, nil)
		for _, tt := range tests {
			t.Run(v.name+"/"+tt.name, func(t *testing.T) {
				rr := do(h, http.MethodPost, "/try", tt.body)
				assert.Equal(t, tt.status, rr.Code)
				assert.Equal(t, tt.resp, rr.Body.String())
				if tt.stamped {
					assertStamped(t, rr)
				} else {
					assertUnstamped(t, rr)
				}
			})
		}
	}
}

func TestQuery(t *testing.T) {
	tests := []struct {
		target string
		status int
		resp   string
	}{
		{"/query?name=alice", http.StatusOK, `{"name":"alice","page":1,"per_page":10}`},
		{"/query?name=alice&page=3&per_page=50", http.StatusOK, `{"name":"alice","page":3,"per_page":50}`},
		{"/query", http.StatusBadRequest, "name is required"},
		{"/query?name=alice&page=0", http.StatusBadRequest, "page must be at least 1"},
		{"/query?name=alice&per_page=101", http.StatusBadRequest, "per_page must be between 1 and 100"},
		{"/query?name=alice&page=two", http.StatusBadRequest, "Failed to decode request"},
	}

	for _, v := range variants {
		h := v.build(testConfig(t), NewAppState(), t, nil)
		for _, tt := range tests {
			t.Run(v.name+tt.target, func(t *testing.T) {
				rr := do(h, http.MethodGet, tt.target, "")
				assert.Equal(t, tt.status, rr.Code)
				assert.Equal(t, tt.resp, rr.Body.String())
				if tt.status == http.StatusOK {
					assertStamped(t, rr)
				} else {
					assertUnstamped(t, rr)
				}
			})
		}
	}
}

func TestStatic(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			h := v.build(testConfig(t), NewAppState(), t, nil)

			rr := do(h, http.MethodGet, "/static/index.txt", "")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "static hello", rr.Body.String())
			assertStamped(t, rr)

			rr = do(h, http.MethodGet, "/static/missing.txt", "")
			assert.Equal(t, http.StatusNotFound, rr.Code)
			assertUnstamped(t, rr)
		})
	}
}

func TestNotFound(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			h := v.build(testConfig(t), NewAppState(), t, nil)

			rr := do(h, http.MethodGet, "/nope", "")
			assert.Equal(t, http.StatusNotFound, rr.Code)
			assert.Equal(t, "Not Found", rr.Body.String())
			assertUnstamped(t, rr)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Metrics.Enabled = true

			state := NewAppState()
			collector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry())
			require.NoError(t, RegisterStateMetrics(collector, cfg.Metrics.Namespace, state))
			require.NoError(t, RegisterStateMetrics(collector, cfg.Metrics.Namespace, state))

			h := v.build(cfg, state, t, collector)
			do(h, http.MethodGet, "/count", "")
			do(h, http.MethodGet, "/count", "")
			do(h, http.MethodPost, "/try", `{"success":false}`)

			rr := do(h, http.MethodGet, "/metrics", "")
			require.Equal(t, http.StatusOK, rr.Code)
			body := rr.Body.String()
			assert.Contains(t, body, "sayhi_count_total 2")
			assert.Contains(t, body, `sayhi_http_responses_stamped_total{route="/count",stamped="true"} 2`)
			assert.Contains(t, body, `sayhi_http_responses_stamped_total{route="/try",stamped="false"} 1`)
		})
	}
}

func TestHandlersUseClock(t *testing.T) {
	h := NewHandlers(NewAppState(), nil)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	record, err := h.CreateRecord(httptest.NewRequest(http.MethodPost, "/record/create", nil), CreateRecord{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, RecordCreated{ID: 1234, Name: "a", TS: fixed}, record)
}

func TestCORSHeaders(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Server.CORSOrigins = []string{"https://example.com"}
			h := v.build(cfg, NewAppState(), t, nil)

			rr := do(h, http.MethodGet, "/hello/test", "")
			assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
			assertStamped(t, rr)

			for _, target := range []string{"/try", "/record/create"} {
				req := httptest.NewRequest(http.MethodOptions, target, nil)
				req.Header.Set("Origin", "https://example.com")
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
				rr = httptest.NewRecorder()
				h.ServeHTTP(rr, req)

				assert.Equal(t, http.StatusNoContent, rr.Code, target)
				assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"), target)
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost, target)
			}
		})
	}
}
