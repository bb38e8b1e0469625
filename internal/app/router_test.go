package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accounts/internal/observability"
	"github.com/odyssey-erp/accounts/internal/users"
	"github.com/odyssey-erp/accounts/jobs"
)

type stubHealth struct {
	state   users.State
	pingErr error
}

func (s stubHealth) State() users.State         { return s.state }
func (s stubHealth) Ping(context.Context) error { return s.pingErr }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	cases := map[string]struct {
		health HealthChecker
		code   int
		body   string
	}{
		"connected":     {stubHealth{state: users.StateConnected}, http.StatusOK, `"status":"ok"`},
		"ping fails":    {stubHealth{state: users.StateConnected, pingErr: errors.New("down")}, http.StatusServiceUnavailable, `"status":"degraded"`},
		"not connected": {stubHealth{state: users.StateFailed}, http.StatusServiceUnavailable, `"status":"unavailable"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			router := NewRouter(RouterParams{Logger: discardLogger(), Config: &Config{}, Health: tc.health})
			rr := get(t, router, "/healthz")
			assert.Equal(t, tc.code, rr.Code)
			assert.Contains(t, rr.Body.String(), tc.body)
		})
	}
}

func TestRouterMountsMetricsAndJobs(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:     discardLogger(),
		Config:     &Config{},
		Health:     stubHealth{state: users.StateConnected},
		JobHandler: jobs.NewHandler(nil, discardLogger()),
		Metrics:    metrics,
	})

	rr := get(t, router, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	_ = get(t, router, "/healthz")
	rr = get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `accounts_http_requests_total{code="200",route="/healthz"}`), rr.Body.String())
}

func TestRouterWithoutUsersHandlerReturnsNotFound(t *testing.T) {
	router := NewRouter(RouterParams{Logger: discardLogger(), Config: &Config{}})
	rr := get(t, router, "/api/users/")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
