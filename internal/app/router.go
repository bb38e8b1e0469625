package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accounts/internal/observability"
	"github.com/odyssey-erp/accounts/internal/platform/httpx"
	"github.com/odyssey-erp/accounts/internal/users"
	"github.com/odyssey-erp/accounts/jobs"
)

const healthTimeout = 2 * time.Second

// HealthChecker reports store liveness for /healthz.
type HealthChecker interface {
	State() users.State
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Health       HealthChecker
	UsersHandler *users.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// NewRouter constructs the chi.Router with accounts defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Health))

	if params.UsersHandler != nil {
		r.Route("/api/users", params.UsersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		state := checker.State()
		resp := healthResponse{Status: "ok", Store: state.String()}
		if state != users.StateConnected {
			resp.Status = "unavailable"
			httpx.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := checker.Ping(ctx); err != nil {
			resp.Status = "degraded"
			httpx.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		httpx.JSON(w, http.StatusOK, resp)
	}
}
