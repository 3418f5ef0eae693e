package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/settleflow/settleflow/internal/bills"
	"github.com/settleflow/settleflow/internal/creditnotes"
	"github.com/settleflow/settleflow/internal/observability"
	"github.com/settleflow/settleflow/internal/paysessions"
	"github.com/settleflow/settleflow/internal/schedules"
	"github.com/settleflow/settleflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	BillsHandler       *bills.Handler
	SessionsHandler    *paysessions.Handler
	CreditNotesHandler *creditnotes.Handler
	SchedulesHandler   *schedules.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with settleflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/finance/ap", func(r chi.Router) {
		if params.BillsHandler != nil {
			params.BillsHandler.MountRoutes(r)
		}
		if params.SessionsHandler != nil {
			params.SessionsHandler.MountRoutes(r)
		}
		if params.CreditNotesHandler != nil {
			params.CreditNotesHandler.MountRoutes(r)
		}
		if params.SchedulesHandler != nil {
			params.SchedulesHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
