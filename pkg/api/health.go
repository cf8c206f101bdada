package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/observability"
)

// NewHealthHandler builds the handler for the operational port: liveness,
// readiness and the Prometheus scrape endpoint. metrics may be nil.
func NewHealthHandler(checker *observability.HealthChecker, metrics *observability.Metrics) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}
