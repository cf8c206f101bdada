package settings

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
)

// Handlers serves the active site settings
type Handlers struct {
	manager *Manager
}

// NewHandlers creates settings handlers
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// GetSettings returns the current site settings
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.manager.Current())
}

// RegisterPublicRoutes mounts the anonymous settings endpoint
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
}
