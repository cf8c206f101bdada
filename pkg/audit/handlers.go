package audit

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

// Handlers exposes the audit trail to administrators
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates audit handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// ListEvents returns audit events filtered by query parameters
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, 100, 500)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	filter := Filter{
		Action:       Action(httputil.ParseQueryString(r, "action", "")),
		ResourceType: httputil.ParseQueryString(r, "resource_type", ""),
		Limit:        limit,
		Offset:       offset,
	}
	if actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0); err == nil && actorID > 0 {
		filter.ActorID = &actorID
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteValidationError(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &t
	}

	events, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list audit events")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, events)
}

// RegisterRoutes mounts the audit endpoint; the API server guards it as
// administrator-only
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit", h.ListEvents).Methods(http.MethodGet)
}
