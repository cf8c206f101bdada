package search

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxQueryLength  = 200
)

// Handlers exposes the public search endpoint
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates search handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

type searchResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Search answers GET /search?q=terms over published content
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	terms := strings.TrimSpace(httputil.ParseQueryString(r, "q", ""))
	if terms == "" {
		httputil.WriteValidationError(w, "query parameter q is required")
		return
	}
	if len(terms) > maxQueryLength {
		httputil.WriteValidationError(w, "search query is too long")
		return
	}
	limit, offset, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	results, err := h.store.Query(r.Context(), terms, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("search query failed")
		httputil.WriteInternalError(w)
		return
	}
	if results == nil {
		results = []Result{}
	}
	httputil.WriteSuccess(w, searchResponse{Query: terms, Results: results})
}

// RegisterPublicRoutes mounts the search endpoint on the public site
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/search", h.Search).Methods(http.MethodGet)
}
