package observability

import (
	"net/http"

	"github.com/gorilla/mux"
)

// routePattern returns the mux route template for the request, falling back
// to the raw path for unrouted requests. Using the template keeps metric
// label cardinality bounded.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
