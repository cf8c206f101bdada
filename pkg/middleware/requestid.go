package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/campuscms/campuscms/pkg/contextkeys"
)

// RequestIDHeader carries the request ID on responses and trusted inbound
// requests
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID, honoring one supplied by an
// upstream proxy
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := contextkeys.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
