package audit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/observability"
)

// methodActions maps mutating HTTP methods to audit actions
var methodActions = map[string]Action{
	http.MethodPost:   ActionContentCreate,
	http.MethodPut:    ActionContentUpdate,
	http.MethodDelete: ActionContentDelete,
}

// Middleware records successful mutating requests. Domain handlers that
// log richer events themselves are served by this as a baseline trail.
type Middleware struct {
	store  *Store
	logger *observability.Logger
}

// NewMiddleware creates the audit trail middleware
func NewMiddleware(store *Store, logger *observability.Logger) *Middleware {
	return &Middleware{store: store, logger: logger}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Handler wraps next, recording an event for each mutating request that
// did not fail
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, mutating := methodActions[r.Method]
		if !mutating {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if sw.status >= http.StatusBadRequest {
			return
		}

		event := &Event{
			Action:       action,
			ResourceType: resourceFromPath(r.URL.Path),
			ResourceID:   resourceIDFromPath(r.URL.Path),
			IPAddress:    clientIP(r),
			Detail: map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": sw.status,
			},
		}
		if identity := auth.IdentityFromContext(r.Context()); identity != nil {
			event.ActorID = &identity.UserID
		}

		if err := m.store.Record(r.Context(), event); err != nil {
			// The mutation already succeeded; losing the trail entry is
			// logged, not surfaced.
			m.logger.WithError(err).Warn("failed to record audit event")
		}
	})
}

// resourceFromPath takes the first meaningful path segment:
// /cms/blog/7 -> blog
func resourceFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, segment := range segments {
		if segment == "" || segment == "cms" || segment == "auth" {
			continue
		}
		return segment
	}
	return "unknown"
}

// resourceIDFromPath takes the trailing numeric segment when present
func resourceIDFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if _, err := strconv.ParseInt(segments[i], 10, 64); err == nil {
			return segments[i]
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
