package middleware

import (
	"net/http"
	"strconv"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/contextkeys"
	"github.com/campuscms/campuscms/pkg/observability"
)

// SessionAuth resolves the caller's session into an Identity on the
// request context. Requests without a valid session pass through
// anonymously; enforcement happens in the authorization guards.
type SessionAuth struct {
	sessions    *auth.SessionStore
	provisioner *auth.Provisioner
	logger      *observability.Logger
}

// NewSessionAuth creates the session authentication middleware
func NewSessionAuth(sessions *auth.SessionStore, provisioner *auth.Provisioner, logger *observability.Logger) *SessionAuth {
	return &SessionAuth{sessions: sessions, provisioner: provisioner, logger: logger}
}

// Handler wraps an HTTP handler with session resolution
func (m *SessionAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := m.sessions.Get(r.Context(), token)
		if err != nil {
			// Invalid or expired token behaves as anonymous.
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.provisioner.IdentityForSession(r.Context(), session)
		if err != nil {
			m.logger.WithError(err).WithField("session_id", session.ID).Warn("failed to resolve session identity")
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
