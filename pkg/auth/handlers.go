package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/users"
)

const stateCookieName = "campuscms_auth_state"

// Handlers exposes the sign-in and session endpoints. Either provider may
// be nil when not configured; its endpoints then return 404.
type Handlers struct {
	oidc          *OIDCProvider
	saml          *SAMLProvider
	sessions      *SessionStore
	provisioner   *Provisioner
	secureCookies bool
	postLoginURL  string
	logger        *observability.Logger
}

// NewHandlers creates authentication handlers
func NewHandlers(oidc *OIDCProvider, saml *SAMLProvider, sessions *SessionStore, provisioner *Provisioner, secureCookies bool, postLoginURL string, logger *observability.Logger) *Handlers {
	if postLoginURL == "" {
		postLoginURL = "/"
	}
	return &Handlers{
		oidc:          oidc,
		saml:          saml,
		sessions:      sessions,
		provisioner:   provisioner,
		secureCookies: secureCookies,
		postLoginURL:  postLoginURL,
		logger:        logger,
	}
}

// RegisterRoutes mounts the authentication endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	if h.oidc != nil {
		router.HandleFunc("/auth/login", h.OIDCLogin).Methods(http.MethodGet)
		router.HandleFunc("/auth/callback", h.OIDCCallback).Methods(http.MethodGet)
	}
	if h.saml != nil {
		router.HandleFunc("/auth/saml/login", h.SAMLLogin).Methods(http.MethodGet)
		router.HandleFunc("/auth/saml/acs", h.SAMLAssertion).Methods(http.MethodPost)
		router.HandleFunc("/auth/saml/metadata", h.SAMLMetadata).Methods(http.MethodGet)
	}
	router.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	router.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
}

func (h *Handlers) setStateCookie(w http.ResponseWriter) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	return state
}

func (h *Handlers) checkState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return cookie.Value == r.URL.Query().Get("state")
}

// OIDCLogin starts the OIDC authorization code flow
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	state := h.setStateCookie(w)
	h.oidc.InitiateLogin(w, r, state)
}

// OIDCCallback completes the OIDC flow and opens a session
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if !h.checkState(r) {
		httputil.WriteUnauthorized(w, "invalid login state")
		return
	}

	ext, groups, err := h.oidc.HandleCallback(r.Context(), r)
	if err != nil {
		h.logger.WithError(err).Warn("OIDC callback rejected")
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}

	h.completeSignIn(w, r, *ext, groups)
}

// SAMLLogin starts the SAML flow
func (h *Handlers) SAMLLogin(w http.ResponseWriter, r *http.Request) {
	state := h.setStateCookie(w)
	if err := h.saml.InitiateLogin(w, r, state); err != nil {
		h.logger.WithError(err).Error("failed to initiate SAML login")
		httputil.WriteInternalError(w)
	}
}

// SAMLAssertion consumes the posted SAML assertion and opens a session
func (h *Handlers) SAMLAssertion(w http.ResponseWriter, r *http.Request) {
	ext, groups, err := h.saml.HandleAssertion(r)
	if err != nil {
		h.logger.WithError(err).Warn("SAML assertion rejected")
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}

	h.completeSignIn(w, r, *ext, groups)
}

// SAMLMetadata serves the service provider metadata
func (h *Handlers) SAMLMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.Write(h.saml.Metadata())
}

func (h *Handlers) completeSignIn(w http.ResponseWriter, r *http.Request, ext users.ExternalUser, groups []string) {
	identity, err := h.provisioner.SignIn(r.Context(), ext, groups)
	if err != nil {
		h.logger.WithError(err).WithField("email", ext.Email).Warn("sign-in rejected")
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}

	session, err := h.sessions.Create(r.Context(), identity.UserID, clientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w)
		return
	}

	SetCookie(w, session, h.secureCookies)
	h.logger.WithFields(map[string]interface{}{
		"user_id": identity.UserID,
		"email":   identity.Email,
	}).Info("user signed in")
	http.Redirect(w, r, h.postLoginURL, http.StatusFound)
}

// Logout ends the caller's session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity != nil && identity.SessionID != "" {
		if err := h.sessions.Delete(r.Context(), identity.SessionID); err != nil {
			h.logger.WithError(err).Warn("failed to delete session on logout")
		}
	}
	ClearCookie(w, h.secureCookies)
	httputil.WriteSuccess(w, map[string]string{"message": "signed out"})
}

// Me returns the caller's identity
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "")
		return
	}
	httputil.WriteSuccess(w, identity)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
