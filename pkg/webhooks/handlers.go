package webhooks

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

// eventName is "<content type>.<operation>" or the wildcard
var eventName = regexp.MustCompile(`^[a-z_]+\.[a-z]+$`)

// Handlers exposes the subscription management API
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates webhook handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

type subscriptionRequest struct {
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"is_active"`
}

func (req *subscriptionRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return errors.New("url must be a valid http or https URL")
	}
	if len(req.Events) == 0 {
		req.Events = []string{EventAll}
	}
	for _, event := range req.Events {
		if event != EventAll && !eventName.MatchString(event) {
			return errors.New("invalid event name " + event)
		}
	}
	return nil
}

// CreateSubscription registers a webhook endpoint
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	sub := &Subscription{
		Name:     req.Name,
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		sub.CreatedBy = &identity.UserID
	}

	if err := h.store.Create(r.Context(), sub); err != nil {
		h.logger.WithError(err).Error("failed to create webhook subscription")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteCreated(w, sub)
}

// ListSubscriptions returns every registered webhook
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list webhook subscriptions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, subs)
}

// GetSubscription returns one webhook
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "webhook subscription not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get webhook subscription")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// UpdateSubscriptionActive pauses or resumes deliveries
func (h *Handlers) UpdateSubscriptionActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}

	if err := h.store.SetActive(r.Context(), id, req.IsActive); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "webhook subscription not found")
			return
		}
		h.logger.WithError(err).Error("failed to update webhook subscription")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"id": id, "is_active": req.IsActive})
}

// DeleteSubscription removes a webhook
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "webhook subscription not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete webhook subscription")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "webhook subscription deleted"})
}

// RegisterRoutes mounts the subscription endpoints; access is restricted
// to administrators by the API server's guard table.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.ListSubscriptions).Methods(http.MethodGet)
	router.HandleFunc("/webhooks", h.CreateSubscription).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/{id:[0-9]+}", h.GetSubscription).Methods(http.MethodGet)
	router.HandleFunc("/webhooks/{id:[0-9]+}", h.UpdateSubscriptionActive).Methods(http.MethodPut)
	router.HandleFunc("/webhooks/{id:[0-9]+}", h.DeleteSubscription).Methods(http.MethodDelete)
}
