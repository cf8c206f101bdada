package users

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
)

// Handlers exposes user directory management over HTTP
type Handlers struct {
	store     *Store
	rbacStore *rbac.Store
	checker   *rbac.Checker
	logger    *observability.Logger
}

// NewHandlers creates user management handlers
func NewHandlers(store *Store, rbacStore *rbac.Store, checker *rbac.Checker, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, rbacStore: rbacStore, checker: checker, logger: logger}
}

// RegisterRoutes mounts user management endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	router.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/users/{id:[0-9]+}", h.UpdateUser).Methods(http.MethodPut)
}

// userView is a User together with assigned role names
type userView struct {
	User
	Roles []string `json:"roles"`
}

func (h *Handlers) withRoles(r *http.Request, user *User) (*userView, error) {
	subject, err := h.rbacStore.LoadSubject(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(subject.Roles))
	for _, role := range subject.Roles {
		names = append(names, role.Name)
	}
	return &userView{User: *user, Roles: names}, nil
}

// ListUsers returns the user directory page by page
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	list, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list users")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetUser returns a single user with their role names
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get user")
		httputil.WriteInternalError(w)
		return
	}

	view, err := h.withRoles(r, user)
	if err != nil {
		h.logger.WithError(err).Error("failed to load user roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, view)
}

type updateUserRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DepartmentID *int64 `json:"department_id"`
	IsActive     *bool  `json:"is_active"`
}

// UpdateUser changes a user's profile, department assignment and active flag
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}

	user, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load user")
		httputil.WriteInternalError(w)
		return
	}

	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.DepartmentID = req.DepartmentID
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.store.Update(r.Context(), user); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		h.logger.WithError(err).Error("failed to update user")
		httputil.WriteInternalError(w)
		return
	}

	// Department membership feeds access decisions for department leads.
	h.checker.Invalidate(r.Context(), user.ID)
	httputil.WriteSuccess(w, user)
}
