package rbac

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/contextkeys"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

// Handlers exposes role management over HTTP
type Handlers struct {
	store   *Store
	checker *Checker
	logger  *observability.Logger
}

// NewHandlers creates role management handlers
func NewHandlers(store *Store, checker *Checker, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, logger: logger}
}

// RegisterRoutes mounts role management endpoints on the router.
// Authentication and permission middleware are applied by the caller.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet)
	router.HandleFunc("/roles", h.CreateRole).Methods(http.MethodPost)
	router.HandleFunc("/roles/{id:[0-9]+}", h.GetRole).Methods(http.MethodGet)
	router.HandleFunc("/roles/{id:[0-9]+}", h.UpdateRole).Methods(http.MethodPut)
	router.HandleFunc("/roles/{id:[0-9]+}", h.DeleteRole).Methods(http.MethodDelete)
	router.HandleFunc("/roles/{id:[0-9]+}/assignments", h.AssignRole).Methods(http.MethodPost)
	router.HandleFunc("/roles/{id:[0-9]+}/assignments/{userID:[0-9]+}", h.RevokeRole).Methods(http.MethodDelete)
	router.HandleFunc("/permissions", h.ListPermissions).Methods(http.MethodGet)
}

type roleRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Permissions      []string `json:"permissions"`
	IsAdmin          bool     `json:"is_admin"`
	IsDepartmentLead bool     `json:"is_department_lead"`
}

func (req *roleRequest) parsePermissions(w http.ResponseWriter) ([]Permission, bool) {
	perms := make([]Permission, 0, len(req.Permissions))
	for _, s := range req.Permissions {
		p, err := ParsePermission(s)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return nil, false
		}
		perms = append(perms, p)
	}
	return perms, true
}

// ListRoles returns all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// GetRole returns a single role by ID
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get role")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, role)
}

// CreateRole creates a custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	perms, ok := req.parsePermissions(w)
	if !ok {
		return
	}

	role := &Role{
		Name:             req.Name,
		Description:      req.Description,
		Permissions:      perms,
		IsAdmin:          req.IsAdmin,
		IsDepartmentLead: req.IsDepartmentLead,
	}

	err := h.store.CreateRole(r.Context(), role)
	if errors.Is(err, ErrRoleExists) {
		httputil.WriteValidationError(w, "A role with this name already exists")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"role":  role.Name,
		"actor": contextkeys.GetUserID(r.Context()),
	}).Info("role created")
	httputil.WriteCreated(w, role)
}

// UpdateRole updates a custom role's definition
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}

	perms, ok := req.parsePermissions(w)
	if !ok {
		return
	}

	role := &Role{
		ID:               id,
		Description:      req.Description,
		Permissions:      perms,
		IsAdmin:          req.IsAdmin,
		IsDepartmentLead: req.IsDepartmentLead,
	}

	err := h.store.UpdateRole(r.Context(), role)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
		return
	case errors.Is(err, ErrBuiltInRole):
		httputil.WriteValidationError(w, "built-in roles cannot be modified")
		return
	case err != nil:
		h.logger.WithError(err).Error("failed to update role")
		httputil.WriteInternalError(w)
		return
	}

	// Any user could hold the changed role.
	h.checker.InvalidateAll(r.Context())

	updated, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to reload updated role")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, updated)
}

// DeleteRole removes a custom role and its assignments
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.store.DeleteRole(r.Context(), id)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
		return
	case errors.Is(err, ErrBuiltInRole):
		httputil.WriteValidationError(w, "built-in roles cannot be deleted")
		return
	case err != nil:
		h.logger.WithError(err).Error("failed to delete role")
		httputil.WriteInternalError(w)
		return
	}

	h.checker.InvalidateAll(r.Context())
	httputil.WriteSuccess(w, map[string]string{"message": "role deleted"})
}

type assignRequest struct {
	UserID int64 `json:"user_id"`
}

// AssignRole grants the role to a user
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req assignRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteValidationError(w, "user_id is required")
		return
	}

	var grantedBy *int64
	if actor := contextkeys.GetUserID(r.Context()); actor != "" {
		if actorID, err := strconv.ParseInt(actor, 10, 64); err == nil {
			grantedBy = &actorID
		}
	}

	err := h.store.AssignRole(r.Context(), req.UserID, roleID, grantedBy)
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
		return
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
		return
	case err != nil:
		h.logger.WithError(err).Error("failed to assign role")
		httputil.WriteInternalError(w)
		return
	}

	h.checker.Invalidate(r.Context(), req.UserID)
	httputil.WriteSuccess(w, map[string]string{"message": "role assigned"})
}

// RevokeRole removes the role from a user
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	err := h.store.RevokeRole(r.Context(), userID, roleID)
	switch {
	case errors.Is(err, ErrAssignmentNotFound):
		httputil.WriteNotFound(w, "role assignment not found")
		return
	case err != nil:
		h.logger.WithError(err).Error("failed to revoke role")
		httputil.WriteInternalError(w)
		return
	}

	h.checker.Invalidate(r.Context(), userID)
	httputil.WriteSuccess(w, map[string]string{"message": "role revoked"})
}

// ListPermissions returns the permission catalog as wire-form strings
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms := Catalog()
	strs := make([]string, 0, len(perms))
	for _, p := range perms {
		strs = append(strs, p.String())
	}
	sort.Strings(strs)
	httputil.WriteSuccess(w, strs)
}
