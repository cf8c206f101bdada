package departments

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/middleware"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/slug"
)

// Handlers exposes department, staff and academic section management
type Handlers struct {
	store   *Store
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandlers creates department handlers. metrics may be nil.
func NewHandlers(store *Store, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, metrics: metrics, logger: logger}
}

type departmentRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	HeadUserID  *int64 `json:"head_user_id"`
}

// ListDepartments returns all departments
func (h *Handlers) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.store.ListDepartments(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list departments")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, depts)
}

// GetDepartment returns one department with its academic sections
func (h *Handlers) GetDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	dept, err := h.store.GetDepartment(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "department not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get department")
		httputil.WriteInternalError(w)
		return
	}

	sections, err := h.store.ListSections(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to list department sections")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, struct {
		Department
		Sections []AcademicSection `json:"sections"`
	}{Department: *dept, Sections: sections})
}

// CreateDepartment creates a department, deriving the slug from the name
// when absent
func (h *Handlers) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	deptSlug := req.Slug
	if deptSlug == "" {
		deptSlug = slug.Make(req.Name)
	}
	if !slug.Valid.MatchString(deptSlug) {
		httputil.WriteValidationError(w, "slug must contain only lowercase letters, digits and hyphens")
		return
	}

	nameTaken, slugTaken, err := h.store.DepartmentExists(r.Context(), req.Name, deptSlug, 0)
	if err != nil {
		h.logger.WithError(err).Error("failed to check department uniqueness")
		httputil.WriteInternalError(w)
		return
	}
	if nameTaken {
		httputil.WriteValidationError(w, "A department with this name already exists")
		return
	}
	if slugTaken {
		httputil.WriteValidationError(w, "A department with this slug already exists")
		return
	}

	dept := &Department{
		Name:        req.Name,
		Slug:        deptSlug,
		Description: req.Description,
		HeadUserID:  req.HeadUserID,
	}
	if err := h.store.CreateDepartment(r.Context(), dept); err != nil {
		// The uniqueness pre-check races with concurrent creates; the
		// constraint is the backstop.
		if errors.Is(err, ErrNameExists) {
			httputil.WriteValidationError(w, "A department with this name already exists")
			return
		}
		if errors.Is(err, ErrSlugExists) {
			httputil.WriteValidationError(w, "A department with this slug already exists")
			return
		}
		h.logger.WithError(err).Error("failed to create department")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("department", "create")
	httputil.WriteCreated(w, dept)
}

// UpdateDepartment updates a department
func (h *Handlers) UpdateDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req departmentRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	dept, err := h.store.GetDepartment(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "department not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load department")
		httputil.WriteInternalError(w)
		return
	}

	// Department leads may only update their own department.
	if !middleware.CheckDepartmentScope(w, r, &dept.ID) {
		return
	}

	deptSlug := req.Slug
	if deptSlug == "" {
		deptSlug = dept.Slug
	}
	if !slug.Valid.MatchString(deptSlug) {
		httputil.WriteValidationError(w, "slug must contain only lowercase letters, digits and hyphens")
		return
	}

	nameTaken, slugTaken, err := h.store.DepartmentExists(r.Context(), req.Name, deptSlug, id)
	if err != nil {
		h.logger.WithError(err).Error("failed to check department uniqueness")
		httputil.WriteInternalError(w)
		return
	}
	if nameTaken {
		httputil.WriteValidationError(w, "A department with this name already exists")
		return
	}
	if slugTaken {
		httputil.WriteValidationError(w, "A department with this slug already exists")
		return
	}

	dept.Name = req.Name
	dept.Slug = deptSlug
	dept.Description = req.Description
	dept.HeadUserID = req.HeadUserID

	if err := h.store.UpdateDepartment(r.Context(), dept); err != nil {
		h.logger.WithError(err).Error("failed to update department")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("department", "update")
	httputil.WriteSuccess(w, dept)
}

// DeleteDepartment deletes a department unless staff, sections or users
// still reference it. The target comes from the id query parameter.
func (h *Handlers) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseQueryInt64(r, "id", 0)
	if err != nil || id <= 0 {
		httputil.WriteValidationError(w, "id query parameter is required")
		return
	}

	if _, err := h.store.GetDepartment(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "department not found")
			return
		}
		h.logger.WithError(err).Error("failed to load department")
		httputil.WriteInternalError(w)
		return
	}

	deps, err := h.store.CountDependents(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to count department dependents")
		httputil.WriteInternalError(w)
		return
	}
	if deps.Total() > 0 {
		httputil.WriteValidationError(w, dependentsMessage(deps))
		return
	}

	if err := h.store.DeleteDepartment(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "department not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete department")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("department", "delete")
	httputil.WriteSuccess(w, map[string]string{"message": "department deleted"})
}

// dependentsMessage names each nonzero blocking count
func dependentsMessage(deps Dependents) string {
	var parts []string
	if deps.Staff > 0 {
		parts = append(parts, fmt.Sprintf("%d staff member(s)", deps.Staff))
	}
	if deps.Sections > 0 {
		parts = append(parts, fmt.Sprintf("%d academic section(s)", deps.Sections))
	}
	if deps.Users > 0 {
		parts = append(parts, fmt.Sprintf("%d user(s)", deps.Users))
	}
	return "Cannot delete department: it still has " + strings.Join(parts, ", ")
}

type staffRequest struct {
	DepartmentID int64  `json:"department_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Bio          string `json:"bio"`
	PhotoURL     string `json:"photo_url"`
	Status       string `json:"status"`
	DisplayOrder int    `json:"display_order"`
}

func (req *staffRequest) validate() error {
	if req.DepartmentID <= 0 {
		return errors.New("department_id is required")
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return errors.New("first_name and last_name are required")
	}
	if strings.TrimSpace(req.Email) == "" {
		return errors.New("email is required")
	}
	switch StaffStatus(req.Status) {
	case StaffActive, StaffInactive:
	case "":
		req.Status = string(StaffActive)
	default:
		return fmt.Errorf("invalid status %q", req.Status)
	}
	return nil
}

// ListStaff returns staff members visible to the caller: admins see all
// departments, department leads only their own
func (h *Handlers) ListStaff(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "")
		return
	}

	var filter *int64
	subject := identity.Subject()
	switch {
	case subject.IsAdmin():
		deptID, err := httputil.ParseQueryInt64(r, "department_id", 0)
		if err != nil {
			httputil.WriteValidationError(w, "department_id must be an integer")
			return
		}
		if deptID > 0 {
			filter = &deptID
		}
	case subject.IsDepartmentLead() && subject.DepartmentID != nil:
		filter = subject.DepartmentID
	default:
		httputil.WriteForbidden(w, "department access denied")
		return
	}

	staff, err := h.store.ListStaff(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("failed to list staff")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, staff)
}

// CreateStaff adds a staff member to a department the caller can manage
func (h *Handlers) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	if !middleware.CheckDepartmentScope(w, r, &req.DepartmentID) {
		return
	}

	taken, err := h.store.StaffEmailExists(r.Context(), req.Email, 0)
	if err != nil {
		h.logger.WithError(err).Error("failed to check staff email")
		httputil.WriteInternalError(w)
		return
	}
	if taken {
		httputil.WriteValidationError(w, "A staff member with this email already exists")
		return
	}

	staff := &StaffMember{
		DepartmentID: req.DepartmentID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Title:        req.Title,
		Email:        req.Email,
		Phone:        req.Phone,
		Bio:          req.Bio,
		PhotoURL:     req.PhotoURL,
		Status:       StaffStatus(req.Status),
		DisplayOrder: req.DisplayOrder,
	}
	if err := h.store.CreateStaff(r.Context(), staff); err != nil {
		if errors.Is(err, ErrEmailExists) {
			httputil.WriteValidationError(w, "A staff member with this email already exists")
			return
		}
		h.logger.WithError(err).Error("failed to create staff member")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("staff", "create")
	httputil.WriteCreated(w, staff)
}

// UpdateStaff updates a staff member. The scope check covers both the
// member's current department and, on transfer, the destination.
func (h *Handlers) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req staffRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	staff, err := h.store.GetStaff(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "staff member not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load staff member")
		httputil.WriteInternalError(w)
		return
	}

	if !middleware.CheckDepartmentScope(w, r, &staff.DepartmentID) {
		return
	}
	if req.DepartmentID != staff.DepartmentID {
		if !middleware.CheckDepartmentScope(w, r, &req.DepartmentID) {
			return
		}
	}

	taken, err := h.store.StaffEmailExists(r.Context(), req.Email, id)
	if err != nil {
		h.logger.WithError(err).Error("failed to check staff email")
		httputil.WriteInternalError(w)
		return
	}
	if taken {
		httputil.WriteValidationError(w, "A staff member with this email already exists")
		return
	}

	staff.DepartmentID = req.DepartmentID
	staff.FirstName = req.FirstName
	staff.LastName = req.LastName
	staff.Title = req.Title
	staff.Email = req.Email
	staff.Phone = req.Phone
	staff.Bio = req.Bio
	staff.PhotoURL = req.PhotoURL
	staff.Status = StaffStatus(req.Status)
	staff.DisplayOrder = req.DisplayOrder

	if err := h.store.UpdateStaff(r.Context(), staff); err != nil {
		if errors.Is(err, ErrEmailExists) {
			httputil.WriteValidationError(w, "A staff member with this email already exists")
			return
		}
		h.logger.WithError(err).Error("failed to update staff member")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("staff", "update")
	httputil.WriteSuccess(w, staff)
}

// DeleteStaff removes a staff member from a department the caller can
// manage
func (h *Handlers) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	staff, err := h.store.GetStaff(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "staff member not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load staff member")
		httputil.WriteInternalError(w)
		return
	}

	if !middleware.CheckDepartmentScope(w, r, &staff.DepartmentID) {
		return
	}

	if err := h.store.DeleteStaff(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "staff member not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete staff member")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("staff", "delete")
	httputil.WriteSuccess(w, map[string]string{"message": "staff member deleted"})
}

type sectionRequest struct {
	DepartmentID int64  `json:"department_id"`
	Name         string `json:"name"`
	Degree       string `json:"degree"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
}

// CreateSection adds an academic section to a department
func (h *Handlers) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if req.DepartmentID <= 0 {
		httputil.WriteValidationError(w, "department_id is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	section := &AcademicSection{
		DepartmentID: req.DepartmentID,
		Name:         req.Name,
		Degree:       req.Degree,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
	}
	if err := h.store.CreateSection(r.Context(), section); err != nil {
		h.logger.WithError(err).Error("failed to create academic section")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("academic_section", "create")
	httputil.WriteCreated(w, section)
}

// UpdateSection updates an academic section
func (h *Handlers) UpdateSection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req sectionRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.WriteValidationError(w, "name is required")
		return
	}

	section, err := h.store.GetSection(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "academic section not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load academic section")
		httputil.WriteInternalError(w)
		return
	}

	section.Name = req.Name
	section.Degree = req.Degree
	section.Description = req.Description
	section.DisplayOrder = req.DisplayOrder

	if err := h.store.UpdateSection(r.Context(), section); err != nil {
		h.logger.WithError(err).Error("failed to update academic section")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("academic_section", "update")
	httputil.WriteSuccess(w, section)
}

// DeleteSection removes an academic section
func (h *Handlers) DeleteSection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteSection(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "academic section not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete academic section")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("academic_section", "delete")
	httputil.WriteSuccess(w, map[string]string{"message": "academic section deleted"})
}

func (h *Handlers) recordMutation(contentType, operation string) {
	if h.metrics != nil {
		h.metrics.ContentMutationsTotal.WithLabelValues(contentType, operation).Inc()
	}
}

// PublicDepartmentBySlug returns one department with its academic
// sections and staff listing for the public site
func (h *Handlers) PublicDepartmentBySlug(w http.ResponseWriter, r *http.Request) {
	deptSlug := mux.Vars(r)["slug"]

	dept, err := h.store.GetDepartmentBySlug(r.Context(), deptSlug)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "department not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get department")
		httputil.WriteInternalError(w)
		return
	}

	sections, err := h.store.ListSections(r.Context(), dept.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list department sections")
		httputil.WriteInternalError(w)
		return
	}
	staff, err := h.store.ListStaff(r.Context(), &dept.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list department staff")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, struct {
		Department
		Sections []AcademicSection `json:"sections"`
		Staff    []StaffMember     `json:"staff"`
	}{Department: *dept, Sections: sections, Staff: staff})
}

// RegisterRoutes mounts the management endpoints; permission guards are
// applied by the API server when wiring routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/departments", h.ListDepartments).Methods(http.MethodGet)
	router.HandleFunc("/departments", h.CreateDepartment).Methods(http.MethodPost)
	router.HandleFunc("/departments", h.DeleteDepartment).Methods(http.MethodDelete)
	router.HandleFunc("/departments/{id:[0-9]+}", h.GetDepartment).Methods(http.MethodGet)
	router.HandleFunc("/departments/{id:[0-9]+}", h.UpdateDepartment).Methods(http.MethodPut)

	router.HandleFunc("/staff", h.ListStaff).Methods(http.MethodGet)
	router.HandleFunc("/staff", h.CreateStaff).Methods(http.MethodPost)
	router.HandleFunc("/staff/{id:[0-9]+}", h.UpdateStaff).Methods(http.MethodPut)
	router.HandleFunc("/staff/{id:[0-9]+}", h.DeleteStaff).Methods(http.MethodDelete)

	router.HandleFunc("/sections", h.CreateSection).Methods(http.MethodPost)
	router.HandleFunc("/sections/{id:[0-9]+}", h.UpdateSection).Methods(http.MethodPut)
	router.HandleFunc("/sections/{id:[0-9]+}", h.DeleteSection).Methods(http.MethodDelete)
}

// RegisterPublicRoutes mounts the anonymous department directory
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/departments", h.ListDepartments).Methods(http.MethodGet)
	router.HandleFunc("/departments/{slug:[a-z0-9-]+}", h.PublicDepartmentBySlug).Methods(http.MethodGet)
}
