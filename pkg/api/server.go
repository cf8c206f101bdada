package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/audit"
	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/content"
	"github.com/campuscms/campuscms/pkg/departments"
	"github.com/campuscms/campuscms/pkg/media"
	"github.com/campuscms/campuscms/pkg/middleware"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
	"github.com/campuscms/campuscms/pkg/search"
	"github.com/campuscms/campuscms/pkg/settings"
	"github.com/campuscms/campuscms/pkg/users"
	"github.com/campuscms/campuscms/pkg/webhooks"
)

// Deps carries everything the server mounts. Auth, Authorizer and the
// core handler sets are required; Metrics, RateLimit, Audit, Media and
// Settings may be nil and their routes or middleware are then skipped.
type Deps struct {
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	SessionAuth *middleware.SessionAuth
	Authorizer  *middleware.Authorizer
	RateLimit   *middleware.RateLimit
	Audit       *audit.Middleware

	Auth        *auth.Handlers
	Departments *departments.Handlers
	Content     *content.Handlers
	Users       *users.Handlers
	Roles       *rbac.Handlers
	Media       *media.Handlers
	AuditLog    *audit.Handlers
	Settings    *settings.Handlers
	Webhooks    *webhooks.Handlers
	Search      *search.Handlers
}

// Server is the application HTTP handler
type Server struct {
	router     *mux.Router
	authorizer *middleware.Authorizer
	guards     map[string]map[string]routeGuard
	logger     *observability.Logger
}

// routeGuard is the access rule for one route and method: either a
// specific permission or administrator standing
type routeGuard struct {
	perm  rbac.Permission
	admin bool
}

// NewServer builds the router, middleware chain and permission guards
func NewServer(deps Deps) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		authorizer: deps.Authorizer,
		guards:     buildGuards(),
		logger:     deps.Logger,
	}
	s.setupMiddleware(deps)
	s.setupRoutes(deps)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer observability.RecoverPanic(s.logger, "http")
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(deps Deps) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(deps.Logger))
	if deps.Metrics != nil {
		s.router.Use(deps.Metrics.HTTPMiddleware)
	}
	if deps.SessionAuth != nil {
		s.router.Use(deps.SessionAuth.Handler)
	}
	if deps.RateLimit != nil {
		s.router.Use(deps.RateLimit.Handler)
	}
	s.router.Use(s.guard)
	// Audit runs innermost so denied requests are never recorded.
	if deps.Audit != nil {
		s.router.Use(deps.Audit.Handler)
	}
}

func (s *Server) setupRoutes(deps Deps) {
	public := s.router.PathPrefix("/public").Subrouter()
	deps.Content.RegisterPublicRoutes(public)
	deps.Departments.RegisterPublicRoutes(public)
	if deps.Settings != nil {
		deps.Settings.RegisterPublicRoutes(public)
	}
	if deps.Search != nil {
		deps.Search.RegisterPublicRoutes(public)
	}

	deps.Auth.RegisterRoutes(s.router)

	cms := s.router.PathPrefix("/cms").Subrouter()
	deps.Content.RegisterRoutes(cms)
	deps.Departments.RegisterRoutes(cms)
	deps.Users.RegisterRoutes(cms)
	deps.Roles.RegisterRoutes(cms)
	if deps.Media != nil {
		deps.Media.RegisterRoutes(cms)
	}
	if deps.AuditLog != nil {
		deps.AuditLog.RegisterRoutes(cms)
	}
	if deps.Webhooks != nil {
		deps.Webhooks.RegisterRoutes(cms)
	}
}

// guard enforces the per-route access rules. Routes without an entry in
// the table (the public site, the auth endpoints) pass through.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}
		template, err := route.GetPathTemplate()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		g, ok := s.guards[template][r.Method]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if g.admin {
			s.authorizer.RequireAdmin()(next).ServeHTTP(w, r)
			return
		}
		s.authorizer.RequirePermission(g.perm)(next).ServeHTTP(w, r)
	})
}

// buildGuards returns the access table for the management routes, keyed
// by mux path template and method
func buildGuards() map[string]map[string]routeGuard {
	guards := make(map[string]map[string]routeGuard)

	add := func(template, method string, g routeGuard) {
		if guards[template] == nil {
			guards[template] = make(map[string]routeGuard)
		}
		guards[template][method] = g
	}
	perm := func(template, method string, resource rbac.Resource, action rbac.Action) {
		add(template, method, routeGuard{perm: rbac.Perm(resource, action)})
	}
	crud := func(collection string, resource rbac.Resource) {
		item := collection + "/{id:[0-9]+}"
		perm(collection, http.MethodGet, resource, rbac.ActionRead)
		perm(collection, http.MethodPost, resource, rbac.ActionCreate)
		perm(item, http.MethodGet, resource, rbac.ActionRead)
		perm(item, http.MethodPut, resource, rbac.ActionUpdate)
		perm(item, http.MethodDelete, resource, rbac.ActionDelete)
		perm(item+"/versions", http.MethodGet, resource, rbac.ActionRead)
	}

	crud("/cms/blog", rbac.ResourceBlog)
	crud("/cms/publications", rbac.ResourcePublication)
	crud("/cms/reports", rbac.ResourceReport)
	crud("/cms/research", rbac.ResourceResearch)
	crud("/cms/success-stories", rbac.ResourceSuccessStory)

	perm("/cms/departments", http.MethodGet, rbac.ResourceDepartment, rbac.ActionRead)
	perm("/cms/departments", http.MethodPost, rbac.ResourceDepartment, rbac.ActionCreate)
	perm("/cms/departments/{id:[0-9]+}", http.MethodGet, rbac.ResourceDepartment, rbac.ActionRead)
	perm("/cms/departments/{id:[0-9]+}", http.MethodPut, rbac.ResourceDepartment, rbac.ActionUpdate)
	// Deleting a department is destructive across staff, sections and
	// users, so it stays administrator-only.
	add("/cms/departments", http.MethodDelete, routeGuard{admin: true})

	perm("/cms/staff", http.MethodGet, rbac.ResourceStaff, rbac.ActionRead)
	perm("/cms/staff", http.MethodPost, rbac.ResourceStaff, rbac.ActionCreate)
	perm("/cms/staff/{id:[0-9]+}", http.MethodPut, rbac.ResourceStaff, rbac.ActionUpdate)
	perm("/cms/staff/{id:[0-9]+}", http.MethodDelete, rbac.ResourceStaff, rbac.ActionDelete)

	perm("/cms/sections", http.MethodPost, rbac.ResourceAcademicProgram, rbac.ActionCreate)
	perm("/cms/sections/{id:[0-9]+}", http.MethodPut, rbac.ResourceAcademicProgram, rbac.ActionUpdate)
	perm("/cms/sections/{id:[0-9]+}", http.MethodDelete, rbac.ResourceAcademicProgram, rbac.ActionDelete)

	perm("/cms/media", http.MethodGet, rbac.ResourceMedia, rbac.ActionRead)
	perm("/cms/media", http.MethodPost, rbac.ResourceMedia, rbac.ActionCreate)
	perm("/cms/media/{id:[0-9]+}", http.MethodGet, rbac.ResourceMedia, rbac.ActionRead)
	perm("/cms/media/{id:[0-9]+}", http.MethodDelete, rbac.ResourceMedia, rbac.ActionDelete)

	perm("/cms/roles", http.MethodGet, rbac.ResourceRole, rbac.ActionRead)
	perm("/cms/roles", http.MethodPost, rbac.ResourceRole, rbac.ActionCreate)
	perm("/cms/roles/{id:[0-9]+}", http.MethodGet, rbac.ResourceRole, rbac.ActionRead)
	perm("/cms/roles/{id:[0-9]+}", http.MethodPut, rbac.ResourceRole, rbac.ActionUpdate)
	perm("/cms/roles/{id:[0-9]+}", http.MethodDelete, rbac.ResourceRole, rbac.ActionDelete)
	perm("/cms/roles/{id:[0-9]+}/assignments", http.MethodPost, rbac.ResourceRole, rbac.ActionAssign)
	perm("/cms/roles/{id:[0-9]+}/assignments/{userID:[0-9]+}", http.MethodDelete, rbac.ResourceRole, rbac.ActionAssign)
	perm("/cms/permissions", http.MethodGet, rbac.ResourceRole, rbac.ActionRead)

	perm("/cms/users", http.MethodGet, rbac.ResourceUser, rbac.ActionRead)
	perm("/cms/users/{id:[0-9]+}", http.MethodGet, rbac.ResourceUser, rbac.ActionRead)
	perm("/cms/users/{id:[0-9]+}", http.MethodPut, rbac.ResourceUser, rbac.ActionUpdate)

	add("/cms/audit", http.MethodGet, routeGuard{admin: true})

	// Webhook subscriptions carry shared secrets and reach external
	// systems, so the whole surface is administrator-only.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		add("/cms/webhooks", method, routeGuard{admin: true})
	}
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		add("/cms/webhooks/{id:[0-9]+}", method, routeGuard{admin: true})
	}

	return guards
}
