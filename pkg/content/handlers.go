package content

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/middleware"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
	"github.com/campuscms/campuscms/pkg/slug"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// kindSegments maps document kinds to their URL path segments
var kindSegments = map[Kind]string{
	KindPublication:  "publications",
	KindReport:       "reports",
	KindResearch:     "research",
	KindSuccessStory: "success-stories",
}

// Notifier receives content change events after a mutation commits.
// Implementations must not block; delivery happens off the request path.
type Notifier interface {
	ContentChanged(ctx context.Context, contentType, operation string, contentID int64)
}

// Handlers exposes the editorial content API
type Handlers struct {
	store    *Store
	cache    *PublicCache
	metrics  *observability.Metrics
	meters   *observability.OTelMeters
	logger   *observability.Logger
	notifier Notifier
	now      func() time.Time
}

// NewHandlers creates content handlers. cache, metrics and meters may be
// nil.
func NewHandlers(store *Store, cache *PublicCache, metrics *observability.Metrics, meters *observability.OTelMeters, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:   store,
		cache:   cache,
		metrics: metrics,
		meters:  meters,
		logger:  logger,
		now:     time.Now,
	}
}

// SetNotifier attaches a change notifier, typically the webhook
// dispatcher
func (h *Handlers) SetNotifier(n Notifier) {
	h.notifier = n
}

type blogRequest struct {
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       string     `json:"excerpt"`
	CoverImageURL string     `json:"cover_image_url"`
	DepartmentID  *int64     `json:"department_id"`
	Status        Status     `json:"status"`
	PublishedAt   *time.Time `json:"published_at"`
}

func (req *blogRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return errors.New("title is required")
	}
	if req.Status == "" {
		req.Status = StatusDraft
	}
	if !ValidStatus(KindBlog, req.Status) {
		return errors.New("invalid status " + string(req.Status))
	}
	return nil
}

// CreateBlogPost creates a blog post, deriving a unique slug from the
// title when none is supplied
func (h *Handlers) CreateBlogPost(w http.ResponseWriter, r *http.Request) {
	var req blogRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, req.DepartmentID) {
		return
	}
	if req.Status == StatusPublished && !checkPublishPermission(w, r) {
		return
	}

	postSlug, ok := h.resolveSlug(w, r.Context(), req.Slug, req.Title, 0)
	if !ok {
		return
	}

	post := &BlogPost{
		Title:         req.Title,
		Slug:          postSlug,
		Content:       req.Content,
		Excerpt:       req.Excerpt,
		CoverImageURL: req.CoverImageURL,
		DepartmentID:  req.DepartmentID,
		Status:        req.Status,
		PublishedAt:   resolvePublishedAt(req.Status, nil, req.PublishedAt, h.now()),
	}
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		post.AuthorID = &identity.UserID
	}

	if err := h.store.CreateBlogPost(r.Context(), post); err != nil {
		if errors.Is(err, ErrSlugExists) {
			httputil.WriteValidationError(w, "A blog post with this slug already exists")
			return
		}
		h.logger.WithError(err).Error("failed to create blog post")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation(r.Context(), string(KindBlog), "create", post.ID)
	httputil.WriteCreated(w, post)
}

// GetBlogPost returns one blog post regardless of status
func (h *Handlers) GetBlogPost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	post, err := h.store.GetBlogPost(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "blog post not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get blog post")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, post)
}

// ListBlogPosts returns blog posts, optionally filtered by status
func (h *Handlers) ListBlogPosts(w http.ResponseWriter, r *http.Request) {
	status, ok := h.statusFilter(w, r, KindBlog)
	if !ok {
		return
	}
	limit, offset, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	posts, err := h.store.ListBlogPosts(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list blog posts")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, posts)
}

// UpdateBlogPost updates a blog post; a change to the content body
// snapshots the prior title and content as a version. Title-only and
// metadata edits do not version.
func (h *Handlers) UpdateBlogPost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req blogRequest
	if !httputil.DecodeStrictOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	prior, err := h.store.GetBlogPost(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "blog post not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load blog post")
		httputil.WriteInternalError(w)
		return
	}

	// Scope covers the post's current department and, when it moves, the
	// destination.
	if prior.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, prior.DepartmentID) {
		return
	}
	if req.DepartmentID != nil && !sameDepartment(prior.DepartmentID, req.DepartmentID) {
		if !middleware.CheckDepartmentScope(w, r, req.DepartmentID) {
			return
		}
	}
	// Moving a post into or out of the published state is a separate
	// capability from editing it.
	if req.Status != prior.Status && (req.Status == StatusPublished || prior.Status == StatusPublished) {
		if !checkPublishPermission(w, r) {
			return
		}
	}

	postSlug := prior.Slug
	if req.Slug != "" && req.Slug != prior.Slug {
		postSlug, ok = h.resolveSlug(w, r.Context(), req.Slug, req.Title, id)
		if !ok {
			return
		}
	}

	updated := *prior
	updated.Title = req.Title
	updated.Slug = postSlug
	updated.Content = req.Content
	updated.Excerpt = req.Excerpt
	updated.CoverImageURL = req.CoverImageURL
	updated.DepartmentID = req.DepartmentID
	updated.Status = req.Status
	updated.PublishedAt = resolvePublishedAt(req.Status, prior.PublishedAt, req.PublishedAt, h.now())

	version, err := h.store.UpdateBlogPost(r.Context(), &updated, prior, h.actorID(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "blog post not found")
			return
		}
		if errors.Is(err, ErrSlugExists) {
			httputil.WriteValidationError(w, "A blog post with this slug already exists")
			return
		}
		h.logger.WithError(err).Error("failed to update blog post")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation(r.Context(), string(KindBlog), "update", id)
	if version != nil {
		h.recordVersion(r.Context())
	}
	httputil.WriteSuccess(w, &updated)
}

// DeleteBlogPost removes a blog post and its versions
func (h *Handlers) DeleteBlogPost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	post, err := h.store.GetBlogPost(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "blog post not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load blog post")
		httputil.WriteInternalError(w)
		return
	}
	if post.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, post.DepartmentID) {
		return
	}

	if err := h.store.DeleteBlogPost(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "blog post not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete blog post")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation(r.Context(), string(KindBlog), "delete", id)
	httputil.WriteSuccess(w, map[string]string{"message": "blog post deleted"})
}

// ListBlogVersions returns a blog post's version history
func (h *Handlers) ListBlogVersions(w http.ResponseWriter, r *http.Request) {
	h.listVersions(w, r, KindBlog)
}

type itemRequest struct {
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	FileURL      string     `json:"file_url"`
	DepartmentID *int64     `json:"department_id"`
	Status       Status     `json:"status"`
	PublishedAt  *time.Time `json:"published_at"`
}

func (req *itemRequest) validate(kind Kind) error {
	if strings.TrimSpace(req.Title) == "" {
		return errors.New("title is required")
	}
	if req.Status == "" {
		req.Status = StatusDraft
	}
	if !ValidStatus(kind, req.Status) {
		return errors.New("invalid status " + string(req.Status))
	}
	return nil
}

// CreateItem returns a handler that creates records of one kind
func (h *Handlers) CreateItem(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemRequest
		if !httputil.DecodeStrictOrError(w, r, &req) {
			return
		}
		if err := req.validate(kind); err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		if req.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, req.DepartmentID) {
			return
		}

		item := &Item{
			Kind:         kind,
			Title:        req.Title,
			Body:         req.Body,
			FileURL:      req.FileURL,
			DepartmentID: req.DepartmentID,
			Status:       req.Status,
			PublishedAt:  resolvePublishedAt(req.Status, nil, req.PublishedAt, h.now()),
			CreatedBy:    h.actorID(r),
		}

		if err := h.store.CreateItem(r.Context(), item); err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to create content item")
			httputil.WriteInternalError(w)
			return
		}

		h.recordMutation(r.Context(), string(kind), "create", item.ID)
		httputil.WriteCreated(w, item)
	}
}

// GetItem returns a handler that fetches one record of a kind
func (h *Handlers) GetItem(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}

		item, err := h.store.GetItem(r.Context(), kind, id)
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "content not found")
			return
		}
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to get content item")
			httputil.WriteInternalError(w)
			return
		}
		httputil.WriteSuccess(w, item)
	}
}

// ListItems returns a handler listing records of a kind, optionally
// filtered by status
func (h *Handlers) ListItems(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := h.statusFilter(w, r, kind)
		if !ok {
			return
		}
		limit, offset, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}

		items, err := h.store.ListItems(r.Context(), kind, status, limit, offset)
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to list content items")
			httputil.WriteInternalError(w)
			return
		}
		httputil.WriteSuccess(w, items)
	}
}

// UpdateItem returns a handler updating one record of a kind, with the
// same version-on-body-change rule as blog posts
func (h *Handlers) UpdateItem(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}

		var req itemRequest
		if !httputil.DecodeStrictOrError(w, r, &req) {
			return
		}
		if err := req.validate(kind); err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}

		prior, err := h.store.GetItem(r.Context(), kind, id)
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "content not found")
			return
		}
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to load content item")
			httputil.WriteInternalError(w)
			return
		}

		if prior.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, prior.DepartmentID) {
			return
		}
		if req.DepartmentID != nil && !sameDepartment(prior.DepartmentID, req.DepartmentID) {
			if !middleware.CheckDepartmentScope(w, r, req.DepartmentID) {
				return
			}
		}

		updated := *prior
		updated.Title = req.Title
		updated.Body = req.Body
		updated.FileURL = req.FileURL
		updated.DepartmentID = req.DepartmentID
		updated.Status = req.Status
		updated.PublishedAt = resolvePublishedAt(req.Status, prior.PublishedAt, req.PublishedAt, h.now())

		version, err := h.store.UpdateItem(r.Context(), &updated, prior, h.actorID(r))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				httputil.WriteNotFound(w, "content not found")
				return
			}
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to update content item")
			httputil.WriteInternalError(w)
			return
		}

		h.recordMutation(r.Context(), string(kind), "update", id)
		if version != nil {
			h.recordVersion(r.Context())
		}
		httputil.WriteSuccess(w, &updated)
	}
}

// DeleteItem returns a handler removing one record of a kind
func (h *Handlers) DeleteItem(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}

		item, err := h.store.GetItem(r.Context(), kind, id)
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "content not found")
			return
		}
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to load content item")
			httputil.WriteInternalError(w)
			return
		}
		if item.DepartmentID != nil && !middleware.CheckDepartmentScope(w, r, item.DepartmentID) {
			return
		}

		if err := h.store.DeleteItem(r.Context(), kind, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				httputil.WriteNotFound(w, "content not found")
				return
			}
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to delete content item")
			httputil.WriteInternalError(w)
			return
		}

		h.recordMutation(r.Context(), string(kind), "delete", id)
		httputil.WriteSuccess(w, map[string]string{"message": "content deleted"})
	}
}

// ListItemVersions returns a handler listing a record's version history
func (h *Handlers) ListItemVersions(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.listVersions(w, r, kind)
	}
}

func (h *Handlers) listVersions(w http.ResponseWriter, r *http.Request, kind Kind) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	versions, err := h.store.ListVersions(r.Context(), kind, id)
	if err != nil {
		h.logger.WithError(err).Error("failed to list content versions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, versions)
}

// resolveSlug validates a caller-supplied slug against the uniqueness
// constraint, or derives a unique one from the title
func (h *Handlers) resolveSlug(w http.ResponseWriter, ctx context.Context, requested, title string, excludeID int64) (string, bool) {
	exists := func(ctx context.Context, candidate string) (bool, error) {
		return h.store.BlogSlugExists(ctx, candidate, excludeID)
	}

	if requested != "" {
		if !slug.Valid.MatchString(requested) {
			httputil.WriteValidationError(w, "slug must contain only lowercase letters, digits and hyphens")
			return "", false
		}
		taken, err := exists(ctx, requested)
		if err != nil {
			h.logger.WithError(err).Error("failed to check blog slug")
			httputil.WriteInternalError(w)
			return "", false
		}
		if taken {
			httputil.WriteValidationError(w, "A blog post with this slug already exists")
			return "", false
		}
		return requested, true
	}

	derived, err := slug.MakeUnique(ctx, title, exists)
	if err != nil {
		httputil.WriteValidationError(w, "title must contain at least one letter or digit")
		return "", false
	}
	return derived, true
}

func (h *Handlers) actorID(r *http.Request) *int64 {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		return nil
	}
	return &identity.UserID
}

// checkPublishPermission requires the blog publish capability, writing
// the error response when the caller lacks it
func checkPublishPermission(w http.ResponseWriter, r *http.Request) bool {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "")
		return false
	}
	if !identity.Subject().HasPermission(rbac.Perm(rbac.ResourceBlog, rbac.ActionPublish)) {
		httputil.WriteForbidden(w, "publishing requires the blog:publish permission")
		return false
	}
	return true
}

func sameDepartment(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (h *Handlers) recordMutation(ctx context.Context, contentType, operation string, contentID int64) {
	if h.metrics != nil {
		h.metrics.ContentMutationsTotal.WithLabelValues(contentType, operation).Inc()
	}
	h.meters.RecordContentMutation(ctx, contentType, operation)
	h.cache.Purge()
	if h.notifier != nil {
		h.notifier.ContentChanged(ctx, contentType, operation, contentID)
	}
}

func (h *Handlers) recordVersion(ctx context.Context) {
	if h.metrics != nil {
		h.metrics.ContentVersionsTotal.Inc()
	}
	h.meters.RecordVersionSnapshot(ctx)
}

// RegisterRoutes mounts the editorial content endpoints on a router
// already guarded by the session middleware; per-route permission guards
// are applied by the API server.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/blog", h.ListBlogPosts).Methods(http.MethodGet)
	router.HandleFunc("/blog", h.CreateBlogPost).Methods(http.MethodPost)
	router.HandleFunc("/blog/{id:[0-9]+}", h.GetBlogPost).Methods(http.MethodGet)
	router.HandleFunc("/blog/{id:[0-9]+}", h.UpdateBlogPost).Methods(http.MethodPut)
	router.HandleFunc("/blog/{id:[0-9]+}", h.DeleteBlogPost).Methods(http.MethodDelete)
	router.HandleFunc("/blog/{id:[0-9]+}/versions", h.ListBlogVersions).Methods(http.MethodGet)

	for _, kind := range ItemKinds {
		segment := kindSegments[kind]
		router.HandleFunc("/"+segment, h.ListItems(kind)).Methods(http.MethodGet)
		router.HandleFunc("/"+segment, h.CreateItem(kind)).Methods(http.MethodPost)
		router.HandleFunc("/"+segment+"/{id:[0-9]+}", h.GetItem(kind)).Methods(http.MethodGet)
		router.HandleFunc("/"+segment+"/{id:[0-9]+}", h.UpdateItem(kind)).Methods(http.MethodPut)
		router.HandleFunc("/"+segment+"/{id:[0-9]+}", h.DeleteItem(kind)).Methods(http.MethodDelete)
		router.HandleFunc("/"+segment+"/{id:[0-9]+}/versions", h.ListItemVersions(kind)).Methods(http.MethodGet)
	}
}

func (h *Handlers) statusFilter(w http.ResponseWriter, r *http.Request, kind Kind) (*Status, bool) {
	raw := httputil.ParseQueryString(r, "status", "")
	if raw == "" {
		return nil, true
	}
	status := Status(raw)
	if !ValidStatus(kind, status) {
		httputil.WriteValidationError(w, "invalid status "+raw)
		return nil, false
	}
	return &status, true
}
