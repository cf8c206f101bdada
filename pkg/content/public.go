package content

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/httputil"
)

// PublicBlogList returns published blog posts, newest publication first
func (h *Handlers) PublicBlogList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	key := fmt.Sprintf("public:blog:list:%d:%d", limit, offset)
	if cached, ok := h.cache.Get(key); ok {
		httputil.WriteSuccess(w, cached)
		return
	}

	posts, err := h.store.ListPublishedBlogPosts(r.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list published blog posts")
		httputil.WriteInternalError(w)
		return
	}

	h.cache.Add(key, posts)
	httputil.WriteSuccess(w, posts)
}

// PublicBlogBySlug returns one published blog post by slug. Unpublished
// posts are indistinguishable from absent ones.
func (h *Handlers) PublicBlogBySlug(w http.ResponseWriter, r *http.Request) {
	postSlug, err := httputil.ParsePathString(r, "slug")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	key := "public:blog:slug:" + postSlug
	if cached, ok := h.cache.Get(key); ok {
		httputil.WriteSuccess(w, cached)
		return
	}

	post, err := h.store.GetBlogPostBySlug(r.Context(), postSlug)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "blog post not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get blog post by slug")
		httputil.WriteInternalError(w)
		return
	}
	if post.Status != StatusPublished {
		httputil.WriteNotFound(w, "blog post not found")
		return
	}

	h.cache.Add(key, post)
	httputil.WriteSuccess(w, post)
}

// PublicItemList returns a handler listing published records of a kind
func (h *Handlers) PublicItemList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := httputil.ParsePagination(r, defaultPageSize, maxPageSize)
		if err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}

		key := fmt.Sprintf("public:%s:list:%d:%d", kind, limit, offset)
		if cached, ok := h.cache.Get(key); ok {
			httputil.WriteSuccess(w, cached)
			return
		}

		status := StatusPublished
		items, err := h.store.ListItems(r.Context(), kind, &status, limit, offset)
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to list published content")
			httputil.WriteInternalError(w)
			return
		}

		h.cache.Add(key, items)
		httputil.WriteSuccess(w, items)
	}
}

// PublicItem returns a handler fetching one published record of a kind
func (h *Handlers) PublicItem(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}

		key := fmt.Sprintf("public:%s:id:%d", kind, id)
		if cached, cok := h.cache.Get(key); cok {
			httputil.WriteSuccess(w, cached)
			return
		}

		item, err := h.store.GetItem(r.Context(), kind, id)
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "content not found")
			return
		}
		if err != nil {
			h.logger.WithError(err).WithField("kind", string(kind)).Error("failed to get published content")
			httputil.WriteInternalError(w)
			return
		}
		if item.Status != StatusPublished {
			httputil.WriteNotFound(w, "content not found")
			return
		}

		h.cache.Add(key, item)
		httputil.WriteSuccess(w, item)
	}
}

// RegisterPublicRoutes mounts the anonymous read-only endpoints serving
// published content
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/blog", h.PublicBlogList).Methods(http.MethodGet)
	router.HandleFunc("/blog/{slug}", h.PublicBlogBySlug).Methods(http.MethodGet)

	for _, kind := range ItemKinds {
		segment := kindSegments[kind]
		router.HandleFunc("/"+segment, h.PublicItemList(kind)).Methods(http.MethodGet)
		router.HandleFunc("/"+segment+"/{id:[0-9]+}", h.PublicItem(kind)).Methods(http.MethodGet)
	}
}
