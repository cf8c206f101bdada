package media

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

const defaultMaxUploadBytes = 25 << 20

// Handlers exposes the media asset API
type Handlers struct {
	store     *Store
	objects   ObjectStore
	maxUpload int64
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewHandlers creates media handlers. maxUpload <= 0 uses the default.
func NewHandlers(store *Store, objects ObjectStore, maxUpload int64, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Handlers{
		store:     store,
		objects:   objects,
		maxUpload: maxUpload,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upload accepts a multipart form with a "file" field, stores the
// content and records the asset
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httputil.WriteValidationError(w, "upload exceeds the size limit or is not multipart form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, "a file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.WithError(err).Error("failed to read upload")
		httputil.WriteInternalError(w)
		return
	}
	if len(content) == 0 {
		httputil.WriteValidationError(w, "uploaded file is empty")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	key := ObjectKey(header.Filename, content)
	if err := h.objects.Upload(r.Context(), key, content, contentType); err != nil {
		h.logger.WithError(err).WithField("object_key", key).Error("failed to store upload")
		httputil.WriteInternalError(w)
		return
	}

	asset := &Asset{
		FileName:    header.Filename,
		ObjectKey:   key,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		URL:         h.objects.PublicURL(key),
	}
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		asset.UploadedBy = &identity.UserID
	}

	if err := h.store.Create(r.Context(), asset); err != nil {
		h.logger.WithError(err).Error("failed to record media asset")
		httputil.WriteInternalError(w)
		return
	}

	h.recordMutation("create")
	httputil.WriteCreated(w, asset)
}

// ListAssets returns uploaded assets newest first
func (h *Handlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	assets, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list media assets")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, assets)
}

// GetAsset returns one asset record
func (h *Handlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	asset, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "media asset not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to get media asset")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, asset)
}

// DeleteAsset removes the record and, when no other record shares the
// object, the stored object itself
func (h *Handlers) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	asset, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "media asset not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load media asset")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "media asset not found")
			return
		}
		h.logger.WithError(err).Error("failed to delete media asset")
		httputil.WriteInternalError(w)
		return
	}

	remaining, err := h.store.CountByObjectKey(r.Context(), asset.ObjectKey)
	if err != nil {
		h.logger.WithError(err).Warn("failed to count object references; leaving object in place")
	} else if remaining == 0 {
		if err := h.objects.Delete(r.Context(), asset.ObjectKey); err != nil {
			// The record is already gone; an orphaned object is harmless.
			h.logger.WithError(err).WithField("object_key", asset.ObjectKey).Warn("failed to delete stored object")
		}
	}

	h.recordMutation("delete")
	httputil.WriteSuccess(w, map[string]string{"message": "media asset deleted"})
}

func (h *Handlers) recordMutation(operation string) {
	if h.metrics != nil {
		h.metrics.ContentMutationsTotal.WithLabelValues("media", operation).Inc()
	}
}

// RegisterRoutes mounts media endpoints; permission guards are applied by
// the API server
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/media", h.ListAssets).Methods(http.MethodGet)
	router.HandleFunc("/media", h.Upload).Methods(http.MethodPost)
	router.HandleFunc("/media/{id:[0-9]+}", h.GetAsset).Methods(http.MethodGet)
	router.HandleFunc("/media/{id:[0-9]+}", h.DeleteAsset).Methods(http.MethodDelete)
}
