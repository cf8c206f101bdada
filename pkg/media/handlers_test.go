package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

type fakeObjectStore struct {
	uploads map[string][]byte
	deleted []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, content []byte, _ string) error {
	f.uploads[key] = content
	return nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploads, key)
	return nil
}

func (f *fakeObjectStore) PublicURL(key string) string {
	return "https://media.college.edu/" + key
}

func (f *fakeObjectStore) HealthCheck(context.Context) error { return nil }

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *fakeObjectStore) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	objects := newFakeObjectStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewHandlers(NewStore(db), objects, 1<<20, nil, logger), mock, objects
}

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func withEditor(r *http.Request) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UserID: 5}))
}

func TestUploadStoresObjectAndRecord(t *testing.T) {
	h, mock, objects := newTestHandlers(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO media_assets`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))

	content := []byte("%PDF-1.7 annual report")
	body, contentType := multipartBody(t, "file", "report.pdf", content)

	req := httptest.NewRequest(http.MethodPost, "/cms/media", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, withEditor(req))

	require.Equal(t, http.StatusCreated, rec.Code)

	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var asset Asset
	require.NoError(t, json.Unmarshal(raw, &asset))

	assert.Equal(t, "report.pdf", asset.FileName)
	assert.Equal(t, int64(len(content)), asset.SizeBytes)
	assert.Contains(t, asset.ObjectKey, "media/sha256/")
	assert.Contains(t, asset.URL, "https://media.college.edu/")
	assert.Contains(t, objects.uploads, asset.ObjectKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadMissingFileField(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	body, contentType := multipartBody(t, "attachment", "report.pdf", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/cms/media", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, withEditor(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadEmptyFileRejected(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	body, contentType := multipartBody(t, "file", "empty.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/cms/media", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, withEditor(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func assetColumnNames() []string {
	return []string{"id", "file_name", "object_key", "content_type", "size_bytes", "url", "uploaded_by", "created_at"}
}

func TestDeleteAssetRemovesUnreferencedObject(t *testing.T) {
	h, mock, objects := newTestHandlers(t)
	now := time.Now()
	objects.uploads["media/sha256/ab/cdef.pdf"] = []byte("x")

	mock.ExpectQuery(`FROM media_assets WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(assetColumnNames()).
			AddRow(1, "report.pdf", "media/sha256/ab/cdef.pdf", "application/pdf", 1, "https://media.college.edu/media/sha256/ab/cdef.pdf", nil, now))
	mock.ExpectExec(`DELETE FROM media_assets WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media_assets WHERE object_key = \$1`).
		WithArgs("media/sha256/ab/cdef.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	req := httptest.NewRequest(http.MethodDelete, "/cms/media/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.DeleteAsset(rec, withEditor(req))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"media/sha256/ab/cdef.pdf"}, objects.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAssetKeepsSharedObject(t *testing.T) {
	h, mock, objects := newTestHandlers(t)
	now := time.Now()

	mock.ExpectQuery(`FROM media_assets WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(assetColumnNames()).
			AddRow(1, "report.pdf", "media/sha256/ab/cdef.pdf", "application/pdf", 1, "u", nil, now))
	mock.ExpectExec(`DELETE FROM media_assets WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM media_assets WHERE object_key = \$1`).
		WithArgs("media/sha256/ab/cdef.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	req := httptest.NewRequest(http.MethodDelete, "/cms/media/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rec := httptest.NewRecorder()
	h.DeleteAsset(rec, withEditor(req))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, objects.deleted)
}

func TestObjectKeyIsContentAddressed(t *testing.T) {
	a := ObjectKey("one.pdf", []byte("same bytes"))
	b := ObjectKey("two.pdf", []byte("same bytes"))
	c := ObjectKey("one.pdf", []byte("other bytes"))

	assert.Equal(t, a, b, "same content and extension share one key")
	assert.NotEqual(t, a, c)
}
