package settings

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func writeSettings(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManagerLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	writeSettings(t, path, `
site_name: College of Engineering
tagline: Learn by doing
contact_email: info@college.edu
social_links:
  twitter: https://twitter.com/college
`)

	m, err := NewManager(path, testLogger())
	require.NoError(t, err)

	site := m.Current()
	assert.Equal(t, "College of Engineering", site.SiteName)
	assert.Equal(t, "Learn by doing", site.Tagline)
	assert.Equal(t, "https://twitter.com/college", site.SocialLinks["twitter"])
}

func TestManagerDefaultsWithoutPath(t *testing.T) {
	m, err := NewManager("", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "College Website", m.Current().SiteName)
	require.NoError(t, m.Watch(context.Background()))
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	writeSettings(t, path, `tagline: missing the site name`)

	_, err := NewManager(path, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site_name")
}

func TestManagerHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	writeSettings(t, path, `site_name: Before`)

	m, err := NewManager(path, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	writeSettings(t, path, `site_name: After`)

	require.Eventually(t, func() bool {
		return m.Current().SiteName == "After"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerKeepsLastGoodOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	writeSettings(t, path, `site_name: Stable`)

	m, err := NewManager(path, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	writeSettings(t, path, `{broken yaml`)

	// The watcher observes the bad write and keeps the prior settings.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "Stable", m.Current().SiteName)
}

func TestGetSettingsHandler(t *testing.T) {
	m, err := NewManager("", testLogger())
	require.NoError(t, err)
	h := NewHandlers(m)

	req := httptest.NewRequest(http.MethodGet, "/public/settings", nil)
	rec := httptest.NewRecorder()
	h.GetSettings(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "College Website")
}
