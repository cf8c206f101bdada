package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidStatus(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		status Status
		want   bool
	}{
		{"blog draft", KindBlog, StatusDraft, true},
		{"blog pending review", KindBlog, StatusPendingReview, true},
		{"blog published", KindBlog, StatusPublished, true},
		{"blog archived", KindBlog, StatusArchived, true},
		{"publication pending review rejected", KindPublication, StatusPendingReview, false},
		{"report pending review rejected", KindReport, StatusPendingReview, false},
		{"report published", KindReport, StatusPublished, true},
		{"unknown status", KindBlog, Status("live"), false},
		{"empty status", KindBlog, Status(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidStatus(tt.kind, tt.status))
		})
	}
}

func TestTableForKind(t *testing.T) {
	for _, kind := range ItemKinds {
		table, err := TableForKind(kind)
		require.NoError(t, err)
		assert.NotEmpty(t, table)
	}

	_, err := TableForKind(KindBlog)
	assert.Error(t, err, "blog posts are not a document kind")

	_, err = TableForKind(Kind("page"))
	assert.Error(t, err)
}

func TestResolvePublishedAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)
	requested := now.Add(-2 * time.Hour)

	t.Run("set on first publish", func(t *testing.T) {
		got := resolvePublishedAt(StatusPublished, nil, nil, now)
		require.NotNil(t, got)
		assert.Equal(t, now, *got)
	})

	t.Run("caller-supplied timestamp wins", func(t *testing.T) {
		got := resolvePublishedAt(StatusPublished, &earlier, &requested, now)
		require.NotNil(t, got)
		assert.Equal(t, requested, *got)
	})

	t.Run("existing timestamp kept on republish", func(t *testing.T) {
		got := resolvePublishedAt(StatusPublished, &earlier, nil, now)
		require.NotNil(t, got)
		assert.Equal(t, earlier, *got)
	})

	t.Run("cleared on unpublish", func(t *testing.T) {
		assert.Nil(t, resolvePublishedAt(StatusDraft, &earlier, nil, now))
		assert.Nil(t, resolvePublishedAt(StatusArchived, &earlier, nil, now))
		assert.Nil(t, resolvePublishedAt(StatusPendingReview, &earlier, nil, now))
	})

	t.Run("nil for never-published draft", func(t *testing.T) {
		assert.Nil(t, resolvePublishedAt(StatusDraft, nil, nil, now))
	})
}
