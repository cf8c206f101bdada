package slug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hello, World!", "hello-world"},
		{"Physics", "physics"},
		{"  Computer   Science  ", "computer-science"},
		{"Fall 2026: Research & Innovation!", "fall-2026-research-innovation"},
		{"already-a-slug", "already-a-slug"},
		{"Über-Department", "ber-department"},
		{"C++ Workshop", "c-workshop"},
		{"---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := Make(tt.title)
			assert.Equal(t, tt.want, got)
			if got != "" {
				assert.True(t, Valid.MatchString(got), "%q is not a valid slug", got)
			}
		})
	}
}

func TestMakeUnique(t *testing.T) {
	taken := map[string]bool{}
	exists := func(ctx context.Context, candidate string) (bool, error) {
		return taken[candidate], nil
	}
	ctx := context.Background()

	got, err := MakeUnique(ctx, "Hello, World!", exists)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", got)

	taken["hello-world"] = true
	got, err = MakeUnique(ctx, "Hello, World!", exists)
	require.NoError(t, err)
	assert.Equal(t, "hello-world-1", got)

	taken["hello-world-1"] = true
	got, err = MakeUnique(ctx, "Hello, World!", exists)
	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", got)
}

func TestMakeUniqueEmptyTitle(t *testing.T) {
	_, err := MakeUnique(context.Background(), "!!!", func(context.Context, string) (bool, error) {
		return false, nil
	})
	assert.Error(t, err)
}
