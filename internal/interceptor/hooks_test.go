package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHook_Matches(t *testing.T) {
	t.Parallel()
	h := Hook{Patterns: []string{"/api/recipes", "/api/recipes/*"}}

	assert.True(t, h.Matches("/api/recipes"))
	assert.True(t, h.Matches("/api/recipes/42"))
	assert.True(t, h.Matches("/api/recipes/42/steps"))
	assert.False(t, h.Matches("/api/recipes-archive"))
	assert.False(t, h.Matches("/api/collections"))
}

func TestExtractEntities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr bool
	}{
		{"nested list", `{"data":{"recipes":[{"id":"a"},{"id":2}]}}`, []string{`{"id":"a"}`, `{"id":2}`}, false},
		{"top-level array", `[{"id":"a"}]`, []string{`{"id":"a"}`}, false},
		{"single recipe object", `{"data":{"recipe":{"id":"a"}}}`, nil, false},
		{"recipes not a list", `{"data":{"recipes":{"id":"a"}}}`, nil, false},
		{"scalar", `42`, nil, false},
		{"invalid json", `{`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractEntities([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.JSONEq(t, tt.want[i], string(got[i]))
			}
		})
	}
}
