package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TechinMama/RecipeForADisaster/internal/syncengine"
)

func TestStatusText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ind  Indicator
		want string
	}{
		{"syncing wins", Indicator{Online: false, Syncing: true, Pending: 3}, "Syncing recipes..."},
		{"offline", Indicator{Online: false, Pending: 3}, "You are currently offline"},
		{"pending", Indicator{Online: true, Pending: 3}, "3 recipe changes pending sync"},
		{"last result", Indicator{Online: true, LastResult: &syncengine.Result{Successful: 2, Total: 2}}, "Synced 2 recipes"},
		{"clean", Indicator{Online: true}, "Back online - recipes synced!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusText(tt.ind))
		})
	}
}

func TestIndicator_VisibilityAndManualSync(t *testing.T) {
	t.Parallel()
	assert.False(t, Indicator{Online: true}.Visible())
	assert.True(t, Indicator{Online: false}.Visible())
	assert.True(t, Indicator{Online: true, Changed: true}.Visible())

	assert.True(t, Indicator{Online: true, Pending: 1}.CanSyncManually())
	assert.False(t, Indicator{Online: true, Pending: 1, Syncing: true}.CanSyncManually())
	assert.False(t, Indicator{Online: false, Pending: 1}.CanSyncManually())
}
