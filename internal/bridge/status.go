package bridge

import (
	"fmt"

	"github.com/TechinMama/RecipeForADisaster/internal/syncengine"
)

// Indicator is the state behind the offline status line shown to users.
type Indicator struct {
	Online     bool               `json:"online"`
	Syncing    bool               `json:"syncing"`
	Pending    int                `json:"pendingOperations"`
	LastResult *syncengine.Result `json:"lastResult,omitempty"`
	// Changed is set after a connectivity transition.
	Changed bool `json:"changed"`
}

// StatusText renders the indicator line.
func StatusText(ind Indicator) string {
	switch {
	case ind.Syncing:
		return "Syncing recipes..."
	case !ind.Online:
		return "You are currently offline"
	case ind.Pending > 0:
		return fmt.Sprintf("%d recipe changes pending sync", ind.Pending)
	case ind.LastResult != nil:
		return fmt.Sprintf("Synced %d recipes", ind.LastResult.Successful)
	default:
		return "Back online - recipes synced!"
	}
}

// Visible reports whether the indicator should be shown at all.
func (ind Indicator) Visible() bool {
	return ind.Changed || !ind.Online || ind.Pending > 0 || ind.LastResult != nil
}

// CanSyncManually reports whether a "Sync Now" action is offered.
func (ind Indicator) CanSyncManually() bool {
	return ind.Online && ind.Pending > 0 && !ind.Syncing
}
