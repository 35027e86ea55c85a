// Package entities defines the records persisted by the durable local store.
package entities

// Operation classification tags.
const (
	OperationCreateRecipe = "create-recipe"
	OperationUpdateRecipe = "update-recipe"
	OperationDeleteRecipe = "delete-recipe"
	OperationUnknown      = "unknown-operation"
)

// PendingOperation is a write request captured while the upstream was unreachable.
// ID is assigned by the store and never reused; Timestamp is the epoch
// milliseconds at which the write failed over the network and orders replay.
type PendingOperation struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	URL       string  `gorm:"type:text;not null" json:"url"`
	Method    string  `gorm:"size:10;not null" json:"method"`
	Headers   Headers `gorm:"type:text;not null" json:"headers"`
	Body      *string `gorm:"type:text" json:"body,omitempty"`
	Timestamp int64   `gorm:"not null;index:idx_pending_recipes_timestamp" json:"timestamp"`
	Operation string  `gorm:"size:50;not null;index:idx_pending_recipes_operation" json:"operation"`
}

// TableName returns the table name for GORM.
func (PendingOperation) TableName() string {
	return "pending_recipes"
}

// HasBody reports whether a body was captured.
func (p *PendingOperation) HasBody() bool {
	return p.Body != nil
}
