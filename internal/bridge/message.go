package bridge

import (
	"encoding/json"
	"fmt"
)

// Control message types sent by the application.
const (
	TypeSkipWaiting      = "SKIP_WAITING"
	TypeGetOfflineStatus = "GET_OFFLINE_STATUS"
	TypeTriggerSync      = "TRIGGER_SYNC"
)

// Notification types pushed to clients.
const (
	TypeSyncCompleted      = "SYNC_COMPLETED"
	TypeConnectivityChange = "CONNECTIVITY_CHANGED"
	TypeStatusReply        = "OFFLINE_STATUS"
	TypeError              = "ERROR"
)

// Message is one of SkipWaiting, GetOfflineStatus or TriggerSync.
type Message interface {
	messageType() string
}

// SkipWaiting asks the gateway to activate immediately.
type SkipWaiting struct{}

// GetOfflineStatus asks for a StatusReply.
type GetOfflineStatus struct{}

// TriggerSync asks for a queue drain.
type TriggerSync struct{}

func (SkipWaiting) messageType() string      { return TypeSkipWaiting }
func (GetOfflineStatus) messageType() string { return TypeGetOfflineStatus }
func (TriggerSync) messageType() string      { return TypeTriggerSync }

// TypeOf returns the wire type of m.
func TypeOf(m Message) string {
	if m == nil {
		return ""
	}
	return m.messageType()
}

// DecodeMessage parses {"type": ...}. Unknown types decode to a nil Message
// and no error.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	switch envelope.Type {
	case TypeSkipWaiting:
		return SkipWaiting{}, nil
	case TypeGetOfflineStatus:
		return GetOfflineStatus{}, nil
	case TypeTriggerSync:
		return TriggerSync{}, nil
	default:
		return nil, nil
	}
}

// StatusReply answers GetOfflineStatus.
type StatusReply struct {
	Offline           bool `json:"offline"`
	PendingOperations int  `json:"pendingOperations"`
}

// SyncCompletedNotice is broadcast after a drain that replayed anything.
type SyncCompletedNotice struct {
	Type       string `json:"type"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// ConnectivityNotice is broadcast when the upstream goes up or down.
type ConnectivityNotice struct {
	Type              string `json:"type"`
	Offline           bool   `json:"offline"`
	PendingOperations int    `json:"pendingOperations"`
	Status            string `json:"status"`
}
