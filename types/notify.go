package types

const (
	NotifyTypeSessionUpdated   = "session_updated"
	NotifyTypeSessionStarted   = "session_started"
	NotifyTypeSessionCompleted = "session_completed"
	NotifyTypeSessionFailed    = "session_failed"
	NotifyTypeSessionCancelled = "session_cancelled"
	NotifyTypeItemFailed       = "item_failed"
)

// Notification represents a notification message structure
type Notification struct {
	Type      string          `json:"type,omitempty"`      // e.g. "session_updated", "session_completed"
	SessionID string          `json:"sessionId,omitempty"` // session the event belongs to
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	Session   *Session        `json:"session,omitempty"` // snapshot at emit time
	Update    *WorkflowUpdate `json:"update,omitempty"`  // only on terminal events
	Data      map[string]any  `json:"data,omitempty"`
}
