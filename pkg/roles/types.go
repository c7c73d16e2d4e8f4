package roles

import "time"

// MonitorStatus represents the latest result of a scheduled check.
type MonitorStatus struct {
	CheckID   string    `json:"check_id"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Notification represents a message to be delivered by a Notifier.
type Notification struct {
	Topic   string         `json:"topic"`
	Summary string         `json:"summary"`
	Body    string         `json:"body,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}
