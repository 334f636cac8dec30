package store

import (
	"time"

	"github.com/raphaelgruber/parley/internal/models"
)

// NotificationKind classifies a transient user-facing notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyWarning NotificationKind = "warning"
	NotifyInfo    NotificationKind = "info"
)

// Notification is transient UI state: surfaced to the user, never
// persisted across sessions.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Message   string
	Timestamp time.Time
}

// Notify appends a transient notification and returns its ID.
func (s *Store) Notify(kind NotificationKind, message string) string {
	n := Notification{
		ID:        models.NewID(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()

	s.notifySubscribers()
	return n.ID
}

// RemoveNotification drops one notification by ID; unknown IDs are a no-op.
func (s *Store) RemoveNotification(id string) {
	s.mu.Lock()
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	s.mu.Unlock()

	s.notifySubscribers()
}

// ClearNotifications drops all notifications.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()

	s.notifySubscribers()
}

// Notifications returns a copy of the pending notifications in arrival order.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notifications...)
}
