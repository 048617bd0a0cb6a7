package store

import (
	"sync"

	"LavTutorClient/internal/model"
)

// NotificationStore holds every notification for the logged-in user,
// most recent first. Notifications are never deleted within a session;
// the list only grows or updates. The unread count is always derived
// from the list so independent mutation paths cannot make it drift.
type NotificationStore struct {
	mu            sync.RWMutex
	notifications []model.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// Load replaces the list with the initial fetch.
func (s *NotificationStore) Load(list []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]model.Notification(nil), list...)
}

// Upsert folds a pushed notification in and reports whether anything
// changed. A known id is replaced only when its read flag or timestamp
// actually differ; an unknown one is prepended.
func (s *NotificationStore) Upsert(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.notifications {
		if cur.NotificationID == n.NotificationID {
			if cur.IsRead == n.IsRead && cur.CreatedAt.Equal(n.CreatedAt) {
				return false
			}
			s.notifications[i] = n
			return true
		}
	}

	s.notifications = append([]model.Notification{n}, s.notifications...)
	return true
}

// MarkRead flips one notification read and reports whether it was
// unread before. Marking twice is a no-op.
func (s *NotificationStore) MarkRead(notificationID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.NotificationID == notificationID {
			if n.IsRead {
				return false
			}
			s.notifications[i].IsRead = true
			return true
		}
	}
	return false
}

// MarkChatRead flips every unread NEW_MESSAGE notification for one
// conversation and recipient, returning how many it flipped. Applying
// it again, or on a store with no matching entry, flips nothing.
func (s *NotificationStore) MarkChatRead(referenceID int64, recipientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for i, n := range s.notifications {
		if n.Type == model.NotificationNewMessage &&
			n.ReferenceID == referenceID &&
			n.RecipientID == recipientID &&
			!n.IsRead {
			s.notifications[i].IsRead = true
			flipped++
		}
	}
	return flipped
}

// Get returns a notification by id.
func (s *NotificationStore) Get(notificationID int64) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications {
		if n.NotificationID == notificationID {
			return n, true
		}
	}
	return model.Notification{}, false
}

// UnreadCount recomputes the number of unread notifications from the
// full list.
func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of the list, most recent first.
func (s *NotificationStore) Snapshot() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification(nil), s.notifications...)
}
