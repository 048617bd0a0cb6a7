package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"LavTutorClient/internal/adapter"
	"LavTutorClient/internal/metrics"
	"LavTutorClient/internal/model"
	"LavTutorClient/internal/realtime"
	"LavTutorClient/internal/store"
)

const persistTimeout = 10 * time.Second

// NotificationService owns the global notification list and the
// read-state synchronization protocol. The chat window, the sidebar and
// the notification bell are independent views; whenever one of them
// marks something read, this service persists the change and
// re-broadcasts it over the session so every other mounted view
// converges on the same state.
//
// Read-state changes follow a fixed order: flip locally first, then
// persist, then broadcast. The local flip is deliberately kept when
// persistence fails; the next full fetch reconciles.
type NotificationService struct {
	api    *adapter.APIClient
	store  *store.NotificationStore
	userID string

	// always-current read of which conversation is open; never cache
	// its result across events
	openConversation func() int64

	session *realtime.Session
}

func NewNotificationService(api *adapter.APIClient, notifStore *store.NotificationStore, userID string, openConversation func() int64) *NotificationService {
	return &NotificationService{
		api:              api,
		store:            notifStore,
		userID:           userID,
		openConversation: openConversation,
	}
}

// Attach subscribes the service to the session's notification events.
func (n *NotificationService) Attach(session *realtime.Session) {
	n.session = session
	session.On(realtime.EventNewGlobalNotification, n.handleNewNotification)
	session.On(realtime.EventNotificationReadSync, n.handleReadSync)
}

// Load fetches the user's notifications and derives the unread count.
func (n *NotificationService) Load(ctx context.Context) error {
	list, err := n.api.Notifications(ctx, n.userID)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	n.store.Load(list)
	metrics.SetUnread(n.store.UnreadCount())
	return nil
}

// MarkRead flips one notification read after an explicit user action.
// It is idempotent; marking an already-read notification does nothing.
func (n *NotificationService) MarkRead(ctx context.Context, notificationID int64) error {
	notif, ok := n.store.Get(notificationID)
	if !ok {
		return fmt.Errorf("unknown notification %d", notificationID)
	}
	if !n.store.MarkRead(notificationID) {
		return nil
	}
	metrics.RecordReadSync("local")
	metrics.SetUnread(n.store.UnreadCount())

	if err := n.api.MarkNotificationRead(ctx, notificationID); err != nil {
		slog.Warn("Failed to persist notification read state", "notification_id", notificationID, "error", err)
		return err
	}

	n.emitReadSync(model.ReadSyncPayload{
		Type:           notif.Type,
		ReferenceID:    notif.ReferenceID,
		UserID:         n.userID,
		NotificationID: notificationID,
	})
	return nil
}

// MarkConversationRead flips every unread NEW_MESSAGE notification for
// one conversation, then persists and re-broadcasts in the background.
// Callers invoke it on every read trigger; when nothing is unread it
// returns without side effects.
func (n *NotificationService) MarkConversationRead(appointmentID int64) {
	if n.store.MarkChatRead(appointmentID, n.userID) == 0 {
		return
	}
	n.finishConversationRead(appointmentID)
}

// UnreadCount returns the derived global unread count.
func (n *NotificationService) UnreadCount() int {
	return n.store.UnreadCount()
}

// Snapshot returns the notification list, most recent first.
func (n *NotificationService) Snapshot() []model.Notification {
	return n.store.Snapshot()
}

func (n *NotificationService) handleNewNotification(data json.RawMessage) {
	var notif model.Notification
	if err := json.Unmarshal(data, &notif); err != nil {
		slog.Warn("Dropping malformed notification", "error", err)
		return
	}
	if notif.RecipientID != n.userID {
		return
	}
	metrics.RecordNotification()

	// a NEW_MESSAGE push for the conversation the user is looking at
	// must never surface as unread: the window already shows the
	// message, so a badge would contradict it
	if notif.Type == model.NotificationNewMessage && !notif.IsRead &&
		n.openConversation() == notif.ReferenceID {
		notif.IsRead = true
		n.store.Upsert(notif)
		n.finishConversationRead(notif.ReferenceID)
		return
	}

	if n.store.Upsert(notif) {
		metrics.SetUnread(n.store.UnreadCount())
	}
}

func (n *NotificationService) handleReadSync(data json.RawMessage) {
	var sync model.ReadSyncPayload
	if err := json.Unmarshal(data, &sync); err != nil {
		slog.Warn("Dropping malformed read sync", "error", err)
		return
	}
	if sync.UserID != n.userID || sync.Type != model.NotificationNewMessage {
		return
	}
	if n.store.MarkChatRead(sync.ReferenceID, n.userID) == 0 {
		return
	}
	metrics.RecordReadSync("remote")
	metrics.SetUnread(n.store.UnreadCount())
}

// finishConversationRead runs steps two and three of the protocol:
// persist against the backend, then re-broadcast on success. It runs in
// the background so socket handlers never block on a REST round trip.
func (n *NotificationService) finishConversationRead(appointmentID int64) {
	metrics.RecordReadSync("local")
	metrics.SetUnread(n.store.UnreadCount())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := n.api.MarkChatNotificationsRead(ctx, appointmentID, n.userID); err != nil {
			slog.Warn("Failed to persist chat read state", "appointment_id", appointmentID, "error", err)
			return
		}
		n.emitReadSync(model.ReadSyncPayload{
			Type:        model.NotificationNewMessage,
			ReferenceID: appointmentID,
			UserID:      n.userID,
		})
	}()
}

func (n *NotificationService) emitReadSync(payload model.ReadSyncPayload) {
	if n.session == nil {
		return
	}
	if err := n.session.Emit(realtime.EventNotificationReadSync, payload); err != nil {
		slog.Warn("Failed to emit read sync", "error", err)
	}
}
