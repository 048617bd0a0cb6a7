package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"LavTutorClient/internal/adapter"
	"LavTutorClient/internal/config"
	"LavTutorClient/internal/metrics"
	"LavTutorClient/internal/model"
	"LavTutorClient/internal/realtime"
	"LavTutorClient/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ChatService is the client side of the chat protocol: it keeps the
// sidebar roster, the open conversation's messages, and the global
// notifications converged under concurrent socket events and local
// optimistic actions.
type ChatService struct {
	cfg      *config.AppConfig
	api      *adapter.APIClient
	validate *validator.Validate

	session       *realtime.Session
	messages      *store.MessageStore
	roster        *store.Roster
	notifications *NotificationService

	user model.UserProfile
}

func NewChatService(
	cfg *config.AppConfig,
	api *adapter.APIClient,
	validate *validator.Validate,
	session *realtime.Session,
	messages *store.MessageStore,
	roster *store.Roster,
	notifications *NotificationService,
	user model.UserProfile,
) *ChatService {
	return &ChatService{
		cfg:           cfg,
		api:           api,
		validate:      validate,
		session:       session,
		messages:      messages,
		roster:        roster,
		notifications: notifications,
		user:          user,
	}
}

// Start fetches the roster and notifications, wires the socket
// handlers, and opens the session. The connect hook re-establishes
// server-side room membership on every connect, the first included.
func (s *ChatService) Start(ctx context.Context) error {
	partners, err := s.api.ChatPartners(ctx, s.user.IDNumber)
	if err != nil {
		return fmt.Errorf("fetch chat partners: %w", err)
	}
	s.roster.SetConversations(partners)

	if err := s.notifications.Load(ctx); err != nil {
		// chat still works without the bell; the next fetch reconciles
		slog.Warn("Failed to load notifications", "error", err)
	}

	s.session.On(realtime.EventReceiveMessage, s.handleReceiveMessage)
	s.session.On(realtime.EventLoadMessages, s.handleLoadMessages)
	s.notifications.Attach(s.session)
	s.session.OnConnect(s.rejoinRooms)

	if err := s.session.Dial(ctx); err != nil {
		return fmt.Errorf("open socket session: %w", err)
	}
	return nil
}

// Close tears down the session. Outstanding fetches are not cancelled;
// their late responses are ignored by the stores.
func (s *ChatService) Close() {
	s.session.Close()
	s.messages.Close()
}

// OpenConversation selects a conversation for viewing. Re-selecting the
// open one is a no-op so the server does not see duplicate joins or
// double read-marking. Otherwise the message list is cleared, the
// conversation's room is joined (the server replies with history and
// marks messages read), and related notifications are marked read.
func (s *ChatService) OpenConversation(appointmentID int64) error {
	if _, ok := s.roster.Get(appointmentID); !ok {
		return fmt.Errorf("unknown appointment %d", appointmentID)
	}
	if !s.messages.Open(appointmentID) {
		return nil
	}

	s.roster.ResetUnread(appointmentID)

	if err := s.session.Emit(realtime.EventJoinAppointment, model.JoinAppointmentPayload{
		AppointmentID: appointmentID,
		UserID:        s.user.IDNumber,
	}); err != nil {
		return fmt.Errorf("join appointment %d: %w", appointmentID, err)
	}

	s.notifications.MarkConversationRead(appointmentID)
	return nil
}

// Send performs an optimistic send: the message is appended locally
// with a temp id and a client timestamp before it goes out on the
// socket. There is no rollback when the emit fails; the pending entry
// stays and the error lets the caller surface a notice.
func (s *ChatService) Send(text string) (model.Message, error) {
	open := s.messages.CurrentID()
	if open == 0 {
		return model.Message{}, errors.New("no open conversation")
	}

	req := model.SendMessageRequest{
		AppointmentID: open,
		SenderID:      s.user.IDNumber,
		Text:          text,
	}
	if err := s.validate.Struct(req); err != nil {
		return model.Message{}, fmt.Errorf("invalid message: %w", err)
	}

	msg := model.Message{
		TempID:        uuid.NewString(),
		AppointmentID: open,
		SenderID:      s.user.IDNumber,
		Text:          text,
		CreatedAt:     time.Now(),
	}
	s.messages.AppendLocal(msg)
	s.roster.Touch(open, true, true)
	s.notifications.MarkConversationRead(open)

	if err := s.session.Emit(realtime.EventSendMessage, msg); err != nil {
		return msg, fmt.Errorf("emit message: %w", err)
	}
	metrics.RecordMessage("outbound")
	return msg, nil
}

// Roster returns the sidebar roster state.
func (s *ChatService) Roster() *store.Roster {
	return s.roster
}

// Messages returns the open conversation's message store.
func (s *ChatService) Messages() *store.MessageStore {
	return s.messages
}

// Notifications returns the global notification service.
func (s *ChatService) Notifications() *NotificationService {
	return s.notifications
}

// User returns the resolved platform profile.
func (s *ChatService) User() model.UserProfile {
	return s.user
}

// rejoinRooms re-establishes server-side room membership, which does
// not survive a transport-level reconnect: the bulk monitor call for
// the whole roster, then an explicit join for the open conversation.
func (s *ChatService) rejoinRooms() {
	if ids := s.roster.AppointmentIDs(); len(ids) > 0 {
		if err := s.session.Emit(realtime.EventMonitorAppointments, model.MonitorAppointmentsPayload{
			AppointmentIDs: ids,
		}); err != nil {
			slog.Warn("Failed to monitor appointments", "error", err)
		}
	}

	if open := s.messages.CurrentID(); open != 0 {
		if err := s.session.Emit(realtime.EventJoinAppointment, model.JoinAppointmentPayload{
			AppointmentID: open,
			UserID:        s.user.IDNumber,
		}); err != nil {
			slog.Warn("Failed to re-join open appointment", "appointment_id", open, "error", err)
		}
	}
}

func (s *ChatService) handleReceiveMessage(data json.RawMessage) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("Dropping malformed message", "error", err)
		return
	}
	metrics.RecordMessage("inbound")

	// the subscription outlives conversation switches, so the open
	// conversation is re-read here rather than captured at Start
	open := s.messages.CurrentID()
	fromSelf := msg.SenderID == s.user.IDNumber

	if open == msg.AppointmentID {
		if s.messages.ApplyInbound(s.user.IDNumber, msg) && !fromSelf {
			// viewing the conversation implies reading; tell the server
			// so a later refetch agrees
			if err := s.session.Emit(realtime.EventMarkRead, model.MarkReadPayload{
				AppointmentID: msg.AppointmentID,
				UserID:        s.user.IDNumber,
			}); err != nil {
				slog.Warn("Failed to emit mark_read", "error", err)
			}
			s.notifications.MarkConversationRead(msg.AppointmentID)
		}
	}

	s.roster.Touch(msg.AppointmentID, fromSelf, open == msg.AppointmentID)
}

func (s *ChatService) handleLoadMessages(data json.RawMessage) {
	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		slog.Warn("Dropping malformed history", "error", err)
		return
	}
	s.messages.Load(msgs)
}
