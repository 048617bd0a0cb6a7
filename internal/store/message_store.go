package store

import (
	"sync"

	"LavTutorClient/internal/model"
)

// MessageStore owns the message list for the one open conversation.
// Messages for anything else are never stored here; closing the
// conversation discards the list instead of merging it anywhere.
type MessageStore struct {
	mu       sync.RWMutex
	openID   int64
	messages []model.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Open selects a conversation. Selecting the one that is already open
// is a no-op and returns false, so callers do not issue duplicate join
// events or double the server-side read-marking. Opening a different
// conversation clears the list.
func (s *MessageStore) Open(appointmentID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == appointmentID {
		return false
	}
	s.openID = appointmentID
	s.messages = nil
	return true
}

// Close deselects the open conversation and discards its messages.
func (s *MessageStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openID = 0
	s.messages = nil
}

// CurrentID returns the open conversation's appointment id, 0 when
// none is open. Long-lived event handlers must call this at handle
// time instead of capturing the value at subscription time.
func (s *MessageStore) CurrentID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openID
}

// Load replaces the list with conversation history. History that
// arrives for a conversation no longer open is stale and dropped.
func (s *MessageStore) Load(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == 0 {
		return
	}
	if len(msgs) > 0 && msgs[0].AppointmentID != s.openID {
		return
	}
	s.messages = append([]model.Message(nil), msgs...)
}

// AppendLocal appends an optimistic send.
func (s *MessageStore) AppendLocal(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.AppointmentID != s.openID {
		return
	}
	s.messages = append(s.messages, msg)
}

// ApplyInbound folds a message delivered over the socket into the open
// conversation and reports whether it was stored. Duplicates by server
// id are dropped; a frame matching a pending optimistic entry, by temp
// id or by sender and text, replaces that entry in place so the list
// keeps its order. Messages for other conversations are not stored.
func (s *MessageStore) ApplyInbound(selfID string, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == 0 || msg.AppointmentID != s.openID {
		return false
	}

	if msg.ID != 0 {
		for _, m := range s.messages {
			if m.ID == msg.ID {
				return true
			}
		}
	}

	if msg.TempID != "" {
		for i, m := range s.messages {
			if m.TempID == msg.TempID {
				if msg.ID != 0 {
					s.messages[i] = msg
				}
				return true
			}
		}
	}

	// the server strips temp ids from echoes, so a pending entry with
	// the same text is this sender's optimistic copy
	if msg.SenderID == selfID {
		for i, m := range s.messages {
			if m.Pending() && m.Text == msg.Text {
				s.messages[i] = msg
				return true
			}
		}
	}

	s.messages = append(s.messages, msg)
	return true
}

// Snapshot returns a copy of the open conversation's messages.
func (s *MessageStore) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Message(nil), s.messages...)
}
