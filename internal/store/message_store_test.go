package store

import (
	"testing"
	"time"

	"LavTutorClient/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selfID = "2021-00001"

func serverMessage(id, appointmentID int64, senderID, text string) model.Message {
	return model.Message{
		ID:            id,
		AppointmentID: appointmentID,
		SenderID:      senderID,
		Text:          text,
		CreatedAt:     time.Now(),
	}
}

func pendingMessage(tempID string, appointmentID int64, text string) model.Message {
	return model.Message{
		TempID:        tempID,
		AppointmentID: appointmentID,
		SenderID:      selfID,
		Text:          text,
		CreatedAt:     time.Now(),
	}
}

func TestMessageStoreOpenSameConversationIsNoOp(t *testing.T) {
	s := NewMessageStore()

	assert.True(t, s.Open(5))
	assert.False(t, s.Open(5))
	assert.Equal(t, int64(5), s.CurrentID())
}

func TestMessageStoreOpenSwitchClearsMessages(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)
	s.ApplyInbound(selfID, serverMessage(1, 5, "partner", "hi"))
	require.Len(t, s.Snapshot(), 1)

	assert.True(t, s.Open(6))
	assert.Equal(t, int64(6), s.CurrentID())
	assert.Empty(t, s.Snapshot())
}

func TestMessageStoreLoadDropsStaleHistory(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)

	s.Load([]model.Message{serverMessage(1, 6, "partner", "old")})
	assert.Empty(t, s.Snapshot(), "history for another conversation must not load")

	s.Load([]model.Message{serverMessage(2, 5, "partner", "hi")})
	require.Len(t, s.Snapshot(), 1)
	assert.Equal(t, "hi", s.Snapshot()[0].Text)
}

func TestMessageStoreApplyInboundDedupesByServerID(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)

	msg := serverMessage(10, 5, "partner", "hi")
	assert.True(t, s.ApplyInbound(selfID, msg))
	assert.True(t, s.ApplyInbound(selfID, msg))
	assert.Len(t, s.Snapshot(), 1)
}

func TestMessageStoreEchoReplacesPlaceholderInPlace(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)

	s.AppendLocal(pendingMessage("temp-1", 5, "ping"))
	s.ApplyInbound(selfID, serverMessage(9, 5, "partner", "pong"))

	echo := serverMessage(10, 5, selfID, "ping")
	echo.TempID = "temp-1"
	assert.True(t, s.ApplyInbound(selfID, echo))

	msgs := s.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(10), msgs[0].ID, "echo replaces the placeholder at its original index")
	assert.False(t, msgs[0].Pending())
	assert.Equal(t, int64(9), msgs[1].ID)
}

func TestMessageStoreEchoWithoutTempIDMatchesPendingByText(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)
	s.AppendLocal(pendingMessage("temp-1", 5, "ping"))

	// echoes that went through the server lose their temp id
	assert.True(t, s.ApplyInbound(selfID, serverMessage(10, 5, selfID, "ping")))

	msgs := s.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].ID)
	assert.False(t, msgs[0].Pending())
}

func TestMessageStorePartnerTextNeverMatchesPending(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)
	s.AppendLocal(pendingMessage("temp-1", 5, "ping"))

	assert.True(t, s.ApplyInbound(selfID, serverMessage(10, 5, "partner", "ping")))
	assert.Len(t, s.Snapshot(), 2, "a partner message with the same text is a new message")
}

func TestMessageStoreIgnoresOtherConversations(t *testing.T) {
	s := NewMessageStore()
	s.Open(5)

	assert.False(t, s.ApplyInbound(selfID, serverMessage(10, 6, "partner", "hi")))
	assert.Empty(t, s.Snapshot())

	s.Close()
	assert.False(t, s.ApplyInbound(selfID, serverMessage(11, 5, "partner", "hi")))
}
