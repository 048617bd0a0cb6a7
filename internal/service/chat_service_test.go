package service_test

import (
	"context"
	"testing"
	"time"

	"LavTutorClient/internal/bootstrap"
	"LavTutorClient/internal/config"
	"LavTutorClient/internal/model"
	"LavTutorClient/internal/service"
	"LavTutorClient/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

var (
	alice = model.UserProfile{IDNumber: "2021-00001", GoogleID: "google-alice", FirstName: "Alice", LastName: "Reyes"}
	bob   = model.UserProfile{IDNumber: "2021-00002", GoogleID: "google-bob", FirstName: "Bob", LastName: "Santos"}
)

func newBackend(t *testing.T) *testutil.Backend {
	t.Helper()
	b := testutil.NewBackend()
	t.Cleanup(b.Close)
	b.AddUser(alice)
	b.AddUser(bob)
	b.AddAppointment(101, alice, bob, "CS101", "Intro to Programming", "2026-09-01", "09:00", "10:00")
	b.AddAppointment(102, alice, bob, "CS102", "Data Structures", "2026-09-08", "09:00", "10:00")
	return b
}

func startClient(t *testing.T, b *testutil.Backend, u model.UserProfile) *service.ChatService {
	t.Helper()
	cfg := b.ClientConfig(u)
	chat, err := bootstrap.Init(context.Background(), cfg, config.NewHTTPClient(cfg), config.NewValidator())
	require.NoError(t, err)
	require.NoError(t, chat.Start(context.Background()))
	t.Cleanup(chat.Close)
	return chat
}

func TestOpenConversationLoadsHistory(t *testing.T) {
	b := newBackend(t)
	b.AddMessage(101, bob.IDNumber, "see you at the library")

	chat := startClient(t, b, alice)
	require.NoError(t, chat.OpenConversation(101))

	assert.Eventually(t, func() bool {
		msgs := chat.Messages().Snapshot()
		return len(msgs) == 1 && msgs[0].Text == "see you at the library"
	}, waitFor, tick)
}

func TestOpenConversationUnknownAppointmentFails(t *testing.T) {
	b := newBackend(t)
	chat := startClient(t, b, alice)

	assert.Error(t, chat.OpenConversation(999))
}

func TestMessageToOpenConversationShowsNoBadge(t *testing.T) {
	b := newBackend(t)
	aliceChat := startClient(t, b, alice)
	bobChat := startClient(t, b, bob)

	require.NoError(t, aliceChat.OpenConversation(101))
	require.NoError(t, bobChat.OpenConversation(101))
	require.Eventually(t, func() bool { return b.RoomMembers(101) == 2 }, waitFor, tick)

	_, err := bobChat.Send("hello")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		msgs := aliceChat.Messages().Snapshot()
		return len(msgs) == 1 && msgs[0].Text == "hello" && !msgs[0].Pending()
	}, waitFor, tick)

	c, ok := aliceChat.Roster().Get(101)
	require.True(t, ok)
	assert.Equal(t, 0, c.UnreadCount, "an open conversation never shows unread")
	assert.Eventually(t, func() bool {
		return aliceChat.Notifications().UnreadCount() == 0
	}, waitFor, tick, "the push for the open conversation is absorbed as read")
}

func TestMessageToClosedConversationCountsUnread(t *testing.T) {
	b := newBackend(t)
	aliceChat := startClient(t, b, alice)
	bobChat := startClient(t, b, bob)

	// alice monitors her roster without opening anything
	require.Eventually(t, func() bool { return b.RoomMembers(101) == 2 }, waitFor, tick)

	require.NoError(t, bobChat.OpenConversation(101))
	_, err := bobChat.Send("are we still on?")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		c, ok := aliceChat.Roster().Get(101)
		return ok && c.UnreadCount == 1
	}, waitFor, tick)

	roster := aliceChat.Roster().Snapshot()
	require.NotEmpty(t, roster)
	assert.Equal(t, int64(101), roster[0].AppointmentID, "activity moves the conversation to the front")

	assert.Eventually(t, func() bool {
		return aliceChat.Notifications().UnreadCount() == 1
	}, waitFor, tick)
	assert.Empty(t, aliceChat.Messages().Snapshot(), "closed conversations store no messages")
}

func TestOpeningConversationMarksItsNotificationsRead(t *testing.T) {
	b := newBackend(t)
	b.PushNotification(model.Notification{
		RecipientID: alice.IDNumber,
		SenderID:    bob.IDNumber,
		SenderName:  "Bob Santos",
		Type:        model.NotificationNewMessage,
		ReferenceID: 101,
		MessageText: "Bob Santos sent you a message.",
	})

	b.PushNotification(model.Notification{
		RecipientID: alice.IDNumber,
		SenderID:    bob.IDNumber,
		Type:        model.NotificationNewMessage,
		ReferenceID: 102,
	})

	chat := startClient(t, b, alice)
	assert.Equal(t, 2, chat.Notifications().UnreadCount())
	c, ok := chat.Roster().Get(101)
	require.True(t, ok)
	assert.Equal(t, 1, c.UnreadCount)

	require.NoError(t, chat.OpenConversation(101))

	c, _ = chat.Roster().Get(101)
	assert.Equal(t, 0, c.UnreadCount)
	assert.Equal(t, 1, chat.Notifications().UnreadCount(),
		"exactly the opened conversation's notification flips, no others")
	assert.Eventually(t, func() bool {
		for _, n := range b.Notifications(alice.IDNumber) {
			if n.ReferenceID == 101 && !n.IsRead {
				return false
			}
			if n.ReferenceID == 102 && n.IsRead {
				return false
			}
		}
		return true
	}, waitFor, tick, "the read flag must reach the backend for 101 only")
}

func TestReopenSameConversationIsNoOp(t *testing.T) {
	b := newBackend(t)
	b.AddMessage(101, bob.IDNumber, "first")

	chat := startClient(t, b, alice)
	require.NoError(t, chat.OpenConversation(101))
	require.Eventually(t, func() bool { return len(chat.Messages().Snapshot()) == 1 }, waitFor, tick)

	require.NoError(t, chat.OpenConversation(101))
	assert.Len(t, chat.Messages().Snapshot(), 1, "re-selecting must not clear the loaded history")
}

func TestSendWithoutOpenConversationFails(t *testing.T) {
	b := newBackend(t)
	chat := startClient(t, b, alice)

	_, err := chat.Send("hello?")
	assert.Error(t, err)
	assert.Empty(t, chat.Messages().Snapshot())
}

func TestSendRejectsBlankMessage(t *testing.T) {
	b := newBackend(t)
	chat := startClient(t, b, alice)
	require.NoError(t, chat.OpenConversation(101))

	_, err := chat.Send("   ")
	assert.Error(t, err)
	assert.Empty(t, chat.Messages().Snapshot(), "invalid input must not be appended optimistically")
}

func TestSendIsOptimistic(t *testing.T) {
	b := newBackend(t)
	b.AddMessage(101, bob.IDNumber, "where are you?")

	chat := startClient(t, b, alice)
	require.NoError(t, chat.OpenConversation(101))
	require.Eventually(t, func() bool { return len(chat.Messages().Snapshot()) == 1 }, waitFor, tick)

	b.HoldMessageDelivery()
	msg, err := chat.Send("on my way")
	require.NoError(t, err)
	assert.True(t, msg.Pending())

	msgs := chat.Messages().Snapshot()
	require.Len(t, msgs, 2, "the message shows before any server acknowledgement")
	assert.True(t, msgs[1].Pending())

	b.ReleaseMessages()
	assert.Eventually(t, func() bool {
		msgs := chat.Messages().Snapshot()
		return len(msgs) == 2 && !msgs[1].Pending() && msgs[1].ID != 0
	}, waitFor, tick, "the echo replaces the placeholder without duplicating it")
}

func TestReconnectEchoDoesNotDuplicateMessage(t *testing.T) {
	b := newBackend(t)
	b.AddMessage(101, bob.IDNumber, "where are you?")

	chat := startClient(t, b, alice)
	require.NoError(t, chat.OpenConversation(101))
	require.Eventually(t, func() bool { return len(chat.Messages().Snapshot()) == 1 }, waitFor, tick)

	b.HoldMessageDelivery()
	_, err := chat.Send("ping")
	require.NoError(t, err)

	// wait until the backend has persisted the send, then cut the socket
	// so the echo arrives on a fresh connection
	require.Eventually(t, func() bool {
		return len(b.Notifications(bob.IDNumber)) == 1
	}, waitFor, tick)
	b.DropConnections()
	require.Eventually(t, func() bool { return b.RoomMembers(101) == 1 }, waitFor, tick)

	b.ReleaseMessages()
	assert.Eventually(t, func() bool {
		msgs := chat.Messages().Snapshot()
		return len(msgs) == 2 && msgs[1].ID != 0 && !msgs[1].Pending() && msgs[1].Text == "ping"
	}, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, chat.Messages().Snapshot(), 2, "the late echo must not create a second entry")
}
