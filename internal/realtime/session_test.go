package realtime_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"LavTutorClient/internal/model"
	"LavTutorClient/internal/realtime"
	"LavTutorClient/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sessionUserA = model.UserProfile{IDNumber: "2021-00001", GoogleID: "google-a", FirstName: "Ana", LastName: "Cruz"}
	sessionUserB = model.UserProfile{IDNumber: "2021-00002", GoogleID: "google-b", FirstName: "Ben", LastName: "Uy"}
)

func newTestSession(t *testing.T, b *testutil.Backend, userID string) *realtime.Session {
	t.Helper()
	s := realtime.NewSession(b.SocketURL(), userID, 50*time.Millisecond)
	t.Cleanup(s.Close)
	return s
}

func TestSessionEmitAndReceive(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser(sessionUserA)
	b.AddUser(sessionUserB)
	b.AddAppointment(101, sessionUserA, sessionUserB, "CS101", "Intro to Programming", "2026-09-01", "09:00", "10:00")
	b.AddMessage(101, sessionUserB.IDNumber, "hello")

	s := newTestSession(t, b, sessionUserA.IDNumber)

	history := make(chan []model.Message, 1)
	s.On(realtime.EventLoadMessages, func(data json.RawMessage) {
		var msgs []model.Message
		if json.Unmarshal(data, &msgs) == nil {
			history <- msgs
		}
	})

	require.NoError(t, s.Dial(context.Background()))
	require.NoError(t, s.Emit(realtime.EventJoinAppointment, model.JoinAppointmentPayload{
		AppointmentID: 101,
		UserID:        sessionUserA.IDNumber,
	}))

	select {
	case msgs := <-history:
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Text)
		assert.Equal(t, int64(101), msgs[0].AppointmentID)
	case <-time.After(5 * time.Second):
		t.Fatal("no load_messages reply")
	}
}

func TestSessionReconnectRunsConnectHooks(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser(sessionUserA)

	s := newTestSession(t, b, sessionUserA.IDNumber)

	var connects atomic.Int32
	s.OnConnect(func() { connects.Add(1) })

	require.NoError(t, s.Dial(context.Background()))
	assert.Eventually(t, func() bool { return connects.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	b.DropConnections()

	assert.Eventually(t, func() bool { return connects.Load() >= 2 }, 5*time.Second, 10*time.Millisecond,
		"hooks must run again after a redial")
	assert.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestSessionEmitAfterCloseFails(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.AddUser(sessionUserA)

	s := realtime.NewSession(b.SocketURL(), sessionUserA.IDNumber, 50*time.Millisecond)
	require.NoError(t, s.Dial(context.Background()))
	s.Close()

	assert.Error(t, s.Emit(realtime.EventMarkRead, model.MarkReadPayload{AppointmentID: 101, UserID: sessionUserA.IDNumber}))
}

func TestSessionDialFailsWithoutServer(t *testing.T) {
	s := realtime.NewSession("ws://127.0.0.1:1/ws", "u1", 50*time.Millisecond)
	assert.Error(t, s.Dial(context.Background()))
}
