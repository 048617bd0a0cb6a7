package testutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"LavTutorClient/internal/config"
	"LavTutorClient/internal/model"
	"LavTutorClient/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	slogchi "github.com/samber/slog-chi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type appointment struct {
	id               int64
	a, b             model.UserProfile
	courseCode       string
	courseName       string
	date, start, end string
}

type conn struct {
	ws      *websocket.Conn
	userID  string
	writeMu sync.Mutex
	rooms   map[int64]struct{}
}

func (c *conn) write(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	c.ws.WriteMessage(websocket.TextMessage, frame)
}

type heldDelivery struct {
	appointmentID int64
	frame         []byte
}

// Backend is an in-process stand-in for the tutoring platform backend:
// the REST endpoints and socket events the client consumes, with the
// real server's room semantics. Room membership is per-connection and
// deliberately lost when a connection drops, so reconnect tests behave
// like production.
type Backend struct {
	mu sync.Mutex

	usersByGoogle map[string]model.UserProfile
	usersByID     map[string]model.UserProfile
	appointments  map[int64]*appointment
	messages      map[int64][]model.Message
	notifications map[string][]model.Notification

	nextMessageID      int64
	nextNotificationID int64

	conns map[*conn]struct{}

	holding bool
	held    []heldDelivery

	server *httptest.Server
}

func NewBackend() *Backend {
	b := &Backend{
		usersByGoogle: make(map[string]model.UserProfile),
		usersByID:     make(map[string]model.UserProfile),
		appointments:  make(map[int64]*appointment),
		messages:      make(map[int64][]model.Message),
		notifications: make(map[string][]model.Notification),
		conns:         make(map[*conn]struct{}),
	}

	r := chi.NewRouter()
	r.Use(slogchi.New(slog.Default()))
	r.Use(middleware.Recoverer)

	r.Get("/api/auth/get_user", b.handleGetUser)
	r.Get("/api/tutee/by_google/{googleID}", b.handleProfile)
	r.Get("/api/chat/partners", b.handlePartners)
	r.Get("/api/notifications/user/{userID}", b.handleNotifications)
	r.Post("/api/notifications/read/{notificationID}", b.handleMarkRead)
	r.Post("/api/notifications/mark_chat_read/{appointmentID}/{recipientID}", b.handleMarkChatRead)
	r.Get("/ws", b.handleSocket)

	b.server = httptest.NewServer(r)
	return b
}

func (b *Backend) Close() {
	b.mu.Lock()
	for c := range b.conns {
		c.ws.Close()
	}
	b.mu.Unlock()
	b.server.Close()
}

func (b *Backend) BaseURL() string {
	return b.server.URL
}

func (b *Backend) SocketURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

// ClientConfig builds a client configuration for one platform user.
// The session token is simply the user's google id; handleGetUser
// resolves it the way the real backend resolves its session cookie.
func (b *Backend) ClientConfig(u model.UserProfile) *config.AppConfig {
	return &config.AppConfig{
		APIBaseURL:         b.BaseURL(),
		SocketURL:          b.SocketURL(),
		SessionToken:       u.GoogleID,
		ReconnectSeconds:   1,
		HTTPTimeoutSeconds: 5,
	}
}

func (b *Backend) AddUser(u model.UserProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usersByGoogle[u.GoogleID] = u
	b.usersByID[u.IDNumber] = u
}

// AddAppointment registers a booked appointment shared by two users;
// it shows up in both rosters.
func (b *Backend) AddAppointment(id int64, a, bUser model.UserProfile, courseCode, courseName, date, start, end string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appointments[id] = &appointment{
		id: id, a: a, b: bUser,
		courseCode: courseCode, courseName: courseName,
		date: date, start: start, end: end,
	}
}

// AddMessage seeds conversation history without any fan-out.
func (b *Backend) AddMessage(appointmentID int64, senderID, text string) model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextMessageID++
	msg := model.Message{
		ID:            b.nextMessageID,
		AppointmentID: appointmentID,
		SenderID:      senderID,
		Text:          text,
		CreatedAt:     time.Now(),
	}
	b.messages[appointmentID] = append(b.messages[appointmentID], msg)
	return msg
}

// PushNotification stores a notification and pushes it to the
// recipient's open connections, assigning an id when the caller left
// it zero.
func (b *Backend) PushNotification(n model.Notification) model.Notification {
	b.mu.Lock()
	if n.NotificationID == 0 {
		b.nextNotificationID++
		n.NotificationID = b.nextNotificationID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	b.notifications[n.RecipientID] = append([]model.Notification{n}, b.notifications[n.RecipientID]...)
	b.mu.Unlock()

	b.sendToUser(n.RecipientID, realtime.EventNewGlobalNotification, n)
	return n
}

// Notifications returns the server-side notification state for
// assertions.
func (b *Backend) Notifications(userID string) []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Notification(nil), b.notifications[userID]...)
}

// HoldMessageDelivery queues receive_message fan-outs instead of
// delivering them, so tests can stage a reconnect between a send and
// its server echo.
func (b *Backend) HoldMessageDelivery() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holding = true
}

// ReleaseMessages delivers everything held, resolving room membership
// against the connections that exist now.
func (b *Backend) ReleaseMessages() {
	b.mu.Lock()
	held := b.held
	b.held = nil
	b.holding = false
	b.mu.Unlock()

	for _, d := range held {
		b.deliverToRoom(d.appointmentID, d.frame)
	}
}

// DropConnections severs every socket, as a network blip would.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.ws.Close()
	}
}

// ConnectionCount reports how many sockets are currently open.
func (b *Backend) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// RoomMembers reports how many open connections joined one
// appointment's room. Tests wait on it before staging deliveries.
func (b *Backend) RoomMembers(appointmentID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for c := range b.conns {
		if _, ok := c.rooms[appointmentID]; ok {
			count++
		}
	}
	return count
}

func (b *Backend) handleGetUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	u, ok := b.usersByGoogle[token]
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sub": u.GoogleID})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	googleID := chi.URLParam(r, "googleID")

	b.mu.Lock()
	u, ok := b.usersByGoogle[googleID]
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) handlePartners(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	b.mu.Lock()
	list := make([]model.Conversation, 0)
	for _, appt := range b.appointments {
		var partner model.UserProfile
		switch userID {
		case appt.a.IDNumber:
			partner = appt.b
		case appt.b.IDNumber:
			partner = appt.a
		default:
			continue
		}
		list = append(list, model.Conversation{
			AppointmentID:    appt.id,
			PartnerID:        partner.IDNumber,
			PartnerFirstName: partner.FirstName,
			PartnerLastName:  partner.LastName,
			CourseCode:       appt.courseCode,
			CourseName:       appt.courseName,
			AppointmentDate:  appt.date,
			StartTime:        appt.start,
			EndTime:          appt.end,
			UnreadCount:      b.unreadChatCountLocked(appt.id, userID),
		})
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

func (b *Backend) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	b.mu.Lock()
	list := append([]model.Notification(nil), b.notifications[userID]...)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

func (b *Backend) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad Request"})
		return
	}

	b.mu.Lock()
	for userID, list := range b.notifications {
		for i, n := range list {
			if n.NotificationID == id {
				b.notifications[userID][i].IsRead = true
			}
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *Backend) handleMarkChatRead(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := strconv.ParseInt(chi.URLParam(r, "appointmentID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad Request"})
		return
	}
	recipientID := chi.URLParam(r, "recipientID")

	b.mu.Lock()
	updated := b.markChatReadLocked(appointmentID, recipientID)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated_count": updated})
}

func (b *Backend) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{ws: ws, userID: userID, rooms: make(map[int64]struct{})}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
		ws.Close()
	}()

	ws.SetPingHandler(nil)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		b.handleEvent(c, env)
	}
}

func (b *Backend) handleEvent(c *conn, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventMonitorAppointments:
		var p model.MonitorAppointmentsPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		b.mu.Lock()
		for _, id := range p.AppointmentIDs {
			c.rooms[id] = struct{}{}
		}
		b.mu.Unlock()

	case realtime.EventJoinAppointment:
		var p model.JoinAppointmentPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		b.mu.Lock()
		c.rooms[p.AppointmentID] = struct{}{}
		b.markChatReadLocked(p.AppointmentID, p.UserID)
		history := append([]model.Message(nil), b.messages[p.AppointmentID]...)
		b.mu.Unlock()

		if frame, err := envelope(realtime.EventLoadMessages, history); err == nil {
			c.write(frame)
		}

	case realtime.EventSendMessage:
		b.handleSendMessage(env.Data)

	case realtime.EventMarkRead:
		// the real backend updates the message table here; nothing the
		// fake tracks

	case realtime.EventNotificationReadSync:
		var p model.ReadSyncPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		b.mu.Lock()
		if p.Type == model.NotificationNewMessage {
			b.markChatReadLocked(p.ReferenceID, p.UserID)
		}
		b.mu.Unlock()
		b.sendToUser(p.UserID, realtime.EventNotificationReadSync, p)
	}
}

func (b *Backend) handleSendMessage(data json.RawMessage) {
	var msg model.Message
	if json.Unmarshal(data, &msg) != nil {
		return
	}

	b.mu.Lock()
	appt, ok := b.appointments[msg.AppointmentID]
	if !ok {
		b.mu.Unlock()
		return
	}

	b.nextMessageID++
	msg.ID = b.nextMessageID
	msg.TempID = "" // persisted messages carry only the server id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	b.messages[msg.AppointmentID] = append(b.messages[msg.AppointmentID], msg)

	recipient := appt.a
	if msg.SenderID == appt.a.IDNumber {
		recipient = appt.b
	}
	sender := b.usersByID[msg.SenderID]
	notif := b.upsertChatNotificationLocked(msg.AppointmentID, sender, recipient.IDNumber)
	b.mu.Unlock()

	frame, err := envelope(realtime.EventReceiveMessage, msg)
	if err != nil {
		return
	}

	b.mu.Lock()
	holding := b.holding
	if holding {
		b.held = append(b.held, heldDelivery{appointmentID: msg.AppointmentID, frame: frame})
	}
	b.mu.Unlock()
	if !holding {
		b.deliverToRoom(msg.AppointmentID, frame)
	}

	b.sendToUser(recipient.IDNumber, realtime.EventNewGlobalNotification, notif)
}

func (b *Backend) upsertChatNotificationLocked(appointmentID int64, sender model.UserProfile, recipientID string) model.Notification {
	list := b.notifications[recipientID]
	for i, n := range list {
		if n.Type == model.NotificationNewMessage && n.ReferenceID == appointmentID {
			list[i].IsRead = false
			list[i].CreatedAt = time.Now()
			list[i].SenderID = sender.IDNumber
			list[i].SenderName = sender.FirstName + " " + sender.LastName
			return list[i]
		}
	}

	b.nextNotificationID++
	n := model.Notification{
		NotificationID: b.nextNotificationID,
		RecipientID:    recipientID,
		SenderID:       sender.IDNumber,
		SenderName:     sender.FirstName + " " + sender.LastName,
		Type:           model.NotificationNewMessage,
		ReferenceID:    appointmentID,
		MessageText:    sender.FirstName + " " + sender.LastName + " sent you a message.",
		CreatedAt:      time.Now(),
	}
	b.notifications[recipientID] = append([]model.Notification{n}, list...)
	return n
}

func (b *Backend) markChatReadLocked(appointmentID int64, recipientID string) int {
	updated := 0
	for i, n := range b.notifications[recipientID] {
		if n.Type == model.NotificationNewMessage && n.ReferenceID == appointmentID && !n.IsRead {
			b.notifications[recipientID][i].IsRead = true
			updated++
		}
	}
	return updated
}

func (b *Backend) unreadChatCountLocked(appointmentID int64, userID string) int {
	count := 0
	for _, n := range b.notifications[userID] {
		if n.Type == model.NotificationNewMessage && n.ReferenceID == appointmentID && !n.IsRead {
			count++
		}
	}
	return count
}

func (b *Backend) deliverToRoom(appointmentID int64, frame []byte) {
	b.mu.Lock()
	targets := make([]*conn, 0)
	for c := range b.conns {
		if _, ok := c.rooms[appointmentID]; ok {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.write(frame)
	}
}

func (b *Backend) sendToUser(userID string, event string, payload any) {
	frame, err := envelope(event, payload)
	if err != nil {
		return
	}

	b.mu.Lock()
	targets := make([]*conn, 0)
	for c := range b.conns {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.write(frame)
	}
}

func envelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(realtime.Envelope{Event: event, Data: data})
}
