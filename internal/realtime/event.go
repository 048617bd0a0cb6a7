package realtime

import "encoding/json"

// Event names shared with the platform backend. The connection itself
// carries the user id, so there is no subscribe handshake beyond these.
const (
	EventMonitorAppointments   = "monitor_appointments"
	EventJoinAppointment       = "join_appointment"
	EventSendMessage           = "send_message"
	EventReceiveMessage        = "receive_message"
	EventLoadMessages          = "load_messages"
	EventMarkRead              = "mark_read"
	EventNewGlobalNotification = "new_global_notification"
	EventNotificationReadSync  = "notification_read_sync"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
