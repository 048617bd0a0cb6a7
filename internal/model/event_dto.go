package model

// Payloads for the named socket events shared with the platform
// backend. Field names follow the backend's wire format.

type MonitorAppointmentsPayload struct {
	AppointmentIDs []int64 `json:"appointment_ids"`
}

type JoinAppointmentPayload struct {
	AppointmentID int64  `json:"appointment_id"`
	UserID        string `json:"user_id"`
}

type MarkReadPayload struct {
	AppointmentID int64  `json:"appointment_id"`
	UserID        string `json:"user_id"`
}

// ReadSyncPayload is broadcast by whichever component marked a
// notification read, and consumed by every other mounted component so
// their unread state converges.
type ReadSyncPayload struct {
	Type           NotificationType `json:"type"`
	ReferenceID    int64            `json:"reference_id"`
	UserID         string           `json:"user_id"`
	NotificationID int64            `json:"notification_id,omitempty"`
}
