package model

import "time"

type NotificationType string

const (
	NotificationNewMessage      NotificationType = "NEW_MESSAGE"
	NotificationBookingRequest  NotificationType = "BOOKING_REQUEST"
	NotificationBookingApproved NotificationType = "BOOKING_APPROVED"
	NotificationBookingRejected NotificationType = "BOOKING_REJECTED"
)

// Notification is a cross-cutting platform notification. ReferenceID is
// the appointment id for NEW_MESSAGE and the booking id otherwise.
// Unrecognized types pass through untouched so old clients keep working
// when the backend grows new ones.
type Notification struct {
	NotificationID int64            `json:"notification_id"`
	RecipientID    string           `json:"recipient_id"`
	SenderID       string           `json:"sender_id"`
	SenderName     string           `json:"sender_name,omitempty"`
	Type           NotificationType `json:"type"`
	ReferenceID    int64            `json:"reference_id"`
	MessageText    string           `json:"message_text"`
	IsRead         bool             `json:"is_read"`
	CreatedAt      time.Time        `json:"created_at"`
}
