package model

import "time"

// Conversation is one booked appointment's chat thread as it appears in
// the sidebar roster. The appointment id doubles as the conversation id
// everywhere in the protocol.
type Conversation struct {
	AppointmentID    int64  `json:"appointment_id"`
	PartnerID        string `json:"partner_id"`
	PartnerFirstName string `json:"first_name"`
	PartnerLastName  string `json:"last_name"`
	CourseCode       string `json:"course_code"`
	CourseName       string `json:"course_name"`
	AppointmentDate  string `json:"appointment_date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`

	// Number of messages the local user has not seen yet
	UnreadCount int `json:"unread_count"`
}

// PartnerName returns the partner's display name.
func (c Conversation) PartnerName() string {
	return c.PartnerFirstName + " " + c.PartnerLastName
}

// Message is a single chat message. ID is assigned by the server once
// the message is persisted; TempID is set only on optimistic local
// sends and never leaves the session.
type Message struct {
	ID            int64     `json:"id,omitempty"`
	TempID        string    `json:"temp_id,omitempty"`
	AppointmentID int64     `json:"appointment_id"`
	SenderID      string    `json:"sender_id"`
	Text          string    `json:"message_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pending reports whether the message is an optimistic send that has
// not been acknowledged by the server yet.
func (m Message) Pending() bool {
	return m.TempID != "" && m.ID == 0
}

// PartnerGroup is the collapsible sidebar view: every conversation
// shared with one partner, with the group's summed unread count.
type PartnerGroup struct {
	PartnerID     string
	PartnerName   string
	TotalUnread   int
	Conversations []Conversation
}

type SendMessageRequest struct {
	AppointmentID int64  `json:"appointment_id" validate:"required,gt=0"`
	SenderID      string `json:"sender_id" validate:"required"`
	Text          string `json:"message_text" validate:"required,notblank,max=2000"`
}
