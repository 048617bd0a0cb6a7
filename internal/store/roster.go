package store

import (
	"sort"
	"sync"

	"LavTutorClient/internal/model"
)

// Roster holds the sidebar list of conversations, ordered most recently
// active first.
type Roster struct {
	mu            sync.RWMutex
	conversations []model.Conversation
}

func NewRoster() *Roster {
	return &Roster{}
}

// SetConversations replaces the roster, typically after the initial
// partner fetch.
func (r *Roster) SetConversations(list []model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append([]model.Conversation(nil), list...)
}

// AppointmentIDs lists every conversation id, for the bulk monitor
// call.
func (r *Roster) AppointmentIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.conversations))
	for _, c := range r.conversations {
		ids = append(ids, c.AppointmentID)
	}
	return ids
}

// Touch records activity on a conversation: it moves to the front of
// the roster, every other conversation keeps its relative order, and
// its unread count survives the move. Viewing the conversation forces
// unread to zero; inbound messages from the partner increment it; the
// user's own messages never do.
func (r *Roster) Touch(appointmentID int64, fromSelf, isOpen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(appointmentID)
	if idx < 0 {
		return
	}

	c := r.conversations[idx]
	if isOpen {
		c.UnreadCount = 0
	} else if !fromSelf {
		c.UnreadCount++
	}

	r.conversations = append(r.conversations[:idx], r.conversations[idx+1:]...)
	r.conversations = append([]model.Conversation{c}, r.conversations...)
}

// ResetUnread zeroes a conversation's unread count without reordering.
func (r *Roster) ResetUnread(appointmentID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.indexOf(appointmentID); idx >= 0 {
		r.conversations[idx].UnreadCount = 0
	}
}

// Get returns a conversation by appointment id.
func (r *Roster) Get(appointmentID int64) (model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(appointmentID); idx >= 0 {
		return r.conversations[idx], true
	}
	return model.Conversation{}, false
}

// Snapshot returns a copy of the roster in display order.
func (r *Roster) Snapshot() []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Conversation(nil), r.conversations...)
}

// Groups returns the roster grouped by partner for the collapsible
// sidebar. Group order follows roster recency of each partner's first
// entry; within a group conversations sort by appointment date and
// start time, most recent first. Group unread is the sum of members.
func (r *Roster) Groups() []model.PartnerGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make([]string, 0)
	byPartner := make(map[string]*model.PartnerGroup)

	for _, c := range r.conversations {
		g, ok := byPartner[c.PartnerID]
		if !ok {
			g = &model.PartnerGroup{
				PartnerID:   c.PartnerID,
				PartnerName: c.PartnerName(),
			}
			byPartner[c.PartnerID] = g
			order = append(order, c.PartnerID)
		}
		g.TotalUnread += c.UnreadCount
		g.Conversations = append(g.Conversations, c)
	}

	groups := make([]model.PartnerGroup, 0, len(order))
	for _, partnerID := range order {
		g := byPartner[partnerID]
		sort.SliceStable(g.Conversations, func(i, j int) bool {
			a, b := g.Conversations[i], g.Conversations[j]
			if a.AppointmentDate != b.AppointmentDate {
				return a.AppointmentDate > b.AppointmentDate
			}
			return a.StartTime > b.StartTime
		})
		groups = append(groups, *g)
	}
	return groups
}

func (r *Roster) indexOf(appointmentID int64) int {
	for i, c := range r.conversations {
		if c.AppointmentID == appointmentID {
			return i
		}
	}
	return -1
}
