package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call record
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusMissed    CallStatus = "missed"
	CallStatusEnded     CallStatus = "ended"
	CallStatusBusy      CallStatus = "busy"
	CallStatusCancelled CallStatus = "cancelled"
)

// CallType is the media kind requested by the caller
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// validCallTransitions lists every status change the lifecycle manager may perform.
// Busy records are created terminal and never transition.
var validCallTransitions = map[CallStatus][]CallStatus{
	CallStatusRinging:   {CallStatusAccepted, CallStatusRejected, CallStatusMissed, CallStatusCancelled},
	CallStatusAccepted:  {CallStatusEnded},
	CallStatusRejected:  {},
	CallStatusMissed:    {},
	CallStatusEnded:     {},
	CallStatusBusy:      {},
	CallStatusCancelled: {},
}

// Valid reports whether s is a known status
func (s CallStatus) Valid() bool {
	_, ok := validCallTransitions[s]
	return ok
}

// CanTransitionTo checks if a transition from s to next is allowed
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, allowed := range validCallTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true when no further transition is possible
func (s CallStatus) IsTerminal() bool {
	return s.Valid() && len(validCallTransitions[s]) == 0
}

// IsLive returns true for ringing and accepted calls
func (s CallStatus) IsLive() bool {
	return s == CallStatusRinging || s == CallStatusAccepted
}

// Valid reports whether t is audio or video
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// Call represents one call request between two users.
// Maps to CockroachDB call_logs table.
type Call struct {
	CallID          uuid.UUID  `json:"call_id"`
	CallerName      string     `json:"caller_name"`
	CalleeName      string     `json:"callee_name"`
	CallerID        string     `json:"caller_id,omitempty"` // external user id, may be empty
	CalleeID        string     `json:"callee_id,omitempty"`
	RoomName        string     `json:"room_name"`
	CallType        CallType   `json:"call_type"`
	Status          CallStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	CreatedBy       string     `json:"created_by"`
	UpdatedBy       string     `json:"updated_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Transition moves the call to next, stamping answeredAt or endedAt.
// Returns an error and leaves the call untouched when the move is not allowed.
func (c *Call) Transition(next CallStatus, at time.Time, by string) error {
	if !c.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid call transition %s -> %s", c.Status, next)
	}

	c.Status = next
	switch {
	case next == CallStatusAccepted:
		c.AnsweredAt = &at
	case next.IsTerminal():
		c.EndedAt = &at
	}
	c.UpdatedBy = by
	c.UpdatedAt = at
	return nil
}

// ElapsedSince returns whole seconds between answer and at, or 0 if never answered
func (c *Call) ElapsedSince(at time.Time) int {
	if c.AnsweredAt == nil || at.Before(*c.AnsweredAt) {
		return 0
	}
	return int(at.Sub(*c.AnsweredAt) / time.Second)
}

// Involves reports whether userName is the caller or the callee
func (c *Call) Involves(userName string) bool {
	return c.CallerName == userName || c.CalleeName == userName
}

// PeerOf returns the other participant's user name
func (c *Call) PeerOf(userName string) string {
	if c.CallerName == userName {
		return c.CalleeName
	}
	return c.CallerName
}

// InvolvesExternal reports whether the external user id is a participant
func (c *Call) InvolvesExternal(userID string) bool {
	return userID != "" && (c.CallerID == userID || c.CalleeID == userID)
}

// Clone returns a copy safe to hand to another goroutine
func (c *Call) Clone() *Call {
	cp := *c
	if c.AnsweredAt != nil {
		t := *c.AnsweredAt
		cp.AnsweredAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// CallFilter narrows call history queries
type CallFilter struct {
	UserID   string
	Status   CallStatus
	CallType CallType
	Limit    int
	Offset   int
}

// CallStat is one status/type bucket of call statistics
type CallStat struct {
	Status        CallStatus `json:"status"`
	CallType      CallType   `json:"callType"`
	Count         int64      `json:"count"`
	TotalDuration int64      `json:"totalDuration"`
}
