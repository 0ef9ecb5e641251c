package signaling

import (
	"sort"

	"friendclub-backend/pkg/constants"
	"friendclub-backend/pkg/errors"
)

// Participant is one room member as seen by clients
type Participant struct {
	ConnectionID string `json:"connectionId"`
	UserName     string `json:"userName"`
}

type roomMember struct {
	conn     *Conn
	userName string
}

type room struct {
	name    string
	members []roomMember // join order
}

func (rm *room) indexOf(connID string) int {
	for i, m := range rm.members {
		if m.conn.ID == connID {
			return i
		}
	}
	return -1
}

func (rm *room) participants() []Participant {
	out := make([]Participant, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, Participant{ConnectionID: m.conn.ID, UserName: m.userName})
	}
	return out
}

// JoinResult reports the outcome of a join attempt
type JoinResult struct {
	Admitted     bool
	Participants []Participant
}

// Tracker holds room membership with a connection -> rooms back-reference,
// so disconnect cleanup only touches rooms the connection is in.
type Tracker struct {
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	metrics     Metrics
}

// NewTracker creates an empty room tracker
func NewTracker(m Metrics) *Tracker {
	return &Tracker{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		metrics:     m,
	}
}

// Join admits conn into roomName unless the room already holds two members.
// A refused join leaves the room untouched and sends room-full to conn only.
// userName is only used for connections that have not registered.
func (t *Tracker) Join(roomName string, conn *Conn, userName string) JoinResult {
	if conn.Registered() || userName == "" {
		userName = conn.UserName
	}

	rm, ok := t.rooms[roomName]
	if ok && rm.indexOf(conn.ID) >= 0 {
		participants := rm.participants()
		conn.Emit("room-participants", roomParticipantsPayload(roomName, participants))
		conn.Emit("room-ready", roomReadyPayload(roomName, participants))
		t.metrics.RecordRoomJoin("rejoined")
		return JoinResult{Admitted: true, Participants: participants}
	}
	if ok && len(rm.members) >= constants.RoomCapacity {
		full := errors.RoomFullError(roomName)
		conn.Emit("room-full", map[string]any{
			"roomName": roomName,
			"capacity": constants.RoomCapacity,
			"code":     full.Code,
			"message":  full.Message,
		})
		t.metrics.RecordRoomJoin("full")
		return JoinResult{Admitted: false, Participants: rm.participants()}
	}

	if !ok {
		rm = &room{name: roomName}
		t.rooms[roomName] = rm
	}
	rm.members = append(rm.members, roomMember{conn: conn, userName: userName})
	if t.memberships[conn.ID] == nil {
		t.memberships[conn.ID] = make(map[string]struct{})
	}
	t.memberships[conn.ID][roomName] = struct{}{}

	joined := map[string]any{
		"roomName":     roomName,
		"connectionId": conn.ID,
		"userName":     userName,
	}
	for _, m := range rm.members {
		if m.conn.ID != conn.ID {
			m.conn.Emit("user-joined", joined)
		}
	}

	participants := rm.participants()
	t.emitAll(rm, "room-participants", roomParticipantsPayload(roomName, participants))
	conn.Emit("room-ready", roomReadyPayload(roomName, participants))

	t.metrics.RecordRoomJoin("admitted")
	t.metrics.SetActiveRooms(len(t.rooms))
	return JoinResult{Admitted: true, Participants: participants}
}

// Leave removes conn from roomName. Leaving a room the connection is not in is a no-op.
func (t *Tracker) Leave(roomName string, conn *Conn) bool {
	rm, ok := t.rooms[roomName]
	if !ok {
		return false
	}
	idx := rm.indexOf(conn.ID)
	if idx < 0 {
		return false
	}

	left := rm.members[idx]
	rm.members = append(rm.members[:idx], rm.members[idx+1:]...)
	if rooms := t.memberships[conn.ID]; rooms != nil {
		delete(rooms, roomName)
		if len(rooms) == 0 {
			delete(t.memberships, conn.ID)
		}
	}

	if len(rm.members) == 0 {
		delete(t.rooms, roomName)
	} else {
		t.emitAll(rm, "user-left", map[string]any{
			"roomName":     roomName,
			"connectionId": conn.ID,
			"userName":     left.userName,
		})
		t.emitAll(rm, "room-participants", roomParticipantsPayload(roomName, rm.participants()))
	}

	t.metrics.SetActiveRooms(len(t.rooms))
	return true
}

// LeaveAll removes conn from every room it joined and returns their names
func (t *Tracker) LeaveAll(conn *Conn) []string {
	names := t.RoomsOf(conn.ID)
	for _, name := range names {
		t.Leave(name, conn)
	}
	return names
}

// RoomsOf returns the sorted room names connID is a member of
func (t *Tracker) RoomsOf(connID string) []string {
	rooms := t.memberships[connID]
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MembersOf returns the participants of roomName in join order
func (t *Tracker) MembersOf(roomName string) []Participant {
	rm, ok := t.rooms[roomName]
	if !ok {
		return []Participant{}
	}
	return rm.participants()
}

// Member returns connID's participant entry in roomName
func (t *Tracker) Member(roomName, connID string) (Participant, bool) {
	rm, ok := t.rooms[roomName]
	if !ok {
		return Participant{}, false
	}
	idx := rm.indexOf(connID)
	if idx < 0 {
		return Participant{}, false
	}
	m := rm.members[idx]
	return Participant{ConnectionID: m.conn.ID, UserName: m.userName}, true
}

func (t *Tracker) IsMember(roomName, connID string) bool {
	_, ok := t.Member(roomName, connID)
	return ok
}

// Peers returns the other members' connections
func (t *Tracker) Peers(roomName, connID string) []*Conn {
	rm, ok := t.rooms[roomName]
	if !ok {
		return nil
	}
	peers := make([]*Conn, 0, len(rm.members))
	for _, m := range rm.members {
		if m.conn.ID != connID {
			peers = append(peers, m.conn)
		}
	}
	return peers
}

// Count returns the number of non-empty rooms
func (t *Tracker) Count() int {
	return len(t.rooms)
}

func (t *Tracker) emitAll(rm *room, event string, payload any) {
	for _, m := range rm.members {
		m.conn.Emit(event, payload)
	}
}

func roomParticipantsPayload(roomName string, participants []Participant) map[string]any {
	return map[string]any{
		"roomName":     roomName,
		"participants": participants,
	}
}

func roomReadyPayload(roomName string, participants []Participant) map[string]any {
	return map[string]any{
		"roomName":     roomName,
		"ready":        len(participants) >= constants.RoomCapacity,
		"participants": len(participants),
	}
}
