package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendclub-backend/pkg/errors"
)

func newRoomConn(id string) (*Conn, *recorder) {
	rec := &recorder{}
	return NewConn(id, rec, nil), rec
}

func TestTrackerJoinTwoMembers(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, aRec := newRoomConn("a")
	b, bRec := newRoomConn("b")

	res := tr.Join("lobby", a, "alice")
	assert.True(t, res.Admitted)
	assert.False(t, aRec.last(t, "room-ready")["ready"].(bool))

	res = tr.Join("lobby", b, "bob")
	assert.True(t, res.Admitted)
	assert.Len(t, res.Participants, 2)

	for _, rec := range []*recorder{aRec, bRec} {
		participants := rec.last(t, "room-participants")["participants"].([]Participant)
		assert.Equal(t, []Participant{
			{ConnectionID: "a", UserName: "alice"},
			{ConnectionID: "b", UserName: "bob"},
		}, participants)
	}
	assert.True(t, bRec.last(t, "room-ready")["ready"].(bool))
	assert.Len(t, aRec.named("room-ready"), 1, "only the joiner gets room-ready")
	assert.Equal(t, "bob", aRec.last(t, "user-joined")["userName"])
	assert.False(t, bRec.has("user-joined"))
}

func TestTrackerRejectsThirdMember(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, aRec := newRoomConn("a")
	b, _ := newRoomConn("b")
	c, cRec := newRoomConn("c")
	tr.Join("lobby", a, "alice")
	tr.Join("lobby", b, "bob")
	aRec.reset()

	res := tr.Join("lobby", c, "carol")

	assert.False(t, res.Admitted)
	assert.Equal(t, "lobby", cRec.last(t, "room-full")["roomName"])
	assert.False(t, cRec.has("room-participants"))
	assert.Empty(t, aRec.events, "existing members see nothing")
	assert.Len(t, tr.MembersOf("lobby"), 2)
	assert.False(t, tr.IsMember("lobby", "c"))
	assert.Empty(t, tr.RoomsOf("c"))
}

func TestTrackerRejoinIsIdempotent(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, aRec := newRoomConn("a")
	tr.Join("lobby", a, "alice")

	res := tr.Join("lobby", a, "alice")

	assert.True(t, res.Admitted)
	assert.Len(t, tr.MembersOf("lobby"), 1)
	assert.Len(t, aRec.named("room-participants"), 2)
}

func TestTrackerLeave(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, _ := newRoomConn("a")
	b, bRec := newRoomConn("b")
	tr.Join("lobby", a, "alice")
	tr.Join("lobby", b, "bob")
	bRec.reset()

	assert.True(t, tr.Leave("lobby", a))
	assert.Equal(t, "alice", bRec.last(t, "user-left")["userName"])
	assert.Equal(t, []Participant{{ConnectionID: "b", UserName: "bob"}},
		bRec.last(t, "room-participants")["participants"])

	// Second leave is a no-op
	bRec.reset()
	assert.False(t, tr.Leave("lobby", a))
	assert.Empty(t, bRec.events)

	assert.True(t, tr.Leave("lobby", b))
	assert.Equal(t, 0, tr.Count())
	assert.Empty(t, tr.MembersOf("lobby"))
}

func TestTrackerLeaveAllUsesBackReference(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, _ := newRoomConn("a")
	b, bRec := newRoomConn("b")
	tr.Join("room-2", a, "alice")
	tr.Join("room-1", a, "alice")
	tr.Join("room-1", b, "bob")
	tr.Join("other", b, "bob")

	left := tr.LeaveAll(a)

	assert.Equal(t, []string{"room-1", "room-2"}, left)
	assert.Equal(t, 2, tr.Count())
	assert.Equal(t, []string{"other", "room-1"}, tr.RoomsOf("b"))
	require.True(t, bRec.has("user-left"))
	assert.Empty(t, tr.RoomsOf("a"))
}

func TestTrackerPeersAndMember(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, _ := newRoomConn("a")
	b, _ := newRoomConn("b")
	tr.Join("lobby", a, "alice")
	tr.Join("lobby", b, "bob")

	peers := tr.Peers("lobby", "a")
	require.Len(t, peers, 1)
	assert.Equal(t, "b", peers[0].ID)

	m, ok := tr.Member("lobby", "b")
	require.True(t, ok)
	assert.Equal(t, "bob", m.UserName)
	_, ok = tr.Member("nowhere", "b")
	assert.False(t, ok)
}

func TestTrackerJoinUsesRegisteredName(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	a, _ := newRoomConn("a")
	a.UserName = "mallory"
	b, bRec := newRoomConn("b")
	tr.Join("lobby", b, "bob")

	tr.Join("lobby", a, "alice")

	assert.Equal(t, "mallory", bRec.last(t, "user-joined")["userName"])
	m, ok := tr.Member("lobby", "a")
	require.True(t, ok)
	assert.Equal(t, "mallory", m.UserName)
}

func TestTrackerRoomFullCarriesCode(t *testing.T) {
	tr := NewTracker(nopMetrics{})
	for _, id := range []string{"a", "b"} {
		c, _ := newRoomConn(id)
		tr.Join("lobby", c, id)
	}
	c, cRec := newRoomConn("c")

	tr.Join("lobby", c, "carol")

	full := cRec.last(t, "room-full")
	assert.Equal(t, errors.ErrCodeRoomFull, full["code"])
	assert.Equal(t, 2, full["capacity"])
	assert.Contains(t, full["message"], "lobby")
}
