package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(mirror PresenceMirror) (*Registry, *Connections) {
	conns := NewConnections()
	return NewRegistry(conns, mirror, &inlineQueue{}, nopMetrics{}), conns
}

func addConn(conns *Connections, id string) (*Conn, *recorder) {
	rec := &recorder{}
	conn := NewConn(id, rec, nil)
	conns.Add(conn)
	return conn, rec
}

func TestRegistryRegisterBroadcastsUserList(t *testing.T) {
	reg, conns := newTestRegistry(nil)
	alice, aliceRec := addConn(conns, "c1")
	bob, bobRec := addConn(conns, "c2")

	reg.Register("bob", bob, "")
	reg.Register("alice", alice, "")

	lists := bobRec.named("user-list")
	require.Len(t, lists, 2)
	assert.Equal(t, []string{"alice", "bob"}, lists[1].Payload)
	assert.Equal(t, []string{"alice", "bob"}, aliceRec.named("user-list")[1].Payload)
	assert.Equal(t, "alice", alice.UserName)
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	reg, conns := newTestRegistry(nil)
	first, firstRec := addConn(conns, "c1")
	second, _ := addConn(conns, "c2")

	reg.Register("alice", first, "7")
	reg.Register("alice", second, "7")

	entry, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", entry.Conn.ID)
	assert.False(t, reg.Owns(first))
	assert.True(t, reg.Owns(second))
	assert.Equal(t, 1, reg.Count())

	for _, e := range firstRec.events {
		assert.Equal(t, "user-list", e.Event, "displaced connection must not be notified")
	}

	// The displaced connection going away leaves the new entry alone
	_, removed := reg.Remove("c1")
	assert.False(t, removed)
	entry, ok = reg.LookupByExternalID("7")
	require.True(t, ok)
	assert.Equal(t, "c2", entry.Conn.ID)
}

func TestRegistryRenameDropsPreviousName(t *testing.T) {
	reg, conns := newTestRegistry(nil)
	conn, _ := addConn(conns, "c1")

	reg.Register("alice", conn, "")
	reg.Register("alicia", conn, "")

	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, []string{"alicia"}, reg.Online())
}

func TestRegistryLookupByExternalIDFallsBackToName(t *testing.T) {
	reg, conns := newTestRegistry(nil)
	alice, _ := addConn(conns, "c1")
	bob, _ := addConn(conns, "c2")
	reg.Register("alice", alice, "42")
	reg.Register("bob", bob, "")

	entry, ok := reg.LookupByExternalID("42")
	require.True(t, ok)
	assert.Equal(t, "alice", entry.UserName)

	entry, ok = reg.LookupByExternalID("bob")
	require.True(t, ok)
	assert.Equal(t, "c2", entry.Conn.ID)

	_, ok = reg.LookupByExternalID("99")
	assert.False(t, ok)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg, conns := newTestRegistry(nil)
	alice, _ := addConn(conns, "c1")
	_, watcherRec := addConn(conns, "c2")
	reg.Register("alice", alice, "42")

	name, ok := reg.Remove("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Empty(t, reg.Online())
	_, found := reg.LookupByExternalID("42")
	assert.False(t, found)

	broadcasts := len(watcherRec.named("user-list"))
	_, ok = reg.Remove("c1")
	assert.False(t, ok)
	assert.Len(t, watcherRec.named("user-list"), broadcasts, "second remove must not broadcast")
}

func TestRegistryMirrorsExternalUsers(t *testing.T) {
	mirror := new(MockPresenceMirror)
	mirror.On("SetUserOnline", mock.Anything, "42", "alice").Return(nil).Once()
	mirror.On("RefreshPresence", mock.Anything, "42").Return(nil).Once()
	mirror.On("SetUserOffline", mock.Anything, "42").Return(nil).Once()

	reg, conns := newTestRegistry(mirror)
	alice, _ := addConn(conns, "c1")
	guest, _ := addConn(conns, "c2")

	reg.Register("alice", alice, "42")
	reg.Register("guest", guest, "")
	reg.Refresh()
	reg.Remove("c1")
	reg.Remove("c2")

	mirror.AssertExpectations(t)
}
