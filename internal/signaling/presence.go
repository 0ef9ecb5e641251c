package signaling

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"friendclub-backend/pkg/logger"
)

// PresenceMirror copies presence into a shared store for other services.
// It is informational only; the in-memory registry stays authoritative.
type PresenceMirror interface {
	SetUserOnline(ctx context.Context, userID, userName string) error
	SetUserOffline(ctx context.Context, userID string) error
	RefreshPresence(ctx context.Context, userID string) error
}

// PresenceEntry is the live connection currently registered under a user name
type PresenceEntry struct {
	UserName       string
	ExternalUserID string
	Conn           *Conn
}

// Registry maps user names to their single live connection
type Registry struct {
	byName     map[string]*PresenceEntry
	byExternal map[string]*PresenceEntry
	owned      map[string]string // connection id -> user name

	conns   *Connections
	mirror  PresenceMirror
	queue   Queue
	metrics Metrics
}

// NewRegistry creates an empty registry broadcasting user-list through conns.
// mirror may be nil.
func NewRegistry(conns *Connections, mirror PresenceMirror, queue Queue, m Metrics) *Registry {
	return &Registry{
		byName:     make(map[string]*PresenceEntry),
		byExternal: make(map[string]*PresenceEntry),
		owned:      make(map[string]string),
		conns:      conns,
		mirror:     mirror,
		queue:      queue,
		metrics:    m,
	}
}

// Register inserts or replaces the entry for userName. The displaced
// connection, if any, is not notified. A connection registering under a new
// name gives up its previous one.
func (r *Registry) Register(userName string, conn *Conn, externalUserID string) {
	if prev, ok := r.owned[conn.ID]; ok && prev != userName {
		r.drop(prev)
	}
	if prev, ok := r.byName[userName]; ok {
		r.drop(prev.UserName)
	}
	if prev, ok := r.byExternal[externalUserID]; ok && externalUserID != "" {
		r.drop(prev.UserName)
	}

	entry := &PresenceEntry{UserName: userName, ExternalUserID: externalUserID, Conn: conn}
	r.byName[userName] = entry
	if externalUserID != "" {
		r.byExternal[externalUserID] = entry
	}
	r.owned[conn.ID] = userName
	conn.UserName = userName
	conn.ExternalUserID = externalUserID

	if externalUserID != "" {
		r.mirrorJob("presence.online", func(ctx context.Context) error {
			return r.mirror.SetUserOnline(ctx, externalUserID, userName)
		})
	}
	r.broadcast()
}

// Lookup returns the live entry for userName
func (r *Registry) Lookup(userName string) (*PresenceEntry, bool) {
	entry, ok := r.byName[userName]
	return entry, ok
}

// LookupByExternalID resolves a durable user id, falling back to a name lookup
func (r *Registry) LookupByExternalID(externalUserID string) (*PresenceEntry, bool) {
	if entry, ok := r.byExternal[externalUserID]; ok && externalUserID != "" {
		return entry, true
	}
	return r.Lookup(externalUserID)
}

// Owns reports whether conn is the connection currently registered under its name
func (r *Registry) Owns(conn *Conn) bool {
	name, ok := r.owned[conn.ID]
	return ok && name == conn.UserName
}

// Remove deletes the entry owned by connID and broadcasts the new list.
// Returns the removed user name; removing an absent connection is a no-op.
func (r *Registry) Remove(connID string) (string, bool) {
	name, ok := r.owned[connID]
	if !ok {
		return "", false
	}
	entry := r.byName[name]
	r.drop(name)
	if entry.ExternalUserID != "" {
		userID := entry.ExternalUserID
		r.mirrorJob("presence.offline", func(ctx context.Context) error {
			return r.mirror.SetUserOffline(ctx, userID)
		})
	}
	r.broadcast()
	return name, true
}

// Online returns the registered user names in sorted order
func (r *Registry) Online() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Count() int {
	return len(r.byName)
}

// Refresh extends the mirror TTL of every user with an external id
func (r *Registry) Refresh() {
	for _, entry := range r.byName {
		if entry.ExternalUserID == "" {
			continue
		}
		userID := entry.ExternalUserID
		r.mirrorJob("presence.refresh", func(ctx context.Context) error {
			return r.mirror.RefreshPresence(ctx, userID)
		})
	}
}

func (r *Registry) drop(userName string) {
	entry, ok := r.byName[userName]
	if !ok {
		return
	}
	delete(r.byName, userName)
	if entry.ExternalUserID != "" && r.byExternal[entry.ExternalUserID] == entry {
		delete(r.byExternal, entry.ExternalUserID)
	}
	if r.owned[entry.Conn.ID] == userName {
		delete(r.owned, entry.Conn.ID)
	}
}

func (r *Registry) broadcast() {
	r.metrics.SetOnlineUsers(len(r.byName))
	r.conns.Broadcast("user-list", r.Online())
}

func (r *Registry) mirrorJob(name string, run func(ctx context.Context) error) {
	if r.mirror == nil {
		return
	}
	r.queue.Enqueue(Job{
		Name: name,
		Run:  run,
		OnError: func(err error) {
			logger.Debug("Presence mirror update failed", zap.String("job", name), zap.Error(err))
		},
	})
}
