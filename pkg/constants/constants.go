// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// WebSocket constants
const (
	// WebSocketPongWait is how long the server waits for a pong before dropping the peer
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must stay below WebSocketPongWait
	WebSocketPingInterval = (WebSocketPongWait * 9) / 10

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// WebSocketMaxMessageSize caps inbound frames; SDP blobs stay well under this
	WebSocketMaxMessageSize = 64 * 1024

	// WebSocketSendBuffer is the per-connection outbound queue length
	WebSocketSendBuffer = 256
)

// Signaling constants
const (
	// RoomCapacity is the maximum number of members in a signaling room
	RoomCapacity = 2

	// DefaultRingTimeout is the no-answer window for a ringing call
	DefaultRingTimeout = 30 * time.Second

	// PresenceRefreshInterval is how often the Redis presence mirror is refreshed
	PresenceRefreshInterval = 5 * time.Minute

	// DirectRoomPrefix prefixes canonical 1:1 room names built from external user ids
	DirectRoomPrefix = "room"

	// NamedRoomPrefix prefixes canonical 1:1 room names built from user names
	NamedRoomPrefix = "named"
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Pagination constants
const (
	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100

	// DefaultChatHistoryLimit is the default number of chat messages returned
	DefaultChatHistoryLimit = 50

	// DefaultStatsPeriodDays is the default window for call statistics
	DefaultStatsPeriodDays = 30
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed chat message length
	MaxMessageLength = 10000

	// MessageTypeText is the default chat message type
	MessageTypeText = "text"
)
