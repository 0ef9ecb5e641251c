package signaling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendclub-backend/internal/domain"
	"friendclub-backend/pkg/constants"
	"friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/logger"
)

// MessageStore persists chat messages
type MessageStore interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
}

// RoomSignal is the payload of room-offer, room-answer and room-ice-candidate
type RoomSignal struct {
	RoomName string          `json:"roomName"`
	Payload  json.RawMessage `json:"payload"`
}

// RoomTyping is the payload of room-typing
type RoomTyping struct {
	RoomName string `json:"roomName"`
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

// RoomMessage is the payload of room-message
type RoomMessage struct {
	RoomName    string `json:"roomName"`
	From        string `json:"from"`
	Message     string `json:"message"`
	SenderID    string `json:"senderId"`
	MessageType string `json:"messageType"`
}

// DirectMessage is the payload of send-message
type DirectMessage struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
}

// DirectTyping is the payload of typing and user-typing
type DirectTyping struct {
	From     string `json:"from"`
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// Relay forwards opaque payloads between room members or named peers.
// It never inspects negotiation payloads.
type Relay struct {
	rooms    *Tracker
	presence *Registry
	messages MessageStore
	queue    Queue
	metrics  Metrics
	now      func() time.Time
}

func newRelay(rooms *Tracker, presence *Registry, opts Options) *Relay {
	return &Relay{
		rooms:    rooms,
		presence: presence,
		messages: opts.Messages,
		queue:    opts.Queue,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Signal relays a negotiation payload to the other members of the room.
// The sender must be a member and is labelled by senderName.
func (r *Relay) Signal(conn *Conn, event string, req RoomSignal) error {
	if req.RoomName == "" {
		return errors.MissingFieldError("roomName")
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return errors.MissingFieldError("payload")
	}
	member, ok := r.rooms.Member(req.RoomName, conn.ID)
	if !ok {
		return errors.NotRoomMemberError(req.RoomName)
	}

	r.toPeers(req.RoomName, conn.ID, event, map[string]any{
		"roomName":         req.RoomName,
		"from":             senderName(conn, member),
		"fromConnectionId": conn.ID,
		"payload":          req.Payload,
	})
	return nil
}

// Typing relays a typing indicator to the other members of the room
func (r *Relay) Typing(conn *Conn, req RoomTyping) error {
	if req.RoomName == "" {
		return errors.MissingFieldError("roomName")
	}
	member, ok := r.rooms.Member(req.RoomName, conn.ID)
	if !ok {
		return errors.NotRoomMemberError(req.RoomName)
	}

	r.toPeers(req.RoomName, conn.ID, "room-typing", map[string]any{
		"roomName": req.RoomName,
		"from":     senderName(conn, member),
		"isTyping": req.IsTyping,
	})
	return nil
}

// Message relays a chat message to the room and persists it best-effort.
// Delivery happens before the write is attempted.
func (r *Relay) Message(conn *Conn, req RoomMessage) error {
	if req.RoomName == "" {
		return errors.MissingFieldError("roomName")
	}
	if err := validateMessage(req.Message); err != nil {
		return err
	}
	member, ok := r.rooms.Member(req.RoomName, conn.ID)
	if !ok {
		return errors.NotRoomMemberError(req.RoomName)
	}

	// Client-supplied sender fields only label unregistered connections
	senderID := conn.ExternalUserID
	if !conn.Registered() {
		senderID = req.SenderID
	}
	msg := r.newMessage(req.RoomName, senderName(conn, member), senderID, req.Message, req.MessageType)

	r.toPeers(req.RoomName, conn.ID, "room-message", map[string]any{
		"messageId":   msg.MessageID,
		"roomName":    msg.RoomName,
		"from":        msg.SenderName,
		"senderId":    msg.SenderID,
		"message":     msg.Message,
		"messageType": msg.MessageType,
		"timestamp":   msg.CreatedAt,
	})
	r.save(conn, "room-message", msg)
	return nil
}

// Direct forwards a legacy user-addressed negotiation event. key names the
// payload field carried through unchanged (offer, answer or candidate).
func (r *Relay) Direct(conn *Conn, me, event, key string, data json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.InvalidInputError("Payload must be a JSON object")
	}
	var to string
	if raw, ok := fields["to"]; ok {
		if err := json.Unmarshal(raw, &to); err != nil {
			return errors.InvalidInputError("to must be a string")
		}
	}
	if to == "" {
		return errors.MissingFieldError("to")
	}
	value, ok := fields[key]
	if !ok {
		return errors.MissingFieldError(key)
	}
	target, ok := r.presence.LookupByExternalID(to)
	if !ok {
		return errors.UserNotFoundError()
	}

	target.Conn.Emit(event, map[string]any{
		"from":       me,
		"fromUserId": conn.ExternalUserID,
		key:          value,
	})
	r.metrics.RecordRelay(event)
	return nil
}

// SendMessage delivers a direct chat message to the target and echoes it to
// the sender, then persists it in the pair's canonical room.
func (r *Relay) SendMessage(conn *Conn, me string, req DirectMessage) error {
	if req.To == "" {
		return errors.MissingFieldError("to")
	}
	if err := validateMessage(req.Message); err != nil {
		return err
	}
	target, ok := r.presence.LookupByExternalID(req.To)
	if !ok {
		return errors.UserNotFoundError()
	}

	roomName := directRoomFor(me, conn.ExternalUserID, target.UserName, target.ExternalUserID)
	msg := r.newMessage(roomName, me, conn.ExternalUserID, req.Message, req.MessageType)
	payload := map[string]any{
		"messageId": msg.MessageID,
		"roomName":  roomName,
		"from":      me,
		"to":        target.UserName,
		"message":   msg.Message,
		"timestamp": msg.CreatedAt,
	}
	target.Conn.Emit("new-message", payload)
	conn.Emit("new-message", payload)
	r.metrics.RecordRelay("send-message")

	r.save(conn, "send-message", msg)
	return nil
}

// DirectTyping forwards a typing indicator to one user
func (r *Relay) DirectTyping(conn *Conn, me string, req DirectTyping) error {
	if req.To == "" {
		return errors.MissingFieldError("to")
	}
	target, ok := r.presence.LookupByExternalID(req.To)
	if !ok {
		return errors.UserNotFoundError()
	}
	target.Conn.Emit("user-typing", map[string]any{
		"from":     me,
		"isTyping": req.IsTyping,
	})
	return nil
}

func (r *Relay) toPeers(roomName, connID, event string, payload any) {
	for _, peer := range r.rooms.Peers(roomName, connID) {
		peer.Emit(event, payload)
	}
	r.metrics.RecordRelay(event)
}

func (r *Relay) newMessage(roomName, senderName, senderID, text, messageType string) *domain.ChatMessage {
	if messageType == "" {
		messageType = constants.MessageTypeText
	}
	now := r.now()
	return &domain.ChatMessage{
		MessageID:   uuid.New(),
		RoomName:    roomName,
		Bucket:      domain.CalculateBucket(now),
		SenderName:  senderName,
		SenderID:    senderID,
		Message:     text,
		MessageType: messageType,
		CreatedAt:   now,
	}
}

// save persists msg off the loop; failure is reported to the sender only
func (r *Relay) save(conn *Conn, trigger string, msg *domain.ChatMessage) {
	r.queue.Enqueue(Job{
		Name: "chat.save",
		Run: func(ctx context.Context) error {
			return r.messages.Save(ctx, msg)
		},
		OnError: func(err error) {
			logger.Warn("Failed to persist chat message",
				zap.String("message_id", msg.MessageID.String()),
				zap.String("room_name", msg.RoomName),
				zap.Error(err))
			appErr := errors.PersistenceError("chat message", err)
			conn.Emit("persistence-error", map[string]any{
				"event":     trigger,
				"code":      appErr.Code,
				"message":   appErr.Message,
				"messageId": msg.MessageID,
			})
		},
	})
}

// senderName is the registered name, or the name given at join for anonymous connections
func senderName(conn *Conn, member Participant) string {
	if conn.Registered() {
		return conn.UserName
	}
	return member.UserName
}

func validateMessage(text string) error {
	if text == "" {
		return errors.MissingFieldError("message")
	}
	if len(text) > constants.MaxMessageLength {
		return errors.InvalidInputError("Message is too long")
	}
	return nil
}
