package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"friendclub-backend/internal/domain"
	"friendclub-backend/internal/events"
	"friendclub-backend/pkg/constants"
	"friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/logger"
	"friendclub-backend/pkg/sanitize"
)

// Options configures a Service. Nil stores and publishers are replaced with no-ops.
type Options struct {
	RingTimeout time.Duration
	Calls       CallStore
	Messages    MessageStore
	Presence    PresenceMirror
	Publisher   events.Publisher
	Queue       Queue
	Scheduler   Scheduler
	Metrics     Metrics
	Now         func() time.Time
}

// Stats is a point-in-time view of the loop state
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"onlineUsers"`
	ActiveRooms int `json:"activeRooms"`
	ActiveCalls int `json:"activeCalls"`
}

type handlerFunc func(conn *Conn, data json.RawMessage) error

// Service is the connection lifecycle handler: it binds inbound events to the
// presence registry, room tracker, call manager and relay.
type Service struct {
	conns    *Connections
	presence *Registry
	rooms    *Tracker
	calls    *CallManager
	relay    *Relay
	metrics  Metrics
	handlers map[string]handlerFunc
}

// NewService wires the signaling components. Queue and Scheduler are required.
func NewService(opts Options) *Service {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = constants.DefaultRingTimeout
	}
	if opts.Calls == nil {
		opts.Calls = nopCallStore{}
	}
	if opts.Messages == nil {
		opts.Messages = nopMessageStore{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewNoopPublisher()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	conns := NewConnections()
	presence := NewRegistry(conns, opts.Presence, opts.Queue, opts.Metrics)
	rooms := NewTracker(opts.Metrics)

	s := &Service{
		conns:    conns,
		presence: presence,
		rooms:    rooms,
		calls:    newCallManager(presence, opts),
		relay:    newRelay(rooms, presence, opts),
		metrics:  opts.Metrics,
	}
	s.handlers = map[string]handlerFunc{
		"register":           s.handleRegister,
		"call-user":          s.handleCallUser,
		"accept-call":        s.handleAcceptCall,
		"reject-call":        s.handleRejectCall,
		"cancel-call":        s.handleCancelCall,
		"end-call":           s.handleEndCall,
		"join-room":          s.handleJoinRoom,
		"leave-room":         s.handleLeaveRoom,
		"room-offer":         s.roomSignal("room-offer"),
		"room-answer":        s.roomSignal("room-answer"),
		"room-ice-candidate": s.roomSignal("room-ice-candidate"),
		"room-message":       s.handleRoomMessage,
		"room-typing":        s.handleRoomTyping,
		"offer":              s.directSignal("offer", "offer"),
		"answer":             s.directSignal("answer", "answer"),
		"ice-candidate":      s.directSignal("ice-candidate", "candidate"),
		"send-message":       s.handleSendMessage,
		"typing":             s.handleTyping,
		"user-typing":        s.handleTyping,
	}
	return s
}

// Connect records a new connection and tells it its id
func (s *Service) Connect(conn *Conn) {
	s.conns.Add(conn)
	conn.Emit("connected", map[string]any{"connectionId": conn.ID})
}

// Dispatch runs the handler for one inbound event. Failures become an error
// event on the sending connection; nothing here closes the connection.
func (s *Service) Dispatch(conn *Conn, event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Signaling handler panicked",
				zap.String("event", event),
				zap.String("connection_id", conn.ID),
				zap.Any("panic", r))
			s.fail(conn, event, errors.InternalError("Internal error"))
		}
	}()

	handler, ok := s.handlers[event]
	if !ok {
		s.fail(conn, event, errors.UnknownEventError(event))
		return
	}
	if err := handler(conn, data); err != nil {
		s.fail(conn, event, err)
	}
}

// Disconnect cleans up everything the connection owned
func (s *Service) Disconnect(conn *Conn) {
	if !s.conns.Remove(conn.ID) {
		return
	}
	if name, ok := s.presence.Remove(conn.ID); ok {
		s.calls.Disconnect(name)
	}
	s.rooms.LeaveAll(conn)
}

// Stats returns current counts
func (s *Service) Stats() Stats {
	return Stats{
		Connections: s.conns.Len(),
		OnlineUsers: s.presence.Count(),
		ActiveRooms: s.rooms.Count(),
		ActiveCalls: s.calls.Active(),
	}
}

// OnlineUsers returns the sorted registered user names
func (s *Service) OnlineUsers() []string {
	return s.presence.Online()
}

// RefreshPresence extends the presence mirror TTL for every registered user
func (s *Service) RefreshPresence() {
	s.presence.Refresh()
}

func (s *Service) fail(conn *Conn, event string, err error) {
	appErr := errors.GetAppError(err)
	if appErr.Code == errors.ErrCodeInternal {
		logger.Error("Signaling event failed", zap.String("event", event), zap.Error(err))
	} else {
		logger.Debug("Signaling event rejected", zap.String("event", event), zap.Error(err))
	}
	s.metrics.RecordErrorEvent(event, string(appErr.Code))
	conn.Emit("error", map[string]any{
		"event":   event,
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// identify returns the caller's registered name. claimed, when set, must match it.
func (s *Service) identify(conn *Conn, claimed string) (string, error) {
	if !conn.Registered() || !s.presence.Owns(conn) {
		return "", errors.NotRegisteredError()
	}
	if claimed != "" && claimed != conn.UserName {
		return "", errors.ForbiddenError("from does not match the registered user")
	}
	return conn.UserName, nil
}

type registerRequest struct {
	UserName       string `json:"userName"`
	ExternalUserID string `json:"externalUserId"`
}

// handleRegister accepts either a bare user name string or an object
func (s *Service) handleRegister(conn *Conn, data json.RawMessage) error {
	var req registerRequest
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &req.UserName); err != nil {
			return errors.InvalidInputError("Invalid user name")
		}
	} else if err := decode(data, &req); err != nil {
		return err
	}
	req.UserName = sanitize.Identity(req.UserName)
	req.ExternalUserID = sanitize.Identity(req.ExternalUserID)
	if req.UserName == "" {
		return errors.MissingFieldError("userName")
	}

	if p := conn.Principal; p != nil && p.UserID != "" {
		if req.ExternalUserID != "" && req.ExternalUserID != p.UserID {
			return errors.ForbiddenError("externalUserId does not match the authenticated user")
		}
		req.ExternalUserID = p.UserID
	}

	s.presence.Register(req.UserName, conn, req.ExternalUserID)
	return nil
}

func (s *Service) handleCallUser(conn *Conn, data json.RawMessage) error {
	var req CallRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	me, err := s.identify(conn, req.From)
	if err != nil {
		return err
	}
	_, err = s.calls.Initiate(conn, me, req)
	return err
}

func (s *Service) handleAcceptCall(conn *Conn, data json.RawMessage) error {
	return s.respond(conn, data, s.calls.Accept)
}

func (s *Service) handleRejectCall(conn *Conn, data json.RawMessage) error {
	return s.respond(conn, data, s.calls.Reject)
}

func (s *Service) handleCancelCall(conn *Conn, data json.RawMessage) error {
	return s.respond(conn, data, s.calls.Cancel)
}

func (s *Service) respond(conn *Conn, data json.RawMessage, action func(*Conn, string, CallResponse) (*domain.Call, error)) error {
	var req CallResponse
	if err := decode(data, &req); err != nil {
		return err
	}
	me, err := s.identify(conn, "")
	if err != nil {
		return err
	}
	_, err = action(conn, me, req)
	return err
}

func (s *Service) handleEndCall(conn *Conn, data json.RawMessage) error {
	var req HangUp
	if err := decode(data, &req); err != nil {
		return err
	}
	me, err := s.identify(conn, "")
	if err != nil {
		return err
	}
	_, err = s.calls.End(conn, me, req)
	return err
}

type roomRequest struct {
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
}

func (s *Service) handleJoinRoom(conn *Conn, data json.RawMessage) error {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.RoomName == "" {
		return errors.MissingFieldError("roomName")
	}
	if req.UserName == "" && !conn.Registered() {
		return errors.MissingFieldError("userName")
	}
	s.rooms.Join(req.RoomName, conn, req.UserName)
	return nil
}

func (s *Service) handleLeaveRoom(conn *Conn, data json.RawMessage) error {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.RoomName == "" {
		return errors.MissingFieldError("roomName")
	}
	s.rooms.Leave(req.RoomName, conn)
	return nil
}

func (s *Service) roomSignal(event string) handlerFunc {
	return func(conn *Conn, data json.RawMessage) error {
		var req RoomSignal
		if err := decode(data, &req); err != nil {
			return err
		}
		return s.relay.Signal(conn, event, req)
	}
}

func (s *Service) handleRoomMessage(conn *Conn, data json.RawMessage) error {
	var req RoomMessage
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.relay.Message(conn, req)
}

func (s *Service) handleRoomTyping(conn *Conn, data json.RawMessage) error {
	var req RoomTyping
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.relay.Typing(conn, req)
}

func (s *Service) directSignal(event, key string) handlerFunc {
	return func(conn *Conn, data json.RawMessage) error {
		me, err := s.identify(conn, "")
		if err != nil {
			return err
		}
		return s.relay.Direct(conn, me, event, key, data)
	}
}

func (s *Service) handleSendMessage(conn *Conn, data json.RawMessage) error {
	var req DirectMessage
	if err := decode(data, &req); err != nil {
		return err
	}
	me, err := s.identify(conn, req.From)
	if err != nil {
		return err
	}
	return s.relay.SendMessage(conn, me, req)
}

func (s *Service) handleTyping(conn *Conn, data json.RawMessage) error {
	var req DirectTyping
	if err := decode(data, &req); err != nil {
		return err
	}
	me, err := s.identify(conn, req.From)
	if err != nil {
		return err
	}
	return s.relay.DirectTyping(conn, me, req)
}

// decode unmarshals an event payload; an absent payload decodes as {}
func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.InvalidInputError(fmt.Sprintf("Malformed payload: %v", err))
	}
	return nil
}

type nopCallStore struct{}

func (nopCallStore) Create(context.Context, *domain.Call) error { return nil }
func (nopCallStore) Update(context.Context, *domain.Call) error { return nil }

type nopMessageStore struct{}

func (nopMessageStore) Save(context.Context, *domain.ChatMessage) error { return nil }
