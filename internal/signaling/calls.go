package signaling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"friendclub-backend/internal/domain"
	"friendclub-backend/internal/events"
	"friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/logger"
)

// CallStore persists call records. Update must tolerate a missing row.
type CallStore interface {
	Create(ctx context.Context, call *domain.Call) error
	Update(ctx context.Context, call *domain.Call) error
}

// CallRequest is the decoded payload of call-user
type CallRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	ToUserID string `json:"toUserId"`
	RoomName string `json:"roomName"`
	CallType string `json:"callType"`
}

// CallResponse is the decoded payload of accept-call, reject-call and cancel-call
type CallResponse struct {
	CallID   string `json:"callId"`
	From     string `json:"from"`
	To       string `json:"to"`
	RoomName string `json:"roomName"`
}

// HangUp is the decoded payload of end-call
type HangUp struct {
	CallID          string `json:"callId"`
	From            string `json:"from"`
	To              string `json:"to"`
	RoomName        string `json:"roomName"`
	DurationSeconds *int   `json:"durationSeconds"`
}

// CallManager owns the live call state machine. A user is in at most one
// live (ringing or accepted) call; terminal calls leave memory immediately.
type CallManager struct {
	presence    *Registry
	store       CallStore
	queue       Queue
	scheduler   Scheduler
	publisher   events.Publisher
	metrics     Metrics
	ringTimeout time.Duration
	now         func() time.Time

	calls  map[uuid.UUID]*domain.Call
	byUser map[string]uuid.UUID
}

func newCallManager(presence *Registry, opts Options) *CallManager {
	return &CallManager{
		presence:    presence,
		store:       opts.Calls,
		queue:       opts.Queue,
		scheduler:   opts.Scheduler,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		ringTimeout: opts.RingTimeout,
		now:         opts.Now,
		calls:       make(map[uuid.UUID]*domain.Call),
		byUser:      make(map[string]uuid.UUID),
	}
}

// Initiate starts a call from caller. An unreachable target is answered with
// call-rejected{reason:user-not-found}; a target already in a live call gets
// a busy record and call-rejected{reason:busy}.
func (m *CallManager) Initiate(conn *Conn, caller string, req CallRequest) (*domain.Call, error) {
	target := req.ToUserID
	if target == "" {
		target = req.To
	}
	if target == "" {
		return nil, errors.MissingFieldError("to")
	}

	callType := domain.CallTypeVideo
	if req.CallType != "" {
		callType = domain.CallType(req.CallType)
		if !callType.Valid() {
			return nil, errors.InvalidInputError("callType must be audio or video")
		}
	}

	callee, ok := m.presence.LookupByExternalID(target)
	if !ok {
		conn.Emit("call-rejected", map[string]any{
			"to":     target,
			"reason": "user-not-found",
		})
		return nil, nil
	}
	if callee.UserName == caller {
		return nil, errors.ValidationError("Cannot call yourself")
	}
	if _, busy := m.byUser[caller]; busy {
		return nil, errors.InvalidStateError("Already in a call")
	}

	now := m.now()
	call := &domain.Call{
		CallID:     uuid.New(),
		CallerName: caller,
		CalleeName: callee.UserName,
		CallerID:   conn.ExternalUserID,
		CalleeID:   callee.ExternalUserID,
		RoomName:   directRoomFor(caller, conn.ExternalUserID, callee.UserName, callee.ExternalUserID),
		CallType:   callType,
		Status:     domain.CallStatusRinging,
		StartedAt:  now,
		CreatedBy:  caller,
		UpdatedBy:  caller,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.RoomName != "" && req.RoomName != call.RoomName {
		logger.Debug("Ignoring non-canonical room hint",
			zap.String("hint", req.RoomName),
			zap.String("room_name", call.RoomName))
	}

	if _, busy := m.byUser[callee.UserName]; busy {
		call.Status = domain.CallStatusBusy
		call.EndedAt = &now
		m.persist(conn, "call-user", call, true)
		conn.Emit("call-rejected", map[string]any{
			"callId": call.CallID,
			"to":     callee.UserName,
			"reason": "busy",
		})
		return call, nil
	}

	m.track(call)
	m.persist(conn, "call-user", call, true)

	callee.Conn.Emit("incoming-call", map[string]any{
		"callId":     call.CallID,
		"from":       caller,
		"fromUserId": call.CallerID,
		"roomName":   call.RoomName,
		"callType":   call.CallType,
	})
	conn.Emit("ringing", map[string]any{
		"callId":   call.CallID,
		"to":       callee.UserName,
		"roomName": call.RoomName,
		"callType": call.CallType,
	})

	callID := call.CallID
	m.scheduler.AfterFunc(m.ringTimeout, func() { m.expire(callID) })
	return call, nil
}

// expire runs when the ring window closes. It reloads the call and acts only
// if it is still ringing; any earlier answer makes it a no-op.
func (m *CallManager) expire(callID uuid.UUID) {
	call, ok := m.calls[callID]
	if !ok || call.Status != domain.CallStatusRinging {
		return
	}
	if err := call.Transition(domain.CallStatusMissed, m.now(), "system"); err != nil {
		return
	}
	m.untrack(call)
	m.persist(nil, "call-timeout", call, false)

	payload := map[string]any{
		"callId":   call.CallID,
		"roomName": call.RoomName,
		"caller":   call.CallerName,
		"callee":   call.CalleeName,
	}
	m.emitTo(call.CallerName, "call-timeout", payload)
	m.emitTo(call.CalleeName, "call-timeout", payload)
}

// Accept answers a ringing call; only the callee may accept
func (m *CallManager) Accept(conn *Conn, me string, req CallResponse) (*domain.Call, error) {
	call, err := m.find(me, req.CallID, peerName(me, req.From, req.To))
	if err != nil {
		return nil, err
	}
	if call.CalleeName != me {
		return nil, errors.ForbiddenError("Only the callee can accept a call")
	}
	if err := call.Transition(domain.CallStatusAccepted, m.now(), me); err != nil {
		return nil, errors.InvalidStateError("Call is no longer ringing")
	}
	m.persist(conn, "accept-call", call, false)

	m.emitTo(call.CallerName, "call-accepted", map[string]any{
		"callId":   call.CallID,
		"from":     me,
		"roomName": call.RoomName,
		"callType": call.CallType,
	})
	return call, nil
}

// Reject declines a ringing call; only the callee may reject
func (m *CallManager) Reject(conn *Conn, me string, req CallResponse) (*domain.Call, error) {
	call, err := m.find(me, req.CallID, peerName(me, req.From, req.To))
	if err != nil {
		return nil, err
	}
	if call.CalleeName != me {
		return nil, errors.ForbiddenError("Only the callee can reject a call")
	}
	if err := call.Transition(domain.CallStatusRejected, m.now(), me); err != nil {
		return nil, errors.InvalidStateError("Call is no longer ringing")
	}
	m.untrack(call)
	m.persist(conn, "reject-call", call, false)

	m.emitTo(call.CallerName, "call-rejected", map[string]any{
		"callId": call.CallID,
		"from":   me,
		"reason": "rejected",
	})
	return call, nil
}

// Cancel withdraws a ringing call; only the caller may cancel
func (m *CallManager) Cancel(conn *Conn, me string, req CallResponse) (*domain.Call, error) {
	call, err := m.find(me, req.CallID, peerName(me, req.From, req.To))
	if err != nil {
		return nil, err
	}
	if call.CallerName != me {
		return nil, errors.ForbiddenError("Only the caller can cancel a call")
	}
	if err := m.cancel(conn, call, "cancelled"); err != nil {
		return nil, err
	}
	return call, nil
}

func (m *CallManager) cancel(conn *Conn, call *domain.Call, reason string) error {
	if err := call.Transition(domain.CallStatusCancelled, m.now(), call.CallerName); err != nil {
		return errors.InvalidStateError("Call is no longer ringing")
	}
	m.untrack(call)
	m.persist(conn, "cancel-call", call, false)

	m.emitTo(call.CalleeName, "call-cancelled", map[string]any{
		"callId": call.CallID,
		"from":   call.CallerName,
		"reason": reason,
	})
	return nil
}

// End hangs up the accepted call me is in. Anything else is a no-op.
func (m *CallManager) End(conn *Conn, me string, req HangUp) (*domain.Call, error) {
	id, ok := m.byUser[me]
	if !ok {
		return nil, nil
	}
	call := m.calls[id]
	if call.Status != domain.CallStatusAccepted {
		return nil, nil
	}
	if req.CallID != "" && req.CallID != call.CallID.String() {
		return nil, nil
	}
	if req.RoomName != "" && req.RoomName != call.RoomName {
		return nil, nil
	}
	if peer := peerName(me, req.From, req.To); peer != "" && !call.Involves(peer) {
		return nil, nil
	}

	duration := -1
	if req.DurationSeconds != nil {
		duration = *req.DurationSeconds
	}
	if err := m.end(conn, call, me, duration, "hangup"); err != nil {
		return nil, err
	}
	return call, nil
}

// end moves an accepted call to ended. A negative duration is computed from answeredAt.
func (m *CallManager) end(conn *Conn, call *domain.Call, by string, duration int, reason string) error {
	now := m.now()
	if duration < 0 {
		duration = call.ElapsedSince(now)
	}
	if err := call.Transition(domain.CallStatusEnded, now, by); err != nil {
		return errors.InvalidStateError("Call is not active")
	}
	call.DurationSeconds = duration
	m.untrack(call)
	m.persist(conn, "end-call", call, false)
	m.metrics.RecordCallDuration(string(call.CallType), time.Duration(duration)*time.Second)

	m.emitTo(call.PeerOf(by), "call-ended", map[string]any{
		"callId":          call.CallID,
		"from":            by,
		"roomName":        call.RoomName,
		"durationSeconds": duration,
		"reason":          reason,
	})
	return nil
}

// Disconnect settles the live call of a user whose connection went away.
// Accepted calls end; a ringing caller cancels; a ringing callee is left to time out.
func (m *CallManager) Disconnect(userName string) {
	id, ok := m.byUser[userName]
	if !ok {
		return
	}
	call := m.calls[id]
	switch {
	case call.Status == domain.CallStatusAccepted:
		if err := m.end(nil, call, userName, -1, "disconnected"); err != nil {
			logger.Warn("Failed to end call on disconnect", zap.String("call_id", call.CallID.String()), zap.Error(err))
		}
	case call.Status == domain.CallStatusRinging && call.CallerName == userName:
		if err := m.cancel(nil, call, "disconnected"); err != nil {
			logger.Warn("Failed to cancel call on disconnect", zap.String("call_id", call.CallID.String()), zap.Error(err))
		}
	}
}

// Active returns the number of live calls
func (m *CallManager) Active() int {
	return len(m.calls)
}

// find resolves the live call me is in, by id when given, otherwise by the pair
func (m *CallManager) find(me, callID, peer string) (*domain.Call, error) {
	if callID != "" {
		id, err := uuid.Parse(callID)
		if err != nil {
			return nil, errors.InvalidInputError("Invalid callId")
		}
		call, ok := m.calls[id]
		if !ok || !call.Involves(me) {
			return nil, errors.CallNotFoundError()
		}
		return call, nil
	}

	id, ok := m.byUser[me]
	if !ok {
		return nil, errors.CallNotFoundError()
	}
	call := m.calls[id]
	if peer != "" && !call.Involves(peer) {
		return nil, errors.CallNotFoundError()
	}
	return call, nil
}

func (m *CallManager) track(call *domain.Call) {
	m.calls[call.CallID] = call
	m.byUser[call.CallerName] = call.CallID
	m.byUser[call.CalleeName] = call.CallID
	m.metrics.SetActiveCalls(len(m.calls))
}

func (m *CallManager) untrack(call *domain.Call) {
	delete(m.calls, call.CallID)
	if m.byUser[call.CallerName] == call.CallID {
		delete(m.byUser, call.CallerName)
	}
	if m.byUser[call.CalleeName] == call.CallID {
		delete(m.byUser, call.CalleeName)
	}
	m.metrics.SetActiveCalls(len(m.calls))
}

// persist writes a snapshot of call and publishes the transition. Failures go
// back to conn as persistence-error; the live notification is never undone.
func (m *CallManager) persist(conn *Conn, trigger string, call *domain.Call, create bool) {
	snapshot := call.Clone()
	event := events.NewCallEvent(snapshot, snapshot.UpdatedAt)
	m.metrics.RecordCall(string(snapshot.CallType), string(snapshot.Status))

	name := "call.update"
	if create {
		name = "call.create"
	}
	m.queue.Enqueue(Job{
		Name: name,
		Run: func(ctx context.Context) error {
			if create {
				return m.store.Create(ctx, snapshot)
			}
			return m.store.Update(ctx, snapshot)
		},
		OnError: func(err error) {
			logger.Error("Failed to persist call",
				zap.String("call_id", snapshot.CallID.String()),
				zap.String("status", string(snapshot.Status)),
				zap.Error(err))
			if conn == nil {
				return
			}
			appErr := errors.PersistenceError("call record", err)
			conn.Emit("persistence-error", map[string]any{
				"event":   trigger,
				"code":    appErr.Code,
				"message": appErr.Message,
				"callId":  snapshot.CallID,
			})
		},
	})
	m.queue.Enqueue(Job{
		Name: "call.publish",
		Run: func(ctx context.Context) error {
			return m.publisher.Publish(ctx, event)
		},
		OnError: func(err error) {
			logger.Debug("Failed to publish call event", zap.String("type", event.Type), zap.Error(err))
		},
	})
}

func (m *CallManager) emitTo(userName, event string, payload any) {
	if entry, ok := m.presence.Lookup(userName); ok {
		entry.Conn.Emit(event, payload)
	}
}

// peerName returns whichever of from/to is not me
func peerName(me, from, to string) string {
	if from != "" && from != me {
		return from
	}
	if to != me {
		return to
	}
	return ""
}
