package signaling

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friendclub-backend/internal/domain"
)

type emitted struct {
	Event   string
	Payload any
}

// recorder is an Outbox that keeps everything emitted to one connection
type recorder struct {
	events []emitted
}

func (r *recorder) Emit(event string, payload any) {
	r.events = append(r.events, emitted{Event: event, Payload: payload})
}

func (r *recorder) named(event string) []emitted {
	var out []emitted
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) has(event string) bool {
	return len(r.named(event)) > 0
}

// last returns the payload of the most recent event with this name as a map
func (r *recorder) last(t *testing.T, event string) map[string]any {
	t.Helper()
	all := r.named(event)
	require.NotEmpty(t, all, "no %q event emitted", event)
	payload, ok := all[len(all)-1].Payload.(map[string]any)
	require.True(t, ok, "%q payload is %T", event, all[len(all)-1].Payload)
	return payload
}

func (r *recorder) reset() {
	r.events = nil
}

// inlineQueue runs jobs synchronously on the caller
type inlineQueue struct {
	jobs []string
}

func (q *inlineQueue) Enqueue(job Job) {
	q.jobs = append(q.jobs, job.Name)
	if err := job.Run(context.Background()); err != nil && job.OnError != nil {
		job.OnError(err)
	}
}

// manualScheduler fires timers only when Advance moves its clock past them
type manualScheduler struct {
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) Now() time.Time {
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.now = s.now.Add(d)
	sort.SliceStable(s.timers, func(i, j int) bool { return s.timers[i].at.Before(s.timers[j].at) })
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			t.fired = true
			t.f()
		}
	}
}

// MockCallStore is a mock implementation of CallStore
type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallStore) Update(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) Save(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockPresenceMirror is a mock implementation of PresenceMirror
type MockPresenceMirror struct {
	mock.Mock
}

func (m *MockPresenceMirror) SetUserOnline(ctx context.Context, userID, userName string) error {
	args := m.Called(ctx, userID, userName)
	return args.Error(0)
}

func (m *MockPresenceMirror) SetUserOffline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceMirror) RefreshPresence(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// harness wires a Service with synchronous collaborators
type harness struct {
	svc       *Service
	calls     *MockCallStore
	messages  *MockMessageStore
	queue     *inlineQueue
	scheduler *manualScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		calls:     new(MockCallStore),
		messages:  new(MockMessageStore),
		queue:     &inlineQueue{},
		scheduler: newManualScheduler(),
	}
	h.calls.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.calls.On("Update", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.messages.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()

	h.svc = NewService(Options{
		RingTimeout: 30 * time.Second,
		Calls:       h.calls,
		Messages:    h.messages,
		Queue:       h.queue,
		Scheduler:   h.scheduler,
		Now:         h.scheduler.Now,
	})
	return h
}

// connect opens a connection and returns it with its recorder
func (h *harness) connect(id string) (*Conn, *recorder) {
	rec := &recorder{}
	conn := NewConn(id, rec, nil)
	h.svc.Connect(conn)
	return conn, rec
}

// dispatch sends an event whose payload is marshalled from data
func (h *harness) dispatch(t *testing.T, conn *Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	h.svc.Dispatch(conn, event, raw)
}

// register connects and registers a user in one step
func (h *harness) register(t *testing.T, id, userName, externalID string) (*Conn, *recorder) {
	t.Helper()
	conn, rec := h.connect(id)
	h.dispatch(t, conn, "register", map[string]string{"userName": userName, "externalUserId": externalID})
	return conn, rec
}

// persistedCalls returns every call snapshot passed to the store, in order
func (h *harness) persistedCalls() []*domain.Call {
	var out []*domain.Call
	for _, c := range h.calls.Calls {
		out = append(out, c.Arguments.Get(1).(*domain.Call))
	}
	return out
}
