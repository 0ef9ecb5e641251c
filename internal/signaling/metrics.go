package signaling

import "time"

// Metrics receives signaling counters; *metrics.Metrics satisfies it
type Metrics interface {
	RecordErrorEvent(event, code string)
	SetOnlineUsers(count int)
	SetActiveRooms(count int)
	RecordRoomJoin(outcome string)
	RecordRelay(event string)
	RecordCall(callType, status string)
	SetActiveCalls(count int)
	RecordCallDuration(callType string, duration time.Duration)
	RecordPersistJob(job string)
	RecordPersistFailure(job string)
}

type nopMetrics struct{}

func (nopMetrics) RecordErrorEvent(string, string) {}
func (nopMetrics) SetOnlineUsers(int) {}
func (nopMetrics) SetActiveRooms(int) {}
func (nopMetrics) RecordRoomJoin(string) {}
func (nopMetrics) RecordRelay(string) {}
func (nopMetrics) RecordCall(string, string) {}
func (nopMetrics) SetActiveCalls(int) {}
func (nopMetrics) RecordCallDuration(string, time.Duration) {}
func (nopMetrics) RecordPersistJob(string) {}
func (nopMetrics) RecordPersistFailure(string) {}
