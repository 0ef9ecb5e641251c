package signaling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"friendclub-backend/pkg/logger"
)

// Job is one unit of best-effort persistence work.
// Run executes off the loop; OnError is posted back onto the loop.
type Job struct {
	Name    string
	Run     func(ctx context.Context) error
	OnError func(err error)
}

// Queue accepts persistence jobs without blocking the caller
type Queue interface {
	Enqueue(job Job)
}

// WorkerQueue runs jobs in FIFO order on a single background worker,
// so a call record's create always lands before its updates.
type WorkerQueue struct {
	jobs    chan Job
	post    func(func())
	timeout time.Duration
	metrics Metrics
}

// NewWorkerQueue creates a queue holding up to size pending jobs
func NewWorkerQueue(post func(func()), size int, timeout time.Duration, m Metrics) *WorkerQueue {
	if m == nil {
		m = nopMetrics{}
	}
	return &WorkerQueue{
		jobs:    make(chan Job, size),
		post:    post,
		timeout: timeout,
		metrics: m,
	}
}

// Enqueue schedules the job. A full queue fails the job immediately.
func (q *WorkerQueue) Enqueue(job Job) {
	select {
	case q.jobs <- job:
	default:
		q.metrics.RecordPersistFailure(job.Name)
		logger.Warn("Persistence queue full, dropping job", zap.String("job", job.Name))
		if job.OnError != nil {
			job.OnError(fmt.Errorf("persistence queue full"))
		}
	}
}

// Run processes jobs until ctx is cancelled, then drains what is already queued
func (q *WorkerQueue) Run(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			q.execute(context.Background(), job)
		case <-ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *WorkerQueue) drain() {
	for {
		select {
		case job := <-q.jobs:
			q.execute(context.Background(), job)
		default:
			return
		}
	}
}

func (q *WorkerQueue) execute(parent context.Context, job Job) {
	ctx, cancel := context.WithTimeout(parent, q.timeout)
	defer cancel()

	q.metrics.RecordPersistJob(job.Name)
	err := q.run(ctx, job)
	if err == nil {
		return
	}

	q.metrics.RecordPersistFailure(job.Name)
	logger.Warn("Persistence job failed", zap.String("job", job.Name), zap.Error(err))
	if job.OnError != nil {
		onError := job.OnError
		q.post(func() { onError(err) })
	}
}

func (q *WorkerQueue) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("persistence job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
