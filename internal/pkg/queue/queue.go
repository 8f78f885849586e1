// Package queue provides a first-in-first-out admission queue that runs one job at a time.
//
// A single worker goroutine owns the execution slot. A job is dequeued only after the previous
// job has returned, so every read and write a job performs is complete before the next job
// observes shared state.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"questboard/internal/pkg/logger"

	"go.uber.org/zap"
)

// ErrClosed is returned for jobs submitted to, or still waiting in, a closed queue.
var ErrClosed = errors.New("queue: closed")

// Job is a unit of work run while holding the queue slot.
type Job func(ctx context.Context) error

type request struct {
	ctx      context.Context
	job      Job
	enqueued time.Time
	reply    chan error
}

// Queue serializes jobs in arrival order.
type Queue struct {
	log      *logger.Logger
	requests chan request
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New starts a queue whose intake buffers up to capacity waiting jobs.
func New(log *logger.Logger, capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{
		log:      log,
		requests: make(chan request, capacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case req := <-q.requests:
			q.run(req)
		case <-q.quit:
			for {
				select {
				case req := <-q.requests:
					req.reply <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(req request) {
	// Callers that stopped waiting before the job was admitted are skipped.
	if err := req.ctx.Err(); err != nil {
		req.reply <- err
		return
	}

	q.log.Debug("job admitted", zap.Duration("waited", time.Since(req.enqueued)))
	started := time.Now()

	// Once admitted a job runs to completion; the caller's cancellation no longer applies.
	err := req.job(context.WithoutCancel(req.ctx))

	q.log.Debug("job finished", zap.Duration("took", time.Since(started)), zap.Error(err))
	req.reply <- err
}

// Do submits job and waits for its result.
//
// ctx bounds only the wait: when it expires before the job is admitted the job never runs,
// and when it expires after admission Do returns ctx.Err() while the job still completes.
func (q *Queue) Do(ctx context.Context, job Job) error {
	req := request{ctx: ctx, job: job, enqueued: time.Now(), reply: make(chan error, 1)}

	select {
	case <-q.quit:
		return ErrClosed
	default:
	}

	select {
	case q.requests <- req:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops accepting jobs, waits for the running job to finish and fails the waiting ones.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.quit)
	})
	<-q.done
}
