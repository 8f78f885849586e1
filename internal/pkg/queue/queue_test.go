package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"questboard/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitQueued(t *testing.T, q *Queue, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(q.requests) == n }, time.Second, time.Millisecond)
}

func TestQueueRunsJobsInArrivalOrder(t *testing.T) {
	q := New(logger.Nop(), 16)
	defer q.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	var (
		mu     sync.Mutex
		order  []int
		active int32
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started

	const jobs = 8
	for i := 0; i < jobs; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), func(ctx context.Context) error {
				if atomic.AddInt32(&active, 1) != 1 {
					t.Error("jobs overlapped")
				}
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
		waitQueued(t, q, i+1)
	}

	close(gate)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestQueueReturnsJobError(t *testing.T) {
	q := New(logger.Nop(), 1)
	defer q.Close()

	errBoom := errors.New("boom")
	err := q.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}

func TestQueueSkipsJobsCanceledBeforeAdmission(t *testing.T) {
	q := New(logger.Nop(), 4)
	defer q.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Do(ctx, func(ctx context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	waitQueued(t, q, 1)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(gate)
	require.NoError(t, q.Do(context.Background(), func(ctx context.Context) error { return nil }))
	assert.False(t, ran.Load())
}

func TestQueueAdmittedJobOutlivesCaller(t *testing.T) {
	q := New(logger.Nop(), 1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	finished := make(chan error, 1)
	err := q.Do(ctx, func(jobCtx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		finished <- jobCtx.Err()
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case jobErr := <-finished:
		assert.NoError(t, jobErr)
	case <-time.After(time.Second):
		t.Fatal("admitted job did not complete")
	}
}

func TestQueueClosed(t *testing.T) {
	q := New(logger.Nop(), 1)
	q.Close()
	q.Close()

	err := q.Do(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
