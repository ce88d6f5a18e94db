package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{BufferSize: 4})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueueWithoutRetriesRunsFailedJobOnce(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{MaxRetries: 0, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueueRetriesUpToLimit(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 3 }, time.Second, 5*time.Millisecond)
}

func TestTryEnqueueReportsFullAndStopped(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{BufferSize: 1})

	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "early"}), ErrQueueStopped)

	q.Start(context.Background())
	require.NoError(t, q.TryEnqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "3"}), ErrQueueFull)

	close(block)
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueStopped)
}
