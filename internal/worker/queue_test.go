package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	q := NewQueue(4)

	require.NoError(t, q.Enqueue(Job{DocumentID: "doc-1"}))
	require.NoError(t, q.Enqueue(Job{DocumentID: "doc-2"}))
	assert.Equal(t, 2, q.Len())

	job, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "doc-1", job.DocumentID)

	job, ok = q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "doc-2", job.DocumentID)
}

func TestQueue_FullIsExplicitError(t *testing.T) {
	q := NewQueue(1)

	require.NoError(t, q.Enqueue(Job{DocumentID: "doc-1"}))
	err := q.Enqueue(Job{DocumentID: "doc-2"})

	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_DequeueBlocksUntilWork(t *testing.T) {
	q := NewQueue(1)

	got := make(chan Job, 1)
	go func() {
		job, ok := q.Dequeue(context.Background())
		if ok {
			got <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(Job{DocumentID: "doc-1"}))

	select {
	case job := <-got:
		assert.Equal(t, "doc-1", job.DocumentID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue never observed the enqueued job")
	}
}

func TestQueue_CloseUnblocksDequeue(t *testing.T) {
	q := NewQueue(1)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue never unblocked on close")
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := NewQueue(1)
	q.Close()

	assert.ErrorIs(t, q.Enqueue(Job{DocumentID: "doc-1"}), ErrShutdown)
}

func TestQueue_CancelUnblocksDequeue(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue never unblocked on cancel")
	}
}

func TestQueue_CloseDropsQueuedJobs(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Enqueue(Job{DocumentID: "doc-1"}))

	q.Close()

	_, ok := q.Dequeue(context.Background())
	assert.False(t, ok)
}
