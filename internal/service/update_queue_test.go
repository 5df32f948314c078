package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateQueue_RunsInOrderPerThread(t *testing.T) {
	q := NewUpdateQueue()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Do(context.Background(), "g1", func(context.Context) error {
			<-release
			mu.Lock()
			order = append(order, 0)
			mu.Unlock()
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)

	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Do(context.Background(), "g1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// submission order is what the queue preserves
		time.Sleep(2 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
	assert.Equal(t, 0, q.Pending())
}

func TestUpdateQueue_SerializesOneThread(t *testing.T) {
	q := NewUpdateQueue()
	defer q.Close()

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), "g1", func(context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestUpdateQueue_ThreadsRunConcurrently(t *testing.T) {
	q := NewUpdateQueue()
	defer q.Close()

	blocked := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), "g1", func(context.Context) error {
			<-blocked
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, time.Millisecond)

	ran := false
	require.NoError(t, q.Do(context.Background(), "c1", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	close(blocked)
}

func TestUpdateQueue_ReturnsErrorsAndHonoursContext(t *testing.T) {
	q := NewUpdateQueue()

	err := q.Do(context.Background(), "g1", func(context.Context) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err = q.Do(ctx, "g1", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	q.Close()
	assert.False(t, called, "cancelled work is skipped")
	assert.ErrorIs(t, q.Do(context.Background(), "g1", func(context.Context) error { return nil }), ErrQueueClosed)
}

func TestUpdateQueue_StartedWorkIsAwaitedAfterCancel(t *testing.T) {
	q := NewUpdateQueue()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	result := make(chan error, 1)
	go func() {
		result <- q.Do(ctx, "g1", func(context.Context) error {
			close(started)
			<-release
			finished.Store(true)
			return assert.AnError
		})
	}()

	<-started
	cancel()
	select {
	case err := <-result:
		t.Fatalf("Do returned %v before the running update finished", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-result:
		assert.ErrorIs(t, err, assert.AnError)
		assert.True(t, finished.Load())
	case <-time.After(time.Second):
		t.Fatal("Do never returned")
	}
}

func TestUpdateQueue_QueuedWorkIsSkippedAfterCancel(t *testing.T) {
	q := NewUpdateQueue()
	defer q.Close()

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), "g1", func(context.Context) error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	result := make(chan error, 1)
	go func() {
		result <- q.Do(ctx, "g1", func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Do did not return while another update was running")
	}
	close(release)
	q.Close()
	assert.False(t, ran.Load())
}
