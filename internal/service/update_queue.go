package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned for work submitted after Close.
var ErrQueueClosed = fmt.Errorf("update queue closed")

const (
	updateQueued int32 = iota
	updateStarted
	updateAbandoned
)

type queuedUpdate struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	done  chan error
	state *atomic.Int32
}

type threadQueue struct {
	pending []queuedUpdate
	running bool
}

// UpdateQueue runs updates one at a time per thread, in submission order.
// Updates for different threads run concurrently. A worker goroutine exists
// only while its thread has pending work.
type UpdateQueue struct {
	mu      sync.Mutex
	threads map[string]*threadQueue
	closed  bool
	wg      sync.WaitGroup
}

func NewUpdateQueue() *UpdateQueue {
	return &UpdateQueue{threads: make(map[string]*threadQueue)}
}

// Do enqueues fn for threadID and waits for its result. fn must not call Do
// for the same thread. If ctx ends before fn starts, fn is skipped and
// ctx.Err() returned; once fn has started, Do always waits for its result.
func (q *UpdateQueue) Do(ctx context.Context, threadID string, fn func(ctx context.Context) error) error {
	update := queuedUpdate{ctx: ctx, fn: fn, done: make(chan error, 1), state: &atomic.Int32{}}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	tq, ok := q.threads[threadID]
	if !ok {
		tq = &threadQueue{}
		q.threads[threadID] = tq
	}
	tq.pending = append(tq.pending, update)
	if !tq.running {
		tq.running = true
		q.wg.Add(1)
		go q.drain(threadID, tq)
	}
	q.mu.Unlock()

	select {
	case err := <-update.done:
		return err
	case <-ctx.Done():
		if update.state.CompareAndSwap(updateQueued, updateAbandoned) {
			return ctx.Err()
		}
		return <-update.done
	}
}

func (q *UpdateQueue) drain(threadID string, tq *threadQueue) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(tq.pending) == 0 {
			tq.running = false
			delete(q.threads, threadID)
			q.mu.Unlock()
			return
		}
		update := tq.pending[0]
		tq.pending = tq.pending[1:]
		q.mu.Unlock()

		if err := update.ctx.Err(); err != nil {
			update.state.Store(updateAbandoned)
			update.done <- err
			continue
		}
		if !update.state.CompareAndSwap(updateQueued, updateStarted) {
			update.done <- update.ctx.Err()
			continue
		}
		update.done <- update.fn(update.ctx)
	}
}

// Pending returns the number of threads with queued or running work.
func (q *UpdateQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.threads)
}

// Close rejects new work and waits for queued updates to finish.
func (q *UpdateQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
