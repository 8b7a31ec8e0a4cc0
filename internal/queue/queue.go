// Package queue implements the bounded task queue behind the client's sender
// loop. Pushing to a full queue fails fast instead of blocking, which is how
// backpressure reaches the caller.
package queue

import (
	"sync"
)

type Error uint8

const (
	ErrQueueIsFull    Error = 0
	ErrQueueIsStopped Error = 1
)

func (e Error) Error() string {
	switch e {
	case ErrQueueIsStopped:
		return "queue is stopped"
	case ErrQueueIsFull:
		return "queue is full"
	default:
		return "unknown error"
	}
}

// Queue runs tasks on a single goroutine in push order. Jump tasks take
// priority over regular ones; the close handshake uses the jump lane so it is
// not stuck behind queued application writes.
type Queue struct {
	mu    sync.Mutex
	jumps chan func()
	tasks chan func()
	done  chan struct{}
}

// New creates a queue with the given capacity and starts its runner.
func New(capacity int) *Queue {
	if capacity < 1 {
		panic("queue capacity must be greater than 0")
	}
	mq := &Queue{
		tasks: make(chan func(), capacity),
		jumps: make(chan func(), 3),
		done:  make(chan struct{}),
	}
	go mq.run()
	return mq
}
func (mq *Queue) run() {
	defer close(mq.done)
	// Close nils the tasks field under the mutex; the runner must only ever
	// see the captured channel, whose close is its termination signal.
	tasks := mq.tasks
	for {
		select {
		case task := <-mq.jumps:
			task()
		default:
			select {
			case task := <-mq.jumps:
				task()
			case task, ok := <-tasks:
				if !ok {
					return
				}
				task()
			}
		}
	}
}
func (mq *Queue) Len() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.tasks == nil {
		return 0
	}
	return len(mq.tasks) + len(mq.jumps)
}
func (mq *Queue) IsClosed() bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.tasks == nil
}

// Close stops the runner once queued tasks drain. Done reports completion.
func (mq *Queue) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.tasks != nil {
		close(mq.tasks)
		mq.tasks = nil
	}
}

// Done is closed when the runner goroutine has exited.
func (mq *Queue) Done() <-chan struct{} {
	return mq.done
}

// Push appends a task. A full queue returns ErrQueueIsFull immediately.
func (mq *Queue) Push(task func()) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.tasks == nil {
		return ErrQueueIsStopped
	}
	select {
	case mq.tasks <- task:
		return nil
	default:
		return ErrQueueIsFull
	}
}

// Jump schedules a task ahead of the regular lane.
// Warning: only a few tasks may jump concurrently; the lane is small.
func (mq *Queue) Jump(task func()) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.tasks == nil {
		return ErrQueueIsStopped
	}
	select {
	case mq.jumps <- task:
		return nil
	default:
		return ErrQueueIsFull
	}
}
