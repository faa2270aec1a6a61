package core

import (
	"context"
	"sync"
	"time"
)

const defaultQueueSize = 64

// EventLoop is the single cooperative context that owns scene state.
// Everything touching the scene runs as a posted function, one at a time.
type EventLoop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewEventLoop creates a loop with a bounded queue; size <= 0 uses a default
func NewEventLoop(size int) *EventLoop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &EventLoop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run processes posted functions until ctx is done
func (l *EventLoop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post enqueues fn, blocking while the queue is full. It reports false once the loop has stopped.
// Must not be called from inside the loop.
func (l *EventLoop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.queue <- fn:
		return true
	}
}

// After posts fn once d has elapsed
func (l *EventLoop) After(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.Post(fn) })
}

// Do runs fn on the loop and waits for it to finish
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrEngineStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// fn may have run just before the loop stopped
		select {
		case <-finished:
			return nil
		default:
			return ErrEngineStopped
		}
	}
}

// Done is closed when the loop stops
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
