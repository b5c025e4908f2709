// Package stream provides ordered asynchronous execution queues and
// completion events, modeling a GPU stream scheduling model on the CPU.
// Operations within a stream execute in submission order; operations in
// different streams carry no mutual ordering guarantee. Completion is
// observed only through explicit synchronization, either of the whole
// stream or of a recorded Event.
package stream

import (
	"sync"
	"sync/atomic"
)

// taskQueueDepth bounds how many tasks a stream can hold before Submit
// blocks the producer.
const taskQueueDepth = 1024

// Stream is an ordered sequence of asynchronously executed tasks.
// Submitting is non-blocking for the caller as long as the queue has
// room; the worker goroutine drains tasks in FIFO order.
type Stream struct {
	id     uint64
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

var streamID atomic.Uint64

// New creates a stream and starts its worker goroutine.
func New() *Stream {
	s := &Stream{
		id:    streamID.Add(1),
		tasks: make(chan func(), taskQueueDepth),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// worker drains tasks for the stream, one at a time.
func (s *Stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
	close(s.done)
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() uint64 {
	return s.id
}

// Submit enqueues a task. Tasks run in submission order. Submitting to a
// closed stream panics, matching the behavior of launching work on a
// destroyed stream.
func (s *Stream) Submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// Synchronize blocks until every task submitted so far has finished.
func (s *Stream) Synchronize() {
	s.wg.Wait()
}

// Close stops the worker after all queued tasks drain. The stream must
// not be used afterwards.
func (s *Stream) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.tasks)
		<-s.done
	}
}

// Event is a completion token recorded into a stream. It completes once
// every task submitted to the stream before the record point has
// finished executing.
type Event struct {
	ch chan struct{}
}

// Record enqueues a completion marker and returns its Event.
func (s *Stream) Record() *Event {
	e := &Event{ch: make(chan struct{})}
	s.Submit(func() { close(e.ch) })
	return e
}

// Wait blocks until the event completes.
func (e *Event) Wait() {
	<-e.ch
}

// Done reports whether the event has completed, without blocking.
func (e *Event) Done() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Default stream, mirroring the null stream: work that does not name a
// stream lands here.
var (
	defaultStream *Stream
	defaultOnce   sync.Once
)

// Default returns the process-wide default stream, creating it on first
// use.
func Default() *Stream {
	defaultOnce.Do(func() {
		defaultStream = New()
	})
	return defaultStream
}
