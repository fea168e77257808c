package event

import "sync"

// QueueSink forwards events to an interactive renderer over a bounded
// channel. When the queue is full the oldest non-critical event is dropped
// so the pipeline never blocks on a slow renderer.
type QueueSink struct {
	mu       sync.Mutex
	events   chan Event
	controls chan Control
	closed   bool
}

// NewQueueSink creates a sink with the given queue capacity.
func NewQueueSink(capacity int) *QueueSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &QueueSink{
		events:   make(chan Event, capacity),
		controls: make(chan Control, 8),
	}
}

// Events is the renderer's end of the queue. It is closed by Close once the
// pipeline has finished.
func (s *QueueSink) Events() <-chan Event { return s.events }

// SendControl queues a control command for the pipeline. Commands sent
// while the buffer is full are discarded; the UI can simply repeat them.
func (s *QueueSink) SendControl(c Control) {
	select {
	case s.controls <- c:
	default:
	}
}

// Close marks the end of the event stream.
func (s *QueueSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *QueueSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
		return
	default:
	}

	// Queue full: pop until a non-critical event is found, re-queueing any
	// critical ones popped on the way. Work is bounded by the queue length.
	kept := make([]Event, 0, 4)
	dropped := false
	for !dropped {
		select {
		case old := <-s.events:
			if critical(old) {
				kept = append(kept, old)
				continue
			}
			dropped = true
		default:
			dropped = true // nothing left to pop; consumer drained meanwhile
		}
	}
	for _, k := range kept {
		select {
		case s.events <- k:
		default:
		}
	}
	select {
	case s.events <- e:
	default:
		// Entirely full of critical events; the incoming event is dropped,
		// whether critical or not.
	}
}

func (s *QueueSink) PollControl() (Control, bool) {
	select {
	case c := <-s.controls:
		return c, true
	default:
		return 0, false
	}
}
