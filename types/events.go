package types

// Lifecycle events published by the engine. Collaborators (logging, report
// sinks) subscribe through an EventSink; there is no global listener
// registry and the engine never blocks on a slow subscriber beyond the
// sink's own buffering policy.

// ExecutionStartedEvent is emitted once the plan is built, before setup runs.
type ExecutionStartedEvent struct {
	ExecutionID string
	SuiteID     string
	Plan        []string // execution order
}

// TestCompletedEvent is emitted after every test reaches a terminal state.
type TestCompletedEvent struct {
	ExecutionID string
	Result      *TestResult
	Progress    Progress
}

// ProgressUpdatedEvent is emitted whenever progress counters change.
type ProgressUpdatedEvent struct {
	ExecutionID string
	Progress    Progress
}

// ExecutionCompletedEvent is emitted exactly once, after finalization.
type ExecutionCompletedEvent struct {
	ExecutionID string
	Status      ExecutionStatus
}

// ExecutionCancelledEvent is emitted when a cancellation takes effect.
type ExecutionCancelledEvent struct {
	ExecutionID string
}

// ExecutionErrorEvent is emitted for phase-level (setup/cleanup) failures.
type ExecutionErrorEvent struct {
	ExecutionID string
	Phase       Phase
	Err         error
}

// EventSink receives lifecycle events from the engine.
type EventSink interface {
	ExecutionStarted(ExecutionStartedEvent)
	TestCompleted(TestCompletedEvent)
	ProgressUpdated(ProgressUpdatedEvent)
	ExecutionCompleted(ExecutionCompletedEvent)
	ExecutionCancelled(ExecutionCancelledEvent)
	ExecutionError(ExecutionErrorEvent)
}

// noopSink discards all events.
type noopSink struct{}

// NewNoopSink returns a sink that does nothing. Used when the caller does
// not care about lifecycle events.
func NewNoopSink() EventSink {
	return &noopSink{}
}

func (noopSink) ExecutionStarted(ExecutionStartedEvent)     {}
func (noopSink) TestCompleted(TestCompletedEvent)           {}
func (noopSink) ProgressUpdated(ProgressUpdatedEvent)       {}
func (noopSink) ExecutionCompleted(ExecutionCompletedEvent) {}
func (noopSink) ExecutionCancelled(ExecutionCancelledEvent) {}
func (noopSink) ExecutionError(ExecutionErrorEvent)         {}

// Event is the union type carried by ChannelSink.
type Event any

// ChannelSink forwards events onto a buffered channel. Events are dropped
// when the buffer is full so a stalled consumer cannot block the engine.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the event channel. Call only after the execution finished.
func (s *ChannelSink) Close() {
	close(s.ch)
}

func (s *ChannelSink) publish(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

func (s *ChannelSink) ExecutionStarted(ev ExecutionStartedEvent)     { s.publish(ev) }
func (s *ChannelSink) TestCompleted(ev TestCompletedEvent)           { s.publish(ev) }
func (s *ChannelSink) ProgressUpdated(ev ProgressUpdatedEvent)       { s.publish(ev) }
func (s *ChannelSink) ExecutionCompleted(ev ExecutionCompletedEvent) { s.publish(ev) }
func (s *ChannelSink) ExecutionCancelled(ev ExecutionCancelledEvent) { s.publish(ev) }
func (s *ChannelSink) ExecutionError(ev ExecutionErrorEvent)         { s.publish(ev) }

var _ EventSink = (*ChannelSink)(nil)
