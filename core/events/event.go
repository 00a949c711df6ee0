package events

import "sync"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (gateway feeds,
// webhook outboxes, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into engines so event emission stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events during an atomic state unit so they can be flushed
// to subscribers only after the unit commits. A failed unit calls Reset and
// nothing escapes.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Flush delivers buffered events to the sink in emission order and clears the
// buffer. A nil sink drops the events.
func (b *Buffer) Flush(sink Emitter) {
	if b == nil {
		return
	}
	pending := b.pending
	b.pending = nil
	if sink == nil {
		return
	}
	for _, evt := range pending {
		sink.Emit(evt)
	}
}

// Reset discards buffered events without delivering them.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.pending = nil
}

// Fanout distributes each event to every registered subscriber. Subscribers
// must not block; delivery happens on the committing goroutine.
type Fanout struct {
	mu   sync.RWMutex
	subs []func(Event)
}

// Subscribe registers a subscriber callback.
func (f *Fanout) Subscribe(fn func(Event)) {
	if f == nil || fn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
}
