package wire

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultSubscriberBuffer is the default bounded queue depth for an ordinary
// subscriber (spec §5: "slow subscribers do not block producers but may
// drop").
const DefaultSubscriberBuffer = 256

// Subscription is one independently-buffered consumer of the bus.
type Subscription struct {
	ch      chan Envelope
	dropped atomic.Uint64
	closed  atomic.Bool
}

// C returns the channel to range over.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Dropped returns how many envelopes this subscriber has missed because its
// queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Recorder persists every envelope durably; its queue is unbounded (spec §5:
// "the recorder's queue is unbounded (disk, not memory, is the limit) —
// this is a deliberate asymmetry").
type Recorder interface {
	Record(Envelope)
	Close() error
}

// Bus is the in-process event bus (spec §4.3).
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	recorder Recorder
	merge    mergeState
	closed   bool
	logger   *slog.Logger
}

// New creates an empty bus. Install the default UI subscription and the
// recorder before producing the first event — spec §4.3 makes this a
// correctness requirement: "the TurnBegin of the first turn is never
// missed".
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[*Subscription]struct{}), logger: logger}
}

// SetRecorder installs the durable JSONL recorder subscriber.
func (b *Bus) SetRecorder(r Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// Subscribe installs a new bounded-queue subscriber.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	sub := &Subscription{ch: make(chan Envelope, bufSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok && sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

// publish fans an envelope out to every subscriber (non-blocking, drop on
// full queue) and to the recorder (never dropped; its queue is unbounded).
func (b *Bus) publish(env Envelope) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	rec := b.recorder
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return
	}

	for _, s := range subs {
		select {
		case s.ch <- env:
		default:
			s.dropped.Add(1)
			b.logger.Warn("wire subscriber queue full, dropping envelope", "type", env.Type)
		}
	}
	if rec != nil {
		rec.Record(env)
	}
}

// Emit publishes a non-mergeable event immediately, first flushing any
// pending merge-buffered fragment (spec §9: "any non-mergeable event first
// flushes the buffer").
func (b *Bus) Emit(t EventType, payload any) error {
	b.mu.Lock()
	flushEnv, hasFlush := b.merge.flushIfPending()
	b.mu.Unlock()
	if hasFlush {
		b.publish(flushEnv)
	}
	env, err := NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	b.publish(env)
	return nil
}

// EmitMergeable feeds a mergeable fragment (ContentPart/ToolCall/
// ToolCallPart) through the producer-side merge buffer (spec §4.3, §9).
// Only one pending fragment is held at a time; pushing a new one that does
// not merge with the pending one flushes the pending one first.
func (b *Bus) EmitMergeable(t EventType, payload any) error {
	if !isMergeable(t) {
		return b.Emit(t, payload)
	}
	env, err := NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	toPublish := b.merge.push(env)
	b.mu.Unlock()
	for _, e := range toPublish {
		b.publish(e)
	}
	return nil
}

// Flush forces out any pending merge-buffered fragment without requiring a
// following non-mergeable event.
func (b *Bus) Flush() {
	b.mu.Lock()
	env, has := b.merge.flushIfPending()
	b.mu.Unlock()
	if has {
		b.publish(env)
	}
}

// Shutdown closes the producer side: flushes any pending fragment, then
// closes every subscriber's channel. Close should be called on the recorder
// separately by the owner to await its final flush (spec §4.3).
func (b *Bus) Shutdown() {
	b.Flush()
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for _, s := range subs {
		if s.closed.CompareAndSwap(false, true) {
			close(s.ch)
		}
	}
}
