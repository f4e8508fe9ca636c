// Package eventbus implements the single-producer-per-emitter,
// multi-subscriber event bus from spec §4.1: a monotonic sequence counter, a
// fixed-size ring buffer, and replay-on-subscribe.
//
// The fan-out/drop-on-full discipline is grounded on the teacher's
// internal/bus/bus.go (non-blocking publish, subscriber dropped rather than
// blocking the publisher); sequencing and the replay buffer are additions
// this spec requires that the teacher's bus does not have.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskforge/orchestrator/internal/types"
)

const subscriberBufSize = 128

// Bus is the process-wide, totally-ordered event bus.
type Bus struct {
	mu         sync.Mutex
	seq        uint64
	buf        []types.Envelope // ring buffer, fixed capacity
	writeIdx   int
	count      int // number of valid entries currently in buf
	subs       map[string]*subscriber
	log        *slog.Logger
}

type subscriber struct {
	ch     chan types.Envelope
	closed bool
}

// New creates a Bus with the given ring-buffer capacity (spec default 200).
func New(bufferSize int, log *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		buf:  make([]types.Envelope, bufferSize),
		subs: make(map[string]*subscriber),
		log:  log.With("component", "eventbus"),
	}
}

// Publish atomically allocates the next sequence number, enqueues the
// envelope into the ring buffer, and fans it out to every live subscriber.
// It never blocks on a slow subscriber — a full subscriber channel causes
// that subscriber to be dropped (it must re-subscribe, per spec §4.1).
func (b *Bus) Publish(eventType string, taskID string, payload any) uint64 {
	env := types.Envelope{Type: eventType, TaskID: taskID, At: time.Now().UTC(), Payload: payload}

	b.mu.Lock()
	b.seq++
	env.Sequence = b.seq

	overwriting := b.count == len(b.buf)
	b.buf[b.writeIdx] = env
	b.writeIdx = (b.writeIdx + 1) % len(b.buf)
	if b.count < len(b.buf) {
		b.count++
	}
	if overwriting {
		b.log.Debug("ring buffer wrapped", "sequence", env.Sequence)
	}

	var targets []*subscriber
	for id, s := range b.subs {
		if s.closed {
			delete(b.subs, id)
			continue
		}
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- env:
		default:
			b.dropSubscriber(s)
			b.log.Warn("subscriber dropped: channel full", "type", eventType)
		}
	}
	return env.Sequence
}

func (b *Bus) dropSubscriber(target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		if s == target {
			s.closed = true
			close(s.ch)
			delete(b.subs, id)
			return
		}
	}
}

// Subscribe registers a new subscriber, delivers every envelope currently in
// the ring buffer (in sequence order) synchronously into the returned
// channel's backlog, then continues delivering new envelopes as published.
// The returned cancel function unregisters the subscriber.
func (b *Bus) Subscribe() (<-chan types.Envelope, func()) {
	id := uuid.New().String()

	// The backlog is queued into the channel under the same lock Publish
	// takes, and the channel is sized to hold it on top of the usual buffer,
	// so a late joiner sees buffered history before any live envelope.
	b.mu.Lock()
	backlog := b.orderedBacklogLocked()
	ch := make(chan types.Envelope, subscriberBufSize+len(backlog))
	sub := &subscriber{ch: ch}
	for _, env := range backlog {
		ch <- env
	}
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(b.subs, id)
		}
	}
	return ch, cancel
}

// Recent returns the most recent up-to-limit envelopes, newest last.
func (b *Bus) Recent(limit int) []types.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	backlog := b.orderedBacklogLocked()
	if limit <= 0 || limit >= len(backlog) {
		return backlog
	}
	return backlog[len(backlog)-limit:]
}

// orderedBacklogLocked returns the buffer contents in sequence order. Caller
// must hold b.mu.
func (b *Bus) orderedBacklogLocked() []types.Envelope {
	out := make([]types.Envelope, 0, b.count)
	if b.count < len(b.buf) {
		out = append(out, b.buf[:b.count]...)
		return out
	}
	// Full buffer: oldest entry is at writeIdx (about to be overwritten next).
	out = append(out, b.buf[b.writeIdx:]...)
	out = append(out, b.buf[:b.writeIdx]...)
	return out
}

// RunUntil is a convenience for tests/diagnostics: blocks until ctx is
// cancelled, draining ch so the subscriber never blocks Publish.
func RunUntil(ctx context.Context, ch <-chan types.Envelope, onEvent func(types.Envelope)) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if onEvent != nil {
				onEvent(env)
			}
		}
	}
}
