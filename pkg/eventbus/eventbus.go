// Package eventbus implements the in-process, synchronous, multi-channel
// pub/sub described in spec.md §4.1. It is modelled on the Hub.Publish
// pattern used across the example pack for fanning Docker/container
// lifecycle events out to dashboards (see e.g. the agent.Hub idiom), but
// scoped to named channels rather than a single topic space.
//
// The bus is authoritative only for ephemeral events; durable state lives
// in the history and knowledge stores.
package eventbus

import "sync"

// Event is an opaque payload delivered to subscribers of a channel.
type Event interface{}

// Handler receives events published on a channel. Handlers are invoked
// synchronously, in subscription order, within the emitter's goroutine;
// a handler that wants to avoid blocking the emitter must offload work
// itself (e.g. onto a buffered channel).
type Handler func(Event)

// Unsubscribe removes a previously registered handler. It is safe to call
// more than once; subsequent calls are no-ops.
type Unsubscribe func()

// Bus is a process-wide multi-channel pub/sub hub.
type Bus struct {
	mu       sync.Mutex
	channels map[string][]*subscription
	seq      uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{channels: make(map[string][]*subscription)}
}

// Subscribe registers handler on the named channel and returns an
// idempotent Unsubscribe callback. When the channel's subscriber set
// becomes empty, the channel entry is removed.
func (b *Bus) Subscribe(channel string, handler Handler) Unsubscribe {
	b.mu.Lock()
	b.seq++
	id := b.seq
	sub := &subscription{id: id, handler: handler}
	b.channels[channel] = append(b.channels[channel], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.channels[channel]
			for i, s := range subs {
				if s.id == id {
					b.channels[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(b.channels[channel]) == 0 {
				delete(b.channels, channel)
			}
		})
	}
}

// Emit delivers ev to every subscriber of channel, in subscription order,
// within the caller's execution context. Emit is O(n) in subscribers and
// applies no back-pressure.
func (b *Bus) Emit(channel string, ev Event) {
	b.mu.Lock()
	subs := make([]*subscription, len(b.channels[channel]))
	copy(subs, b.channels[channel])
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

// ChannelCount returns the number of channels with at least one active
// subscriber. Exposed for tests.
func (b *Bus) ChannelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}
