// Package memory provides an in-process pub/sub bus for tests and single-process setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"auction-settlement/internal/domain"
)

type Published struct {
	Channel string
	Payload []byte
}

// Bus delivers each published payload synchronously to every current
// subscriber of the channel and keeps a log of everything published.
type Bus struct {
	mutex     sync.Mutex
	subs      map[string]map[int]domain.MessageHandler
	nextID    int
	published []Published
	changed   chan struct{}
}

func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string]map[int]domain.MessageHandler),
		changed: make(chan struct{}),
	}
}

func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := append([]byte(nil), payload...)

	b.mutex.Lock()
	b.published = append(b.published, Published{Channel: channel, Payload: msg})
	ids := make([]int, 0, len(b.subs[channel]))
	for id := range b.subs[channel] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]domain.MessageHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[channel][id])
	}
	b.mutex.Unlock()

	for _, h := range handlers {
		h(ctx, channel, msg)
	}
	return nil
}

// Subscribe blocks until ctx is cancelled and then returns nil.
func (b *Bus) Subscribe(ctx context.Context, handler domain.MessageHandler, channels ...string) error {
	b.mutex.Lock()
	id := b.nextID
	b.nextID++
	for _, ch := range channels {
		if b.subs[ch] == nil {
			b.subs[ch] = make(map[int]domain.MessageHandler)
		}
		b.subs[ch][id] = handler
	}
	b.notifyLocked()
	b.mutex.Unlock()

	<-ctx.Done()

	b.mutex.Lock()
	for _, ch := range channels {
		delete(b.subs[ch], id)
		if len(b.subs[ch]) == 0 {
			delete(b.subs, ch)
		}
	}
	b.notifyLocked()
	b.mutex.Unlock()
	return nil
}

func (b *Bus) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Subscribers returns the number of active subscriptions to channel.
func (b *Bus) Subscribers(channel string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subs[channel])
}

// WaitForSubscribers blocks until channel has n subscribers or ctx is done.
func (b *Bus) WaitForSubscribers(ctx context.Context, channel string, n int) error {
	for {
		b.mutex.Lock()
		count := len(b.subs[channel])
		changed := b.changed
		b.mutex.Unlock()
		if count == n {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Published returns a copy of the messages published on channel, oldest first.
// An empty channel returns every message.
func (b *Bus) Published(channel string) []Published {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var out []Published
	for _, p := range b.published {
		if channel == "" || p.Channel == channel {
			out = append(out, p)
		}
	}
	return out
}
