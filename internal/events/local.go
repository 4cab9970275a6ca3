package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tenorite/tenorite-server/internal/obslog"
)

const subscriberBuffer = 256

// LocalBus fans events out to in-process subscribers. Each subscriber has
// its own buffer; when it is full the event is dropped for that subscriber.
type LocalBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]chan Event)}
}

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			obslog.L().Warn("event_dropped", zap.Int("subscriber", id), zap.String("kind", string(e.Kind())))
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	go func() {
		for e := range ch {
			h(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if ch, ok := b.subs[id]; ok {
				close(ch)
				delete(b.subs, id)
			}
		})
	}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	return nil
}
