package ws

import (
	"context"
	"sync"
)

// localBuffer is the per-subscriber backlog before messages are dropped.
const localBuffer = 64

// Local is an in-process publish/subscribe bus used when Redis is not
// configured. Slow subscribers lose messages instead of blocking publishers.
type Local struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[chan []byte]struct{})}
}

func (l *Local) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ch := range l.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, localBuffer)

	l.mu.Lock()
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[chan []byte]struct{})
	}
	l.subs[channel][ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs[channel], ch)
			if len(l.subs[channel]) == 0 {
				delete(l.subs, channel)
			}
			close(ch)
			l.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cleanup()
	}()

	return ch, cleanup, nil
}
