package loopback

import (
	"sync"

	pkgif "github.com/EasyTier/EasyLink/pkg/interfaces"
	"github.com/EasyTier/EasyLink/pkg/types"
)

// eventHub 引擎事件扇出，订阅者缓冲区满时丢弃
type eventHub struct {
	buffer int

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

func (h *eventHub) subscribe() pkgif.EventSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscription{hub: h, out: make(chan types.EngineEvent, h.buffer)}
	if h.closed {
		close(sub.out)
		return sub
	}
	h.subs = append(h.subs, sub)
	return sub
}

func (h *eventHub) emit(ev types.EngineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		select {
		case s.out <- ev:
		default:
			logger.Debug("事件订阅者缓冲区已满，丢弃事件", "kind", ev.Kind)
		}
	}
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		close(s.out)
	}
	h.subs = nil
}

func (h *eventHub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(s.out)
			return
		}
	}
}

type subscription struct {
	hub *eventHub
	out chan types.EngineEvent
}

func (s *subscription) Out() <-chan types.EngineEvent { return s.out }

func (s *subscription) Close() error {
	s.hub.remove(s)
	return nil
}
