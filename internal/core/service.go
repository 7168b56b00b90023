package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service coordinates imports, period locking and the audit journal over
// a storage capability. A single Service handles one import session at a
// time; direct record mutations and journal reads are always available.
type Service struct {
	store Store

	mu      sync.Mutex
	session *ImportSession

	listenerMu sync.Mutex
	listeners  []chan Progress

	now   func() time.Time
	newID func() string
}

// NewService wires a Service to its storage capability.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// SubscribeProgress registers a listener for pipeline progress events.
// The returned channel is buffered; slow consumers drop events rather
// than stall the pipeline.
func (s *Service) SubscribeProgress() chan Progress {
	ch := make(chan Progress, 32)
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenerMu.Unlock()
	return ch
}

// UnsubscribeProgress removes and closes a listener channel.
func (s *Service) UnsubscribeProgress(ch chan Progress) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for i, l := range s.listeners {
		if l == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Service) notifyProgress(p Progress) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}
