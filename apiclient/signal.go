package apiclient

import (
	"sync"
	"time"
)

// SessionEvent is emitted once per authentication loss.
// The client never navigates or prompts; subscribers decide what to do.
type SessionEvent struct {
	Reason AuthReason
	Err    *AuthError
	At     time.Time
}

// RetryEvent describes a transient failure that is about to be retried.
type RetryEvent struct {
	Method    string
	URL       string
	RequestID string
	Attempt   int // zero-based index of the attempt that failed
	Delay     time.Duration
	Err       error
}

// RefreshEvent describes the outcome of one refresh call.
type RefreshEvent struct {
	Err      error
	Duration time.Duration
}

// Hooks are optional pipeline notifications. They run synchronously on the
// request's goroutine and must not block.
type Hooks struct {
	OnRetry func(RetryEvent)
	// OnRefreshStart fires once per refresh call, before it is sent.
	OnRefreshStart func()
	OnRefresh      func(RefreshEvent)
}

type sessionSignal struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(SessionEvent)
}

func (s *sessionSignal) subscribe(fn func(SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]func(SessionEvent))
	}
	id := s.next
	s.next++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *sessionSignal) emit(ev SessionEvent) {
	s.mu.RLock()
	subs := make([]func(SessionEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
