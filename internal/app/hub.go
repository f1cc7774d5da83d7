package app

import (
	"context"
	"sync"

	"quiz-grading-engine/internal/domain"
)

// CompletionHub fans completed attempts out to in-process subscribers, such as websocket
// timers waiting on an attempt that may be completed elsewhere.
type CompletionHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Attempt]struct{}
}

func NewCompletionHub() *CompletionHub {
	return &CompletionHub{subscribers: make(map[string]map[chan domain.Attempt]struct{})}
}

// Subscribe returns a channel that receives the attempt once it is completed.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *CompletionHub) Subscribe(attemptID string) (<-chan domain.Attempt, func()) {
	ch := make(chan domain.Attempt, 1)

	h.mu.Lock()
	subs, ok := h.subscribers[attemptID]
	if !ok {
		subs = make(map[chan domain.Attempt]struct{})
		h.subscribers[attemptID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[attemptID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, attemptID)
		}
	}
	return ch, cancel
}

// AttemptCompleted implements ProgressNotifier.
func (h *CompletionHub) AttemptCompleted(_ context.Context, attempt domain.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[attempt.ID] {
		select {
		case ch <- attempt:
		default:
			// a completion is terminal; a full buffer already holds it
		}
	}
	return nil
}

// Subscribers reports how many listeners wait on attemptID.
func (h *CompletionHub) Subscribers(attemptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[attemptID])
}
