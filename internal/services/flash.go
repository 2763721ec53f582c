package services

import (
	"sync"
	"time"

	"qmd/internal/cartstore"
)

type Flash struct {
	Kind    cartstore.Kind
	Message string
}

// FlashQueue holds messages per session until the next page render shows them.
type FlashQueue struct {
	mu     sync.Mutex
	max    int
	q      map[string][]Flash
	pushed map[string]time.Time
	now    func() time.Time
}

func NewFlashQueue() *FlashQueue {
	return &FlashQueue{max: 20, q: map[string][]Flash{}, pushed: map[string]time.Time{}, now: time.Now}
}

// WithClock is for tests that need to move time forward.
func (f *FlashQueue) WithClock(now func() time.Time) *FlashQueue {
	f.now = now
	return f
}

func (f *FlashQueue) Push(sid string, kind cartstore.Kind, msg string) {
	if sid == "" || msg == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q := append(f.q[sid], Flash{Kind: kind, Message: msg})
	if len(q) > f.max {
		q = q[len(q)-f.max:]
	}
	f.q[sid] = q
	f.pushed[sid] = f.now()
}

// Drain returns and forgets the pending messages of sid.
func (f *FlashQueue) Drain(sid string) []Flash {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.q[sid]
	delete(f.q, sid)
	delete(f.pushed, sid)
	return out
}

// Sweep drops undelivered messages older than idle.
func (f *FlashQueue) Sweep(idle time.Duration) int {
	cutoff := f.now().Add(-idle)
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for sid, at := range f.pushed {
		if at.Before(cutoff) {
			delete(f.q, sid)
			delete(f.pushed, sid)
			n++
		}
	}
	return n
}

// For binds the queue to one session as a cart notifier.
func (f *FlashQueue) For(sid string) cartstore.Notifier {
	return cartstore.NotifierFunc(func(kind cartstore.Kind, msg string) { f.Push(sid, kind, msg) })
}
