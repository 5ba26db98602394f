package capture

import (
	"sync"

	"hivetrap/internal/model"
)

// Ring keeps a bounded buffer of the most recent events. Older entries are
// dropped in insertion order; nothing here grows with process lifetime.
type Ring struct {
	mu    sync.RWMutex
	buf   []model.AttackEvent
	limit int
}

func NewRing(limit int) *Ring {
	if limit <= 0 {
		limit = 1000
	}
	return &Ring{limit: limit}
}

func (r *Ring) Add(ev model.AttackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < r.limit {
		r.buf = append(r.buf, ev)
		return
	}
	copy(r.buf, r.buf[1:])
	r.buf[len(r.buf)-1] = ev
}

func (r *Ring) List(limit int) []model.AttackEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.buf) {
		limit = len(r.buf)
	}
	out := make([]model.AttackEvent, 0, limit)
	for i := len(r.buf) - limit; i < len(r.buf); i++ {
		out = append(out, r.buf[i])
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}
