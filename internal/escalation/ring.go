package escalation

import (
	"sync"

	"github.com/hammamikhairi/guardian/internal/domain"
)

// ring is a fixed-size outcome history.
type ring struct {
	mu   sync.Mutex
	buf  []domain.EscalationOutcome
	next int
	full bool
}

func newRing(n int) *ring {
	if n < 1 {
		n = 1
	}
	return &ring{buf: make([]domain.EscalationOutcome, n)}
}

func (r *ring) push(o domain.EscalationOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = o
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// list returns up to n entries, newest first. n <= 0 means all.
func (r *ring) list(n int) []domain.EscalationOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]domain.EscalationOutcome, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
