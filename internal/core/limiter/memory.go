package limiter

import (
	"sync"
	"time"
)

// memoryWindow is the process-local fallback: a per-key list of admission
// timestamps. It never overcounts within one process but offers no
// cross-instance consistency, and its state is never reconciled back into
// the durable store.
type memoryWindow struct {
	mu         sync.Mutex
	admissions map[string][]time.Time
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{admissions: make(map[string][]time.Time)}
}

func (m *memoryWindow) allow(key string, maxRequests int, window time.Duration, now time.Time) bool {
	if maxRequests <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.prune(key, window, now)
	if len(kept) >= maxRequests {
		m.admissions[key] = kept
		return false
	}

	m.admissions[key] = append(kept, now)
	return true
}

func (m *memoryWindow) remaining(key string, maxRequests int, window time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.prune(key, window, now)
	m.admissions[key] = kept

	if remaining := maxRequests - len(kept); remaining > 0 {
		return remaining
	}
	return 0
}

// prune drops admissions older than the window. Caller holds the lock.
func (m *memoryWindow) prune(key string, window time.Duration, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	kept := m.admissions[key][:0]
	for _, t := range m.admissions[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
