package noncestore

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	now  func() time.Time
	ttl  time.Duration
	seen map[string]time.Time
}

type MemoryStoreConfig struct {
	Now func() time.Time
	TTL time.Duration
}

// NewMemoryStore keeps admitted nonces in process memory. Suitable for a
// single instance; multi-instance deployments need the redis store so all
// replicas share one replay window.
func NewMemoryStore(cfg MemoryStoreConfig) *memoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &memoryStore{
		now:  cfg.Now,
		ttl:  cfg.TTL,
		seen: make(map[string]time.Time),
	}
}

func (m *memoryStore) PutIfAbsent(_ context.Context, nonce string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(now)
	if expiry, ok := m.seen[nonce]; ok && now.Before(expiry) {
		return false, nil
	}
	m.seen[nonce] = now.Add(m.ttl)
	return true, nil
}

func (m *memoryStore) TTL() time.Duration { return m.ttl }

func (m *memoryStore) evict(now time.Time) {
	for nonce, expiry := range m.seen {
		if !now.Before(expiry) {
			delete(m.seen, nonce)
		}
	}
}
