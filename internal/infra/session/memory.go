package session

import (
	"context"
	"sync"
	"time"

	"ready2rent-bot/internal/domain"
)

// Memory keeps sessions in a mutex-guarded map. Entries expire after the
// TTL; an expired session behaves exactly like a missing one. The original
// design never evicted abandoned sessions, which leaked memory on long
// deployments.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[int64]memoryEntry
}

type memoryEntry struct {
	sess    domain.Session
	expires time.Time
}

// NewMemory creates an in-memory store. A non-positive ttl disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, items: make(map[int64]memoryEntry)}
}

// Get returns the user's session if present and not expired.
func (m *Memory) Get(ctx context.Context, userID int64) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.items[userID]
	if !ok {
		return domain.Session{}, false, nil
	}
	if m.ttl > 0 && time.Now().After(entry.expires) {
		delete(m.items, userID)
		return domain.Session{}, false, nil
	}
	return entry.sess, true, nil
}

// Put stores the session, replacing any previous one for the user.
func (m *Memory) Put(ctx context.Context, sess domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sess.UserID] = memoryEntry{sess: sess, expires: time.Now().Add(m.ttl)}
	return nil
}

// Delete removes the user's session. Deleting a missing session is a no-op.
func (m *Memory) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

// Run evicts expired sessions periodically until the context is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for userID, entry := range m.items {
				if now.After(entry.expires) {
					delete(m.items, userID)
				}
			}
			m.mu.Unlock()
		}
	}
}
