// internal/app/system/lockout/memory.go
package lockout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/stratadues/internal/app/system/pathlock"
	"github.com/dalemusser/stratadues/internal/domain/models"
)

// MemoryStore keeps lock state in process memory. Updates of the same user
// are serialized; different users proceed independently. It is only correct
// for a single server instance.
type MemoryStore struct {
	users *pathlock.Locker

	mu     sync.RWMutex
	states map[string]models.LockState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  pathlock.New(false),
		states: make(map[string]models.LockState),
	}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (models.LockState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[userID]
	if !ok {
		return models.LockState{UserID: userID}, nil
	}
	return st, nil
}

func (m *MemoryStore) Update(ctx context.Context, userID string, fn func(models.LockState) models.LockState) (models.LockState, error) {
	if err := ctx.Err(); err != nil {
		return models.LockState{}, err
	}
	unlock, err := m.users.Lock(userID)
	if err != nil {
		return models.LockState{}, err
	}
	defer unlock()

	cur, _ := m.Get(ctx, userID)
	next := fn(cur)
	next.UserID = userID

	m.mu.Lock()
	if next.IsClear() {
		delete(m.states, userID)
	} else {
		m.states[userID] = next
	}
	m.mu.Unlock()
	return next, nil
}

func (m *MemoryStore) Reset(_ context.Context, userID string) error {
	unlock, err := m.users.Lock(userID)
	if err != nil {
		return err
	}
	defer unlock()

	m.mu.Lock()
	delete(m.states, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ResetLocked(ctx context.Context, now time.Time) (int, error) {
	locked, _ := m.ListLocked(ctx, now)
	n := 0
	for _, st := range locked {
		unlock, err := m.users.Lock(st.UserID)
		if err != nil {
			return n, err
		}
		m.mu.Lock()
		// Re-check under the user lock; it may have changed since listing.
		if cur, ok := m.states[st.UserID]; ok && cur.LockedAt(now) {
			delete(m.states, st.UserID)
			n++
		}
		m.mu.Unlock()
		unlock()
	}
	return n, nil
}

func (m *MemoryStore) ListLocked(_ context.Context, now time.Time) ([]models.LockState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LockState
	for _, st := range m.states {
		if st.LockedAt(now) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
