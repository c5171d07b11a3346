package otp

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It suits tests and single-instance
// deployments where losing outstanding codes on restart is acceptable.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (m *MemoryStore) InvalidateLive(_ context.Context, email, purpose string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.invalidateLocked(email, purpose, now), nil
}

func (m *MemoryStore) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocked(rec)
}

func (m *MemoryStore) SwapLive(_ context.Context, rec *Record, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	invalidated := m.invalidateLocked(rec.Email, rec.Purpose, now)
	if err := m.insertLocked(rec); err != nil {
		return 0, err
	}
	return invalidated, nil
}

func (m *MemoryStore) FindLive(_ context.Context, email, code, purpose string, now time.Time) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.Email == email && rec.Purpose == purpose && rec.Code == code && rec.IsLive(now) {
			found := cloneRecord(rec)
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) MarkUsed(_ context.Context, rec *Record, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.records[rec.ID]
	if !ok || !stored.IsLive(now) {
		return false, nil
	}

	usedAt := now
	stored.IsUsed = true
	stored.UsedAt = &usedAt

	rec.IsUsed = true
	rec.UsedAt = &usedAt
	return true, nil
}

func (m *MemoryStore) FindExpiredBefore(_ context.Context, cutoff time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []Record
	for _, rec := range m.records {
		if rec.ExpiresAt.Before(cutoff) {
			expired = append(expired, cloneRecord(rec))
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

func (m *MemoryStore) Delete(_ context.Context, rec *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; !ok {
		return false, nil
	}
	delete(m.records, rec.ID)
	return true, nil
}

// Len returns the number of stored records, live or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

func (m *MemoryStore) invalidateLocked(email, purpose string, now time.Time) int64 {
	var count int64
	for _, rec := range m.records {
		if rec.Email == email && rec.Purpose == purpose && rec.IsLive(now) {
			invalidatedAt := now
			rec.InvalidatedAt = &invalidatedAt
			count++
		}
	}
	return count
}

func (m *MemoryStore) insertLocked(rec *Record) error {
	if _, exists := m.records[rec.ID]; exists {
		return errDuplicateID
	}
	stored := cloneRecord(rec)
	m.records[rec.ID] = &stored
	return nil
}

func cloneRecord(rec *Record) Record {
	c := *rec
	if rec.UsedAt != nil {
		t := *rec.UsedAt
		c.UsedAt = &t
	}
	if rec.InvalidatedAt != nil {
		t := *rec.InvalidatedAt
		c.InvalidatedAt = &t
	}
	return c
}
