package progress

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snap    Snapshot
	expires time.Time
}

// Memory is an in-process Tracker.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
	latest  string
}

// NewMemory returns a Memory tracker whose entries live for ttl after their
// last update. A non-positive ttl disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Record stores snap as the job's current state and the process-wide latest.
func (m *Memory) Record(_ context.Context, snap Snapshot) error {
	now := m.now()
	snap, err := stamp(snap, now)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[snap.JobID] = memoryEntry{snap: snap, expires: m.expiry(now)}
	m.latest = snap.JobID
	return nil
}

// Get returns the job's snapshot unless it is unknown or expired.
func (m *Memory) Get(_ context.Context, jobID string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(jobID)
}

// Latest returns the most recently written snapshot across all jobs.
func (m *Memory) Latest(_ context.Context) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == "" {
		return Snapshot{}, false, nil
	}
	return m.lookup(m.latest)
}

// Sweep drops expired entries and reports how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, id)
			removed++
		}
	}
	if _, ok := m.entries[m.latest]; !ok {
		m.latest = ""
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) lookup(jobID string) (Snapshot, bool, error) {
	e, ok := m.entries[jobID]
	if !ok {
		return Snapshot{}, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		return Snapshot{}, false, nil
	}
	return e.snap, true, nil
}

func (m *Memory) expiry(now time.Time) time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(m.ttl)
}
