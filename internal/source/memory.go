package source

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/ordersync/internal/event"
)

// Memory is an in-memory Source and Discoverer.
type Memory struct {
	mu       sync.Mutex
	records  map[string][]event.Raw
	failures map[string][]error
	fetches  map[string]int
}

// NewMemory creates an empty Memory source.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string][]event.Raw),
		failures: make(map[string][]error),
		fetches:  make(map[string]int),
	}
}

// Add appends records for entityID.
func (m *Memory) Add(entityID string, records ...event.Raw) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entityID] = append(m.records[entityID], records...)
}

// Fail makes the next fetches of entityID return errs, one per call.
func (m *Memory) Fail(entityID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[entityID] = append(m.failures[entityID], errs...)
}

// Fetches returns how many times entityID was fetched.
func (m *Memory) Fetches(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[entityID]
}

func (m *Memory) Fetch(ctx context.Context, entityID string, afterSeq int64) ([]event.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches[entityID]++
	if errs := m.failures[entityID]; len(errs) > 0 {
		m.failures[entityID] = errs[1:]
		return nil, errs[0]
	}

	var out []event.Raw
	for _, r := range m.records[entityID] {
		if seq, ok := r.Seq(); ok && seq <= afterSeq {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) Discover(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
