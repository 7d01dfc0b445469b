package store

import (
	"sync"
	"time"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

// MemoryStore keeps graphs and runs in process memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu         sync.RWMutex
	graphs     map[string]*runflow.GraphSpec
	graphOrder []string
	runs       map[string]*runflow.Run
	runOrder   []string
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string]*runflow.GraphSpec),
		runs:   make(map[string]*runflow.Run),
	}
}

// SaveGraph implements runflow.GraphStore.
func (m *MemoryStore) SaveGraph(spec *runflow.GraphSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}
	id := newID()
	m.graphs[id] = spec.Clone()
	m.graphOrder = append(m.graphOrder, id)
	return id, nil
}

// LookupGraph implements runflow.GraphStore.
func (m *MemoryStore) LookupGraph(id string) (*runflow.GraphSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	spec, ok := m.graphs[id]
	if !ok {
		return nil, graphNotFound(id)
	}
	return spec.Clone(), nil
}

// ListGraphs implements runflow.GraphStore.
func (m *MemoryStore) ListGraphs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return append([]string(nil), m.graphOrder...), nil
}

// Create implements runflow.Ledger.
func (m *MemoryStore) Create(graphID string, initial runflow.State) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}
	now := time.Now().UTC()
	id := newID()
	m.runs[id] = &runflow.Run{
		ID:           id,
		GraphID:      graphID,
		Status:       runflow.StatusPending,
		CurrentState: initial.Clone(),
		Logs:         []runflow.LogEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.runOrder = append(m.runOrder, id)
	return id, nil
}

// Get implements runflow.Ledger.
func (m *MemoryStore) Get(runID string) (*runflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	r, ok := m.runs[runID]
	if !ok {
		return nil, runNotFound(runID)
	}
	return r.Clone(), nil
}

// Update implements runflow.Ledger.
func (m *MemoryStore) Update(runID string, u runflow.RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	r, ok := m.runs[runID]
	if !ok {
		return nil
	}
	u.Apply(r)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendLog implements runflow.Ledger.
func (m *MemoryStore) AppendLog(runID, node, message string, snapshot runflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	r, ok := m.runs[runID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	r.Logs = append(r.Logs, runflow.LogEntry{
		Node:          node,
		Message:       message,
		StateSnapshot: snapshot.Clone(),
		Time:          now,
	})
	r.UpdatedAt = now
	return nil
}

// Finish implements runflow.Ledger.
func (m *MemoryStore) Finish(runID string, final runflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	r, ok := m.runs[runID]
	if !ok {
		return nil
	}
	r.CurrentState = final.Clone()
	if !r.Status.Terminal() {
		r.Status = runflow.StatusFinished
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// List implements runflow.Ledger.
func (m *MemoryStore) List() ([]*runflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*runflow.Run, 0, len(m.runOrder))
	for _, id := range m.runOrder {
		out = append(out, m.runs[id].Clone())
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
