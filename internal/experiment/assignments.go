package experiment

import (
	"context"
	"sort"
	"sync"
)

// AssignmentStore persists sticky user assignments.
type AssignmentStore interface {
	// Get returns the assignment for (experimentID, userID); ok is false when
	// the user has not been assigned yet.
	Get(ctx context.Context, experimentID, userID string) (uv UserVariant, ok bool, err error)
	// PutIfAbsent records uv unless an assignment already exists, and returns
	// whichever assignment is stored afterwards.
	PutIfAbsent(ctx context.Context, uv UserVariant) (UserVariant, error)
	// List returns every assignment recorded for an experiment.
	List(ctx context.Context, experimentID string) ([]UserVariant, error)
}

// MemoryAssignments keeps assignments in process memory. State is lost on
// restart and is not shared between instances.
type MemoryAssignments struct {
	mu   sync.RWMutex
	byID map[string]map[string]UserVariant
}

func NewMemoryAssignments() *MemoryAssignments {
	return &MemoryAssignments{byID: make(map[string]map[string]UserVariant)}
}

func (m *MemoryAssignments) Get(_ context.Context, experimentID, userID string) (UserVariant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uv, ok := m.byID[experimentID][userID]
	return uv, ok, nil
}

func (m *MemoryAssignments) PutIfAbsent(_ context.Context, uv UserVariant) (UserVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.byID[uv.ExperimentID]
	if !ok {
		users = make(map[string]UserVariant)
		m.byID[uv.ExperimentID] = users
	}
	if existing, ok := users[uv.UserID]; ok {
		return existing, nil
	}
	users[uv.UserID] = uv
	return uv, nil
}

// List returns assignments ordered by user id.
func (m *MemoryAssignments) List(_ context.Context, experimentID string) ([]UserVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := m.byID[experimentID]
	out := make([]UserVariant, 0, len(users))
	for _, uv := range users {
		out = append(out, uv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
