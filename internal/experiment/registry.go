package experiment

import (
	"sync"
	"time"
)

// Registry holds experiment definitions in memory. Experiments are created
// lazily and never removed.
type Registry struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	order       []string
	now         func() time.Time
}

// NewRegistry creates an empty registry. Only WithClock applies.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		experiments: make(map[string]*Experiment),
		now:         buildOptions(opts).now,
	}
}

// GetOrCreate returns the experiment with the given id, creating it from
// defaults and cfg if it does not exist yet. cfg is ignored for existing
// experiments.
func (r *Registry) GetOrCreate(id string, cfg *Config) Experiment {
	r.mu.RLock()
	exp, ok := r.experiments[id]
	if ok {
		c := exp.clone()
		r.mu.RUnlock()
		return c
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Lost the race to another creator
	if exp, ok := r.experiments[id]; ok {
		return exp.clone()
	}

	exp = newExperiment(id, cfg, r.now())
	r.experiments[id] = exp
	r.order = append(r.order, id)
	return exp.clone()
}

func newExperiment(id string, cfg *Config, now time.Time) *Experiment {
	exp := &Experiment{
		ID:       id,
		Name:     id,
		Variants: []Variant{Control, VariantA},
		TrafficAllocation: map[Variant]int{
			Control:  50,
			VariantA: 50,
			VariantB: 0,
			VariantC: 0,
		},
		Status:    StatusActive,
		CreatedAt: now,
	}
	if cfg == nil {
		return exp
	}

	if cfg.Name != "" {
		exp.Name = cfg.Name
	}
	exp.Description = cfg.Description
	if len(cfg.Variants) > 0 {
		exp.Variants = append([]Variant(nil), cfg.Variants...)
	}
	if cfg.TrafficAllocation != nil {
		exp.TrafficAllocation = make(map[Variant]int, len(cfg.TrafficAllocation))
		for k, v := range cfg.TrafficAllocation {
			exp.TrafficAllocation[k] = v
		}
	}
	if cfg.Status != "" {
		exp.Status = cfg.Status
	}
	exp.StartDate = cfg.StartDate
	exp.EndDate = cfg.EndDate

	return exp
}

// Lookup returns the experiment without creating it.
func (r *Registry) Lookup(id string) (Experiment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exp, ok := r.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return exp.clone(), true
}

// UpdateStatus changes the status of an existing experiment. Unknown ids
// are ignored.
func (r *Registry) UpdateStatus(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exp, ok := r.experiments[id]; ok {
		exp.Status = status
	}
}

// List returns all experiments in creation order.
func (r *Registry) List() []Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Experiment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.experiments[id].clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
