package experiment

import (
	"context"

	"go.uber.org/zap"
)

// Degrade reasons reported to the Recorder.
const (
	ReasonInactive   = "inactive"
	ReasonStoreError = "store_error"
)

// Engine assigns users to variants deterministically and remembers the
// assignment.
type Engine struct {
	registry    *Registry
	assignments AssignmentStore
	opts        options
}

func NewEngine(registry *Registry, assignments AssignmentStore, opts ...Option) *Engine {
	return &Engine{
		registry:    registry,
		assignments: assignments,
		opts:        buildOptions(opts),
	}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Assignments() AssignmentStore {
	return e.assignments
}

// GetVariant returns the user's variant for an experiment, creating the
// experiment with defaults if needed.
//
// Experiments that are not active always yield Control and record nothing,
// so the user is bucketed afresh once the experiment is activated. Store
// failures degrade the same way.
func (e *Engine) GetVariant(ctx context.Context, experimentID, userID string) Variant {
	log := e.opts.log.With(zap.String("experiment_id", experimentID), zap.String("user_id", userID))

	uv, ok, err := e.assignments.Get(ctx, experimentID, userID)
	if err != nil {
		log.Warn("Failed to load assignment", zap.Error(err))
		e.opts.rec.Degraded(experimentID, ReasonStoreError)
		return Control
	}
	if ok {
		return uv.Variant
	}

	exp := e.registry.GetOrCreate(experimentID, nil)
	if exp.Status != StatusActive {
		e.opts.rec.Degraded(experimentID, ReasonInactive)
		return Control
	}

	variant, matched := pickVariant(exp.Variants, exp.TrafficAllocation, Bucket(experimentID, userID))
	if !matched {
		log.Debug("No variant captured bucket, falling back to control")
	}

	stored, err := e.assignments.PutIfAbsent(ctx, UserVariant{
		ExperimentID: experimentID,
		UserID:       userID,
		Variant:      variant,
		AssignedAt:   e.opts.now(),
	})
	if err != nil {
		log.Warn("Failed to store assignment", zap.Error(err))
		e.opts.rec.Degraded(experimentID, ReasonStoreError)
		return Control
	}

	e.opts.rec.Assigned(experimentID, stored.Variant)
	return stored.Variant
}
