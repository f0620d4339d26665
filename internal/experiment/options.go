package experiment

import (
	"time"

	"go.uber.org/zap"
)

// Recorder receives counters for assignments and conversions.
type Recorder interface {
	Assigned(experimentID string, v Variant)
	Degraded(experimentID, reason string)
	Converted(c Conversion)
	MirrorFailed(experimentID string)
}

type nopRecorder struct{}

func (nopRecorder) Assigned(string, Variant) {}
func (nopRecorder) Degraded(string, string) {}
func (nopRecorder) Converted(Conversion) {}
func (nopRecorder) MirrorFailed(string) {}

const defaultMirrorTimeout = 10 * time.Second

type options struct {
	log           *zap.Logger
	rec           Recorder
	now           func() time.Time
	mirrorTimeout time.Duration
}

// Option configures a Registry, an Engine or a Ledger.
type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(o *options) {
		if rec != nil {
			o.rec = rec
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMirrorTimeout bounds each asynchronous mirror write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.mirrorTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:           zap.NewNop(),
		rec:           nopRecorder{},
		now:           time.Now,
		mirrorTimeout: defaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
