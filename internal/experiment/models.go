package experiment

import (
	"errors"
	"fmt"
	"time"
)

// Variant is one of the fixed experiment arms.
type Variant string

const (
	Control  Variant = "control"
	VariantA Variant = "variant_a"
	VariantB Variant = "variant_b"
	VariantC Variant = "variant_c"
)

// AllVariants lists every known variant in canonical order.
func AllVariants() []Variant {
	return []Variant{Control, VariantA, VariantB, VariantC}
}

func (v Variant) Valid() bool {
	switch v {
	case Control, VariantA, VariantB, VariantC:
		return true
	}
	return false
}

// ParseVariant converts a raw tag into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown variant %q", s)
	}
	return v, nil
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts a raw status string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

type Experiment struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Variants          []Variant       `json:"variants"`
	TrafficAllocation map[Variant]int `json:"traffic_allocation"`
	Status            Status          `json:"status"`
	StartDate         *time.Time      `json:"start_date,omitempty"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// clone returns a deep copy so callers never share the registry's slices or maps.
func (e *Experiment) clone() Experiment {
	c := *e
	c.Variants = append([]Variant(nil), e.Variants...)
	c.TrafficAllocation = make(map[Variant]int, len(e.TrafficAllocation))
	for k, v := range e.TrafficAllocation {
		c.TrafficAllocation[k] = v
	}
	if e.StartDate != nil {
		t := *e.StartDate
		c.StartDate = &t
	}
	if e.EndDate != nil {
		t := *e.EndDate
		c.EndDate = &t
	}
	return c
}

// Config overrides the defaults of a newly created experiment. Zero-valued
// fields keep the default.
type Config struct {
	Name              string          `json:"name,omitempty" koanf:"name"`
	Description       string          `json:"description,omitempty" koanf:"description"`
	Variants          []Variant       `json:"variants,omitempty" koanf:"variants"`
	TrafficAllocation map[Variant]int `json:"traffic_allocation,omitempty" koanf:"traffic_allocation"`
	Status            Status          `json:"status,omitempty" koanf:"status"`
	StartDate         *time.Time      `json:"start_date,omitempty" koanf:"start_date"`
	EndDate           *time.Time      `json:"end_date,omitempty" koanf:"end_date"`
}

// Validate rejects tags outside the variant and status enumerations, duplicate
// or explicitly empty variant lists. Allocation percentages are not checked;
// under-allocated buckets fall back to control.
func (c Config) Validate() error {
	if c.Variants != nil && len(c.Variants) == 0 {
		return errors.New("variants must not be empty")
	}
	seen := make(map[Variant]bool, len(c.Variants))
	for _, v := range c.Variants {
		if !v.Valid() {
			return fmt.Errorf("unknown variant %q", v)
		}
		if seen[v] {
			return fmt.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
	}
	for v := range c.TrafficAllocation {
		if !v.Valid() {
			return fmt.Errorf("unknown variant %q in traffic_allocation", v)
		}
	}
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("unknown status %q", c.Status)
	}
	return nil
}

// UserVariant is a sticky assignment of one user to one variant.
type UserVariant struct {
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	Variant      Variant   `json:"variant"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// DefaultEventType is recorded when a conversion names no event type.
const DefaultEventType = "conversion"

// Event describes the optional parts of a conversion.
type Event struct {
	EventType string
	Value     *float64
	Metadata  map[string]any
}

type Conversion struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experiment_id"`
	UserID       string         `json:"user_id"`
	Variant      Variant        `json:"variant"`
	EventType    string         `json:"event_type"`
	EventValue   *float64       `json:"event_value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ConvertedAt  time.Time      `json:"converted_at"`
}

// VariantStats aggregates one variant's traffic and conversions.
type VariantStats struct {
	Users          int     `json:"users"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	TotalValue     float64 `json:"total_value"`
	AverageValue   float64 `json:"average_value"`
}

type Results struct {
	Experiment       *Experiment              `json:"experiment"`
	Variants         map[Variant]VariantStats `json:"variants"`
	TotalConversions int                      `json:"total_conversions"`
}
