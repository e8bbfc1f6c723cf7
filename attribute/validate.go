package attribute

import (
	"cmp"
	"fmt"

	"github.com/delmic/odemis-sub003/errors"
)

// PlainConfig selects no validation: any value of the cell's type passes.
type PlainConfig struct{}

// RangeConfig selects continuous validation: values must lie in [Min, Max].
type RangeConfig[T cmp.Ordered] struct {
	Min T `json:"min"`
	Max T `json:"max"`
}

// Validate checks the range bounds themselves.
func (rc RangeConfig[T]) Validate() error {
	if rc.Min > rc.Max {
		return errors.WrapInvalid(
			fmt.Errorf("%w: min %v above max %v", errors.ErrInvalidConfig, rc.Min, rc.Max),
			"RangeConfig", "Validate", "bounds check")
	}
	return nil
}

// ChoiceConfig selects enumerated validation: values must be one of Choices.
type ChoiceConfig[T comparable] struct {
	Choices []T `json:"choices"`
}

// Validate checks that at least one choice exists.
func (cc ChoiceConfig[T]) Validate() error {
	if len(cc.Choices) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty choice set", errors.ErrInvalidConfig),
			"ChoiceConfig", "Validate", "choice set check")
	}
	return nil
}

// Continuous is a cell whose values are restricted to a closed range.
type Continuous[T cmp.Ordered] struct {
	*Cell[T]
	// min and max are guarded by the embedded cell's mutex so that range
	// checks and range updates are serialized with Set.
	min, max T
}

// NewContinuous creates a range-validated cell. The initial value must lie
// within the range.
func NewContinuous[T cmp.Ordered](name string, initial T, rng RangeConfig[T], opts ...Option[T]) (*Continuous[T], error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if initial < rng.Min || initial > rng.Max {
		return nil, outOfRange(name, initial, rng.Min, rng.Max)
	}

	c := &Continuous[T]{
		Cell: NewCell(name, initial, opts...),
		min:  rng.Min,
		max:  rng.Max,
	}
	c.Cell.validate = c.checkLocked
	return c, nil
}

// checkLocked validates v against the current range. Called with the cell
// mutex held.
func (c *Continuous[T]) checkLocked(v T) error {
	if v < c.min || v > c.max {
		return outOfRange(c.name, v, c.min, c.max)
	}
	return nil
}

// Range returns the current validation range.
func (c *Continuous[T]) Range() RangeConfig[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RangeConfig[T]{Min: c.min, Max: c.max}
}

// SetRange replaces the validation range. Rejected when the currently
// stored value would fall outside the new range, leaving the old range in
// place.
func (c *Continuous[T]) SetRange(rng RangeConfig[T]) error {
	if err := rng.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value < rng.Min || c.value > rng.Max {
		return outOfRange(c.name, c.value, rng.Min, rng.Max)
	}
	c.min, c.max = rng.Min, rng.Max
	return nil
}

func outOfRange[T any](name string, v, min, max T) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v outside [%v, %v]", errors.ErrOutOfBound, v, min, max),
		"Cell", "Set", name)
}

// Enumerated is a cell whose values are restricted to a fixed choice set.
type Enumerated[T comparable] struct {
	*Cell[T]
	// choices is guarded by the embedded cell's mutex.
	choices map[T]struct{}
}

// NewEnumerated creates a choice-validated cell. The initial value must be
// one of the choices.
func NewEnumerated[T comparable](name string, initial T, cfg ChoiceConfig[T], opts ...Option[T]) (*Enumerated[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	choices := make(map[T]struct{}, len(cfg.Choices))
	for _, choice := range cfg.Choices {
		choices[choice] = struct{}{}
	}
	if _, ok := choices[initial]; !ok {
		return nil, notAChoice(name, initial)
	}

	c := &Enumerated[T]{
		Cell:    NewCell(name, initial, opts...),
		choices: choices,
	}
	c.Cell.validate = c.checkLocked
	return c, nil
}

// checkLocked validates v against the current choice set. Called with the
// cell mutex held.
func (c *Enumerated[T]) checkLocked(v T) error {
	if _, ok := c.choices[v]; !ok {
		return notAChoice(c.name, v)
	}
	return nil
}

// Choices returns the current choice set.
func (c *Enumerated[T]) Choices() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.choices))
	for choice := range c.choices {
		out = append(out, choice)
	}
	return out
}

// SetChoices replaces the choice set. Rejected when the currently stored
// value is not in the new set, leaving the old set in place.
func (c *Enumerated[T]) SetChoices(cfg ChoiceConfig[T]) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	choices := make(map[T]struct{}, len(cfg.Choices))
	for _, choice := range cfg.Choices {
		choices[choice] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := choices[c.value]; !ok {
		return notAChoice(c.name, c.value)
	}
	c.choices = choices
	return nil
}

func notAChoice[T any](name string, v T) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v not among the allowed choices", errors.ErrOutOfBound, v),
		"Cell", "Set", name)
}
