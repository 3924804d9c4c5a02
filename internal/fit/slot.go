package fit

import (
	"github.com/copyleftdev/optix/internal/errors"
	"github.com/copyleftdev/optix/internal/optics"
)

// BuildFunc constructs a concrete element from the values of a slot's free
// parameters, given in the order the slot declares them.
type BuildFunc func(params []float64) (optics.Element, error)

// Slot is a partially specified element whose free parameters are chosen
// by the optimizer.
type Slot struct {
	Name   string
	Params []string

	build BuildFunc
}

// NewSlot describes a custom partial element.
func NewSlot(name string, params []string, build BuildFunc) *Slot {
	return &Slot{
		Name:   name,
		Params: append([]string(nil), params...),
		build:  build,
	}
}

// Arity returns the number of free parameters.
func (s *Slot) Arity() int { return len(s.Params) }

// Build concretizes the slot.
func (s *Slot) Build(params []float64) (optics.Element, error) {
	if len(params) != len(s.Params) {
		return nil, errors.Errorf(errors.KindParameterCountMismatch,
			"%s takes %d parameters, got %d", s.Name, len(s.Params), len(params)).
			WithComponent(component).WithOperation("Slot.Build")
	}
	e, err := s.build(params)
	if err != nil {
		return nil, errors.Wrap(err, "building "+s.Name).
			WithComponent(component).WithOperation("Slot.Build")
	}
	return e, nil
}
