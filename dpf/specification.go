// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Query-farm/vgi-dpf/internal/wire"
)

// TypeAny is the type name of pins accepting every value.
const TypeAny = "any"

// PinSpecification describes one operator pin.
type PinSpecification struct {
	Name      string
	TypeNames []string
	Optional  bool
	Document  string
	// Ellipsis marks a repeated pin (data1, data2, ...) sharing one name.
	Ellipsis bool
}

// Accepts reports whether a value of the given type name can be connected.
// Integers are accepted by double pins.
func (p PinSpecification) Accepts(typeName string) bool {
	for _, t := range p.TypeNames {
		switch {
		case t == TypeAny, t == typeName:
			return true
		case t == wire.KindDouble && typeName == wire.KindInt32:
			return true
		case t == wire.KindVectorDouble && typeName == wire.KindVectorInt32:
			return true
		}
	}
	return false
}

// Specification is an operator's description and pin layout.
type Specification struct {
	Description string
	Inputs      map[int]PinSpecification
	Outputs     map[int]PinSpecification
}

// InputPin returns the specification of input pin.
func (s *Specification) InputPin(pin int) (PinSpecification, bool) {
	p, ok := s.Inputs[pin]
	return p, ok
}

// OutputPin returns the specification of output pin.
func (s *Specification) OutputPin(pin int) (PinSpecification, bool) {
	p, ok := s.Outputs[pin]
	return p, ok
}

// InputPins returns the input pin numbers in ascending order.
func (s *Specification) InputPins() []int { return sortedPins(s.Inputs) }

// OutputPins returns the output pin numbers in ascending order.
func (s *Specification) OutputPins() []int { return sortedPins(s.Outputs) }

func sortedPins(m map[int]PinSpecification) []int {
	pins := make([]int, 0, len(m))
	for p := range m {
		pins = append(pins, p)
	}
	slices.Sort(pins)
	return pins
}

// Validate checks that every pin is numbered, named and typed.
func (s *Specification) Validate() error {
	var errs []error
	check := func(dir string, pins map[int]PinSpecification) {
		for _, n := range sortedPins(pins) {
			p := pins[n]
			switch {
			case n < 0:
				errs = append(errs, fmt.Errorf("%s pin %d: negative pin number", dir, n))
			case p.Name == "":
				errs = append(errs, fmt.Errorf("%s pin %d: missing name", dir, n))
			case len(p.TypeNames) == 0:
				errs = append(errs, fmt.Errorf("%s pin %d (%s): no type names", dir, n, p.Name))
			}
		}
	}
	check("input", s.Inputs)
	check("output", s.Outputs)
	return errors.Join(errs...)
}

func specFromWire(w wire.OperatorSpec) *Specification {
	s := &Specification{
		Description: w.Description,
		Inputs:      make(map[int]PinSpecification, len(w.Inputs)),
		Outputs:     make(map[int]PinSpecification, len(w.Outputs)),
	}
	for _, p := range w.Inputs {
		s.Inputs[int(p.Pin)] = pinFromWire(p)
	}
	for _, p := range w.Outputs {
		s.Outputs[int(p.Pin)] = pinFromWire(p)
	}
	return s
}

func pinFromWire(p wire.PinSpec) PinSpecification {
	return PinSpecification{
		Name:      p.Name,
		TypeNames: p.TypeNames,
		Optional:  p.Optional,
		Document:  p.Document,
		Ellipsis:  p.Ellipsis,
	}
}

// ToWire converts s to its wire form, pins in ascending order.
func (s *Specification) ToWire() wire.OperatorSpec {
	w := wire.OperatorSpec{Description: s.Description}
	for _, n := range s.InputPins() {
		w.Inputs = append(w.Inputs, pinToWire(n, s.Inputs[n]))
	}
	for _, n := range s.OutputPins() {
		w.Outputs = append(w.Outputs, pinToWire(n, s.Outputs[n]))
	}
	return w
}

func pinToWire(n int, p PinSpecification) wire.PinSpec {
	return wire.PinSpec{
		Pin:       int64(n),
		Name:      p.Name,
		TypeNames: p.TypeNames,
		Optional:  p.Optional,
		Document:  p.Document,
		Ellipsis:  p.Ellipsis,
	}
}
