// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import "errors"

var (
	// ErrNotNumeric is returned when an array handed to the field factory
	// does not hold numbers.
	ErrNotNumeric = errors.New("dpf: array must be a numeric type")
	// ErrInvalidShape is returned for arrays or sizes the engine cannot
	// represent as a field.
	ErrInvalidShape = errors.New("dpf: array must contain 1 dimension or 2 dimensions with 1, 3 or 6 components")
	// ErrUnknownPin is returned when connecting to or reading from a pin the
	// operator does not declare.
	ErrUnknownPin = errors.New("dpf: unknown pin")
	// ErrPinType is returned when a value's type is not accepted by a pin.
	ErrPinType = errors.New("dpf: value type not accepted by pin")
	// ErrNoServer is returned when no server was given and no global server is set.
	ErrNoServer = errors.New("dpf: no server (pass one or call SetGlobalServer)")
	// ErrIncompatibleServer is returned when the engine is older than MinServerVersion.
	ErrIncompatibleServer = errors.New("dpf: incompatible server version")
	// ErrNoOutput is returned when an output pin holds nothing of the requested type.
	ErrNoOutput = errors.New("dpf: operator produced no output")
)
