// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package operators is the root of the generated operator bindings. Each
// sub-package holds one category:
//
//	geo            ElementsVolumesOverTime
//	mesh           MakeSphereLevelset
//	serialization  SerializeToHdf5, VtkExport
//	utility        ExtractTimeFreq, StrainFromVoigt
//
// A binding creates its operator with a static specification, connects the
// non-nil fields of its Args, and evaluates the operator only when one of
// its Outputs accessors is called.
package operators

//go:generate go run ../../cmd/dpf-opgen generate --catalog operators.yaml --out .
