// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package dpf is a client for a remote DPF post-processing engine.
//
// A [Server] is a session with one engine, opened with [Connect] from a
// [Config] (HTTP address, unix socket or a launched command) or with
// [NewServer] on an existing vgirpc client. Every function taking a
// *Server falls back to the process-wide server set with [SetGlobalServer]
// when given nil.
//
// # Fields
//
// Engine-side data lives in objects the client holds handles to: [Field],
// [FieldsContainer], [Scoping], [MeshedRegion], [TimeFreqSupport] and
// [DataSources]. The field factory builds fields either from Go data
//
//	f, err := dpf.FieldFromArray(ctx, s, [][]float64{{1, 0, 0}, {0, 1, 0}})
//
// or empty, sized for n entities of a nature ([CreateScalarField],
// [Create3DVectorField], [CreateTensorField], [CreateVectorField],
// [CreateMatrixField]).
//
// # Operators
//
// An [Operator] is a named engine computation with numbered input and
// output pins described by its [Specification]. Connecting inputs and
// chaining operators never evaluates anything; the engine computes when an
// output is read or [Operator.Run] is called. Typed bindings for individual
// operators are generated into the packages below dpf/operators.
//
// # Files
//
// [UploadFile], [DownloadFile] and their folder variants move files
// between the client and the engine's file system in 1 MiB chunks.
package dpf
