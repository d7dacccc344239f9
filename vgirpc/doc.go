// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package vgirpc implements both ends of the vgi_rpc protocol, an Apache
// Arrow IPC based RPC framework. The dpf package drives a remote
// post-processing engine through the [Client]; the in-process engine
// emulator used by tests and tools is built on the [Server].
//
// Parameters and results travel as Arrow RecordBatch messages whose
// per-batch custom metadata carries method names, request IDs, log
// records and error information.
//
// # Method types
//
//   - Unary: a single request produces a single response. Call with
//     [Call] or [CallVoid]; register with [Unary] or [UnaryVoid].
//   - Producer: a single request starts an engine-driven stream of output
//     batches. Call with [Produce]; register with [Producer]. On pipe
//     transports the client sends one tick per batch and the engine calls
//     [ProducerState.Produce] until it signals [OutputCollector.Finish].
//
// # Struct tags
//
// Method parameters are declared as Go structs annotated with `vgirpc`
// struct tags. The tag format is:
//
//	`vgirpc:"wire_name[,option[,option...]]"`
//
// Supported options:
//
//   - default=VALUE: value used when the parameter is absent or null
//   - enum: encode as an Arrow Dictionary (categorical string)
//   - int32: use Arrow Int32 instead of the default Int64
//   - float32: use Arrow Float32 instead of the default Float64
//   - binary: serialize an [ArrowSerializable] value as IPC bytes
//
// Pointer fields (e.g. *string, *int64) become nullable Arrow columns.
//
// # Transports
//
// A [PipeTransport] runs calls one at a time over a duplex byte stream: a
// subprocess ([StartProcess]), a unix socket ([DialUnix]) or any
// reader/writer pair. An [HTTPTransport] posts each call to an
// [HttpServer]:
//
//	POST /vgi/{method}       unary call
//	POST /vgi/{method}/init  producer stream, returned whole
//
// Bodies use Content-Type application/vnd.apache.arrow.stream and may be
// zstd compressed.
package vgirpc
