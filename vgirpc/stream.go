// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ProducerState is the interface for producer stream state objects.
// Produce is called once per tick. It must either emit exactly one data batch
// via out.Emit/EmitArrays, or call out.Finish() to signal end-of-stream.
type ProducerState interface {
	Produce(ctx context.Context, out *OutputCollector, callCtx *CallContext) error
}

// StreamResult is returned by producer handler functions.
type StreamResult struct {
	// OutputSchema defines the Arrow schema for batches emitted by the stream.
	OutputSchema *arrow.Schema
	// State is driven once per client tick until it calls Finish.
	State ProducerState
}

// OutputCollector accumulates output batches during one Produce call.
// It enforces that at most one data batch is emitted per call (plus any
// number of log batches), in the order they must appear on the wire.
type OutputCollector struct {
	schema       *arrow.Schema
	batches      []annotatedBatch
	dataBatchIdx int // -1 if no data batch yet
	finished     bool
	serverID     string
}

// annotatedBatch is a batch with optional custom metadata.
type annotatedBatch struct {
	batch arrow.RecordBatch
	meta  *arrow.Metadata // nil if no custom metadata
}

func newOutputCollector(schema *arrow.Schema, serverID string) *OutputCollector {
	return &OutputCollector{
		schema:       schema,
		dataBatchIdx: -1,
		serverID:     serverID,
	}
}

// Schema returns the output schema batches must conform to.
func (o *OutputCollector) Schema() *arrow.Schema { return o.schema }

// Emit adds a pre-built data batch. Returns an error if a data batch was already emitted.
// A batch with a different schema object is re-wrapped with the output schema.
func (o *OutputCollector) Emit(batch arrow.RecordBatch) error {
	if o.dataBatchIdx >= 0 {
		return fmt.Errorf("OutputCollector: only one data batch may be emitted per call")
	}
	if batch.Schema() != o.schema {
		if !batch.Schema().Equal(o.schema) {
			return fmt.Errorf("OutputCollector: batch schema %s does not match output schema %s", batch.Schema(), o.schema)
		}
		original := batch
		batch = array.NewRecordBatch(o.schema, batch.Columns(), batch.NumRows())
		original.Release()
	}
	o.dataBatchIdx = len(o.batches)
	o.batches = append(o.batches, annotatedBatch{batch: batch})
	return nil
}

// EmitArrays builds a RecordBatch from arrays using the output schema and emits it.
func (o *OutputCollector) EmitArrays(arrays []arrow.Array, numRows int64) error {
	return o.Emit(array.NewRecordBatch(o.schema, arrays, numRows))
}

// Finish signals end-of-stream.
func (o *OutputCollector) Finish() {
	o.finished = true
}

// Finished returns whether Finish() has been called.
func (o *OutputCollector) Finished() bool {
	return o.finished
}

// ClientLog emits a zero-row log batch with the given level and message.
func (o *OutputCollector) ClientLog(level LogLevel, message string, extras ...KV) {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(level), message}

	if len(extras) > 0 {
		extraMap := make(map[string]string, len(extras))
		for _, kv := range extras {
			extraMap[kv.Key] = kv.Value
		}
		extraJSON, _ := json.Marshal(extraMap)
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	if o.serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, o.serverID)
	}

	meta := arrow.NewMetadata(keys, vals)
	o.batches = append(o.batches, annotatedBatch{batch: emptyBatch(o.schema), meta: &meta})
}

// validate checks that a data batch was emitted unless the stream finished.
func (o *OutputCollector) validate() error {
	if o.dataBatchIdx < 0 && !o.finished {
		return &RpcError{Type: "RuntimeError", Message: "No data batch was emitted"}
	}
	return nil
}

// release frees any batches that were not written.
func (o *OutputCollector) release() {
	for _, ab := range o.batches {
		ab.batch.Release()
	}
	o.batches = nil
}
