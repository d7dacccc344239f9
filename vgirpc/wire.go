// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BatchKind classifies a received batch based on its metadata.
type BatchKind int

const (
	BatchData  BatchKind = iota // regular data batch
	BatchLog                    // log batch routed to the client logger
	BatchError                  // error/exception batch
)

// Request represents a parsed RPC request from the wire.
type Request struct {
	Method    string
	Version   string
	RequestID string
	LogLevel  string
	Batch     arrow.RecordBatch
	Metadata  map[string]string
}

// metadataMap flattens batch custom metadata into a map.
func metadataMap(batch arrow.RecordBatch) map[string]string {
	out := make(map[string]string)
	rb, ok := batch.(arrow.RecordBatchWithMetadata)
	if !ok {
		return out
	}
	meta := rb.Metadata()
	for i := range meta.Len() {
		out[meta.Keys()[i]] = meta.Values()[i]
	}
	return out
}

// classifyBatch reports whether a batch carries data, a log record or an error.
func classifyBatch(batch arrow.RecordBatch) (BatchKind, map[string]string) {
	meta := metadataMap(batch)
	level, ok := meta[MetaLogLevel]
	switch {
	case !ok || batch.NumRows() > 0:
		return BatchData, meta
	case LogLevel(level) == LogException:
		return BatchError, meta
	default:
		return BatchLog, meta
	}
}

// logFromMeta rebuilds a LogMessage from log batch metadata.
func logFromMeta(meta map[string]string) LogMessage {
	msg := LogMessage{
		Level:   LogLevel(meta[MetaLogLevel]),
		Message: meta[MetaLogMessage],
	}
	if raw, ok := meta[MetaLogExtra]; ok {
		var extras map[string]string
		if json.Unmarshal([]byte(raw), &extras) == nil {
			msg.Extras = extras
		}
	}
	return msg
}

// WriteRequest writes a complete request IPC stream: the parameter batch
// tagged with the method name, protocol version and request id.
func WriteRequest(w io.Writer, method, requestID string, logLevel LogLevel, params arrow.RecordBatch, extra map[string]string) error {
	keys := []string{MetaMethod, MetaRequestVersion, MetaRequestID, MetaLogLevel}
	vals := []string{method, ProtocolVersion, requestID, string(logLevel)}
	extraKeys := make([]string, 0, len(extra))
	for k := range extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		keys = append(keys, k)
		vals = append(vals, extra[k])
	}

	schema := params.Schema()
	batch := array.NewRecordBatchWithMetadata(schema, params.Columns(), params.NumRows(), arrow.NewMetadata(keys, vals))
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing request batch: %w", err)
	}
	return writer.Close()
}

// ReadRequest reads one complete IPC stream from the reader and extracts
// the method name, version, and parameter values from the first batch.
func ReadRequest(r io.Reader) (*Request, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading request IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	batch.Retain() // keep batch alive after reader is released

	meta := metadataMap(batch)

	method, ok := meta[MetaMethod]
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: "Missing 'vgi_rpc.method' in request batch custom_metadata",
		}
	}

	version, ok := meta[MetaRequestVersion]
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    "VersionError",
			Message: "Missing 'vgi_rpc.request_version' in request batch custom_metadata",
		}
	}
	if version != ProtocolVersion {
		batch.Release()
		return nil, &RpcError{
			Type:    "VersionError",
			Message: fmt.Sprintf("Unsupported request version %q, expected %q", version, ProtocolVersion),
		}
	}

	if batch.Schema().NumFields() > 0 && batch.NumRows() != 1 {
		batch.Release()
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: fmt.Sprintf("Expected 1 row in request batch, got %d", batch.NumRows()),
		}
	}

	// Drain remaining batches (read to EOS)
	for reader.Next() {
	}

	return &Request{
		Method:    method,
		Version:   version,
		RequestID: meta[MetaRequestID],
		LogLevel:  meta[MetaLogLevel],
		Batch:     batch,
		Metadata:  meta,
	}, nil
}

// readResponse reads one complete response stream. Log batches are handed to
// onLog, an exception batch becomes an *RpcError, and the last data batch is
// returned retained. Void responses yield a zero-row batch.
func readResponse(r io.Reader, onLog func(LogMessage)) (arrow.RecordBatch, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading response IPC stream: %w", err)
	}
	defer reader.Release()

	var (
		result arrow.RecordBatch
		rpcErr *RpcError
	)
	for reader.Next() {
		batch := reader.RecordBatch()
		kind, meta := classifyBatch(batch)
		switch kind {
		case BatchLog:
			if onLog != nil {
				onLog(logFromMeta(meta))
			}
		case BatchError:
			if rpcErr == nil {
				rpcErr = parseErrorBatch(meta)
			}
		default:
			if result != nil {
				result.Release()
			}
			batch.Retain()
			result = batch
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		if result != nil {
			result.Release()
		}
		return nil, fmt.Errorf("reading response batch: %w", err)
	}
	if rpcErr != nil {
		if result != nil {
			result.Release()
		}
		return nil, rpcErr
	}
	if result == nil {
		result = emptyBatch(reader.Schema())
	}
	return result, nil
}

// emptyBatch creates a zero-row batch with the given schema.
func emptyBatch(schema *arrow.Schema) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = makeEmptyArray(mem, f.Type)
	}
	batch := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

// makeEmptyArray creates a zero-length array of the given type.
func makeEmptyArray(mem memory.Allocator, dt arrow.DataType) arrow.Array {
	builder := array.NewBuilder(mem, dt)
	defer builder.Release()
	return builder.NewArray()
}

// writeMetaBatch writes a zero-row batch carrying only metadata.
func writeMetaBatch(w *ipc.Writer, schema *arrow.Schema, keys, vals []string, serverID, requestID string) error {
	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}

	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, arrow.NewMetadata(keys, vals))
	defer batchWithMeta.Release()

	return w.Write(batchWithMeta)
}

// writeLogBatch writes a zero-row batch with log metadata.
func writeLogBatch(w *ipc.Writer, schema *arrow.Schema, msg LogMessage, serverID, requestID string) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(msg.Level), msg.Message}

	if len(msg.Extras) > 0 {
		extraJSON, err := json.Marshal(msg.Extras)
		if err != nil {
			extraJSON = []byte(`{}`)
		}
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	return writeMetaBatch(w, schema, keys, vals, serverID, requestID)
}

// writeErrorBatch writes a zero-row batch with EXCEPTION-level metadata.
func writeErrorBatch(w *ipc.Writer, schema *arrow.Schema, err error, serverID, requestID string, debug bool) error {
	keys := []string{MetaLogLevel, MetaLogMessage, MetaLogExtra}
	vals := []string{string(LogException), err.Error(), buildErrorExtra(err, debug)}
	return writeMetaBatch(w, schema, keys, vals, serverID, requestID)
}

// WriteUnaryResponse writes a complete IPC stream containing log batches followed
// by a result batch. The stream is: schema + log batches + result batch + EOS.
func WriteUnaryResponse(w io.Writer, schema *arrow.Schema, logs []LogMessage,
	result arrow.RecordBatch, serverID, requestID string) error {

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for _, logMsg := range logs {
		if err := writeLogBatch(writer, schema, logMsg, serverID, requestID); err != nil {
			return fmt.Errorf("writing log batch: %w", err)
		}
	}

	return writer.Write(result)
}

// WriteErrorResponse writes a complete IPC stream containing any pending log
// batches and then the error batch.
func WriteErrorResponse(w io.Writer, schema *arrow.Schema, logs []LogMessage, err error, serverID, requestID string, debug bool) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for _, logMsg := range logs {
		if werr := writeLogBatch(writer, schema, logMsg, serverID, requestID); werr != nil {
			return fmt.Errorf("writing log batch: %w", werr)
		}
	}
	return writeErrorBatch(writer, schema, err, serverID, requestID, debug)
}

// WriteVoidResponse writes a complete IPC stream with logs and a zero-row empty-schema response.
func WriteVoidResponse(w io.Writer, logs []LogMessage, serverID, requestID string) error {
	schema := arrow.NewSchema(nil, nil)
	batch := emptyBatch(schema)
	defer batch.Release()

	return WriteUnaryResponse(w, schema, logs, batch, serverID, requestID)
}
