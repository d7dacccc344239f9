// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"sort"
	"strings"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// MethodType identifies how a registered method should be dispatched.
type MethodType int

const (
	// MethodUnary identifies a request-response method with a single result.
	MethodUnary MethodType = iota
	// MethodProducer identifies a server-driven streaming method.
	MethodProducer
)

// methodInfo stores the registration details for one RPC method.
type methodInfo struct {
	Name          string
	Type          MethodType
	Doc           string
	ParamsType    reflect.Type      // Go struct type for parameters
	ResultType    reflect.Type      // Go type for result (nil for void)
	ParamsSchema  *arrow.Schema     // Arrow schema for parameter deserialization
	ResultSchema  *arrow.Schema     // Arrow schema for result serialization
	Handler       reflect.Value     // func(context.Context, *CallContext, P) (R, error) or similar
	ParamDefaults map[string]string // parameter defaults from struct tags
	OutputSchema  *arrow.Schema     // for producer methods: output batch schema
}

// Server is the RPC server that dispatches incoming requests to registered methods.
type Server struct {
	methods      map[string]*methodInfo
	serverID     string
	serviceName  string
	dispatchHook DispatchHook
	debugErrors  bool
	logger       *slog.Logger
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	return &Server{
		methods: make(map[string]*methodInfo),
		logger:  slog.Default(),
	}
}

// SetServerID sets a server identifier included in response metadata.
func (s *Server) SetServerID(id string) {
	s.serverID = id
}

// SetServiceName sets a logical service name used by observability hooks.
func (s *Server) SetServiceName(name string) {
	s.serviceName = name
}

// ServiceName returns the logical service name, or empty string if not set.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// SetDispatchHook registers a hook that is called around each RPC dispatch.
func (s *Server) SetDispatchHook(hook DispatchHook) {
	s.dispatchHook = hook
}

// SetLogger replaces the logger used for serve loop diagnostics.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetDebugErrors controls whether error responses include stack traces.
// Off by default.
func (s *Server) SetDebugErrors(enabled bool) {
	s.debugErrors = enabled
}

// SetDoc attaches a human-readable description to a registered method. It is
// reported by __describe__.
func (s *Server) SetDoc(name, doc string) {
	if info, ok := s.methods[name]; ok {
		info.Doc = doc
	}
}

func mustParamsSchema(name string, paramsType reflect.Type) *arrow.Schema {
	paramsSchema, err := structToSchema(paramsType)
	if err != nil {
		panic(fmt.Sprintf("vgirpc: registering %q: invalid params type %v: %v", name, paramsType, err))
	}
	return paramsSchema
}

// Unary registers a unary RPC method with typed parameters and return value.
// P must be a struct with `vgirpc` tags. R is the return type.
func Unary[P any, R any](s *Server, name string, handler func(context.Context, *CallContext, P) (R, error)) {
	paramsType := reflect.TypeFor[P]()
	resultType := reflect.TypeFor[R]()

	resultSchema, err := resultSchema(resultType)
	if err != nil {
		panic(fmt.Sprintf("vgirpc: registering %q: invalid result type %v: %v", name, resultType, err))
	}

	s.methods[name] = &methodInfo{
		Name:          name,
		Type:          MethodUnary,
		ParamsType:    paramsType,
		ResultType:    resultType,
		ParamsSchema:  mustParamsSchema(name, paramsType),
		ResultSchema:  resultSchema,
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
	}
}

// UnaryVoid registers a unary RPC method that returns no value.
func UnaryVoid[P any](s *Server, name string, handler func(context.Context, *CallContext, P) error) {
	paramsType := reflect.TypeFor[P]()

	s.methods[name] = &methodInfo{
		Name:          name,
		Type:          MethodUnary,
		ParamsType:    paramsType,
		ParamsSchema:  mustParamsSchema(name, paramsType),
		ResultSchema:  arrow.NewSchema(nil, nil),
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
	}
}

// Producer registers a producer stream method.
// The handler returns a StreamResult containing the ProducerState.
func Producer[P any](s *Server, name string, outputSchema *arrow.Schema,
	handler func(context.Context, *CallContext, P) (*StreamResult, error)) {
	if outputSchema == nil {
		panic(fmt.Sprintf("vgirpc: registering %q: outputSchema must not be nil", name))
	}
	paramsType := reflect.TypeFor[P]()

	s.methods[name] = &methodInfo{
		Name:          name,
		Type:          MethodProducer,
		ParamsType:    paramsType,
		ParamsSchema:  mustParamsSchema(name, paramsType),
		ResultSchema:  arrow.NewSchema(nil, nil),
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
		OutputSchema:  outputSchema,
	}
}

// RunStdio runs the server loop reading from stdin and writing to stdout.
func (s *Server) RunStdio() {
	// Writes to a closed pipe must surface as errors, not kill the process.
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process communicates via Arrow IPC on stdin/stdout "+
				"and is not intended to be run interactively.")
	}
	s.Serve(os.Stdin, os.Stdout)
}

// isTerminal reports whether f is connected to a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Serve runs the server loop on the given reader/writer pair.
func (s *Server) Serve(r io.Reader, w io.Writer) {
	s.ServeWithContext(context.Background(), r, w)
}

// ServeWithContext runs the server loop on the given reader/writer pair with a context.
func (s *Server) ServeWithContext(ctx context.Context, r io.Reader, w io.Writer) {
	for ctx.Err() == nil {
		err := s.serveOne(ctx, r, w)
		if err != nil {
			if err == io.EOF {
				return
			}
			if !isTransportClosed(err) {
				s.logger.Error("serve loop error", "err", err)
			}
			return
		}
	}
}

func (s *Server) newCallContext(ctx context.Context, req *Request) *CallContext {
	callCtx := &CallContext{
		Ctx:       ctx,
		RequestID: req.RequestID,
		ServerID:  s.serverID,
		Method:    req.Method,
		LogLevel:  LogLevel(req.LogLevel),
		Metadata:  req.Metadata,
	}
	if callCtx.LogLevel == "" {
		callCtx.LogLevel = LogTrace // default: allow all, client filters
	}
	return callCtx
}

// serveOne handles one complete RPC request-response cycle.
func (s *Server) serveOne(ctx context.Context, r io.Reader, w io.Writer) error {
	req, err := ReadRequest(r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		var rpcErr *RpcError
		if errors.As(err, &rpcErr) {
			_ = WriteErrorResponse(w, arrow.NewSchema(nil, nil), nil, rpcErr, s.serverID, "", s.debugErrors)
			return nil // continue serving
		}
		return err // transport error, stop serving
	}
	defer req.Batch.Release()

	return s.dispatch(ctx, req, w, func(info *methodInfo, stats *CallStatistics) (error, error) {
		if info.Type == MethodUnary {
			return s.serveUnary(ctx, w, req, info, stats)
		}
		return s.serveStream(ctx, r, w, req, info, stats)
	})
}

// dispatch resolves the method and runs serve between the hook callbacks.
func (s *Server) dispatch(ctx context.Context, req *Request, w io.Writer,
	serve func(*methodInfo, *CallStatistics) (handlerErr, transportErr error)) error {

	if req.Method == "__describe__" {
		return s.serveDescribe(w)
	}

	info, ok := s.methods[req.Method]
	if !ok {
		errMsg := fmt.Sprintf("Unknown method: '%s'. Available methods: %v", req.Method, s.availableMethods())
		return WriteErrorResponse(w, arrow.NewSchema(nil, nil), nil, &RpcError{
			Type:    "AttributeError",
			Message: errMsg,
		}, s.serverID, req.RequestID, s.debugErrors)
	}

	dispatchInfo := DispatchInfo{
		Method:            req.Method,
		MethodType:        methodTypeString(info.Type),
		ServerID:          s.serverID,
		RequestID:         req.RequestID,
		TransportMetadata: req.Metadata,
	}

	var hookToken HookToken
	var hookActive bool
	stats := &CallStatistics{}

	if s.dispatchHook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = s.dispatchHook.OnDispatchStart(ctx, dispatchInfo)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	handlerErr, transportErr := serve(info, stats)

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("dispatch hook end panic", "err", rv)
				}
			}()
			s.dispatchHook.OnDispatchEnd(ctx, hookToken, dispatchInfo, stats, handlerErr)
		}()
	}

	return transportErr
}

// callHandler invokes a registered handler, turning a panic into an error.
func callHandler(fn reflect.Value, ctx context.Context, callCtx *CallContext, params reflect.Value) (results []reflect.Value, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			err = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
		}
	}()
	results = fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(callCtx), params})
	if last := results[len(results)-1]; !last.IsNil() {
		err = last.Interface().(error)
	}
	return results, err
}

// serveUnary dispatches a unary method call.
// Returns handlerErr (application error reported to hook) and transportErr (I/O error for serve loop).
func (s *Server) serveUnary(ctx context.Context, w io.Writer, req *Request, info *methodInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	params, err := deserializeParams(req.Batch, info.ParamsType)
	if err != nil {
		handlerErr = &RpcError{Type: "TypeError", Message: fmt.Sprintf("parameter deserialization: %v", err)}
		return handlerErr, WriteErrorResponse(w, info.ResultSchema, nil, handlerErr, s.serverID, req.RequestID, s.debugErrors)
	}

	stats.RecordInput(req.Batch.NumRows(), batchBufferSize(req.Batch))

	callCtx := s.newCallContext(ctx, req)
	results, callErr := callHandler(info.Handler, ctx, callCtx, params)
	logs := callCtx.drainLogs()

	if callErr != nil {
		return callErr, WriteErrorResponse(w, info.ResultSchema, logs, callErr, s.serverID, req.RequestID, s.debugErrors)
	}

	if info.ResultType == nil {
		return nil, WriteVoidResponse(w, logs, s.serverID, req.RequestID)
	}

	resultBatch, err := serializeResult(info.ResultSchema, results[0].Interface())
	if err != nil {
		handlerErr = &RpcError{Type: "SerializationError", Message: fmt.Sprintf("result serialization: %v", err)}
		return handlerErr, WriteErrorResponse(w, info.ResultSchema, logs, handlerErr, s.serverID, req.RequestID, s.debugErrors)
	}
	defer resultBatch.Release()

	stats.RecordOutput(resultBatch.NumRows(), batchBufferSize(resultBatch))

	return nil, WriteUnaryResponse(w, info.ResultSchema, logs, resultBatch, s.serverID, req.RequestID)
}

// initStream runs the producer handler and returns its state, or the error to
// report inside the output stream.
func (s *Server) initStream(ctx context.Context, req *Request, info *methodInfo, callCtx *CallContext) (*StreamResult, error) {
	params, err := deserializeParams(req.Batch, info.ParamsType)
	if err != nil {
		return nil, &RpcError{Type: "TypeError", Message: fmt.Sprintf("parameter deserialization: %v", err)}
	}
	results, err := callHandler(info.Handler, ctx, callCtx, params)
	if err != nil {
		return nil, err
	}
	sr, _ := results[0].Interface().(*StreamResult)
	if sr == nil || sr.State == nil {
		return nil, &RpcError{Type: "RuntimeError", Message: "producer returned no stream state"}
	}
	if sr.OutputSchema == nil {
		sr.OutputSchema = info.OutputSchema
	}
	return sr, nil
}

// serveStream dispatches a producer stream method over a lockstep transport.
// Returns handlerErr (application error reported to hook) and transportErr (I/O error for serve loop).
func (s *Server) serveStream(ctx context.Context, r io.Reader, w io.Writer, req *Request, info *methodInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	callCtx := s.newCallContext(ctx, req)
	sr, initErr := s.initStream(ctx, req, info, callCtx)
	if initErr != nil {
		// The error travels inside the expected output stream. The client's
		// ticks are then drained so the transport is clean for the next request.
		transportErr = WriteErrorResponse(w, info.OutputSchema, callCtx.drainLogs(), initErr, s.serverID, req.RequestID, s.debugErrors)
		drainStream(r)
		return initErr, transportErr
	}

	inputReader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening tick stream: %w", err)
	}
	defer inputReader.Release()

	handlerErr, transportErr = s.produce(ctx, w, req, sr, callCtx, stats, func() bool {
		if !inputReader.Next() {
			return false
		}
		tick := inputReader.RecordBatch()
		stats.RecordInput(tick.NumRows(), batchBufferSize(tick))
		return true
	})

	// Drain remaining input so transport is clean for next request
	for inputReader.Next() {
	}
	return handlerErr, transportErr
}

// produce writes one output stream, calling the producer once per tick until
// it finishes, fails, or tick reports that the client stopped.
func (s *Server) produce(ctx context.Context, w io.Writer, req *Request, sr *StreamResult,
	callCtx *CallContext, stats *CallStatistics, tick func() bool) (streamErr, transportErr error) {

	outputSchema := sr.OutputSchema
	outputWriter := ipc.NewWriter(w, ipc.WithSchema(outputSchema))
	defer func() {
		if err := outputWriter.Close(); err != nil && transportErr == nil {
			transportErr = err
		}
	}()

	for _, logMsg := range callCtx.drainLogs() {
		if err := writeLogBatch(outputWriter, outputSchema, logMsg, s.serverID, req.RequestID); err != nil {
			return nil, fmt.Errorf("writing init log batch: %w", err)
		}
	}

	for tick() {
		out := newOutputCollector(outputSchema, s.serverID)
		iterCtx := s.newCallContext(ctx, req)

		func() {
			defer func() {
				if rv := recover(); rv != nil {
					streamErr = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
				}
			}()
			streamErr = sr.State.Produce(ctx, out, iterCtx)
		}()
		if streamErr == nil {
			streamErr = ctx.Err()
		}
		if streamErr == nil {
			streamErr = out.validate()
		}
		for _, logMsg := range iterCtx.drainLogs() {
			out.ClientLog(logMsg.Level, logMsg.Message)
		}

		if streamErr != nil {
			out.release()
			if err := writeErrorBatch(outputWriter, outputSchema, streamErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
				return streamErr, fmt.Errorf("writing stream error batch: %w", err)
			}
			return streamErr, nil
		}

		if err := s.flushOutput(outputWriter, out, stats); err != nil {
			return nil, err
		}
		if out.Finished() {
			return nil, nil
		}
	}
	return nil, nil
}

// flushOutput writes the collector's batches in order and releases them.
func (s *Server) flushOutput(outputWriter *ipc.Writer, out *OutputCollector, stats *CallStatistics) error {
	defer out.release()
	for _, ab := range out.batches {
		var writeErr error
		if ab.meta != nil {
			batchWithMeta := array.NewRecordBatchWithMetadata(
				out.schema, ab.batch.Columns(), ab.batch.NumRows(), *ab.meta)
			writeErr = outputWriter.Write(batchWithMeta)
			batchWithMeta.Release()
		} else {
			stats.RecordOutput(ab.batch.NumRows(), batchBufferSize(ab.batch))
			writeErr = outputWriter.Write(ab.batch)
		}
		if writeErr != nil {
			return fmt.Errorf("writing output batch: %w", writeErr)
		}
	}
	return nil
}

// drainStream consumes one IPC stream, if any, from r.
func drainStream(r io.Reader) {
	inputReader, err := ipc.NewReader(r)
	if err != nil {
		return
	}
	for inputReader.Next() {
	}
	inputReader.Release()
}

// serveDescribe handles the __describe__ introspection request.
func (s *Server) serveDescribe(w io.Writer) error {
	batch, meta := s.buildDescribeBatch()
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(
		describeSchema, batch.Columns(), batch.NumRows(), meta)
	defer batchWithMeta.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(describeSchema))
	defer writer.Close()

	return writer.Write(batchWithMeta)
}

// extractDefaults extracts default values from struct vgirpc tags.
func extractDefaults(t reflect.Type) map[string]string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	defaults := make(map[string]string)
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get(paramTag)
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		if info.Default != nil {
			defaults[info.Name] = *info.Default
		}
	}
	if len(defaults) == 0 {
		return nil
	}
	return defaults
}

// isTransportClosed returns true for errors that indicate the transport was closed normally.
func isTransportClosed(err error) bool {
	if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

func (s *Server) availableMethods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
