// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package enginetest is an in-memory engine serving every dpf remote method.
// It keeps objects in maps, evaluates a small set of operators, and runs the
// file services on a local root directory. The package tests and the
// dpf-emulator command use it in place of a real engine.
package enginetest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// DefaultVersion is the engine version reported by base.server_info.
const DefaultVersion = "4.0"

// Option configures an Engine.
type Option func(*Engine)

// WithVersion sets the reported engine version.
func WithVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

// WithOS sets the reported operating system name ("posix" or "nt").
func WithOS(name string) Option {
	return func(e *Engine) { e.osName = name }
}

// WithChunkSize sets the size of download_file chunks.
func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunkSize = n }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine is the emulated engine state. All handlers serialize on mu.
type Engine struct {
	root      string
	version   string
	osName    string
	chunkSize int
	logger    *slog.Logger

	mu        sync.Mutex
	nextID    int64
	objects   map[int64]any
	defs      map[string]operatorDef
	libraries map[string]string
	calls     map[string]int
	evals     map[string]int
}

// New returns an engine whose file services live below root.
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root:      root,
		version:   DefaultVersion,
		osName:    "posix",
		chunkSize: wire.ChunkSize,
		logger:    slog.Default(),
		objects:   map[int64]any{},
		defs:      builtinOperators(),
		libraries: map[string]string{},
		calls:     map[string]int{},
		evals:     map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Root returns the directory the file services operate in.
func (e *Engine) Root() string { return e.root }

// NewServer returns a vgirpc server with every engine method registered.
func (e *Engine) NewServer() *vgirpc.Server {
	server := vgirpc.NewServer()
	server.SetServiceName("dpf-emulator")
	server.SetLogger(e.logger)
	server.SetDispatchHook(e)
	e.Register(server)
	return server
}

// Register adds the engine's methods to server.
func (e *Engine) Register(server *vgirpc.Server) {
	// Fields
	vgirpc.Unary(server, wire.FieldCreate, e.fieldCreate)
	vgirpc.Unary(server, wire.FieldDescribe, e.fieldDescribe)
	vgirpc.UnaryVoid(server, wire.FieldSetData, e.fieldSetData)
	vgirpc.Unary(server, wire.FieldGetData, e.fieldGetData)
	vgirpc.UnaryVoid(server, wire.FieldSetScopingIDs, e.fieldSetScopingIDs)
	vgirpc.Unary(server, wire.FieldGetScopingIDs, e.fieldGetScopingIDs)

	// Containers and supports
	vgirpc.Unary(server, wire.FieldsContainerSize, e.fieldsContainerSize)
	vgirpc.Unary(server, wire.FieldsContainerField, e.fieldsContainerField)
	vgirpc.Unary(server, wire.FieldsContainerLabels, e.fieldsContainerLabels)
	vgirpc.Unary(server, wire.ScopingCreate, e.scopingCreate)
	vgirpc.Unary(server, wire.ScopingGetIDs, e.scopingGetIDs)
	vgirpc.Unary(server, wire.MeshedRegionDescribe, e.meshedRegionDescribe)
	vgirpc.Unary(server, wire.TimeFreqFrequencies, e.timeFreqFrequencies)
	vgirpc.Unary(server, wire.DataSourcesCreate, e.dataSourcesCreate)
	vgirpc.UnaryVoid(server, wire.DataSourcesSetPath, e.dataSourcesSetPath)

	// Operators
	vgirpc.Unary(server, wire.OperatorList, e.operatorList)
	vgirpc.Unary(server, wire.OperatorSpecification, e.operatorSpecification)
	vgirpc.Unary(server, wire.OperatorDefaultConfig, e.operatorDefaultConfig)
	vgirpc.Unary(server, wire.OperatorCreate, e.operatorCreate)
	vgirpc.UnaryVoid(server, wire.OperatorConnect, e.operatorConnect)
	vgirpc.UnaryVoid(server, wire.OperatorDisconnect, e.operatorDisconnect)
	vgirpc.UnaryVoid(server, wire.OperatorRun, e.operatorRun)
	vgirpc.Unary(server, wire.OperatorGetOutput, e.operatorGetOutput)

	// Base services
	vgirpc.Unary(server, wire.ServerInfo, e.serverInfo)
	vgirpc.UnaryVoid(server, wire.LoadLibrary, e.loadLibrary)
	vgirpc.Unary(server, wire.MakeTmpDir, e.makeTmpDir)
	vgirpc.UnaryVoid(server, wire.UploadFile, e.uploadFile)
	vgirpc.Producer(server, wire.DownloadFile, wire.ChunkSchema, e.downloadFile)
	vgirpc.Unary(server, wire.ListFiles, e.listFiles)
	vgirpc.UnaryVoid(server, wire.ReleaseObject, e.releaseObject)
}

// OnDispatchStart counts calls per method.
func (e *Engine) OnDispatchStart(ctx context.Context, info vgirpc.DispatchInfo) (context.Context, vgirpc.HookToken) {
	e.mu.Lock()
	e.calls[info.Method]++
	e.mu.Unlock()
	return ctx, nil
}

func (e *Engine) OnDispatchEnd(_ context.Context, _ vgirpc.HookToken, info vgirpc.DispatchInfo, _ *vgirpc.CallStatistics, err error) {
	if err != nil {
		e.logger.Debug("engine call failed", "method", info.Method, "err", err)
	}
}

// Calls returns how many times method was dispatched.
func (e *Engine) Calls(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// Evaluations returns how many times the operator name was evaluated.
func (e *Engine) Evaluations(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals[name]
}

// Libraries returns the names of the loaded plugin libraries, sorted.
func (e *Engine) Libraries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.libraries))
	for name := range e.libraries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ObjectCount returns the number of live engine objects.
func (e *Engine) ObjectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objects)
}

// --- object store ---

type field struct {
	nature   string
	location string
	dims     []int64
	data     []float64
	ids      []int64
	unit     string
	// reserved sizes reported until data or ids are set
	scopingSize int64
	dataSize    int64
}

func (f *field) components() int {
	n := 1
	for _, d := range f.dims {
		n *= int(d)
	}
	return n
}

type fieldsContainer struct {
	fields []int64
	labels map[string][]int64
	// mesh is the id of the supporting meshed region, 0 when unknown.
	mesh int64
}

type scoping struct {
	location string
	ids      []int64
}

type meshedRegion struct {
	coords   []float64
	elements int64
	unit     string
}

func (m *meshedRegion) nodes() int64 { return int64(len(m.coords) / 3) }

type timeFreqSupport struct {
	frequencies []float64
}

type dataSources struct {
	path string
	key  string
}

type operator struct {
	name    string
	config  map[string]string
	inputs  map[int64]wire.PinValue
	outputs map[int64]wire.PinValue
}

// add stores obj under a fresh id. The caller holds mu.
func (e *Engine) add(obj any) int64 {
	e.nextID++
	e.objects[e.nextID] = obj
	return e.nextID
}

func (e *Engine) releaseObject(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objects[p.ID]; !ok {
		return keyError("no object with id %d", p.ID)
	}
	delete(e.objects, p.ID)
	return nil
}

// lookup returns the object id as a T. The caller holds mu.
func lookup[T any](e *Engine, id int64) (T, error) {
	var zero T
	obj, ok := e.objects[id]
	if !ok {
		return zero, keyError("no object with id %d", id)
	}
	t, ok := obj.(T)
	if !ok {
		return zero, typeError("object %d is %s", id, kindOf(obj))
	}
	return t, nil
}

// kindOf returns the wire kind of a stored object.
func kindOf(obj any) string {
	switch obj.(type) {
	case *field:
		return wire.KindField
	case *fieldsContainer:
		return wire.KindFieldsContainer
	case *scoping:
		return wire.KindScoping
	case *meshedRegion:
		return wire.KindMeshedRegion
	case *timeFreqSupport:
		return wire.KindTimeFreqSupport
	case *dataSources:
		return wire.KindDataSources
	case *operator:
		return "operator"
	}
	return fmt.Sprintf("%T", obj)
}

// objectValue returns the pin value referring to a stored object.
func objectValue(kind string, id int64) wire.PinValue {
	return wire.PinValue{Kind: kind, ObjectID: &id}
}

func valueError(format string, args ...any) error {
	return &vgirpc.RpcError{Type: "ValueError", Message: fmt.Sprintf(format, args...)}
}

func keyError(format string, args ...any) error {
	return &vgirpc.RpcError{Type: "KeyError", Message: fmt.Sprintf(format, args...)}
}

func typeError(format string, args ...any) error {
	return &vgirpc.RpcError{Type: "TypeError", Message: fmt.Sprintf(format, args...)}
}

func runtimeError(format string, args ...any) error {
	return &vgirpc.RpcError{Type: "RuntimeError", Message: fmt.Sprintf(format, args...)}
}

func fileNotFound(path string) error {
	return &vgirpc.RpcError{Type: "FileNotFoundError", Message: fmt.Sprintf("no such file or directory: %s", path)}
}

// --- base ---

func (e *Engine) serverInfo(_ context.Context, _ *vgirpc.CallContext, _ struct{}) (wire.EngineInfo, error) {
	return wire.EngineInfo{
		IP:        "127.0.0.1",
		Port:      0,
		ProcessID: int64(os.Getpid()),
		Version:   e.version,
		OS:        e.osName,
	}, nil
}

func (e *Engine) loadLibrary(_ context.Context, ctx *vgirpc.CallContext, p wire.LoadLibraryParams) error {
	want := ".so"
	if e.osName == "nt" {
		want = ".dll"
	}
	if p.Name == "" || len(p.Filename) <= len(want) || p.Filename[len(p.Filename)-len(want):] != want {
		return runtimeError("cannot load library %q on %s", p.Filename, e.osName)
	}
	e.mu.Lock()
	e.libraries[p.Name] = p.Filename
	e.mu.Unlock()
	ctx.ClientLog(vgirpc.LogInfo, "library loaded", vgirpc.KV{Key: "name", Value: p.Name})
	return nil
}
