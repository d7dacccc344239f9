// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type status string

const (
	statusPending status = "PENDING"
	statusActive  status = "ACTIVE"
)

type point struct {
	X float64 `arrow:"x"`
	Y float64 `arrow:"y"`
}

func (point) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64},
		{Name: "y", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

var pointStruct = arrow.StructOf(
	arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Float64},
	arrow.Field{Name: "y", Type: arrow.PrimitiveTypes.Float64},
)

type box struct {
	TopLeft     point   `arrow:"top_left"`
	BottomRight point   `arrow:"bottom_right"`
	Label       string  `arrow:"label"`
	Corners     []point `arrow:"corners"`
}

func (box) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "top_left", Type: pointStruct},
		{Name: "bottom_right", Type: pointStruct},
		{Name: "label", Type: arrow.BinaryTypes.String},
		{Name: "corners", Type: arrow.ListOf(pointStruct)},
	}, nil)
}

// echoParams is both a parameter struct and an ArrowSerializable result, so
// one method exercises the request and the response codecs.
type echoParams struct {
	Text     string           `vgirpc:"text" arrow:"text"`
	Count    int64            `vgirpc:"count" arrow:"count"`
	Ratio    float64          `vgirpc:"ratio" arrow:"ratio"`
	Flag     bool             `vgirpc:"flag" arrow:"flag"`
	Small    int32            `vgirpc:"small,int32" arrow:"small"`
	Raw      []byte           `vgirpc:"raw" arrow:"raw"`
	Values   []float64        `vgirpc:"values" arrow:"values"`
	Nested   [][]int64        `vgirpc:"nested" arrow:"nested"`
	Tags     map[string]int64 `vgirpc:"tags" arrow:"tags"`
	State    status           `vgirpc:"state,enum" arrow:"state"`
	Optional *string          `vgirpc:"optional" arrow:"optional"`
	Where    *point           `vgirpc:"where" arrow:"where"`
}

func (echoParams) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "text", Type: arrow.BinaryTypes.String},
		{Name: "count", Type: arrow.PrimitiveTypes.Int64},
		{Name: "ratio", Type: arrow.PrimitiveTypes.Float64},
		{Name: "flag", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "small", Type: arrow.PrimitiveTypes.Int32},
		{Name: "raw", Type: arrow.BinaryTypes.Binary},
		{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "nested", Type: arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64))},
		{Name: "tags", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64)},
		{Name: "state", Type: &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int16, ValueType: arrow.BinaryTypes.String}},
		{Name: "optional", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "where", Type: pointStruct, Nullable: true},
	}, nil)
}

type defaultsParams struct {
	Name    string  `vgirpc:"name,default=engine"`
	Threads int64   `vgirpc:"threads,default=4"`
	Scale   float64 `vgirpc:"scale,default=1.5"`
	Strict  bool    `vgirpc:"strict,default=true"`
	Limit   *int64  `vgirpc:"limit"`
}

type failParams struct {
	Kind string `vgirpc:"kind"`
}

type countParams struct {
	Count int64 `vgirpc:"count"`
	// FailAt makes the producer fail once this many batches were sent; -1 never.
	FailAt int64 `vgirpc:"fail_at,default=-1"`
}

var counterSchema = arrow.NewSchema([]arrow.Field{
	{Name: "index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

type counterState struct {
	count, failAt, current int64
}

func (s *counterState) Produce(_ context.Context, out *OutputCollector, callCtx *CallContext) error {
	if s.current == s.failAt {
		return &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("failed after %d batches", s.current)}
	}
	if s.current >= s.count {
		out.Finish()
		return nil
	}
	callCtx.ClientLog(LogDebug, "batch", KV{Key: "index", Value: fmt.Sprint(s.current)})
	mem := memory.NewGoAllocator()
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	vb := array.NewFloat64Builder(mem)
	defer vb.Release()
	ib.Append(s.current)
	vb.Append(float64(s.current) * 0.5)
	idx, val := ib.NewArray(), vb.NewArray()
	defer idx.Release()
	defer val.Release()
	s.current++
	return out.EmitArrays([]arrow.Array{idx, val}, 1)
}

// newFixtureServer registers a small method set covering every codec path.
func newFixtureServer() *Server {
	s := NewServer()
	s.SetServiceName("fixture")
	Unary(s, "echo", func(_ context.Context, _ *CallContext, p echoParams) (echoParams, error) {
		return p, nil
	})
	Unary(s, "echo_point", func(_ context.Context, _ *CallContext, p struct {
		Point point `vgirpc:"point"`
	}) (point, error) {
		return p.Point, nil
	})
	Unary(s, "echo_box", func(_ context.Context, _ *CallContext, p struct {
		Box box `vgirpc:"box"`
	}) (box, error) {
		return p.Box, nil
	})
	Unary(s, "sum", func(_ context.Context, _ *CallContext, p echoParams) (float64, error) {
		total := 0.0
		for _, v := range p.Values {
			total += v
		}
		return total, nil
	})
	Unary(s, "ids", func(_ context.Context, _ *CallContext, p echoParams) ([]int64, error) {
		out := make([]int64, 0, p.Count)
		for i := range p.Count {
			out = append(out, i)
		}
		return out, nil
	})
	Unary(s, "defaults", func(_ context.Context, _ *CallContext, p defaultsParams) (string, error) {
		limit := "none"
		if p.Limit != nil {
			limit = fmt.Sprint(*p.Limit)
		}
		return fmt.Sprintf("%s/%d/%g/%t/%s", p.Name, p.Threads, p.Scale, p.Strict, limit), nil
	})
	UnaryVoid(s, "noop", func(_ context.Context, _ *CallContext, _ struct{}) error { return nil })
	Unary(s, "fail", func(_ context.Context, _ *CallContext, p failParams) (string, error) {
		switch p.Kind {
		case "panic":
			panic("handler panicked")
		case "plain":
			return "", fmt.Errorf("plain failure")
		}
		return "", &RpcError{Type: p.Kind, Message: "requested " + p.Kind}
	})
	Unary(s, "logged", func(_ context.Context, callCtx *CallContext, p failParams) (string, error) {
		callCtx.ClientLog(LogInfo, "info message", KV{Key: "kind", Value: p.Kind})
		callCtx.ClientLog(LogDebug, "debug message")
		return "done", nil
	})
	Producer(s, "count", counterSchema, func(_ context.Context, callCtx *CallContext, p countParams) (*StreamResult, error) {
		if p.Count < 0 {
			return nil, &RpcError{Type: "ValueError", Message: "count must be >= 0"}
		}
		callCtx.ClientLog(LogInfo, "starting")
		return &StreamResult{OutputSchema: counterSchema, State: &counterState{count: p.Count, failAt: p.FailAt}}, nil
	})
	return s
}

// pipeTransport serves s over OS pipes until the returned transport is closed.
func pipeTransport(t *testing.T, s *Server) *PipeTransport {
	t.Helper()
	serverIn, clientOut, err := os.Pipe()
	require.NoError(t, err)
	clientIn, serverOut, err := os.Pipe()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(serverIn, serverOut)
		serverOut.Close()
		serverIn.Close()
	}()
	tr := NewPipeTransport(clientIn, clientOut, func() error {
		err := clientOut.Close()
		clientIn.Close()
		<-done
		return err
	})
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func httpTransport(t *testing.T, s *Server, level int) *HTTPTransport {
	t.Helper()
	h := NewHttpServer(s)
	require.NoError(t, h.SetCompressionLevel(level))
	ts := httptest.NewServer(h)
	tr, err := NewHTTPTransport(ts.URL, WithHTTPClient(ts.Client()), WithCompressionLevel(level))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tr.Close()
		ts.Close()
		_ = h.Close()
	})
	return tr
}

// transports runs fn once per transport flavour against a fresh fixture server.
func transports(t *testing.T, fn func(t *testing.T, c *Client)) {
	t.Run("pipe", func(t *testing.T) {
		fn(t, NewClient(pipeTransport(t, newFixtureServer())))
	})
	t.Run("http", func(t *testing.T) {
		fn(t, NewClient(httpTransport(t, newFixtureServer(), 0)))
	})
	t.Run("http-zstd", func(t *testing.T) {
		fn(t, NewClient(httpTransport(t, newFixtureServer(), 3)))
	})
}
