// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func rpcType(t *testing.T, err error) string {
	t.Helper()
	var rpcErr *vgirpc.RpcError
	require.True(t, errors.As(err, &rpcErr), "want an engine error, got %v", err)
	return rpcErr.Type
}

func TestLocalPaths(t *testing.T) {
	root := t.TempDir()
	e := New(root)

	p, err := e.local(filepath.Join(root, "a", "..", "b.rst"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.rst"), p)

	_, err = e.local(filepath.Join(root, "..", "escape"))
	assert.Equal(t, "PermissionError", rpcType(t, err))
	_, err = e.local("relative/path")
	assert.Equal(t, "ValueError", rpcType(t, err))
}

func TestExtKey(t *testing.T) {
	assert.Equal(t, "rst", extKey("/tmp/model.rst"))
	assert.Equal(t, "d3plot", extKey(`C:\runs\case.d3plot`))
	assert.Equal(t, "", extKey("/tmp.dir/model"))
}

func TestRestrict(t *testing.T) {
	f := &field{dims: []int64{3}, ids: []int64{1, 2, 3}, data: []float64{1, 1, 1, 2, 2, 2, 3, 3, 3}}
	out := f.restrict([]int64{3, 9, 1})
	assert.Equal(t, []int64{3, 1}, out.ids)
	assert.Equal(t, []float64{3, 3, 3, 1, 1, 1}, out.data)
	assert.Equal(t, int64(2), out.scopingSize)
	assert.Equal(t, int64(6), out.dataSize)
}

func TestGridMesh(t *testing.T) {
	m := gridMesh()
	assert.Equal(t, int64(27), m.nodes())
	assert.Equal(t, int64(8), m.elements)
	assert.Equal(t, []float64{1, 1, 1}, m.coords[3*26:])
}

func TestOperatorCycle(t *testing.T) {
	_, s := Session(t)
	ctx := context.Background()

	op, err := dpf.NewOperator(ctx, s, "volumes_provider")
	require.NoError(t, err)
	require.NoError(t, op.Connect(ctx, 2, op))
	_, err = op.GetOutput(ctx, 0, "")
	assert.Equal(t, "RuntimeError", rpcType(t, err))
}

func TestStaleObjectIDs(t *testing.T) {
	e, s := Session(t)
	ctx := context.Background()
	client := s.Client()

	_, err := vgirpc.Call[wire.FieldInfo](ctx, client, wire.FieldDescribe, wire.ObjectParams{ID: 999})
	assert.Equal(t, "KeyError", rpcType(t, err))

	sc, err := dpf.NewScoping(ctx, s, "", []int64{1})
	require.NoError(t, err)
	_, err = vgirpc.Call[[]float64](ctx, client, wire.FieldGetData, wire.ObjectParams{ID: sc.ObjectID()})
	assert.Equal(t, "TypeError", rpcType(t, err))

	op, err := dpf.NewOperator(ctx, s, "strain_from_voigt")
	require.NoError(t, err)
	id := sc.ObjectID()
	err = vgirpc.CallVoid(ctx, client, wire.OperatorConnect, wire.ConnectParams{
		OperatorID: op.ID(),
		Value:      wire.PinValue{Kind: wire.KindField, ObjectID: &id},
	})
	assert.Equal(t, "TypeError", rpcType(t, err), "a scoping posing as a field")

	before := e.ObjectCount()
	_, err = dpf.CreateScalarField(ctx, s, 1, "")
	require.NoError(t, err)
	assert.Equal(t, before+1, e.ObjectCount())
}

func TestFieldCreateValidation(t *testing.T) {
	_, s := Session(t)
	ctx := context.Background()
	client := s.Client()

	_, err := vgirpc.Call[int64](ctx, client, wire.FieldCreate, wire.FieldCreateParams{Nature: "TENSOR4", Location: dpf.Nodal})
	assert.Equal(t, "ValueError", rpcType(t, err))
	_, err = vgirpc.Call[int64](ctx, client, wire.FieldCreate, wire.FieldCreateParams{
		Nature: "VECTOR", Location: dpf.Nodal, Dimensionality: []int64{0},
	})
	assert.Equal(t, "ValueError", rpcType(t, err))
}

func TestHTTPSession(t *testing.T) {
	e, s := HTTPSession(t, WithVersion("3.0"))
	assert.Equal(t, "3.0", s.Info().Version)

	f, err := dpf.FieldFromArray(context.Background(), s, [][3]float64{{1, 2, 3}})
	require.NoError(t, err)
	data, err := f.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, data)
	assert.Equal(t, 1, e.Calls(wire.FieldCreate))
	assert.Equal(t, 1, e.Calls(wire.ServerInfo))
}
