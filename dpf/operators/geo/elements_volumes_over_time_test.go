// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package geo_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/dpf/operators/geo"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

func meshProvider(t *testing.T, s *dpf.Server) *dpf.Operator {
	t.Helper()
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "model.rst")
	require.NoError(t, os.WriteFile(local, []byte("result"), 0o644))
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	require.NoError(t, err)
	ds, err := dpf.NewDataSources(ctx, s, path)
	require.NoError(t, err)
	op, err := dpf.NewOperator(ctx, s, "MeshProvider")
	require.NoError(t, err)
	require.NoError(t, op.Connect(ctx, 4, ds))
	return op
}

func TestElementsVolumesOverTime(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()
	mesh := meshProvider(t, s)

	scoping, err := dpf.NewScoping(ctx, s, dpf.Elemental, []int64{2, 5, 99})
	require.NoError(t, err)
	ids, err := scoping.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 99}, ids)

	op, err := geo.NewElementsVolumesOverTime(ctx, s, geo.ElementsVolumesOverTimeArgs{
		Scoping: scoping,
		Mesh:    mesh,
	})
	require.NoError(t, err)
	assert.Zero(t, e.Evaluations("MeshProvider"))

	fc, err := op.Outputs.FieldsContainer(ctx)
	require.NoError(t, err)
	n, err := fc.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	f, err := fc.Field(ctx, 0)
	require.NoError(t, err)
	got, err := f.ScopingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, got, "ids outside the mesh are dropped")
	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.125, 0.125}, data, 1e-12)
}

func TestElementsVolumesOverTimeNeedsMesh(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	op, err := geo.NewElementsVolumesOverTime(ctx, s, geo.ElementsVolumesOverTimeArgs{})
	require.NoError(t, err)
	_, err = op.Outputs.FieldsContainer(ctx)
	var rpcErr *vgirpc.RpcError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, "ValueError", rpcErr.Type)
	assert.Contains(t, rpcErr.Message, "needs a mesh")
}

func TestElementsVolumesOverTimeMeshInfo(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	out, err := meshProvider(t, s).GetOutput(ctx, 0, "")
	require.NoError(t, err)
	m, ok := out.(*dpf.MeshedRegion)
	require.True(t, ok, "got %T", out)
	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, dpf.MeshInfo{NodeCount: 27, ElementCount: 8, Unit: "m"}, info)

	op, err := geo.NewElementsVolumesOverTime(ctx, s, geo.ElementsVolumesOverTimeArgs{Mesh: m})
	require.NoError(t, err)
	fc, err := op.Outputs.FieldsContainer(ctx)
	require.NoError(t, err)
	f, err := fc.Field(ctx, 0)
	require.NoError(t, err)
	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestElementsVolumesOverTimeTypedNilArgs(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()
	provider := meshProvider(t, s)
	connects := e.Calls(wire.OperatorConnect)

	var (
		mesh    *dpf.MeshedRegion
		scoping *dpf.Scoping
	)
	op, err := geo.NewElementsVolumesOverTime(ctx, s, geo.ElementsVolumesOverTimeArgs{
		Scoping: scoping,
		Mesh:    mesh,
	})
	require.NoError(t, err)
	assert.Equal(t, connects, e.Calls(wire.OperatorConnect))

	require.NoError(t, op.Inputs.Mesh.Connect(ctx, provider))
	assert.Equal(t, connects+1, e.Calls(wire.OperatorConnect))
}
