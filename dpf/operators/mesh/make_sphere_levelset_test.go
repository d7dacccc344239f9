// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package mesh_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/dpf/operators/mesh"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
)

func TestMakeSphereLevelset(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()

	coords, err := dpf.FieldFromArray(ctx, s, [][3]float64{{1, 0, 0}, {1, 3, 0}, {4, 4, 0}})
	require.NoError(t, err)
	origin, err := dpf.FieldFromArray(ctx, s, [][]float64{{1, 0, 0}})
	require.NoError(t, err)

	op, err := mesh.NewMakeSphereLevelset(ctx, s, mesh.MakeSphereLevelsetArgs{
		Coordinates: coords,
		Origin:      origin,
		Radius:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, "levelset::make_sphere", op.Name())
	assert.Zero(t, e.Evaluations("levelset::make_sphere"))
	assert.Zero(t, e.Calls("operator.specification"), "bindings carry their own specification")

	levelset, err := op.Outputs.Field(ctx)
	require.NoError(t, err)
	data, err := levelset.Data(ctx)
	require.NoError(t, err)
	require.Len(t, data, 3)
	assert.InDelta(t, -1, data[0], 1e-12)
	assert.InDelta(t, 2, data[1], 1e-12)
	assert.InDelta(t, 4, data[2], 1e-12)

	ids, err := levelset.ScopingIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// The inputs stay connected and can be replaced pin by pin.
	require.NoError(t, op.Inputs.Radius.Connect(ctx, 0.5))
	levelset, err = op.Outputs.Field(ctx)
	require.NoError(t, err)
	data, err = levelset.Data(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, data[0], 1e-12)
	assert.Equal(t, 2, e.Evaluations("levelset::make_sphere"))
}

func TestMakeSphereLevelsetLateConnect(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	origin, err := dpf.FieldFromArray(ctx, s, [][3]float64{{0.5, 0.5, 0.5}})
	require.NoError(t, err)
	op, err := mesh.NewMakeSphereLevelset(ctx, s, mesh.MakeSphereLevelsetArgs{Origin: origin, Radius: 0.25})
	require.NoError(t, err)

	_, err = op.Outputs.Field(ctx)
	require.Error(t, err, "coordinates are not connected")

	points, err := dpf.FieldFromArray(ctx, s, [][3]float64{{0, 0, 0}, {1, 1, 1}})
	require.NoError(t, err)
	require.NoError(t, op.Inputs.Coordinates.Connect(ctx, points))
	f, err := op.Outputs.Field(ctx)
	require.NoError(t, err)
	data, err := f.Data(ctx)
	require.NoError(t, err)
	want := math.Sqrt(0.75) - 0.25
	assert.InDelta(t, want, data[0], 1e-12)
	assert.InDelta(t, want, data[1], 1e-12)
}

func TestMakeSphereLevelsetRejects(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()

	_, err := mesh.NewMakeSphereLevelset(ctx, s, mesh.MakeSphereLevelsetArgs{Radius: "big"})
	require.ErrorIs(t, err, dpf.ErrPinType)
	assert.Zero(t, e.ObjectCount(), "failed operator is released")

	ds, err := dpf.NewDataSources(ctx, s, "")
	require.NoError(t, err)
	_, err = mesh.NewMakeSphereLevelset(ctx, s, mesh.MakeSphereLevelsetArgs{Origin: ds})
	require.ErrorIs(t, err, dpf.ErrPinType)
	assert.Equal(t, 1, e.ObjectCount())
}

func TestMakeSphereLevelsetSpec(t *testing.T) {
	spec := mesh.MakeSphereLevelsetSpec()
	require.NoError(t, spec.Validate())
	assert.Equal(t, []int{0, 1, 2}, spec.InputPins())
	assert.Equal(t, []string{"abstract_meshed_region", "field"}, spec.Inputs[0].TypeNames)
	assert.True(t, spec.Inputs[2].Accepts("int32"))

	_, s := enginetest.Session(t)
	remote, err := dpf.FetchSpecification(context.Background(), s, "levelset::make_sphere")
	require.NoError(t, err)
	assert.Equal(t, spec, remote)

	cfg, err := mesh.MakeSphereLevelsetDefaultConfig(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "levelset::make_sphere", cfg.Operator())
}
