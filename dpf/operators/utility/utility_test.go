// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package utility_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/dpf/operators/utility"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

func resultSources(t *testing.T, s *dpf.Server) *dpf.DataSources {
	t.Helper()
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "modal.rst")
	require.NoError(t, os.WriteFile(local, []byte("result"), 0o644))
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	require.NoError(t, err)
	ds, err := dpf.NewDataSources(ctx, s, path)
	require.NoError(t, err)
	return ds
}

func remoteType(err error) string {
	var rpcErr *vgirpc.RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.Type
	}
	return ""
}

func TestExtractTimeFreq(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()

	provider, err := dpf.NewOperator(ctx, s, "TimeFreqSupportProvider")
	require.NoError(t, err)
	require.NoError(t, provider.Connect(ctx, 4, resultSources(t, s)))

	op, err := utility.NewExtractTimeFreq(ctx, s, utility.ExtractTimeFreqArgs{
		TimeFreqSupport: provider,
		SetId:           []int{1, 3},
	})
	require.NoError(t, err)
	assert.Zero(t, e.Evaluations("TimeFreqSupportProvider"))

	f, err := op.Outputs.Field(ctx)
	require.NoError(t, err)
	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 7.0}, data)
	info, err := f.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, dpf.TimeFreq, info.Location)
	assert.Equal(t, 1, e.Evaluations("TimeFreqSupportProvider"))

	require.NoError(t, op.Inputs.SetId.Connect(ctx, 2))
	f, err = op.Outputs.Field(ctx)
	require.NoError(t, err)
	data, err = f.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{3.25}, data)

	require.NoError(t, op.Inputs.SetId.Connect(ctx, 4))
	_, err = op.Outputs.Field(ctx)
	assert.Equal(t, "ValueError", remoteType(err))

	require.ErrorIs(t, op.Inputs.SetId.Connect(ctx, 2.5), dpf.ErrPinType)
}

func TestStrainFromVoigt(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	voigt, err := dpf.FieldFromArray(ctx, s, [][6]float64{
		{1, 2, 3, 4, 5, 6},
		{0, 0, 0, 0.2, 0.4, 0.6},
	})
	require.NoError(t, err)
	op, err := utility.NewStrainFromVoigt(ctx, s, utility.StrainFromVoigtArgs{Field: voigt})
	require.NoError(t, err)

	f, err := op.Outputs.Field(ctx)
	require.NoError(t, err)
	info, err := f.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, dpf.SymMatrix, info.Nature)
	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 2, 2.5, 3, 0, 0, 0, 0.1, 0.2, 0.3}, data, 1e-12)
}

func TestStrainFromVoigtContainer(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	ds := resultSources(t, s)

	stress, err := dpf.NewOperator(ctx, s, "S")
	require.NoError(t, err)
	require.NoError(t, stress.Connect(ctx, 4, ds))

	op, err := utility.NewStrainFromVoigt(ctx, s, utility.StrainFromVoigtArgs{Field: stress})
	require.NoError(t, err)
	f, err := op.Outputs.Field(ctx)
	require.NoError(t, err, "a container with a single field is accepted")
	data, err := f.Data(ctx)
	require.NoError(t, err)
	require.Len(t, data, 8*6)
	assert.Equal(t, 3e6, data[0])

	require.NoError(t, stress.Connect(ctx, 0, []int{1, 2}))
	_, err = op.Outputs.Field(ctx)
	assert.Equal(t, "ValueError", remoteType(err))

	vectors, err := dpf.FieldFromArray(ctx, s, [][3]float64{{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, op.Inputs.Field.Connect(ctx, vectors))
	_, err = op.Outputs.Field(ctx)
	assert.Equal(t, "ValueError", remoteType(err))
}
