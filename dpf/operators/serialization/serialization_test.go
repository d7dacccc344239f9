// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package serialization_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/dpf/operators/serialization"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// download fetches a server file and returns its lines.
func download(t *testing.T, s *dpf.Server, serverPath string) []string {
	t.Helper()
	local := filepath.Join(t.TempDir(), filepath.Base(serverPath))
	require.NoError(t, dpf.DownloadFile(context.Background(), s, serverPath, local))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func displacement(t *testing.T, s *dpf.Server) *dpf.Operator {
	t.Helper()
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "model.rst")
	require.NoError(t, os.WriteFile(local, []byte("result"), 0o644))
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	require.NoError(t, err)
	ds, err := dpf.NewDataSources(ctx, s, path)
	require.NoError(t, err)
	op, err := dpf.NewOperator(ctx, s, "U")
	require.NoError(t, err)
	require.NoError(t, op.Connect(ctx, 4, ds))
	return op
}

func TestVtkExport(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	path := s.JoinServerPath(tmp, "u.vtk")

	export, err := serialization.NewVtkExport(ctx, s, serialization.VtkExportArgs{
		FilePath: path,
		Fields1:  displacement(t, s),
	})
	require.NoError(t, err)
	assert.Equal(t, "fields1", export.Inputs.Fields1.Name())
	assert.Equal(t, "fields2", export.Inputs.Fields2.Name())
	assert.Equal(t, "file_path", export.Inputs.FilePath.Name())

	files, err := dpf.ListFiles(ctx, s, tmp)
	require.NoError(t, err)
	assert.Empty(t, files, "nothing is written before the exporter runs")

	require.NoError(t, export.Run(ctx))
	lines := download(t, s, path)
	assert.Equal(t, "# vtk DataFile Version 3.0", lines[0])
	assert.Contains(t, lines, "POINTS 27 double")
	assert.Contains(t, lines, "FIELD FieldData 1")
	assert.Contains(t, lines, "field0 3 27 double")
}

func TestVtkExportNeedsMesh(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)

	f, err := dpf.FieldFromArray(ctx, s, []float64{1, 2})
	require.NoError(t, err)
	export, err := serialization.NewVtkExport(ctx, s, serialization.VtkExportArgs{
		FilePath: s.JoinServerPath(tmp, "f.vtk"),
		Fields1:  f,
	})
	require.NoError(t, err)
	err = export.Run(ctx)
	var rpcErr *vgirpc.RpcError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, "ValueError", rpcErr.Type)
}

func TestSerializeToHdf5(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	path := s.JoinServerPath(tmp, "out.h5")

	f, err := dpf.FieldFromArray(ctx, s, []float64{1.5, 2})
	require.NoError(t, err)
	op, err := serialization.NewSerializeToHdf5(ctx, s, serialization.SerializeToHdf5Args{
		FilePath:     path,
		ExportFloats: false,
		Data1:        f,
		Data2:        3.0,
	})
	require.NoError(t, err)
	require.NoError(t, op.Run(ctx))

	assert.Equal(t, []string{
		"dpf-hdf5 export_floats=false export_flat_vectors=false",
		"data 3 field",
		"1.5 2",
		"data 4 double",
	}, download(t, s, path))
}

func TestSerializationSpecs(t *testing.T) {
	for name, spec := range map[string]*dpf.Specification{
		"serialize_to_hdf5": serialization.SerializeToHdf5Spec(),
		"vtk_export":        serialization.VtkExportSpec(),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, spec.Validate())
			assert.Empty(t, spec.OutputPins())
			for _, pin := range spec.InputPins() {
				if spec.Inputs[pin].Name == "data" || spec.Inputs[pin].Name == "fields" {
					assert.True(t, spec.Inputs[pin].Ellipsis, "pin %d repeats", pin)
				}
			}
		})
	}
}
