// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
)

// resultSources uploads a placeholder result file and returns data sources
// pointing at it.
func resultSources(t *testing.T, s *dpf.Server) *dpf.DataSources {
	t.Helper()
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "model.rst")
	require.NoError(t, os.WriteFile(local, []byte("result"), 0o644))
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	require.NoError(t, err)
	ds, err := dpf.NewDataSources(ctx, s, path)
	require.NoError(t, err)
	return ds
}

func sphereOperator(t *testing.T, s *dpf.Server) *dpf.Operator {
	t.Helper()
	ctx := context.Background()
	coords, err := dpf.FieldFromArray(ctx, s, [][3]float64{{0, 0, 0}, {3, 4, 0}})
	require.NoError(t, err)
	origin, err := dpf.FieldFromArray(ctx, s, [][3]float64{{0, 0, 0}})
	require.NoError(t, err)

	op, err := dpf.NewOperator(ctx, s, "levelset::make_sphere")
	require.NoError(t, err)
	require.NoError(t, op.Connect(ctx, 0, coords))
	require.NoError(t, op.Connect(ctx, 1, origin))
	// An int on a double pin is sent as a double.
	require.NoError(t, op.Connect(ctx, 2, 2))
	return op
}

func TestOperatorIsLazy(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()

	op := sphereOperator(t, s)
	assert.Zero(t, e.Evaluations("levelset::make_sphere"), "connecting evaluates nothing")

	out, err := op.GetOutput(ctx, 0, "")
	require.NoError(t, err)
	f, ok := out.(*dpf.Field)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, 1, e.Evaluations("levelset::make_sphere"))

	data, err := f.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 3}, data)

	// Every read evaluates again with the current inputs.
	require.NoError(t, op.Connect(ctx, 2, 1.0))
	out, err = op.GetOutput(ctx, 0, "field")
	require.NoError(t, err)
	data, err = out.(*dpf.Field).Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 4}, data)
	assert.Equal(t, 2, e.Evaluations("levelset::make_sphere"))
}

func TestOperatorPinChecks(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	op := sphereOperator(t, s)

	require.ErrorIs(t, op.Connect(ctx, 9, 1.0), dpf.ErrUnknownPin)
	require.ErrorIs(t, op.Disconnect(ctx, 9), dpf.ErrUnknownPin)
	_, err := op.GetOutput(ctx, 3, "")
	require.ErrorIs(t, err, dpf.ErrUnknownPin)

	require.ErrorIs(t, op.Connect(ctx, 2, "two"), dpf.ErrPinType)
	require.ErrorIs(t, op.Connect(ctx, 2, nil), dpf.ErrPinType)
	require.ErrorIs(t, op.Connect(ctx, 2, struct{}{}), dpf.ErrPinType)
	_, err = op.GetOutput(ctx, 0, "double")
	require.ErrorIs(t, err, dpf.ErrPinType)

	// Integers beyond int32 only fit pins taking doubles.
	require.NoError(t, op.Connect(ctx, 2, int64(1)<<40))
	extract, err := dpf.NewOperator(ctx, s, "extract_time_freq")
	require.NoError(t, err)
	require.ErrorIs(t, extract.Connect(ctx, 1, int64(1)<<40), dpf.ErrPinType)
	require.ErrorIs(t, extract.Connect(ctx, 1, []int64{1, -(1 << 33)}), dpf.ErrPinType)
	require.NoError(t, extract.Connect(ctx, 1, int64(math.MaxInt32)))
	require.NoError(t, extract.Connect(ctx, 1, []int{1, 2}))

	require.NoError(t, op.Disconnect(ctx, 2))
	_, err = op.GetOutput(ctx, 0, "")
	requireRemote(t, err, "ValueError")
}

func TestOperatorChaining(t *testing.T) {
	e, s := enginetest.Session(t)
	ctx := context.Background()
	ds := resultSources(t, s)

	disp, err := dpf.NewOperator(ctx, s, "U")
	require.NoError(t, err)
	require.NoError(t, disp.Connect(ctx, 4, ds))
	require.NoError(t, disp.Connect(ctx, 0, []int{1, 3}))

	volumes, err := dpf.NewOperator(ctx, s, "volumes_provider")
	require.NoError(t, err)
	require.NoError(t, volumes.Connect(ctx, 2, disp))
	assert.Zero(t, e.Evaluations("U"))
	assert.Zero(t, e.Evaluations("volumes_provider"))

	out, err := volumes.GetOutput(ctx, 0, "")
	require.NoError(t, err)
	fc, ok := out.(*dpf.FieldsContainer)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, 1, e.Evaluations("U"))
	assert.Equal(t, 1, e.Evaluations("volumes_provider"))

	n, err := fc.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	sets, err := fc.AvailableIDsForLabel(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, sets)

	f, err := fc.Field(ctx, 1)
	require.NoError(t, err)
	info, err := f.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, dpf.Elemental, info.Location)
	assert.Equal(t, "m^3", info.Unit)
	data, err := f.Data(ctx)
	require.NoError(t, err)
	require.Len(t, data, 8)
	for _, v := range data {
		assert.InDelta(t, 0.125, v, 1e-12)
	}

	_, err = fc.Field(ctx, 2)
	requireRemote(t, err, "ValueError")
	_, err = fc.AvailableIDsForLabel(ctx, "complex")
	requireRemote(t, err, "KeyError")
}

func TestOperatorOutputPin(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	ds := resultSources(t, s)

	tfp, err := dpf.NewOperator(ctx, s, "TimeFreqSupportProvider")
	require.NoError(t, err)
	require.NoError(t, tfp.Connect(ctx, 4, ds))
	spec, err := tfp.Specification(ctx)
	require.NoError(t, err)
	ps, ok := spec.OutputPin(0)
	require.True(t, ok)

	out := dpf.NewOutput(tfp, ps, 0)
	tfs, err := dpf.OutputAs[*dpf.TimeFreqSupport](ctx, out)
	require.NoError(t, err)
	freqs, err := tfs.Frequencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, enginetest.ResultFrequencies, freqs)
	sets, err := tfs.NSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sets)

	_, err = dpf.OutputAs[float64](ctx, out)
	require.ErrorIs(t, err, dpf.ErrPinType)
	_, err = dpf.OutputAs[chan int](ctx, out)
	require.ErrorIs(t, err, dpf.ErrPinType)
}

func TestMissingResultFile(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	ds, err := dpf.NewDataSources(ctx, s, "")
	require.NoError(t, err)
	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	require.NoError(t, ds.SetResultFilePath(ctx, s.JoinServerPath(tmp, "missing.rst"), ""))

	mesh, err := dpf.NewOperator(ctx, s, "MeshProvider")
	require.NoError(t, err)
	require.NoError(t, mesh.Connect(ctx, 4, ds))
	err = mesh.Run(ctx)
	requireRemote(t, err, "FileNotFoundError")
}

func TestSpecifications(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	names, err := dpf.ListOperators(ctx, s)
	require.NoError(t, err)
	assert.True(t, slices.IsSorted(names))
	assert.Contains(t, names, "U")
	assert.Contains(t, names, "levelset::make_sphere")

	spec, err := dpf.FetchSpecification(ctx, s, "U")
	require.NoError(t, err)
	require.NoError(t, spec.Validate())
	assert.Equal(t, []int{0, 1, 4}, spec.InputPins())
	assert.Equal(t, []int{0}, spec.OutputPins())
	ts, _ := spec.InputPin(0)
	assert.True(t, ts.Optional)
	assert.True(t, ts.Accepts("scoping"))
	assert.True(t, ts.Accepts("vector<int32>"))
	assert.False(t, ts.Accepts("double"))

	_, err = dpf.FetchSpecification(ctx, s, "no_such_operator")
	requireRemote(t, err, "ValueError")
	_, err = dpf.NewOperator(ctx, s, "no_such_operator")
	requireRemote(t, err, "ValueError")
}

func TestSpecificationValidate(t *testing.T) {
	spec := &dpf.Specification{
		Inputs: map[int]dpf.PinSpecification{
			0:  {Name: "ok", TypeNames: []string{"field"}},
			1:  {TypeNames: []string{"field"}},
			2:  {Name: "untyped"},
			-1: {Name: "negative", TypeNames: []string{"int32"}},
		},
		Outputs: map[int]dpf.PinSpecification{0: {Name: "out"}},
	}
	err := spec.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"input pin -1: negative pin number",
		"input pin 1: missing name",
		"input pin 2 (untyped): no type names",
		"output pin 0 (out): no type names",
	} {
		assert.Contains(t, err.Error(), want)
	}

	double := dpf.PinSpecification{TypeNames: []string{"double", "vector<double>"}}
	assert.True(t, double.Accepts("int32"))
	assert.True(t, double.Accepts("vector<int32>"))
	assert.False(t, double.Accepts("string"))
	assert.True(t, dpf.PinSpecification{TypeNames: []string{dpf.TypeAny}}.Accepts("field"))
}

func TestOperatorConfig(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	cfg, err := dpf.DefaultOperatorConfig(ctx, s, "U")
	require.NoError(t, err)
	assert.Equal(t, "U", cfg.Operator())
	assert.Equal(t, []string{"mutex", "num_threads", "run_in_parallel"}, cfg.Options())
	v, ok := cfg.Get("num_threads")
	require.True(t, ok)
	assert.Equal(t, "0", v)

	cfg.Set("num_threads", 4)
	cfg.Set("run_in_parallel", false)
	v, _ = cfg.Get("num_threads")
	assert.Equal(t, "4", v)
	_, err = dpf.NewOperator(ctx, s, "U", dpf.WithConfig(cfg))
	require.NoError(t, err)

	cfg.Set("no_such_option", true)
	_, err = dpf.NewOperator(ctx, s, "U", dpf.WithConfig(cfg))
	requireRemote(t, err, "KeyError")

	_, err = dpf.DefaultOperatorConfig(ctx, s, "no_such_operator")
	requireRemote(t, err, "ValueError")
}

func TestInputBinding(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()
	op := sphereOperator(t, s)

	spec, err := op.Specification(ctx)
	require.NoError(t, err)
	radius := dpf.NewInput(op, spec.Inputs[2], 2, -1)
	assert.Equal(t, "radius", radius.Name())
	assert.Equal(t, 2, radius.Pin())
	assert.Equal(t, -1, radius.Ellipsis())
	assert.Same(t, op, radius.Operator())
	assert.True(t, radius.Accepts("int32"))

	repeated := dpf.NewInput(op, dpf.PinSpecification{Name: "fields", Ellipsis: true}, 3, 1)
	assert.Equal(t, "fields2", repeated.Name())

	require.NoError(t, dpf.ConnectArgs(ctx, []dpf.Arg{
		{Input: radius, Value: nil},
		{Input: radius, Value: 5.0},
	}))
	out, err := op.GetOutput(ctx, 0, "")
	require.NoError(t, err)
	data, err := out.(*dpf.Field).Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, 0}, data)

	err = dpf.ConnectArgs(ctx, []dpf.Arg{{Input: radius, Value: "five"}})
	require.ErrorIs(t, err, dpf.ErrPinType)
	require.NoError(t, radius.Disconnect(ctx))
}
