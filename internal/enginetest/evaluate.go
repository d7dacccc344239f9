// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"bufio"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/Query-farm/vgi-dpf/internal/wire"
)

// inputs are an operator's connected values with chained outputs resolved.
type inputs struct {
	e      *Engine
	name   string
	values map[int64]wire.PinValue
	specs  []wire.PinSpec
}

func (in inputs) pinName(pin int64) string {
	for _, ps := range in.specs {
		if ps.Pin == pin {
			return ps.Name
		}
	}
	return fmt.Sprint(pin)
}

func (in inputs) has(pin int64) bool {
	_, ok := in.values[pin]
	return ok
}

func (in inputs) require(pin int64) (wire.PinValue, error) {
	v, ok := in.values[pin]
	if !ok {
		return wire.PinValue{}, valueError("input pin %d (%s) of %q is not connected", pin, in.pinName(pin), in.name)
	}
	return v, nil
}

func inputObject[T any](in inputs, pin int64) (T, error) {
	var zero T
	v, err := in.require(pin)
	if err != nil {
		return zero, err
	}
	if v.ObjectID == nil {
		return zero, typeError("input pin %d (%s) of %q holds %s", pin, in.pinName(pin), in.name, v.Kind)
	}
	return lookup[T](in.e, *v.ObjectID)
}

func (in inputs) str(pin int64) (string, error) {
	v, err := in.require(pin)
	if err != nil {
		return "", err
	}
	if v.String == nil {
		return "", typeError("input pin %d (%s) of %q is not a string", pin, in.pinName(pin), in.name)
	}
	return *v.String, nil
}

func (in inputs) boolOr(pin int64, def bool) bool {
	if v, ok := in.values[pin]; ok && v.Bool != nil {
		return *v.Bool
	}
	return def
}

func (in inputs) double(pin int64) (float64, error) {
	v, err := in.require(pin)
	if err != nil {
		return 0, err
	}
	switch {
	case v.Double != nil:
		return *v.Double, nil
	case v.Kind == wire.KindInt32 && len(v.Ints) == 1:
		return float64(v.Ints[0]), nil
	}
	return 0, typeError("input pin %d (%s) of %q is not a number", pin, in.pinName(pin), in.name)
}

// ids reads a set of ids from an int32, vector<int32> or scoping input.
func (in inputs) ids(pin int64) ([]int64, error) {
	v, err := in.require(pin)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case wire.KindInt32, wire.KindVectorInt32:
		return slices.Clone(v.Ints), nil
	case wire.KindScoping:
		sc, err := lookup[*scoping](in.e, *v.ObjectID)
		if err != nil {
			return nil, err
		}
		return slices.Clone(sc.ids), nil
	}
	return nil, typeError("input pin %d (%s) of %q holds %s, not ids", pin, in.pinName(pin), in.name, v.Kind)
}

// singleField accepts a field or a fields container holding one field.
func (in inputs) singleField(pin int64) (*field, error) {
	v, err := in.require(pin)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case wire.KindField:
		return lookup[*field](in.e, *v.ObjectID)
	case wire.KindFieldsContainer:
		fc, err := lookup[*fieldsContainer](in.e, *v.ObjectID)
		if err != nil {
			return nil, err
		}
		if len(fc.fields) != 1 {
			return nil, valueError("%q expects a fields container with one field, got %d", in.name, len(fc.fields))
		}
		return lookup[*field](in.e, fc.fields[0])
	}
	return nil, typeError("input pin %d (%s) of %q holds %s", pin, in.pinName(pin), in.name, v.Kind)
}

// fieldsOf returns the fields of a field or fields container input.
func (in inputs) fieldsOf(v wire.PinValue) ([]*field, error) {
	switch v.Kind {
	case wire.KindField:
		f, err := lookup[*field](in.e, *v.ObjectID)
		if err != nil {
			return nil, err
		}
		return []*field{f}, nil
	case wire.KindFieldsContainer:
		fc, err := lookup[*fieldsContainer](in.e, *v.ObjectID)
		if err != nil {
			return nil, err
		}
		out := make([]*field, 0, len(fc.fields))
		for _, id := range fc.fields {
			f, err := lookup[*field](in.e, id)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, nil
}

// sequence returns 1..n.
func sequence(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

// addField stores f and returns its pin value. The caller holds mu.
func (e *Engine) addField(f *field) wire.PinValue {
	return objectValue(wire.KindField, e.add(f))
}

func single(v wire.PinValue) map[int64]wire.PinValue {
	return map[int64]wire.PinValue{0: v}
}

// --- shipped operators ---

func evalVolumes(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	var (
		m      *meshedRegion
		meshID int64
		sets   = []int64{1}
		err    error
	)
	if in.has(7) {
		if m, err = inputObject[*meshedRegion](in, 7); err != nil {
			return nil, err
		}
		meshID = *in.values[7].ObjectID
	}
	if in.has(2) {
		disp, err := inputObject[*fieldsContainer](in, 2)
		if err != nil {
			return nil, err
		}
		if ids, ok := disp.labels["time"]; ok && len(ids) > 0 {
			sets = ids
		}
		if m == nil && disp.mesh != 0 {
			if m, err = lookup[*meshedRegion](e, disp.mesh); err != nil {
				return nil, err
			}
			meshID = disp.mesh
		}
	}
	if m == nil {
		return nil, valueError("%q needs a mesh or a displacement container supported by one", name)
	}
	ids := sequence(int(m.elements))
	if in.has(1) {
		scoped, err := in.ids(1)
		if err != nil {
			return nil, err
		}
		ids = slices.DeleteFunc(scoped, func(id int64) bool { return id < 1 || id > m.elements })
	}
	fc := &fieldsContainer{labels: map[string][]int64{"time": slices.Clone(sets)}, mesh: meshID}
	for range sets {
		data := make([]float64, len(ids))
		for i := range data {
			data[i] = gridSpacing * gridSpacing * gridSpacing
		}
		fc.fields = append(fc.fields, e.add(&field{
			nature: "SCALAR", location: "Elemental", dims: []int64{1},
			ids: slices.Clone(ids), data: data, unit: "m^3",
			scopingSize: int64(len(ids)), dataSize: int64(len(data)),
		}))
	}
	return single(objectValue(wire.KindFieldsContainer, e.add(fc))), nil
}

func evalSphereLevelset(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	c, err := in.require(0)
	if err != nil {
		return nil, err
	}
	var (
		coords []float64
		ids    []int64
	)
	switch c.Kind {
	case wire.KindField:
		f, err := lookup[*field](e, *c.ObjectID)
		if err != nil {
			return nil, err
		}
		if f.components() != 3 {
			return nil, valueError("%q coordinates must be a 3d vector field", name)
		}
		coords, ids = f.data, f.ids
	case wire.KindMeshedRegion:
		m, err := lookup[*meshedRegion](e, *c.ObjectID)
		if err != nil {
			return nil, err
		}
		coords = m.coords
	default:
		return nil, typeError("%q coordinates hold %s", name, c.Kind)
	}
	origin, err := inputObject[*field](in, 1)
	if err != nil {
		return nil, err
	}
	if len(origin.data) < 3 {
		return nil, valueError("%q origin must hold a 3d point", name)
	}
	radius, err := in.double(2)
	if err != nil {
		return nil, err
	}
	n := len(coords) / 3
	if len(ids) != n {
		ids = sequence(n)
	}
	data := make([]float64, n)
	for i := range data {
		dx := coords[3*i] - origin.data[0]
		dy := coords[3*i+1] - origin.data[1]
		dz := coords[3*i+2] - origin.data[2]
		data[i] = math.Sqrt(dx*dx+dy*dy+dz*dz) - radius
	}
	return single(e.addField(&field{
		nature: "SCALAR", location: "Nodal", dims: []int64{1},
		ids: slices.Clone(ids), data: data, unit: "m",
		scopingSize: int64(n), dataSize: int64(n),
	})), nil
}

func evalExtractTimeFreq(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	tfs, err := inputObject[*timeFreqSupport](in, 0)
	if err != nil {
		return nil, err
	}
	sets, err := in.ids(1)
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(sets))
	for i, id := range sets {
		if id < 1 || id > int64(len(tfs.frequencies)) {
			return nil, valueError("%q: set id %d out of range [1, %d]", name, id, len(tfs.frequencies))
		}
		data[i] = tfs.frequencies[id-1]
	}
	return single(e.addField(&field{
		nature: "SCALAR", location: "TimeFreq_sets", dims: []int64{1},
		ids: sets, data: data, unit: "Hz",
		scopingSize: int64(len(sets)), dataSize: int64(len(data)),
	})), nil
}

func evalStrainFromVoigt(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	f, err := in.singleField(0)
	if err != nil {
		return nil, err
	}
	if f.components() != 6 {
		return nil, valueError("%q expects 6 Voigt components per entity, got %d", name, f.components())
	}
	data := slices.Clone(f.data)
	for i := 0; i+5 < len(data); i += 6 {
		// engineering shear strains become tensor components
		data[i+3] /= 2
		data[i+4] /= 2
		data[i+5] /= 2
	}
	return single(e.addField(&field{
		nature: "SYMMATRIX", location: f.location, dims: []int64{6},
		ids: slices.Clone(f.ids), data: data, unit: f.unit,
		scopingSize: int64(len(f.ids)), dataSize: int64(len(data)),
	})), nil
}

func evalSerializeToHdf5(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	path, err := in.str(0)
	if err != nil {
		return nil, err
	}
	floats := in.boolOr(1, true)
	flat := in.boolOr(2, false)
	return nil, e.writeExport(path, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "dpf-hdf5 export_floats=%t export_flat_vectors=%t\n", floats, flat)
		for _, pin := range slices.Sorted(maps.Keys(in.values)) {
			if pin < 3 {
				continue
			}
			v := in.values[pin]
			fmt.Fprintf(w, "data %d %s\n", pin, v.Kind)
			fields, err := in.fieldsOf(v)
			if err != nil {
				return err
			}
			for _, f := range fields {
				writeValues(w, f.data, floats)
			}
		}
		return nil
	})
}

func evalVtkExport(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
	path, err := in.str(0)
	if err != nil {
		return nil, err
	}
	var m *meshedRegion
	if in.has(1) {
		if m, err = inputObject[*meshedRegion](in, 1); err != nil {
			return nil, err
		}
	}
	var fields []*field
	for _, pin := range slices.Sorted(maps.Keys(in.values)) {
		if pin < 2 {
			continue
		}
		fs, err := in.fieldsOf(in.values[pin])
		if err != nil {
			return nil, err
		}
		if m == nil && in.values[pin].Kind == wire.KindFieldsContainer {
			fc, _ := lookup[*fieldsContainer](e, *in.values[pin].ObjectID)
			if fc.mesh != 0 {
				m, _ = lookup[*meshedRegion](e, fc.mesh)
			}
		}
		fields = append(fields, fs...)
	}
	if m == nil {
		return nil, valueError("%q needs a mesh when the fields have no mesh support", name)
	}
	return nil, e.writeExport(path, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "# vtk DataFile Version 3.0\ndpf export\nASCII\nDATASET UNSTRUCTURED_GRID\n")
		fmt.Fprintf(w, "POINTS %d double\n", m.nodes())
		for i := 0; i+2 < len(m.coords); i += 3 {
			fmt.Fprintf(w, "%g %g %g\n", m.coords[i], m.coords[i+1], m.coords[i+2])
		}
		fmt.Fprintf(w, "FIELD FieldData %d\n", len(fields))
		for i, f := range fields {
			fmt.Fprintf(w, "field%d %d %d double\n", i, f.components(), len(f.data)/f.components())
			writeValues(w, f.data, false)
		}
		return nil
	})
}

func writeValues(w *bufio.Writer, data []float64, asFloat32 bool) {
	for i, v := range data {
		if i > 0 {
			w.WriteByte(' ')
		}
		if asFloat32 {
			fmt.Fprint(w, float32(v))
		} else {
			fmt.Fprint(w, v)
		}
	}
	w.WriteByte('\n')
}

// writeExport writes an exporter's output file below the engine root.
func (e *Engine) writeExport(path string, write func(*bufio.Writer) error) error {
	local, err := e.local(path)
	if err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return runtimeError("cannot write %s: %v", path, err)
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
