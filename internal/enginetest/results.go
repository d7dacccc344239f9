// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"os"
	"slices"

	"github.com/Query-farm/vgi-dpf/internal/wire"
)

// Every result file reads as the same small model: a 3x3x3 node grid of
// 8 hexahedra with three frequency sets.
const (
	gridNodes   = 3
	gridSpacing = 0.5
)

// ResultFrequencies are the time/freq sets of every result file.
var ResultFrequencies = []float64{1.5, 3.25, 7.0}

// gridMesh returns the placeholder model mesh.
func gridMesh() *meshedRegion {
	m := &meshedRegion{elements: (gridNodes - 1) * (gridNodes - 1) * (gridNodes - 1), unit: "m"}
	for z := range gridNodes {
		for y := range gridNodes {
			for x := range gridNodes {
				m.coords = append(m.coords, float64(x)*gridSpacing, float64(y)*gridSpacing, float64(z)*gridSpacing)
			}
		}
	}
	return m
}

// resultFile checks the data sources input and that its file exists.
func (in inputs) resultFile(pin int64) (*dataSources, error) {
	ds, err := inputObject[*dataSources](in, pin)
	if err != nil {
		return nil, err
	}
	if ds.path == "" {
		return nil, valueError("%q: data sources hold no result file", in.name)
	}
	local, err := in.e.local(ds.path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(local); err != nil {
		return nil, fileNotFound(ds.path)
	}
	return ds, nil
}

type resultKind int

const (
	resultDisplacement resultKind = iota
	resultStress
)

// evalResult reads U or S. Without a time scoping only the last set is read.
func evalResult(kind resultKind) evalFunc {
	return func(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error) {
		if _, err := in.resultFile(4); err != nil {
			return nil, err
		}
		sets := []int64{int64(len(ResultFrequencies))}
		if in.has(0) {
			var err error
			if sets, err = in.ids(0); err != nil {
				return nil, err
			}
			for _, s := range sets {
				if s < 1 || s > int64(len(ResultFrequencies)) {
					return nil, valueError("%q: set id %d out of range [1, %d]", name, s, len(ResultFrequencies))
				}
			}
		}
		m := gridMesh()
		meshID := e.add(m)
		fc := &fieldsContainer{labels: map[string][]int64{"time": slices.Clone(sets)}, mesh: meshID}
		for _, set := range sets {
			var f *field
			switch kind {
			case resultDisplacement:
				f = displacementField(m, set)
			case resultStress:
				f = stressField(m, set)
			}
			if in.has(1) {
				scoped, err := in.ids(1)
				if err != nil {
					return nil, err
				}
				f = f.restrict(scoped)
			}
			fc.fields = append(fc.fields, e.add(f))
		}
		return single(objectValue(wire.KindFieldsContainer, e.add(fc))), nil
	}
}

// displacementField is a rigid stretch along x scaled by the set id.
func displacementField(m *meshedRegion, set int64) *field {
	n := int(m.nodes())
	f := &field{nature: "VECTOR", location: "Nodal", dims: []int64{3}, unit: "m", ids: sequence(n)}
	for i := range n {
		f.data = append(f.data, 1e-3*float64(set)*m.coords[3*i], 0, 0)
	}
	f.scopingSize, f.dataSize = int64(n), int64(len(f.data))
	return f
}

// stressField is a uniaxial stress per element scaled by the set id.
func stressField(m *meshedRegion, set int64) *field {
	n := int(m.elements)
	f := &field{nature: "SYMMATRIX", location: "Elemental", dims: []int64{6}, unit: "Pa", ids: sequence(n)}
	for i := range n {
		f.data = append(f.data, 1e6*float64(set)*float64(i+1), 0, 0, 0, 0, 0)
	}
	f.scopingSize, f.dataSize = int64(n), int64(len(f.data))
	return f
}

// restrict keeps the entities whose id is in ids, in the order of ids.
func (f *field) restrict(ids []int64) *field {
	n := f.components()
	out := &field{nature: f.nature, location: f.location, dims: slices.Clone(f.dims), unit: f.unit}
	for _, id := range ids {
		i := slices.Index(f.ids, id)
		if i < 0 {
			continue
		}
		out.ids = append(out.ids, id)
		out.data = append(out.data, f.data[i*n:(i+1)*n]...)
	}
	out.scopingSize, out.dataSize = int64(len(out.ids)), int64(len(out.data))
	return out
}

func evalMeshProvider(e *Engine, _ string, in inputs) (map[int64]wire.PinValue, error) {
	if _, err := in.resultFile(4); err != nil {
		return nil, err
	}
	return single(objectValue(wire.KindMeshedRegion, e.add(gridMesh()))), nil
}

func evalTimeFreqProvider(e *Engine, _ string, in inputs) (map[int64]wire.PinValue, error) {
	if _, err := in.resultFile(4); err != nil {
		return nil, err
	}
	return single(objectValue(wire.KindTimeFreqSupport,
		e.add(&timeFreqSupport{frequencies: slices.Clone(ResultFrequencies)}))), nil
}
