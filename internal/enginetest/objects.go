// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"slices"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// natures maps each nature to the dimensionality used when none is given.
var natures = map[string][]int64{
	"SCALAR":    {1},
	"VECTOR":    {3},
	"MATRIX":    {3, 3},
	"SYMMATRIX": {6},
}

func (e *Engine) fieldCreate(_ context.Context, _ *vgirpc.CallContext, p wire.FieldCreateParams) (int64, error) {
	defaultDims, ok := natures[p.Nature]
	if !ok {
		return 0, valueError("unknown nature %q", p.Nature)
	}
	if p.ScopingSize < 0 || p.DataSize < 0 {
		return 0, valueError("negative field size")
	}
	for _, d := range p.Dimensionality {
		if d <= 0 {
			return 0, valueError("dimensionality %v must be positive", p.Dimensionality)
		}
	}
	f := &field{
		nature:      p.Nature,
		location:    p.Location,
		dims:        slices.Clone(p.Dimensionality),
		scopingSize: p.ScopingSize,
		dataSize:    p.DataSize,
	}
	if len(f.dims) == 0 {
		f.dims = slices.Clone(defaultDims)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.add(f), nil
}

func (e *Engine) fieldDescribe(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) (wire.FieldInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := lookup[*field](e, p.ID)
	if err != nil {
		return wire.FieldInfo{}, err
	}
	return wire.FieldInfo{
		Nature:         f.nature,
		Location:       f.location,
		Dimensionality: slices.Clone(f.dims),
		ScopingSize:    f.scopingSize,
		DataSize:       f.dataSize,
		Unit:           f.unit,
	}, nil
}

func (e *Engine) fieldSetData(_ context.Context, _ *vgirpc.CallContext, p wire.FieldDataParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := lookup[*field](e, p.ID)
	if err != nil {
		return err
	}
	if n := f.components(); len(p.Data)%n != 0 {
		return valueError("%d values do not divide into entities of %d components", len(p.Data), n)
	}
	f.data = slices.Clone(p.Data)
	f.dataSize = int64(len(p.Data))
	return nil
}

func (e *Engine) fieldGetData(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := lookup[*field](e, p.ID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(f.data), nil
}

func (e *Engine) fieldSetScopingIDs(_ context.Context, _ *vgirpc.CallContext, p wire.IDsParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := lookup[*field](e, p.ID)
	if err != nil {
		return err
	}
	f.ids = slices.Clone(p.IDs)
	f.scopingSize = int64(len(p.IDs))
	return nil
}

func (e *Engine) fieldGetScopingIDs(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := lookup[*field](e, p.ID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(f.ids), nil
}

func (e *Engine) fieldsContainerSize(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fc, err := lookup[*fieldsContainer](e, p.ID)
	if err != nil {
		return 0, err
	}
	return int64(len(fc.fields)), nil
}

func (e *Engine) fieldsContainerField(_ context.Context, _ *vgirpc.CallContext, p wire.FieldAtParams) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fc, err := lookup[*fieldsContainer](e, p.ID)
	if err != nil {
		return 0, err
	}
	if p.Index < 0 || p.Index >= int64(len(fc.fields)) {
		return 0, valueError("field index %d out of range [0, %d)", p.Index, len(fc.fields))
	}
	return fc.fields[p.Index], nil
}

func (e *Engine) fieldsContainerLabels(_ context.Context, _ *vgirpc.CallContext, p wire.LabelParams) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fc, err := lookup[*fieldsContainer](e, p.ID)
	if err != nil {
		return nil, err
	}
	ids, ok := fc.labels[p.Label]
	if !ok {
		return nil, keyError("fields container has no label %q", p.Label)
	}
	return slices.Clone(ids), nil
}

func (e *Engine) scopingCreate(_ context.Context, _ *vgirpc.CallContext, p wire.ScopingCreateParams) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.add(&scoping{location: p.Location, ids: slices.Clone(p.IDs)}), nil
}

func (e *Engine) scopingGetIDs(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sc, err := lookup[*scoping](e, p.ID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(sc.ids), nil
}

func (e *Engine) meshedRegionDescribe(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) (wire.MeshInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := lookup[*meshedRegion](e, p.ID)
	if err != nil {
		return wire.MeshInfo{}, err
	}
	return wire.MeshInfo{NodeCount: m.nodes(), ElementCount: m.elements, Unit: m.unit}, nil
}

func (e *Engine) timeFreqFrequencies(_ context.Context, _ *vgirpc.CallContext, p wire.ObjectParams) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, err := lookup[*timeFreqSupport](e, p.ID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.frequencies), nil
}

func (e *Engine) dataSourcesCreate(_ context.Context, _ *vgirpc.CallContext, p wire.DataSourcesCreateParams) (int64, error) {
	ds := &dataSources{}
	if p.ResultPath != nil {
		ds.path = *p.ResultPath
		ds.key = extKey(ds.path)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.add(ds), nil
}

func (e *Engine) dataSourcesSetPath(_ context.Context, _ *vgirpc.CallContext, p wire.DataSourcesPathParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, err := lookup[*dataSources](e, p.ID)
	if err != nil {
		return err
	}
	ds.path, ds.key = p.Path, p.Key
	if ds.key == "" {
		ds.key = extKey(p.Path)
	}
	return nil
}

// extKey is the result file key derived from the extension, e.g. "rst".
func extKey(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/' && path[i] != '\\'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
