// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// FieldsContainer is a labelled collection of fields, typically one per
// time set.
type FieldsContainer struct{ handle }

func (*FieldsContainer) TypeName() string { return wire.KindFieldsContainer }

// Len returns the number of fields in the container.
func (fc *FieldsContainer) Len(ctx context.Context) (int, error) {
	n, err := vgirpc.Call[int64](ctx, fc.client(), wire.FieldsContainerSize, fc.params())
	return int(n), err
}

// Field returns the i-th field.
func (fc *FieldsContainer) Field(ctx context.Context, i int) (*Field, error) {
	id, err := vgirpc.Call[int64](ctx, fc.client(), wire.FieldsContainerField,
		wire.FieldAtParams{ID: fc.id, Index: int64(i)})
	if err != nil {
		return nil, fmt.Errorf("field %d: %w", i, err)
	}
	return &Field{handle{server: fc.server, id: id}}, nil
}

// AvailableIDsForLabel returns the ids the container holds for label. An
// empty label means "time".
func (fc *FieldsContainer) AvailableIDsForLabel(ctx context.Context, label string) ([]int64, error) {
	if label == "" {
		label = "time"
	}
	return vgirpc.Call[[]int64](ctx, fc.client(), wire.FieldsContainerLabels,
		wire.LabelParams{ID: fc.id, Label: label})
}

// Scoping is the list of entity ids data is attached to.
type Scoping struct{ handle }

func (*Scoping) TypeName() string { return wire.KindScoping }

// NewScoping creates a scoping on the engine.
func NewScoping(ctx context.Context, s *Server, location string, ids []int64) (*Scoping, error) {
	if location == "" {
		location = Nodal
	}
	h, err := createObject(ctx, s, wire.ScopingCreate, wire.ScopingCreateParams{Location: location, IDs: ids})
	if err != nil {
		return nil, err
	}
	return &Scoping{h}, nil
}

// IDs returns the scoping's entity ids.
func (sc *Scoping) IDs(ctx context.Context) ([]int64, error) {
	return vgirpc.Call[[]int64](ctx, sc.client(), wire.ScopingGetIDs, sc.params())
}

// MeshInfo summarizes a meshed region.
type MeshInfo struct {
	NodeCount    int
	ElementCount int
	Unit         string
}

// MeshedRegion is a mesh held by the engine.
type MeshedRegion struct{ handle }

func (*MeshedRegion) TypeName() string { return wire.KindMeshedRegion }

func (m *MeshedRegion) Info(ctx context.Context) (MeshInfo, error) {
	raw, err := vgirpc.Call[wire.MeshInfo](ctx, m.client(), wire.MeshedRegionDescribe, m.params())
	if err != nil {
		return MeshInfo{}, err
	}
	return MeshInfo{NodeCount: int(raw.NodeCount), ElementCount: int(raw.ElementCount), Unit: raw.Unit}, nil
}

// TimeFreqSupport holds the time steps or frequencies of a result.
type TimeFreqSupport struct{ handle }

func (*TimeFreqSupport) TypeName() string { return wire.KindTimeFreqSupport }

func (t *TimeFreqSupport) Frequencies(ctx context.Context) ([]float64, error) {
	return vgirpc.Call[[]float64](ctx, t.client(), wire.TimeFreqFrequencies, t.params())
}

// NSets returns the number of time or frequency sets.
func (t *TimeFreqSupport) NSets(ctx context.Context) (int, error) {
	f, err := t.Frequencies(ctx)
	return len(f), err
}

// DataSources points the engine at result files.
type DataSources struct{ handle }

func (*DataSources) TypeName() string { return wire.KindDataSources }

// NewDataSources creates a data sources object, optionally with a result
// file already set.
func NewDataSources(ctx context.Context, s *Server, resultPath string) (*DataSources, error) {
	var p wire.DataSourcesCreateParams
	if resultPath != "" {
		p.ResultPath = &resultPath
	}
	h, err := createObject(ctx, s, wire.DataSourcesCreate, p)
	if err != nil {
		return nil, err
	}
	return &DataSources{h}, nil
}

// SetResultFilePath sets the result file. key names the file format and
// may be empty to let the engine use the extension.
func (d *DataSources) SetResultFilePath(ctx context.Context, path, key string) error {
	return vgirpc.CallVoid(ctx, d.client(), wire.DataSourcesSetPath,
		wire.DataSourcesPathParams{ID: d.id, Path: path, Key: key})
}
