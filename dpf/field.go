// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// FieldRequest is what the engine needs to allocate a field. It is built
// once, sent, and not mutated afterwards.
type FieldRequest struct {
	Nature Nature
	// Dimensionality is optional; nil lets the engine derive it from Nature.
	Dimensionality []int
	ScopingSize    int
	DataSize       int
	Location       string
}

func (r FieldRequest) params() wire.FieldCreateParams {
	p := wire.FieldCreateParams{
		Nature:      string(r.Nature),
		Location:    r.Location,
		ScopingSize: int64(r.ScopingSize),
		DataSize:    int64(r.DataSize),
	}
	if p.Location == "" {
		p.Location = Nodal
	}
	for _, d := range r.Dimensionality {
		p.Dimensionality = append(p.Dimensionality, int64(d))
	}
	return p
}

// FieldInfo describes a field as stored by the engine.
type FieldInfo struct {
	Nature         Nature
	Location       string
	Dimensionality Dimensionality
	ScopingSize    int
	DataSize       int
	Unit           string
}

// Field is a per-entity numeric data container.
type Field struct{ handle }

func (*Field) TypeName() string { return wire.KindField }

// NewField allocates a field on the engine.
func NewField(ctx context.Context, s *Server, req FieldRequest) (*Field, error) {
	if req.ScopingSize < 0 || req.DataSize < 0 {
		return nil, fmt.Errorf("%w: negative size (scoping %d, data %d)", ErrInvalidShape, req.ScopingSize, req.DataSize)
	}
	h, err := createObject(ctx, s, wire.FieldCreate, req.params())
	if err != nil {
		return nil, err
	}
	h.server.logger.Debug("field created", "id", h.id, "nature", req.Nature, "entities", req.ScopingSize)
	return &Field{h}, nil
}

// Info fetches the field's definition.
func (f *Field) Info(ctx context.Context) (FieldInfo, error) {
	raw, err := vgirpc.Call[wire.FieldInfo](ctx, f.client(), wire.FieldDescribe, f.params())
	if err != nil {
		return FieldInfo{}, err
	}
	dims := make([]int, len(raw.Dimensionality))
	for i, d := range raw.Dimensionality {
		dims[i] = int(d)
	}
	return FieldInfo{
		Nature:         Nature(raw.Nature),
		Location:       raw.Location,
		Dimensionality: Dimensionality{Dims: dims, Nature: Nature(raw.Nature)},
		ScopingSize:    int(raw.ScopingSize),
		DataSize:       int(raw.DataSize),
		Unit:           raw.Unit,
	}, nil
}

// Data returns the field's values, flattened entity-major.
func (f *Field) Data(ctx context.Context) ([]float64, error) {
	return vgirpc.Call[[]float64](ctx, f.client(), wire.FieldGetData, f.params())
}

// SetData replaces the field's values.
func (f *Field) SetData(ctx context.Context, data []float64) error {
	return vgirpc.CallVoid(ctx, f.client(), wire.FieldSetData, wire.FieldDataParams{ID: f.id, Data: data})
}

// ScopingIDs returns the entity ids the field's data is attached to.
func (f *Field) ScopingIDs(ctx context.Context) ([]int64, error) {
	return vgirpc.Call[[]int64](ctx, f.client(), wire.FieldGetScopingIDs, f.params())
}

// SetScopingIDs replaces the field's entity ids.
func (f *Field) SetScopingIDs(ctx context.Context, ids []int64) error {
	return vgirpc.CallVoid(ctx, f.client(), wire.FieldSetScopingIDs, wire.IDsParams{ID: f.id, IDs: ids})
}
