// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// Nature is the shape of the value a field stores per entity.
type Nature string

const (
	Scalar    Nature = "SCALAR"
	Vector    Nature = "VECTOR"
	Matrix    Nature = "MATRIX"
	SymMatrix Nature = "SYMMATRIX"
)

// Location tags where field values live on the mesh.
const (
	Nodal          = "Nodal"
	Elemental      = "Elemental"
	ElementalNodal = "ElementalNodal"
	TimeFreq       = "TimeFreq_sets"
)

// Dimensionality is the per-entity component layout of a field.
type Dimensionality struct {
	Dims   []int
	Nature Nature
}

// ComponentCount returns the number of values stored per entity.
func (d Dimensionality) ComponentCount() int {
	if len(d.Dims) == 0 {
		switch d.Nature {
		case Vector:
			return 3
		case SymMatrix:
			return 6
		case Matrix:
			return 9
		}
		return 1
	}
	n := 1
	for _, c := range d.Dims {
		n *= c
	}
	return n
}

// Object is a handle to an engine-side object.
type Object interface {
	ObjectID() int64
	TypeName() string
}

// handle is the shared part of every engine object handle.
type handle struct {
	server *Server
	id     int64
}

func (h handle) ObjectID() int64 { return h.id }

// Server returns the session the object lives in.
func (h handle) Server() *Server { return h.server }

func (h handle) client() *vgirpc.Client { return h.server.client }

func (h handle) params() wire.ObjectParams { return wire.ObjectParams{ID: h.id} }

// Release frees the engine-side object. The handle must not be used after.
func (h handle) Release(ctx context.Context) error {
	if err := vgirpc.CallVoid(ctx, h.client(), wire.ReleaseObject, h.params()); err != nil {
		return fmt.Errorf("releasing object %d: %w", h.id, err)
	}
	return nil
}

// createObject calls a constructor method that returns a new object id.
func createObject[P any](ctx context.Context, s *Server, method string, params P) (handle, error) {
	s, err := resolve(s)
	if err != nil {
		return handle{}, err
	}
	id, err := vgirpc.Call[int64](ctx, s.client, method, params)
	if err != nil {
		return handle{}, fmt.Errorf("%s: %w", method, err)
	}
	return handle{server: s, id: id}, nil
}

// newObject wraps an id returned by the engine in the handle type named by
// typeName. Unknown type names yield nil.
func newObject(s *Server, typeName string, id int64) Object {
	h := handle{server: s, id: id}
	switch typeName {
	case wire.KindField:
		return &Field{h}
	case wire.KindFieldsContainer:
		return &FieldsContainer{h}
	case wire.KindScoping:
		return &Scoping{h}
	case wire.KindMeshedRegion:
		return &MeshedRegion{h}
	case wire.KindTimeFreqSupport:
		return &TimeFreqSupport{h}
	case wire.KindDataSources:
		return &DataSources{h}
	}
	return nil
}
