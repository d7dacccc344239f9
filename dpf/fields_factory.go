// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"
	"reflect"
)

// FieldFromArray creates a nodal field holding arr, with scoping ids 1..n.
//
// arr is a slice of numbers (one scalar per entity) or a rectangular slice
// of rows with 1, 3 or 6 numbers each (scalar, vector and symmetric matrix
// entities). Rows may be slices or arrays, e.g. [][3]float64.
func FieldFromArray(ctx context.Context, s *Server, arr any) (*Field, error) {
	data, n, nature, err := flattenArray(arr)
	if err != nil {
		return nil, err
	}
	f, err := NewField(ctx, s, FieldRequest{
		Nature:      nature,
		ScopingSize: n,
		DataSize:    len(data),
		Location:    Nodal,
	})
	if err != nil {
		return nil, err
	}
	if err := f.SetData(ctx, data); err != nil {
		_ = f.Release(ctx)
		return nil, fmt.Errorf("setting field data: %w", err)
	}
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if err := f.SetScopingIDs(ctx, ids); err != nil {
		_ = f.Release(ctx)
		return nil, fmt.Errorf("setting field scoping: %w", err)
	}
	return f, nil
}

// flattenArray validates arr and returns its values entity-major together
// with the entity count and nature.
func flattenArray(arr any) ([]float64, int, Nature, error) {
	v := reflect.ValueOf(arr)
	if !v.IsValid() || !isSequence(v.Kind()) {
		return nil, 0, "", fmt.Errorf("%w: got %T", ErrInvalidShape, arr)
	}
	elem := v.Type().Elem()
	if isNumeric(elem.Kind()) {
		out := make([]float64, v.Len())
		for i := range out {
			out[i] = toFloat(v.Index(i))
		}
		return out, v.Len(), Scalar, nil
	}
	if !isSequence(elem.Kind()) {
		return nil, 0, "", fmt.Errorf("%w: element type %s", ErrNotNumeric, elem)
	}
	if !isNumeric(elem.Elem().Kind()) {
		if isSequence(elem.Elem().Kind()) {
			return nil, 0, "", fmt.Errorf("%w: got %d dimensions", ErrInvalidShape, rank(v.Type()))
		}
		return nil, 0, "", fmt.Errorf("%w: element type %s", ErrNotNumeric, elem.Elem())
	}

	n := v.Len()
	cols := -1
	if elem.Kind() == reflect.Array {
		cols = elem.Len()
	}
	for i := range n {
		l := v.Index(i).Len()
		if cols < 0 {
			cols = l
		} else if l != cols {
			return nil, 0, "", fmt.Errorf("%w: row %d has %d components, expected %d", ErrInvalidShape, i, l, cols)
		}
	}
	if cols < 0 {
		// An empty slice of rows carries no column count; treat it as scalar.
		cols = 1
	}

	var nature Nature
	switch cols {
	case 1:
		nature = Scalar
	case 3:
		nature = Vector
	case 6:
		nature = SymMatrix
	default:
		return nil, 0, "", fmt.Errorf("%w: got %d components", ErrInvalidShape, cols)
	}
	out := make([]float64, 0, n*cols)
	for i := range n {
		row := v.Index(i)
		for j := range cols {
			out = append(out, toFloat(row.Index(j)))
		}
	}
	return out, n, nature, nil
}

func isSequence(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func toFloat(v reflect.Value) float64 {
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func rank(t reflect.Type) int {
	r := 0
	for isSequence(t.Kind()) {
		r++
		t = t.Elem()
	}
	return r
}

// CreateScalarField reserves a field of n scalar entities. An empty location
// means Nodal.
func CreateScalarField(ctx context.Context, s *Server, n int, location string) (*Field, error) {
	return createField(ctx, s, Scalar, n, location, 0, 0)
}

// Create3DVectorField reserves a field of n 3D vector entities.
func Create3DVectorField(ctx context.Context, s *Server, n int, location string) (*Field, error) {
	return createField(ctx, s, Vector, n, location, 0, 0)
}

// CreateTensorField reserves a field of n symmetric 3x3 tensors, stored as
// 6 components each.
func CreateTensorField(ctx context.Context, s *Server, n int, location string) (*Field, error) {
	return createField(ctx, s, SymMatrix, n, location, 0, 0)
}

// CreateVectorField reserves a field of n vectors with ncomp components.
func CreateVectorField(ctx context.Context, s *Server, n, ncomp int, location string) (*Field, error) {
	return createField(ctx, s, Vector, n, location, ncomp, 0)
}

// CreateMatrixField reserves a field of n lines x cols matrices.
func CreateMatrixField(ctx context.Context, s *Server, n, lines, cols int, location string) (*Field, error) {
	return createField(ctx, s, Matrix, n, location, cols, lines)
}

// createField reserves capacity for n entities. Dimensionality is sent only
// when component counts are given: [ncompN] or [ncompN, ncompM].
func createField(ctx context.Context, s *Server, nature Nature, n int, location string, ncompN, ncompM int) (*Field, error) {
	if n < 0 || ncompN < 0 || ncompM < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrInvalidShape)
	}
	var per int
	switch nature {
	case Scalar:
		per = 1
	case Vector:
		per = 3
		if ncompN > 0 {
			per = ncompN
		}
	case SymMatrix:
		per = 6
	case Matrix:
		per = ncompN * ncompM
	default:
		per = ncompN
	}
	var dims []int
	switch {
	case ncompN != 0 && ncompM != 0:
		dims = []int{ncompN, ncompM}
	case ncompN != 0:
		dims = []int{ncompN}
	}
	return NewField(ctx, s, FieldRequest{
		Nature:         nature,
		Dimensionality: dims,
		ScopingSize:    n,
		DataSize:       n * per,
		Location:       location,
	})
}
