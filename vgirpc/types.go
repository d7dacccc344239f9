// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowSerializable is the interface for Go types that can be serialized
// to/from Arrow IPC streams. At the method parameter/result level, these are
// serialized as binary (IPC stream bytes). When nested inside another
// ArrowSerializable type, they become Arrow struct columns.
type ArrowSerializable interface {
	ArrowSchema() *arrow.Schema
}

var arrowSerializableType = reflect.TypeOf((*ArrowSerializable)(nil)).Elem()

// Struct tag keys: method parameters use `vgirpc`, ArrowSerializable fields use `arrow`.
const (
	paramTag = "vgirpc"
	fieldTag = "arrow"
)

// tagInfo holds parsed information from a `vgirpc` or `arrow` struct tag.
type tagInfo struct {
	Name      string
	Default   *string // nil if no default
	ArrowType string  // explicit type override: "int32", "float32", "enum", "binary"
}

// parseTag parses a struct tag like "name", "name,default=foo", "name,enum", "name,int32".
func parseTag(tag string) tagInfo {
	parts := strings.Split(tag, ",")
	info := tagInfo{Name: parts[0]}
	for _, part := range parts[1:] {
		if val, ok := strings.CutPrefix(part, "default="); ok {
			info.Default = &val
		} else {
			info.ArrowType = part
		}
	}
	return info
}

func isArrowSerializable(t reflect.Type) bool {
	return t.Implements(arrowSerializableType) || reflect.PointerTo(t).Implements(arrowSerializableType)
}

// goTypeToArrowType maps a Go reflect.Type to an Arrow DataType.
// The tag provides additional type hints (e.g., "enum", "int32", "binary").
func goTypeToArrowType(t reflect.Type, tag tagInfo) (arrow.DataType, bool, error) {
	nullable := false
	if t.Kind() == reflect.Ptr {
		nullable = true
		t = t.Elem()
	}

	switch tag.ArrowType {
	case "int32":
		return arrow.PrimitiveTypes.Int32, nullable, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nullable, nil
	case "enum":
		return &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int16,
			ValueType: arrow.BinaryTypes.String,
		}, nullable, nil
	case "binary":
		return arrow.BinaryTypes.Binary, nullable, nil
	}

	if isArrowSerializable(t) {
		return arrow.BinaryTypes.Binary, nullable, nil
	}

	switch t.Kind() {
	case reflect.String:
		return arrow.BinaryTypes.String, nullable, nil
	case reflect.Int64, reflect.Int:
		return arrow.PrimitiveTypes.Int64, nullable, nil
	case reflect.Int32:
		return arrow.PrimitiveTypes.Int32, nullable, nil
	case reflect.Float64:
		return arrow.PrimitiveTypes.Float64, nullable, nil
	case reflect.Float32:
		return arrow.PrimitiveTypes.Float32, nullable, nil
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean, nullable, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return arrow.BinaryTypes.Binary, nullable, nil
		}
		elemType, _, err := goTypeToArrowType(t.Elem(), tagInfo{})
		if err != nil {
			return nil, false, fmt.Errorf("list element: %w", err)
		}
		return arrow.ListOf(elemType), nullable, nil
	case reflect.Map:
		keyType, _, err := goTypeToArrowType(t.Key(), tagInfo{})
		if err != nil {
			return nil, false, fmt.Errorf("map key: %w", err)
		}
		valType, _, err := goTypeToArrowType(t.Elem(), tagInfo{})
		if err != nil {
			return nil, false, fmt.Errorf("map value: %w", err)
		}
		return arrow.MapOf(keyType, valType), nullable, nil
	default:
		return nil, false, fmt.Errorf("unsupported Go type: %v (kind: %v)", t, t.Kind())
	}
}

// structToSchema builds an Arrow schema from a Go struct type using vgirpc tags.
func structToSchema(t reflect.Type) (*arrow.Schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %v", t.Kind())
	}
	var fields []arrow.Field
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(paramTag)
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		arrowType, nullable, err := goTypeToArrowType(f.Type, info)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields = append(fields, arrow.Field{Name: info.Name, Type: arrowType, Nullable: nullable})
	}
	return arrow.NewSchema(fields, nil), nil
}

// resultSchema builds an Arrow schema for a return type. A nil type is void.
func resultSchema(t reflect.Type) (*arrow.Schema, error) {
	if t == nil {
		return arrow.NewSchema(nil, nil), nil
	}
	arrowType, nullable, err := goTypeToArrowType(t, tagInfo{})
	if err != nil {
		return nil, fmt.Errorf("result type: %w", err)
	}
	return arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrowType, Nullable: nullable},
	}, nil), nil
}

// findTagged returns the index of the struct field whose tag names the given
// wire column, or -1.
func findTagged(t reflect.Type, tagKey, name string) (int, tagInfo) {
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get(tagKey)
		if tag == "" || tag == "-" {
			continue
		}
		if info := parseTag(tag); info.Name == name {
			return i, info
		}
	}
	return -1, tagInfo{}
}

// --- Encoding ---

// encodeRow builds a 1-row record batch from the struct rv, matching schema
// columns to fields via tagKey. Columns without a matching field are null.
func encodeRow(schema *arrow.Schema, rv reflect.Value, tagKey string) (arrow.RecordBatch, error) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, 0, schema.NumFields())
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for _, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		var err error
		if idx, _ := findTagged(rv.Type(), tagKey, f.Name); idx >= 0 {
			err = appendValue(b, f.Type, rv.Field(idx))
		} else {
			b.AppendNull()
		}
		if err != nil {
			b.Release()
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols = append(cols, b.NewArray())
		b.Release()
	}
	return array.NewRecordBatch(schema, cols, 1), nil
}

// encodeParams builds the request batch for a parameter struct.
func encodeParams(params any) (arrow.RecordBatch, error) {
	rv := reflect.ValueOf(params)
	if !rv.IsValid() {
		schema := arrow.NewSchema(nil, nil)
		return array.NewRecordBatch(schema, nil, 0), nil
	}
	schema, err := structToSchema(rv.Type())
	if err != nil {
		return nil, err
	}
	if schema.NumFields() == 0 {
		return array.NewRecordBatch(schema, nil, 0), nil
	}
	return encodeRow(schema, rv, paramTag)
}

// serializeResult builds a 1-row record batch with a single "result" column.
func serializeResult(schema *arrow.Schema, value any) (arrow.RecordBatch, error) {
	if schema.NumFields() == 0 {
		return array.NewRecordBatch(schema, nil, 0), nil
	}
	mem := memory.NewGoAllocator()
	f := schema.Field(0)
	b := array.NewBuilder(mem, f.Type)
	defer b.Release()
	if err := appendValue(b, f.Type, reflect.ValueOf(value)); err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}
	arr := b.NewArray()
	defer arr.Release()
	return array.NewRecordBatch(schema, []arrow.Array{arr}, 1), nil
}

// appendValue appends one Go value to an Arrow builder of type dt.
func appendValue(b array.Builder, dt arrow.DataType, v reflect.Value) error {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			b.AppendNull()
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		b.AppendNull()
		return nil
	}

	switch dt.ID() {
	case arrow.STRING:
		b.(*array.StringBuilder).Append(v.String())
	case arrow.INT64:
		n, err := intOf(v)
		if err != nil {
			return err
		}
		b.(*array.Int64Builder).Append(n)
	case arrow.INT32:
		n, err := intOf(v)
		if err != nil {
			return err
		}
		b.(*array.Int32Builder).Append(int32(n))
	case arrow.FLOAT64:
		x, err := floatOf(v)
		if err != nil {
			return err
		}
		b.(*array.Float64Builder).Append(x)
	case arrow.FLOAT32:
		x, err := floatOf(v)
		if err != nil {
			return err
		}
		b.(*array.Float32Builder).Append(float32(x))
	case arrow.BOOL:
		b.(*array.BooleanBuilder).Append(v.Bool())
	case arrow.BINARY:
		if as, ok := v.Interface().(ArrowSerializable); ok {
			data, err := serializeArrowSerializable(as)
			if err != nil {
				return err
			}
			b.(*array.BinaryBuilder).Append(data)
			return nil
		}
		b.(*array.BinaryBuilder).Append(v.Bytes())
	case arrow.LIST:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		elem := dt.(*arrow.ListType).Elem()
		for i := range v.Len() {
			if err := appendValue(lb.ValueBuilder(), elem, v.Index(i)); err != nil {
				return fmt.Errorf("list element [%d]: %w", i, err)
			}
		}
	case arrow.MAP:
		mb := b.(*array.MapBuilder)
		mt := dt.(*arrow.MapType)
		mb.Append(true)
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			if err := appendValue(mb.KeyBuilder(), mt.KeyType(), k); err != nil {
				return fmt.Errorf("map key: %w", err)
			}
			if err := appendValue(mb.ItemBuilder(), mt.ItemType(), v.MapIndex(k)); err != nil {
				return fmt.Errorf("map value: %w", err)
			}
		}
	case arrow.DICTIONARY:
		return b.(*array.BinaryDictionaryBuilder).AppendString(v.String())
	case arrow.STRUCT:
		sb := b.(*array.StructBuilder)
		st := dt.(*arrow.StructType)
		sb.Append(true)
		for ci, sf := range st.Fields() {
			fb := sb.FieldBuilder(ci)
			idx, _ := findTagged(v.Type(), fieldTag, sf.Name)
			if idx < 0 {
				fb.AppendNull()
				continue
			}
			if err := appendValue(fb, sf.Type, v.Field(idx)); err != nil {
				return fmt.Errorf("struct field %s: %w", sf.Name, err)
			}
		}
	default:
		return fmt.Errorf("unsupported Arrow type for serialization: %v", dt)
	}
	return nil
}

func intOf(v reflect.Value) (int64, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(v.Uint()), nil
	default:
		return 0, fmt.Errorf("cannot convert %v to int64", v.Type())
	}
}

func floatOf(v reflect.Value) (float64, error) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	default:
		return 0, fmt.Errorf("cannot convert %v to float64", v.Type())
	}
}

// serializeArrowSerializable converts an ArrowSerializable value to IPC stream bytes.
func serializeArrowSerializable(as ArrowSerializable) ([]byte, error) {
	schema := as.ArrowSchema()
	batch, err := encodeRow(schema, reflect.ValueOf(as), fieldTag)
	if err != nil {
		return nil, err
	}
	defer batch.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(batch); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Decoding ---

// decodeRow fills the struct dst from one row of batch, matching columns to
// fields via tagKey. Missing or null columns fall back to tag defaults.
func decodeRow(batch arrow.RecordBatch, row int, dst reflect.Value, tagKey string) error {
	t := dst.Type()
	schema := batch.Schema()
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)

		indices := schema.FieldIndices(info.Name)
		if len(indices) == 0 || batch.Column(indices[0]).IsNull(row) {
			if info.Default != nil {
				if err := setFieldFromString(dst.Field(i), *info.Default); err != nil {
					return fmt.Errorf("default for %s: %w", info.Name, err)
				}
			}
			continue
		}
		if err := decodeValue(batch.Column(indices[0]), row, dst.Field(i)); err != nil {
			return fmt.Errorf("field %s: %w", info.Name, err)
		}
	}
	return nil
}

// deserializeParams reads row 0 from a record batch into a new value of type target.
func deserializeParams(batch arrow.RecordBatch, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	result := reflect.New(target).Elem()
	if batch.NumRows() == 0 {
		// Parameterless requests carry no row; only defaults apply.
		for i := range target.NumField() {
			info := parseTag(target.Field(i).Tag.Get(paramTag))
			if info.Default != nil {
				if err := setFieldFromString(result.Field(i), *info.Default); err != nil {
					return reflect.Value{}, err
				}
			}
		}
		return result, nil
	}
	if err := decodeRow(batch, 0, result, paramTag); err != nil {
		return reflect.Value{}, err
	}
	return result, nil
}

// decodeValue sets dst from the Arrow value at col[idx].
func decodeValue(col arrow.Array, idx int, dst reflect.Value) error {
	if col.IsNull(idx) {
		return nil
	}
	t := dst.Type()
	if t.Kind() == reflect.Ptr {
		p := reflect.New(t.Elem())
		if err := decodeValue(col, idx, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	if isArrowSerializable(t) {
		switch c := col.(type) {
		case *array.Binary:
			return deserializeArrowSerializable(c.Value(idx), dst)
		case *array.Struct:
			return decodeStruct(c, idx, dst)
		default:
			return fmt.Errorf("expected Binary or Struct array for ArrowSerializable, got %T", col)
		}
	}

	switch c := col.(type) {
	case *array.String:
		dst.SetString(c.Value(idx))
	case *array.Int64:
		return setNumber(dst, float64(c.Value(idx)), c.Value(idx))
	case *array.Int32:
		return setNumber(dst, float64(c.Value(idx)), int64(c.Value(idx)))
	case *array.Float64:
		return setNumber(dst, c.Value(idx), int64(c.Value(idx)))
	case *array.Float32:
		return setNumber(dst, float64(c.Value(idx)), int64(c.Value(idx)))
	case *array.Boolean:
		dst.SetBool(c.Value(idx))
	case *array.Binary:
		dst.SetBytes(bytes.Clone(c.Value(idx)))
	case *array.Map:
		start, end := c.ValueOffsets(idx)
		m := reflect.MakeMapWithSize(t, int(end-start))
		for j := start; j < end; j++ {
			k := reflect.New(t.Key()).Elem()
			v := reflect.New(t.Elem()).Elem()
			if err := decodeValue(c.Keys(), int(j), k); err != nil {
				return fmt.Errorf("map key [%d]: %w", j-start, err)
			}
			if err := decodeValue(c.Items(), int(j), v); err != nil {
				return fmt.Errorf("map value [%d]: %w", j-start, err)
			}
			m.SetMapIndex(k, v)
		}
		dst.Set(m)
	case *array.List:
		start, end := c.ValueOffsets(idx)
		n := int(end - start)
		slice := reflect.MakeSlice(t, n, n)
		for j := range n {
			if err := decodeValue(c.ListValues(), int(start)+j, slice.Index(j)); err != nil {
				return fmt.Errorf("list element [%d]: %w", j, err)
			}
		}
		dst.Set(slice)
	case *array.Dictionary:
		dict, ok := c.Dictionary().(*array.String)
		if !ok {
			return fmt.Errorf("expected string dictionary, got %T", c.Dictionary())
		}
		dst.SetString(dict.Value(c.GetValueIndex(idx)))
	case *array.Struct:
		return decodeStruct(c, idx, dst)
	default:
		return fmt.Errorf("unsupported Arrow array type: %T", col)
	}
	return nil
}

// setNumber stores a numeric Arrow value in an int or float destination.
func setNumber(dst reflect.Value, f float64, i int64) error {
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(i)
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(f)
	default:
		return fmt.Errorf("cannot store number in %v", dst.Type())
	}
	return nil
}

func decodeStruct(c *array.Struct, idx int, dst reflect.Value) error {
	st := c.DataType().(*arrow.StructType)
	t := dst.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get(fieldTag)
		if tag == "" {
			continue
		}
		name := parseTag(tag).Name
		ci, ok := st.FieldIdx(name)
		if !ok {
			continue
		}
		if err := decodeValue(c.Field(ci), idx, dst.Field(i)); err != nil {
			return fmt.Errorf("struct field %s: %w", name, err)
		}
	}
	return nil
}

// deserializeArrowSerializable reads IPC stream bytes into dst.
func deserializeArrowSerializable(data []byte, dst reflect.Value) error {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("reading ArrowSerializable IPC: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		return fmt.Errorf("no batch in ArrowSerializable IPC stream")
	}
	return decodeRow(reader.RecordBatch(), 0, dst, fieldTag)
}

// setFieldFromString sets a struct field from a string default value.
func setFieldFromString(field reflect.Value, s string) error {
	if field.Kind() == reflect.Ptr {
		p := reflect.New(field.Type().Elem())
		if err := setFieldFromString(p.Elem(), s); err != nil {
			return err
		}
		field.Set(p)
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int64, reflect.Int, reflect.Int32:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int default %q: %w", s, err)
		}
		field.SetInt(v)
	case reflect.Float64, reflect.Float32:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing float default %q: %w", s, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("parsing bool default %q: %w", s, err)
		}
		field.SetBool(v)
	default:
		return fmt.Errorf("default value parsing not supported for %v", field.Kind())
	}
	return nil
}
