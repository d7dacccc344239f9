// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// describeSchema is the layout of the __describe__ response, one row per method.
var describeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "method_type", Type: arrow.BinaryTypes.String},
	{Name: "doc", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "has_return", Type: &arrow.BooleanType{}},
	{Name: "params_schema_ipc", Type: arrow.BinaryTypes.Binary},
	{Name: "result_schema_ipc", Type: arrow.BinaryTypes.Binary},
	{Name: "param_types_json", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "param_defaults_json", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// MethodDescription is one entry of a remote engine's method catalog.
type MethodDescription struct {
	Name          string
	MethodType    string // DispatchMethodUnary or DispatchMethodStream
	Doc           string
	HasReturn     bool
	ParamsSchema  *arrow.Schema
	ResultSchema  *arrow.Schema
	ParamTypes    map[string]string
	ParamDefaults map[string]any
}

// Description is the decoded __describe__ response.
type Description struct {
	ProtocolName string
	ServerID     string
	Methods      []MethodDescription
}

// Method returns the named method description, if present.
func (d *Description) Method(name string) (MethodDescription, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDescription{}, false
}

// serializeSchema serializes an Arrow schema to IPC format bytes.
func serializeSchema(schema *arrow.Schema) []byte {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	w.Close()
	return buf.Bytes()
}

func deserializeSchema(data []byte) (*arrow.Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Release()
	return r.Schema(), nil
}

// buildDescribeBatch builds the __describe__ response batch and metadata.
func (s *Server) buildDescribeBatch() (arrow.RecordBatch, arrow.Metadata) {
	mem := memory.NewGoAllocator()
	builders := make([]array.Builder, describeSchema.NumFields())
	for i, f := range describeSchema.Fields() {
		builders[i] = array.NewBuilder(mem, f.Type)
		defer builders[i].Release()
	}
	str := func(i int) *array.StringBuilder { return builders[i].(*array.StringBuilder) }
	bin := func(i int) *array.BinaryBuilder { return builders[i].(*array.BinaryBuilder) }

	names := s.availableMethods()
	for _, name := range names {
		info := s.methods[name]

		str(0).Append(name)
		str(1).Append(methodTypeString(info.Type))
		if info.Doc != "" {
			str(2).Append(info.Doc)
		} else {
			str(2).AppendNull()
		}
		builders[3].(*array.BooleanBuilder).Append(info.Type == MethodUnary && info.ResultType != nil)
		bin(4).Append(serializeSchema(info.ParamsSchema))

		// Streams advertise their output schema.
		if info.OutputSchema != nil {
			bin(5).Append(serializeSchema(info.OutputSchema))
		} else {
			bin(5).Append(serializeSchema(info.ResultSchema))
		}

		paramTypes := make(map[string]string, info.ParamsSchema.NumFields())
		for _, f := range info.ParamsSchema.Fields() {
			paramTypes[f.Name] = arrowTypeToString(f.Type)
		}
		appendJSON(str(6), paramTypes, len(paramTypes))

		// Defaults are sent as native JSON types, not all strings.
		typed := make(map[string]any, len(info.ParamDefaults))
		for k, v := range info.ParamDefaults {
			typed[k] = coerceDefaultValue(v, info.ParamsSchema, k)
		}
		appendJSON(str(7), typed, len(typed))
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
		defer cols[i].Release()
	}
	batch := array.NewRecordBatch(describeSchema, cols, int64(len(names)))

	keys := []string{MetaProtocolName, MetaRequestVersion, MetaDescribeVersion}
	vals := []string{"GoRpcServer", ProtocolVersion, DescribeVersion}
	if s.serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, s.serverID)
	}
	return batch, arrow.NewMetadata(keys, vals)
}

func appendJSON(b *array.StringBuilder, v any, n int) {
	if n == 0 {
		b.AppendNull()
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.AppendNull()
		return
	}
	b.Append(string(data))
}

// parseDescribeBatch decodes a __describe__ response batch.
func parseDescribeBatch(batch arrow.RecordBatch) (*Description, error) {
	meta := metadataMap(batch)
	desc := &Description{
		ProtocolName: meta[MetaProtocolName],
		ServerID:     meta[MetaServerID],
	}

	col := func(name string) (arrow.Array, error) {
		idx := batch.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("describe response missing column %q", name)
		}
		return batch.Column(idx[0]), nil
	}
	var cols [8]arrow.Array
	for i, f := range describeSchema.Fields() {
		c, err := col(f.Name)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}

	names, ok1 := cols[0].(*array.String)
	types, ok2 := cols[1].(*array.String)
	docs, ok3 := cols[2].(*array.String)
	hasReturn, ok4 := cols[3].(*array.Boolean)
	params, ok5 := cols[4].(*array.Binary)
	results, ok6 := cols[5].(*array.Binary)
	paramTypes, ok7 := cols[6].(*array.String)
	paramDefaults, ok8 := cols[7].(*array.String)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, fmt.Errorf("describe response has unexpected column types")
	}

	for i := range int(batch.NumRows()) {
		m := MethodDescription{
			Name:       names.Value(i),
			MethodType: types.Value(i),
			HasReturn:  hasReturn.Value(i),
		}
		if docs.IsValid(i) {
			m.Doc = docs.Value(i)
		}
		var err error
		if m.ParamsSchema, err = deserializeSchema(params.Value(i)); err != nil {
			return nil, fmt.Errorf("method %s params schema: %w", m.Name, err)
		}
		if m.ResultSchema, err = deserializeSchema(results.Value(i)); err != nil {
			return nil, fmt.Errorf("method %s result schema: %w", m.Name, err)
		}
		if paramTypes.IsValid(i) {
			_ = json.Unmarshal([]byte(paramTypes.Value(i)), &m.ParamTypes)
		}
		if paramDefaults.IsValid(i) {
			_ = json.Unmarshal([]byte(paramDefaults.Value(i)), &m.ParamDefaults)
		}
		desc.Methods = append(desc.Methods, m)
	}
	return desc, nil
}

// coerceDefaultValue converts a string default to its proper JSON type
// based on the Arrow schema field type.
func coerceDefaultValue(val string, schema *arrow.Schema, fieldName string) any {
	indices := schema.FieldIndices(fieldName)
	if len(indices) == 0 {
		return val
	}
	switch schema.Field(indices[0]).Type.ID() {
	case arrow.INT64, arrow.INT32:
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			return v
		}
	case arrow.FLOAT64, arrow.FLOAT32:
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			return v
		}
	case arrow.BOOL:
		if v, err := strconv.ParseBool(val); err == nil {
			return v
		}
	}
	return val
}

// arrowTypeToString returns a human-readable type name for an Arrow type.
func arrowTypeToString(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING:
		return "string"
	case arrow.INT64:
		return "int"
	case arrow.INT32:
		return "int32"
	case arrow.FLOAT64:
		return "float"
	case arrow.FLOAT32:
		return "float32"
	case arrow.BOOL:
		return "bool"
	case arrow.BINARY:
		return "bytes"
	case arrow.LIST:
		return "list[" + arrowTypeToString(dt.(*arrow.ListType).Elem()) + "]"
	case arrow.MAP:
		mt := dt.(*arrow.MapType)
		return "dict[" + arrowTypeToString(mt.KeyType()) + ", " + arrowTypeToString(mt.ItemType()) + "]"
	case arrow.DICTIONARY:
		return "enum"
	default:
		return dt.String()
	}
}
