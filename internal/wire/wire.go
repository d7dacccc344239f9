// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package wire holds the remote method names and parameter/result types
// shared by the dpf client and the in-process engine emulator.
package wire

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Remote method names.
const (
	FieldCreate           = "field.create"
	FieldDescribe         = "field.describe"
	FieldSetData          = "field.set_data"
	FieldGetData          = "field.get_data"
	FieldSetScopingIDs    = "field.set_scoping_ids"
	FieldGetScopingIDs    = "field.get_scoping_ids"
	FieldsContainerSize   = "fields_container.size"
	FieldsContainerField  = "fields_container.get_field"
	FieldsContainerLabels = "fields_container.label_ids"
	ScopingCreate         = "scoping.create"
	ScopingGetIDs         = "scoping.get_ids"
	MeshedRegionDescribe  = "meshed_region.describe"
	TimeFreqFrequencies   = "time_freq_support.frequencies"
	DataSourcesCreate     = "data_sources.create"
	DataSourcesSetPath    = "data_sources.set_result_file_path"
	OperatorCreate        = "operator.create"
	OperatorSpecification = "operator.specification"
	OperatorDefaultConfig = "operator.default_config"
	OperatorConnect       = "operator.connect"
	OperatorDisconnect    = "operator.disconnect"
	OperatorRun           = "operator.run"
	OperatorGetOutput     = "operator.get_output"
	OperatorList          = "operator.list"
	ServerInfo            = "base.server_info"
	LoadLibrary           = "base.load_library"
	MakeTmpDir            = "base.make_tmp_dir"
	UploadFile            = "base.upload_file"
	DownloadFile          = "base.download_file"
	ListFiles             = "base.list_files"
	ReleaseObject         = "base.release_object"
)

// Value kinds carried by PinValue.Kind. Object handles use their type name.
const (
	KindField           = "field"
	KindFieldsContainer = "fields_container"
	KindScoping         = "scoping"
	KindMeshedRegion    = "abstract_meshed_region"
	KindTimeFreqSupport = "time_freq_support"
	KindDataSources     = "data_sources"
	KindDouble          = "double"
	KindInt32           = "int32"
	KindVectorInt32     = "vector<int32>"
	KindVectorDouble    = "vector<double>"
	KindString          = "string"
	KindBool            = "bool"
	KindOperatorOutput  = "operator_output"
)

// ObjectParams addresses one engine-side object.
type ObjectParams struct {
	ID int64 `vgirpc:"id"`
}

// FieldCreateParams is the field construction request.
type FieldCreateParams struct {
	Nature         string  `vgirpc:"nature,enum"`
	Location       string  `vgirpc:"location"`
	ScopingSize    int64   `vgirpc:"scoping_size"`
	DataSize       int64   `vgirpc:"data_size"`
	Dimensionality []int64 `vgirpc:"dimensionality"`
}

// FieldInfo describes an engine-side field.
type FieldInfo struct {
	Nature         string  `arrow:"nature"`
	Location       string  `arrow:"location"`
	Dimensionality []int64 `arrow:"dimensionality"`
	ScopingSize    int64   `arrow:"scoping_size"`
	DataSize       int64   `arrow:"data_size"`
	Unit           string  `arrow:"unit"`
}

func (FieldInfo) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "nature", Type: arrow.BinaryTypes.String},
		{Name: "location", Type: arrow.BinaryTypes.String},
		{Name: "dimensionality", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		{Name: "scoping_size", Type: arrow.PrimitiveTypes.Int64},
		{Name: "data_size", Type: arrow.PrimitiveTypes.Int64},
		{Name: "unit", Type: arrow.BinaryTypes.String},
	}, nil)
}

type FieldDataParams struct {
	ID   int64     `vgirpc:"id"`
	Data []float64 `vgirpc:"data"`
}

type IDsParams struct {
	ID  int64   `vgirpc:"id"`
	IDs []int64 `vgirpc:"ids"`
}

type FieldAtParams struct {
	ID    int64 `vgirpc:"id"`
	Index int64 `vgirpc:"index"`
}

type LabelParams struct {
	ID    int64  `vgirpc:"id"`
	Label string `vgirpc:"label,default=time"`
}

type ScopingCreateParams struct {
	Location string  `vgirpc:"location"`
	IDs      []int64 `vgirpc:"ids"`
}

// MeshInfo describes an engine-side meshed region.
type MeshInfo struct {
	NodeCount    int64  `arrow:"node_count"`
	ElementCount int64  `arrow:"element_count"`
	Unit         string `arrow:"unit"`
}

func (MeshInfo) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "node_count", Type: arrow.PrimitiveTypes.Int64},
		{Name: "element_count", Type: arrow.PrimitiveTypes.Int64},
		{Name: "unit", Type: arrow.BinaryTypes.String},
	}, nil)
}

type DataSourcesCreateParams struct {
	ResultPath *string `vgirpc:"result_path"`
}

type DataSourcesPathParams struct {
	ID   int64  `vgirpc:"id"`
	Path string `vgirpc:"path"`
	Key  string `vgirpc:"key"`
}

type OperatorCreateParams struct {
	Name   string            `vgirpc:"name"`
	Config map[string]string `vgirpc:"config"`
}

type OperatorNameParams struct {
	Name string `vgirpc:"name"`
}

// PinSpec is one pin of an operator specification.
type PinSpec struct {
	Pin       int64    `arrow:"pin"`
	Name      string   `arrow:"name"`
	TypeNames []string `arrow:"type_names"`
	Optional  bool     `arrow:"optional"`
	Document  string   `arrow:"document"`
	Ellipsis  bool     `arrow:"ellipsis"`
}

var pinSpecType = arrow.StructOf(
	arrow.Field{Name: "pin", Type: arrow.PrimitiveTypes.Int64},
	arrow.Field{Name: "name", Type: arrow.BinaryTypes.String},
	arrow.Field{Name: "type_names", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	arrow.Field{Name: "optional", Type: arrow.FixedWidthTypes.Boolean},
	arrow.Field{Name: "document", Type: arrow.BinaryTypes.String},
	arrow.Field{Name: "ellipsis", Type: arrow.FixedWidthTypes.Boolean},
)

// OperatorSpec is the engine's description of an operator.
type OperatorSpec struct {
	Description string    `arrow:"description"`
	Inputs      []PinSpec `arrow:"inputs"`
	Outputs     []PinSpec `arrow:"outputs"`
}

func (OperatorSpec) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "description", Type: arrow.BinaryTypes.String},
		{Name: "inputs", Type: arrow.ListOf(pinSpecType)},
		{Name: "outputs", Type: arrow.ListOf(pinSpecType)},
	}, nil)
}

// PinValue is a value travelling to or from an operator pin. Kind selects
// which of the optional members is meaningful.
type PinValue struct {
	Kind      string    `arrow:"kind"`
	ObjectID  *int64    `arrow:"object_id"`
	SourcePin *int64    `arrow:"source_pin"`
	Double    *float64  `arrow:"double_value"`
	Ints      []int64   `arrow:"int_values"`
	Doubles   []float64 `arrow:"double_values"`
	String    *string   `arrow:"string_value"`
	Bool      *bool     `arrow:"bool_value"`
}

func (PinValue) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "object_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "source_pin", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "double_value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "int_values", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		{Name: "double_values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "string_value", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "bool_value", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)
}

type ConnectParams struct {
	OperatorID int64    `vgirpc:"operator_id"`
	Pin        int64    `vgirpc:"pin"`
	Value      PinValue `vgirpc:"value"`
}

type PinParams struct {
	OperatorID int64 `vgirpc:"operator_id"`
	Pin        int64 `vgirpc:"pin"`
}

type GetOutputParams struct {
	OperatorID int64  `vgirpc:"operator_id"`
	Pin        int64  `vgirpc:"pin"`
	TypeName   string `vgirpc:"type_name"`
}

// EngineInfo is the engine's self description.
type EngineInfo struct {
	IP        string `arrow:"ip"`
	Port      int64  `arrow:"port"`
	ProcessID int64  `arrow:"process_id"`
	Version   string `arrow:"version"`
	OS        string `arrow:"os"`
}

func (EngineInfo) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "ip", Type: arrow.BinaryTypes.String},
		{Name: "port", Type: arrow.PrimitiveTypes.Int64},
		{Name: "process_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "version", Type: arrow.BinaryTypes.String},
		{Name: "os", Type: arrow.BinaryTypes.String},
	}, nil)
}

type LoadLibraryParams struct {
	Filename string `vgirpc:"filename"`
	Name     string `vgirpc:"name"`
}

// UploadParams carries one chunk of a file upload. The first chunk
// truncates the server file, later chunks append.
type UploadParams struct {
	ServerPath string `vgirpc:"server_path"`
	Data       []byte `vgirpc:"data"`
	Append     bool   `vgirpc:"append,default=false"`
}

type PathParams struct {
	Path string `vgirpc:"path"`
}

// ChunkSchema is the output schema of base.download_file.
var ChunkSchema = arrow.NewSchema([]arrow.Field{
	{Name: "chunk", Type: arrow.BinaryTypes.Binary},
}, nil)

// ChunkSize is the transfer unit for uploads and downloads.
const ChunkSize = 1 << 20
