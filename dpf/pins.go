// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/Query-farm/vgi-dpf/internal/wire"
)

// Input is one input pin of an operator.
type Input struct {
	op       *Operator
	pin      int
	ellipsis int
	spec     PinSpecification
}

// NewInput binds input pin of op. ellipsis is the index of the pin within a
// repeated group, or -1.
func NewInput(op *Operator, spec PinSpecification, pin, ellipsis int) *Input {
	return &Input{op: op, pin: pin, ellipsis: ellipsis, spec: spec}
}

// Connect connects value to the pin.
func (in *Input) Connect(ctx context.Context, value any) error {
	return in.op.Connect(ctx, in.pin, value)
}

// Disconnect removes the pin's connection.
func (in *Input) Disconnect(ctx context.Context) error {
	return in.op.Disconnect(ctx, in.pin)
}

func (in *Input) Pin() int                     { return in.pin }
func (in *Input) Ellipsis() int                { return in.ellipsis }
func (in *Input) Spec() PinSpecification       { return in.spec }
func (in *Input) Operator() *Operator          { return in.op }
func (in *Input) Accepts(typeName string) bool { return in.spec.Accepts(typeName) }

// Name returns the pin name, numbered from 1 for repeated pins.
func (in *Input) Name() string {
	if in.ellipsis >= 0 {
		return fmt.Sprintf("%s%d", in.spec.Name, in.ellipsis+1)
	}
	return in.spec.Name
}

// Output is one output pin of an operator. Nothing is evaluated until Get
// is called, and connecting an Output to another operator's input chains
// the two on the engine without evaluating either.
type Output struct {
	op   *Operator
	pin  int
	spec PinSpecification
}

// NewOutput binds output pin of op.
func NewOutput(op *Operator, spec PinSpecification, pin int) *Output {
	return &Output{op: op, pin: pin, spec: spec}
}

func (o *Output) Pin() int               { return o.pin }
func (o *Output) Spec() PinSpecification { return o.spec }
func (o *Output) Operator() *Operator    { return o.op }

// Get evaluates the operator and returns the pin's value as its first
// declared type.
func (o *Output) Get(ctx context.Context) (any, error) {
	return o.op.GetOutput(ctx, o.pin, "")
}

// OutputAs evaluates the operator and returns the output as T, one of the
// handle types (*Field, *FieldsContainer, ...), float64, int, string, bool,
// []int or []float64.
func OutputAs[T any](ctx context.Context, o *Output) (T, error) {
	var zero T
	typeName, ok := typeNameOf(reflect.TypeFor[T]())
	if !ok {
		return zero, fmt.Errorf("%w: no engine type for %s", ErrPinType, reflect.TypeFor[T]())
	}
	v, err := o.op.GetOutput(ctx, o.pin, typeName)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: output %d of %s is %T", ErrNoOutput, o.pin, o.op.name, v)
	}
	return t, nil
}

var (
	objectType = reflect.TypeFor[Object]()
	kindByType = map[reflect.Type]string{
		reflect.TypeFor[float64]():   wire.KindDouble,
		reflect.TypeFor[int]():       wire.KindInt32,
		reflect.TypeFor[[]int]():     wire.KindVectorInt32,
		reflect.TypeFor[[]float64](): wire.KindVectorDouble,
		reflect.TypeFor[string]():    wire.KindString,
		reflect.TypeFor[bool]():      wire.KindBool,
	}
)

func typeNameOf(t reflect.Type) (string, bool) {
	if k, ok := kindByType[t]; ok {
		return k, true
	}
	if t.Kind() == reflect.Pointer && t.Implements(objectType) {
		return reflect.New(t.Elem()).Interface().(Object).TypeName(), true
	}
	return "", false
}

// encodePinValue converts a Go value to its wire form together with the
// type names it may be connected as.
func encodePinValue(ctx context.Context, value any) (wire.PinValue, []string, error) {
	if isNil(value) {
		return wire.PinValue{}, nil, fmt.Errorf("%w: nil value", ErrPinType)
	}
	switch v := value.(type) {
	case *Output:
		return outputValue(v.op.id, v.pin), v.spec.TypeNames, nil
	case *Operator:
		spec, err := v.Specification(ctx)
		if err != nil {
			return wire.PinValue{}, nil, err
		}
		ps, ok := spec.OutputPin(0)
		if !ok {
			return wire.PinValue{}, nil, fmt.Errorf("%w: %s has no output pin 0", ErrUnknownPin, v.name)
		}
		return outputValue(v.id, 0), ps.TypeNames, nil
	case Object:
		id := v.ObjectID()
		return wire.PinValue{Kind: v.TypeName(), ObjectID: &id}, []string{v.TypeName()}, nil
	case float64:
		return doubleValue(v), []string{wire.KindDouble}, nil
	case float32:
		return doubleValue(float64(v)), []string{wire.KindDouble}, nil
	case int:
		return intValue(int64(v))
	case int32:
		return intValue(int64(v))
	case int64:
		return intValue(v)
	case string:
		return wire.PinValue{Kind: wire.KindString, String: &v}, []string{wire.KindString}, nil
	case bool:
		return wire.PinValue{Kind: wire.KindBool, Bool: &v}, []string{wire.KindBool}, nil
	case []int:
		return intsValue(v)
	case []int32:
		return intsValue(v)
	case []int64:
		return intsValue(v)
	case []float64:
		return wire.PinValue{Kind: wire.KindVectorDouble, Doubles: v}, []string{wire.KindVectorDouble}, nil
	}
	return wire.PinValue{}, nil, fmt.Errorf("%w: unsupported value %T", ErrPinType, value)
}

// isNil reports whether v is nil or a nil pointer, slice, map, chan, func
// or interface held in an interface.
func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func outputValue(opID int64, pin int) wire.PinValue {
	p := int64(pin)
	return wire.PinValue{Kind: wire.KindOperatorOutput, ObjectID: &opID, SourcePin: &p}
}

func doubleValue(d float64) wire.PinValue {
	return wire.PinValue{Kind: wire.KindDouble, Double: &d}
}

func fitsInt32(i int64) bool {
	return i >= math.MinInt32 && i <= math.MaxInt32
}

// intValue carries a scalar integer as a one-element Ints list. Integers
// outside the int32 range can only go to double pins.
func intValue(i int64) (wire.PinValue, []string, error) {
	if !fitsInt32(i) {
		return doubleValue(float64(i)), []string{wire.KindDouble}, nil
	}
	return wire.PinValue{Kind: wire.KindInt32, Ints: []int64{i}}, []string{wire.KindInt32}, nil
}

func intsValue[T int | int32 | int64](v []T) (wire.PinValue, []string, error) {
	out := make([]int64, len(v))
	wide := false
	for i, x := range v {
		out[i] = int64(x)
		wide = wide || !fitsInt32(out[i])
	}
	if wide {
		ds := make([]float64, len(out))
		for i, x := range out {
			ds[i] = float64(x)
		}
		return wire.PinValue{Kind: wire.KindVectorDouble, Doubles: ds}, []string{wire.KindVectorDouble}, nil
	}
	return wire.PinValue{Kind: wire.KindVectorInt32, Ints: out}, []string{wire.KindVectorInt32}, nil
}

// decodePinValue converts an output value back into Go.
func decodePinValue(s *Server, pv wire.PinValue) (any, error) {
	switch pv.Kind {
	case "":
		return nil, ErrNoOutput
	case wire.KindDouble:
		if pv.Double == nil {
			return nil, ErrNoOutput
		}
		return *pv.Double, nil
	case wire.KindInt32:
		if len(pv.Ints) == 0 {
			return nil, ErrNoOutput
		}
		return int(pv.Ints[0]), nil
	case wire.KindVectorInt32:
		out := make([]int, len(pv.Ints))
		for i, v := range pv.Ints {
			out[i] = int(v)
		}
		return out, nil
	case wire.KindVectorDouble:
		return pv.Doubles, nil
	case wire.KindString:
		if pv.String == nil {
			return nil, ErrNoOutput
		}
		return *pv.String, nil
	case wire.KindBool:
		if pv.Bool == nil {
			return nil, ErrNoOutput
		}
		return *pv.Bool, nil
	}
	if pv.ObjectID == nil {
		return nil, fmt.Errorf("%w: %s without object id", ErrNoOutput, pv.Kind)
	}
	if obj := newObject(s, pv.Kind, *pv.ObjectID); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: unknown value kind %q", ErrPinType, pv.Kind)
}

// Arg pairs an input with the value to connect to it.
type Arg struct {
	Input *Input
	Value any
}

// ConnectArgs connects every arg whose value is non-nil, in order. Typed
// nils such as a nil *MeshedRegion count as unset.
func ConnectArgs(ctx context.Context, args []Arg) error {
	for _, a := range args {
		if isNil(a.Value) {
			continue
		}
		if err := a.Input.Connect(ctx, a.Value); err != nil {
			return err
		}
	}
	return nil
}
