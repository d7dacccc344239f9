// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// KindOperator is the type name of operator handles.
const KindOperator = "operator"

// Operator is a named engine procedure with numbered input and output pins.
// Connecting inputs is cheap; the engine evaluates the operator when an
// output is requested or Run is called.
type Operator struct {
	handle
	name string

	mu   sync.Mutex
	spec *Specification
}

func (*Operator) TypeName() string { return KindOperator }

type operatorOptions struct {
	config *OperatorConfig
	spec   *Specification
}

// OperatorOption configures NewOperator.
type OperatorOption func(*operatorOptions)

// WithConfig creates the operator with a non-default configuration. A nil
// config is ignored.
func WithConfig(c *OperatorConfig) OperatorOption {
	return func(o *operatorOptions) { o.config = c }
}

// WithSpecification supplies a static specification so the engine need not
// be asked for one.
func WithSpecification(spec *Specification) OperatorOption {
	return func(o *operatorOptions) { o.spec = spec }
}

// NewOperator creates an engine-side instance of the operator name.
func NewOperator(ctx context.Context, s *Server, name string, opts ...OperatorOption) (*Operator, error) {
	var o operatorOptions
	for _, opt := range opts {
		opt(&o)
	}
	params := wire.OperatorCreateParams{Name: name}
	if o.config != nil {
		params.Config = maps.Clone(o.config.options)
	}
	h, err := createObject(ctx, s, wire.OperatorCreate, params)
	if err != nil {
		return nil, fmt.Errorf("creating operator %q: %w", name, err)
	}
	h.server.logger.Debug("operator created", "operator", name, "id", h.id)
	return &Operator{handle: h, name: name, spec: o.spec}, nil
}

// Name returns the engine name of the operator.
func (op *Operator) Name() string { return op.name }

// ID returns the engine-side object id.
func (op *Operator) ID() int64 { return op.id }

// Specification returns the operator's pin layout, asking the engine the
// first time when none was supplied at construction.
func (op *Operator) Specification(ctx context.Context) (*Specification, error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.spec != nil {
		return op.spec, nil
	}
	spec, err := FetchSpecification(ctx, op.server, op.name)
	if err != nil {
		return nil, err
	}
	op.spec = spec
	return spec, nil
}

// FetchSpecification asks the engine for the specification of an operator.
func FetchSpecification(ctx context.Context, s *Server, name string) (*Specification, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	raw, err := vgirpc.Call[wire.OperatorSpec](ctx, s.client, wire.OperatorSpecification, wire.OperatorNameParams{Name: name})
	if err != nil {
		return nil, fmt.Errorf("specification of %q: %w", name, err)
	}
	return specFromWire(raw), nil
}

// ListOperators returns the names of all operators the engine provides.
func ListOperators(ctx context.Context, s *Server) ([]string, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	names, err := vgirpc.Call[[]string](ctx, s.client, wire.OperatorList, struct{}{})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Connect connects value to input pin. value may be an engine object, an
// *Output or *Operator of another operator, a number, a string, a bool, or
// a slice of numbers.
func (op *Operator) Connect(ctx context.Context, pin int, value any) error {
	spec, err := op.Specification(ctx)
	if err != nil {
		return err
	}
	ps, ok := spec.InputPin(pin)
	if !ok {
		return fmt.Errorf("%w: %s has no input pin %d", ErrUnknownPin, op.name, pin)
	}
	pv, types, err := encodePinValue(ctx, value)
	if err != nil {
		return fmt.Errorf("%s pin %d (%s): %w", op.name, pin, ps.Name, err)
	}
	pv, ok = promote(ps, pv, types)
	if !ok {
		return fmt.Errorf("%w: %s pin %d (%s) accepts %v, got %v",
			ErrPinType, op.name, pin, ps.Name, ps.TypeNames, types)
	}
	if err := vgirpc.CallVoid(ctx, op.client(), wire.OperatorConnect,
		wire.ConnectParams{OperatorID: op.id, Pin: int64(pin), Value: pv}); err != nil {
		return fmt.Errorf("connecting %s pin %d: %w", op.name, pin, err)
	}
	op.server.logger.Debug("operator input connected", "operator", op.name, "pin", pin, "kind", pv.Kind)
	return nil
}

// promote picks the first of the value's candidate type names the pin
// accepts, converting integers for double pins.
func promote(ps PinSpecification, pv wire.PinValue, types []string) (wire.PinValue, bool) {
	for _, t := range types {
		if !ps.Accepts(t) {
			continue
		}
		switch {
		case t == wire.KindInt32 && !slices.Contains(ps.TypeNames, wire.KindInt32) && !slices.Contains(ps.TypeNames, TypeAny):
			d := float64(pv.Ints[0])
			return wire.PinValue{Kind: wire.KindDouble, Double: &d}, true
		case t == wire.KindVectorInt32 && !slices.Contains(ps.TypeNames, wire.KindVectorInt32) && !slices.Contains(ps.TypeNames, TypeAny):
			ds := make([]float64, len(pv.Ints))
			for i, v := range pv.Ints {
				ds[i] = float64(v)
			}
			return wire.PinValue{Kind: wire.KindVectorDouble, Doubles: ds}, true
		}
		return pv, true
	}
	return pv, false
}

// Disconnect removes whatever is connected to input pin.
func (op *Operator) Disconnect(ctx context.Context, pin int) error {
	spec, err := op.Specification(ctx)
	if err != nil {
		return err
	}
	if _, ok := spec.InputPin(pin); !ok {
		return fmt.Errorf("%w: %s has no input pin %d", ErrUnknownPin, op.name, pin)
	}
	return vgirpc.CallVoid(ctx, op.client(), wire.OperatorDisconnect,
		wire.PinParams{OperatorID: op.id, Pin: int64(pin)})
}

// Run evaluates the operator. Operators without outputs, such as
// exporters, only do their work when run.
func (op *Operator) Run(ctx context.Context) error {
	op.server.logger.Debug("operator run", "operator", op.name)
	return vgirpc.CallVoid(ctx, op.client(), wire.OperatorRun, op.params())
}

// GetOutput evaluates the operator and returns output pin as typeName. An
// empty typeName uses the pin's first declared type.
func (op *Operator) GetOutput(ctx context.Context, pin int, typeName string) (any, error) {
	spec, err := op.Specification(ctx)
	if err != nil {
		return nil, err
	}
	ps, ok := spec.OutputPin(pin)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no output pin %d", ErrUnknownPin, op.name, pin)
	}
	if typeName == "" {
		if len(ps.TypeNames) == 0 {
			return nil, fmt.Errorf("%w: %s output pin %d has no type", ErrPinType, op.name, pin)
		}
		typeName = ps.TypeNames[0]
	} else if !ps.Accepts(typeName) {
		return nil, fmt.Errorf("%w: %s output pin %d (%s) is %v, not %s",
			ErrPinType, op.name, pin, ps.Name, ps.TypeNames, typeName)
	}
	pv, err := vgirpc.Call[wire.PinValue](ctx, op.client(), wire.OperatorGetOutput,
		wire.GetOutputParams{OperatorID: op.id, Pin: int64(pin), TypeName: typeName})
	if err != nil {
		return nil, fmt.Errorf("output %d of %s: %w", pin, op.name, err)
	}
	v, err := decodePinValue(op.server, pv)
	if err != nil {
		return nil, fmt.Errorf("output %d of %s: %w", pin, op.name, err)
	}
	return v, nil
}

// OperatorConfig holds an operator's string-valued options.
type OperatorConfig struct {
	operator string
	options  map[string]string
}

// DefaultOperatorConfig fetches the engine's default configuration for the
// operator name.
func DefaultOperatorConfig(ctx context.Context, s *Server, name string) (*OperatorConfig, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	opts, err := vgirpc.Call[map[string]string](ctx, s.client, wire.OperatorDefaultConfig, wire.OperatorNameParams{Name: name})
	if err != nil {
		return nil, fmt.Errorf("default config of %q: %w", name, err)
	}
	if opts == nil {
		opts = map[string]string{}
	}
	return &OperatorConfig{operator: name, options: opts}, nil
}

// Operator returns the name of the operator the configuration belongs to.
func (c *OperatorConfig) Operator() string { return c.operator }

// Set sets option name, formatting value with fmt.
func (c *OperatorConfig) Set(name string, value any) {
	if c.options == nil {
		c.options = map[string]string{}
	}
	c.options[name] = fmt.Sprint(value)
}

// Get returns option name.
func (c *OperatorConfig) Get(name string) (string, bool) {
	v, ok := c.options[name]
	return v, ok
}

// Options returns the option names in sorted order.
func (c *OperatorConfig) Options() []string {
	return slices.Sorted(maps.Keys(c.options))
}
