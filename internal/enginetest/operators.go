// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"maps"
	"slices"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/dpf/operators/geo"
	"github.com/Query-farm/vgi-dpf/dpf/operators/mesh"
	"github.com/Query-farm/vgi-dpf/dpf/operators/serialization"
	"github.com/Query-farm/vgi-dpf/dpf/operators/utility"
	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// evalFunc computes an operator's outputs from its resolved inputs. The
// caller holds mu.
type evalFunc func(e *Engine, name string, in inputs) (map[int64]wire.PinValue, error)

type operatorDef struct {
	spec wire.OperatorSpec
	eval evalFunc
}

// defaultConfig is the configuration every operator starts from.
var defaultConfig = map[string]string{
	"mutex":           "false",
	"num_threads":     "0",
	"run_in_parallel": "true",
}

func builtinOperators() map[string]operatorDef {
	return map[string]operatorDef{
		"volumes_provider":      {spec: geo.ElementsVolumesOverTimeSpec().ToWire(), eval: evalVolumes},
		"levelset::make_sphere": {spec: mesh.MakeSphereLevelsetSpec().ToWire(), eval: evalSphereLevelset},
		"extract_time_freq":     {spec: utility.ExtractTimeFreqSpec().ToWire(), eval: evalExtractTimeFreq},
		"strain_from_voigt":     {spec: utility.StrainFromVoigtSpec().ToWire(), eval: evalStrainFromVoigt},
		"serialize_to_hdf5":     {spec: serialization.SerializeToHdf5Spec().ToWire(), eval: evalSerializeToHdf5},
		"vtk_export":            {spec: serialization.VtkExportSpec().ToWire(), eval: evalVtkExport},
		"U": {
			spec: resultSpec("Read/compute nodal displacements by calling the readers defined by the datasources."),
			eval: evalResult(resultDisplacement),
		},
		"S": {
			spec: resultSpec("Read/compute element nodal component stresses by calling the readers defined by the datasources."),
			eval: evalResult(resultStress),
		},
		"MeshProvider": {
			spec: providerSpec("Read a mesh from result files.", wire.KindMeshedRegion),
			eval: evalMeshProvider,
		},
		"TimeFreqSupportProvider": {
			spec: providerSpec("Read the time freq support from result files.", wire.KindTimeFreqSupport),
			eval: evalTimeFreqProvider,
		},
	}
}

func resultSpec(description string) wire.OperatorSpec {
	return (&dpf.Specification{
		Description: description,
		Inputs: map[int]dpf.PinSpecification{
			0: {Name: "time_scoping", TypeNames: []string{wire.KindScoping, wire.KindInt32, wire.KindVectorInt32}, Optional: true,
				Document: "time/freq set ids (use ints or scoping with TimeFreq_steps location) required in output."},
			1: {Name: "mesh_scoping", TypeNames: []string{wire.KindScoping}, Optional: true,
				Document: "nodes or elements scoping required in output."},
			4: {Name: "data_sources", TypeNames: []string{wire.KindDataSources},
				Document: "result file path container."},
		},
		Outputs: map[int]dpf.PinSpecification{
			0: {Name: "fields_container", TypeNames: []string{wire.KindFieldsContainer}},
		},
	}).ToWire()
}

func providerSpec(description, output string) wire.OperatorSpec {
	return (&dpf.Specification{
		Description: description,
		Inputs: map[int]dpf.PinSpecification{
			4: {Name: "data_sources", TypeNames: []string{wire.KindDataSources}},
		},
		Outputs: map[int]dpf.PinSpecification{
			0: {Name: output, TypeNames: []string{output}},
		},
	}).ToWire()
}

func (e *Engine) operatorList(_ context.Context, _ *vgirpc.CallContext, _ struct{}) ([]string, error) {
	return slices.Sorted(maps.Keys(e.defs)), nil
}

func (e *Engine) definition(name string) (operatorDef, error) {
	def, ok := e.defs[name]
	if !ok {
		return operatorDef{}, valueError("operator %q not found", name)
	}
	return def, nil
}

func (e *Engine) operatorSpecification(_ context.Context, _ *vgirpc.CallContext, p wire.OperatorNameParams) (wire.OperatorSpec, error) {
	def, err := e.definition(p.Name)
	if err != nil {
		return wire.OperatorSpec{}, err
	}
	return def.spec, nil
}

func (e *Engine) operatorDefaultConfig(_ context.Context, _ *vgirpc.CallContext, p wire.OperatorNameParams) (map[string]string, error) {
	if _, err := e.definition(p.Name); err != nil {
		return nil, err
	}
	return maps.Clone(defaultConfig), nil
}

func (e *Engine) operatorCreate(_ context.Context, ctx *vgirpc.CallContext, p wire.OperatorCreateParams) (int64, error) {
	if _, err := e.definition(p.Name); err != nil {
		return 0, err
	}
	config := maps.Clone(defaultConfig)
	for k, v := range p.Config {
		if _, ok := config[k]; !ok {
			return 0, keyError("operator %q has no config option %q", p.Name, k)
		}
		config[k] = v
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.add(&operator{name: p.Name, config: config, inputs: map[int64]wire.PinValue{}})
	ctx.ClientLog(vgirpc.LogDebug, "operator created", vgirpc.KV{Key: "name", Value: p.Name})
	return id, nil
}

func (e *Engine) inputSpec(op *operator, pin int64) (wire.PinSpec, error) {
	for _, ps := range e.defs[op.name].spec.Inputs {
		if ps.Pin == pin {
			return ps, nil
		}
	}
	return wire.PinSpec{}, valueError("operator %q has no input pin %d", op.name, pin)
}

func (e *Engine) operatorConnect(_ context.Context, _ *vgirpc.CallContext, p wire.ConnectParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, err := lookup[*operator](e, p.OperatorID)
	if err != nil {
		return err
	}
	ps, err := e.inputSpec(op, p.Pin)
	if err != nil {
		return err
	}
	v := p.Value
	switch v.Kind {
	case wire.KindOperatorOutput:
		if v.ObjectID == nil || v.SourcePin == nil {
			return valueError("operator output without source")
		}
		if _, err := lookup[*operator](e, *v.ObjectID); err != nil {
			return err
		}
	case wire.KindDouble, wire.KindInt32, wire.KindVectorInt32, wire.KindVectorDouble, wire.KindString, wire.KindBool:
		if !accepts(ps, v.Kind) {
			return typeError("pin %d (%s) of %q accepts %v, not %s", p.Pin, ps.Name, op.name, ps.TypeNames, v.Kind)
		}
	default:
		if v.ObjectID == nil {
			return valueError("%s value without object id", v.Kind)
		}
		obj, ok := e.objects[*v.ObjectID]
		if !ok {
			return keyError("no object with id %d", *v.ObjectID)
		}
		if kindOf(obj) != v.Kind {
			return typeError("object %d is %s, not %s", *v.ObjectID, kindOf(obj), v.Kind)
		}
		if !accepts(ps, v.Kind) {
			return typeError("pin %d (%s) of %q accepts %v, not %s", p.Pin, ps.Name, op.name, ps.TypeNames, v.Kind)
		}
	}
	op.inputs[p.Pin] = v
	return nil
}

func accepts(ps wire.PinSpec, kind string) bool {
	return slices.Contains(ps.TypeNames, kind) || slices.Contains(ps.TypeNames, dpf.TypeAny)
}

func (e *Engine) operatorDisconnect(_ context.Context, _ *vgirpc.CallContext, p wire.PinParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, err := lookup[*operator](e, p.OperatorID)
	if err != nil {
		return err
	}
	if _, err := e.inputSpec(op, p.Pin); err != nil {
		return err
	}
	delete(op.inputs, p.Pin)
	return nil
}

func (e *Engine) operatorRun(_ context.Context, ctx *vgirpc.CallContext, p wire.ObjectParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	memo := map[int64]map[int64]wire.PinValue{}
	if _, err := e.evaluate(p.ID, memo, map[int64]bool{}); err != nil {
		return err
	}
	ctx.ClientLogf(vgirpc.LogDebug, "run evaluated %d operator(s)", len(memo))
	return nil
}

func (e *Engine) operatorGetOutput(_ context.Context, ctx *vgirpc.CallContext, p wire.GetOutputParams) (wire.PinValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	memo := map[int64]map[int64]wire.PinValue{}
	outs, err := e.evaluate(p.OperatorID, memo, map[int64]bool{})
	if err != nil {
		return wire.PinValue{}, err
	}
	ctx.ClientLogf(vgirpc.LogDebug, "get_output evaluated %d operator(s)", len(memo))
	v, ok := outs[p.Pin]
	if !ok {
		return wire.PinValue{}, valueError("output pin %d holds no value", p.Pin)
	}
	if p.TypeName != "" && v.Kind != p.TypeName {
		return wire.PinValue{}, typeError("output pin %d is %s, not %s", p.Pin, v.Kind, p.TypeName)
	}
	return v, nil
}

// evaluate runs operator id after resolving its chained inputs. Each
// operator is evaluated at most once per request through memo. The caller
// holds mu.
func (e *Engine) evaluate(id int64, memo map[int64]map[int64]wire.PinValue, visiting map[int64]bool) (map[int64]wire.PinValue, error) {
	if outs, ok := memo[id]; ok {
		return outs, nil
	}
	op, err := lookup[*operator](e, id)
	if err != nil {
		return nil, err
	}
	if visiting[id] {
		return nil, runtimeError("operator %q is connected in a cycle", op.name)
	}
	visiting[id] = true
	defer delete(visiting, id)

	in := inputs{e: e, values: make(map[int64]wire.PinValue, len(op.inputs)), specs: e.defs[op.name].spec.Inputs, name: op.name}
	for pin, v := range op.inputs {
		if v.Kind == wire.KindOperatorOutput {
			src, err := e.evaluate(*v.ObjectID, memo, visiting)
			if err != nil {
				return nil, err
			}
			out, ok := src[*v.SourcePin]
			if !ok {
				return nil, runtimeError("input pin %d of %q: source output pin %d holds no value", pin, op.name, *v.SourcePin)
			}
			v = out
		}
		in.values[pin] = v
	}
	outs, err := e.defs[op.name].eval(e, op.name, in)
	if err != nil {
		return nil, err
	}
	e.evals[op.name]++
	memo[id] = outs
	e.logger.Debug("operator evaluated", "name", op.name, "id", id)
	return outs, nil
}
