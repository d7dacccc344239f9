// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package opgen

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"
)

// Header marks generated files.
const Header = "// Code generated by dpf-opgen. DO NOT EDIT."

// goTypes maps engine type names to the Go type an output is returned as.
var goTypes = map[string]string{
	"field":                  "*dpf.Field",
	"fields_container":       "*dpf.FieldsContainer",
	"scoping":                "*dpf.Scoping",
	"abstract_meshed_region": "*dpf.MeshedRegion",
	"time_freq_support":      "*dpf.TimeFreqSupport",
	"data_sources":           "*dpf.DataSources",
	"double":                 "float64",
	"int32":                  "int",
	"vector<int32>":          "[]int",
	"vector<double>":         "[]float64",
	"string":                 "string",
	"bool":                   "bool",
}

type inputView struct {
	Pin      int
	Name     string
	Field    string
	Types    []string
	Optional bool
	Document string
	Ellipsis int
}

type accessorView struct {
	Method string
	GoType string
}

type outputView struct {
	Pin       int
	Name      string
	Var       string
	Types     []string
	Document  string
	Accessors []accessorView
}

type operatorView struct {
	Name        string
	Type        string
	Category    string
	Description string
	Inputs      []inputView
	Outputs     []outputView
}

func view(op Operator) operatorView {
	v := operatorView{
		Name:        op.Name,
		Type:        op.Type,
		Category:    op.Category,
		Description: strings.Join(strings.Fields(op.Description), " "),
	}
	for _, p := range op.Inputs {
		v.Inputs = append(v.Inputs, inputView{
			Pin:      p.Pin,
			Name:     p.Name,
			Field:    p.fieldName(),
			Types:    p.Types,
			Optional: p.Optional,
			Document: strings.Join(strings.Fields(p.Document), " "),
			Ellipsis: p.ellipsisIndex(),
		})
	}
	for _, p := range op.Outputs {
		o := outputView{
			Pin:      p.Pin,
			Name:     p.Name,
			Var:      identifier(p.Name, false),
			Types:    p.Types,
			Document: strings.Join(strings.Fields(p.Document), " "),
		}
		method := identifier(p.Name, true)
		for _, t := range p.Types {
			gt, ok := goTypes[t]
			if !ok {
				continue
			}
			m := method
			if len(p.Types) > 1 {
				m += "As" + identifier(t, true)
			}
			o.Accessors = append(o.Accessors, accessorView{Method: m, GoType: gt})
		}
		v.Outputs = append(v.Outputs, o)
	}
	return v
}

var funcs = template.FuncMap{
	"quote": strconv.Quote,
	"quoteList": func(ss []string) string {
		q := make([]string, len(ss))
		for i, s := range ss {
			q[i] = strconv.Quote(s)
		}
		return strings.Join(q, ", ")
	},
	"join": strings.Join,
}

var operatorTemplate = template.Must(template.New("operator").Funcs(funcs).Parse(`{{/* one binding */ -}}
` + Header + `

package {{.Category}}

import (
	"context"

	"github.com/Query-farm/vgi-dpf/dpf"
)

// {{.Type}} wraps the {{quote .Name}} operator.
{{- if .Description}}
//
// {{.Description}}
{{- end}}
type {{.Type}} struct {
	*dpf.Operator
	Inputs  {{.Type}}Inputs
	Outputs {{.Type}}Outputs
}

// {{.Type}}Args are the inputs connected by New{{.Type}}. Nil fields are
// left unconnected.
type {{.Type}}Args struct {
{{- range .Inputs}}
	// {{.Field}} is pin {{.Pin}}{{if .Optional}} (optional){{end}}: {{join .Types ", "}}.{{if .Document}} {{.Document}}{{end}}
	{{.Field}} any
{{- end}}
	Config *dpf.OperatorConfig
}

// {{.Type}}Inputs are the operator's input pins.
type {{.Type}}Inputs struct {
{{- range .Inputs}}
	{{.Field}} *dpf.Input
{{- end}}
}

// {{.Type}}Outputs evaluate the operator when read.
type {{.Type}}Outputs struct {
{{- range .Outputs}}
	{{.Var}} *dpf.Output
{{- end}}
}
{{range $o := .Outputs}}{{range .Accessors}}
// {{.Method}} returns output pin {{$o.Pin}}.
func (o {{$.Type}}Outputs) {{.Method}}(ctx context.Context) ({{.GoType}}, error) {
	return dpf.OutputAs[{{.GoType}}](ctx, o.{{$o.Var}})
}
{{end}}{{end}}
// New{{.Type}} creates the operator and connects the non-nil args. A nil
// server means the global server. The operator is released again when an
// arg cannot be connected.
func New{{.Type}}(ctx context.Context, s *dpf.Server, args {{.Type}}Args) (*{{.Type}}, error) {
	spec := {{.Type}}Spec()
	op, err := dpf.NewOperator(ctx, s, {{quote .Name}}, dpf.WithConfig(args.Config), dpf.WithSpecification(spec))
	if err != nil {
		return nil, err
	}
	b := &{{.Type}}{
		Operator: op,
		Inputs: {{.Type}}Inputs{
{{- range .Inputs}}
			{{.Field}}: dpf.NewInput(op, spec.Inputs[{{.Pin}}], {{.Pin}}, {{.Ellipsis}}),
{{- end}}
		},
{{- if .Outputs}}
		Outputs: {{.Type}}Outputs{
{{- range .Outputs}}
			{{.Var}}: dpf.NewOutput(op, spec.Outputs[{{.Pin}}], {{.Pin}}),
{{- end}}
		},
{{- else}}
		Outputs: {{.Type}}Outputs{},
{{- end}}
	}
	err = dpf.ConnectArgs(ctx, []dpf.Arg{
{{- range .Inputs}}
		{Input: b.Inputs.{{.Field}}, Value: args.{{.Field}}},
{{- end}}
	})
	if err != nil {
		_ = op.Release(ctx)
		return nil, err
	}
	return b, nil
}

// {{.Type}}Spec returns the pin layout of {{quote .Name}}.
func {{.Type}}Spec() *dpf.Specification {
	return &dpf.Specification{
		Description: {{quote .Description}},
		Inputs: map[int]dpf.PinSpecification{
{{- range .Inputs}}
			{{.Pin}}: {Name: {{quote .Name}}, TypeNames: []string{ {{- quoteList .Types -}} }, Optional: {{.Optional}}, Document: {{quote .Document}}, Ellipsis: {{ge .Ellipsis 0}}},
{{- end}}
		},
{{- if .Outputs}}
		Outputs: map[int]dpf.PinSpecification{
{{- range .Outputs}}
			{{.Pin}}: {Name: {{quote .Name}}, TypeNames: []string{ {{- quoteList .Types -}} }, Document: {{quote .Document}}},
{{- end}}
		},
{{- else}}
		Outputs: map[int]dpf.PinSpecification{},
{{- end}}
	}
}

// {{.Type}}DefaultConfig fetches the engine's default configuration of
// {{quote .Name}}.
func {{.Type}}DefaultConfig(ctx context.Context, s *dpf.Server) (*dpf.OperatorConfig, error) {
	return dpf.DefaultOperatorConfig(ctx, s, {{quote .Name}})
}
`))

var docTemplate = template.Must(template.New("doc").Parse(Header + `

// Package {{.}} holds generated bindings for the {{.}} operators.
package {{.}}
`))

// Render returns the gofmt'ed binding source for op.
func Render(op Operator) ([]byte, error) {
	var buf bytes.Buffer
	if err := operatorTemplate.Execute(&buf, view(op)); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", op.Name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w\n%s", op.Name, err, buf.Bytes())
	}
	return src, nil
}

// RenderDoc returns the package doc file of a category.
func RenderDoc(category string) ([]byte, error) {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, category); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}

// Generate writes one file per operator into outDir/<category>/ plus a
// doc.go per category, and returns the written paths sorted.
func Generate(cat *Catalog, outDir string) ([]string, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	var written []string
	categories := map[string]bool{}
	write := func(path string, src []byte) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, src, 0o644); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}
	for _, op := range cat.Operators {
		src, err := Render(op)
		if err != nil {
			return nil, err
		}
		file := op.File
		if file == "" {
			file = snake(op.Type)
		}
		if err := write(filepath.Join(outDir, op.Category, file+".go"), src); err != nil {
			return nil, err
		}
		categories[op.Category] = true
	}
	for c := range categories {
		src, err := RenderDoc(c)
		if err != nil {
			return nil, err
		}
		if err := write(filepath.Join(outDir, c, "doc.go"), src); err != nil {
			return nil, err
		}
	}
	slices.Sort(written)
	return written, nil
}
