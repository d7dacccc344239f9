// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package opgen renders typed operator bindings from a YAML catalog of
// operator specifications.
package opgen

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Query-farm/vgi-dpf/dpf"
)

// Catalog is the list of operators to generate bindings for.
type Catalog struct {
	Operators []Operator `yaml:"operators"`
}

// Operator is one catalog entry.
type Operator struct {
	// Name is the engine's operator name, e.g. "levelset::make_sphere".
	Name string `yaml:"name"`
	// Type is the Go type name of the binding.
	Type string `yaml:"type"`
	// Category is the Go package the binding lives in.
	Category string `yaml:"category"`
	// File is the generated file name without extension.
	File        string `yaml:"file"`
	Description string `yaml:"description"`
	Inputs      []Pin  `yaml:"inputs"`
	Outputs     []Pin  `yaml:"outputs,omitempty"`
}

// Pin is one operator pin.
type Pin struct {
	Pin      int      `yaml:"pin"`
	Name     string   `yaml:"name"`
	Alias    string   `yaml:"alias,omitempty"`
	Ellipsis *int     `yaml:"ellipsis,omitempty"`
	Types    []string `yaml:"types,flow"`
	Optional bool     `yaml:"optional,omitempty"`
	Document string   `yaml:"document,omitempty"`
}

// LoadCatalog reads and validates a catalog file. Unknown keys are errors.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cat, nil
}

// Write encodes the catalog as YAML.
func (c *Catalog) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks names, pin numbering and Go identifiers.
func (c *Catalog) Validate() error {
	var errs []error
	types := map[string]bool{}
	for i, op := range c.Operators {
		where := fmt.Sprintf("operator %d (%s)", i, op.Name)
		switch {
		case op.Name == "":
			errs = append(errs, fmt.Errorf("%s: missing name", where))
		case !token.IsIdentifier(op.Type) || !token.IsExported(op.Type):
			errs = append(errs, fmt.Errorf("%s: type %q is not an exported Go identifier", where, op.Type))
		case !token.IsIdentifier(op.Category) || strings.ToLower(op.Category) != op.Category:
			errs = append(errs, fmt.Errorf("%s: category %q is not a package name", where, op.Category))
		}
		key := op.Category + "." + op.Type
		if types[key] {
			errs = append(errs, fmt.Errorf("%s: duplicate type %s", where, key))
		}
		types[key] = true
		errs = append(errs, checkPins(where+" input", op.Inputs)...)
		errs = append(errs, checkPins(where+" output", op.Outputs)...)
	}
	return errors.Join(errs...)
}

func checkPins(where string, pins []Pin) []error {
	var errs []error
	seen := map[int]bool{}
	fields := map[string]bool{}
	for _, p := range pins {
		if seen[p.Pin] {
			errs = append(errs, fmt.Errorf("%s: pin %d declared twice", where, p.Pin))
		}
		seen[p.Pin] = true
		if p.Name == "" || len(p.Types) == 0 {
			errs = append(errs, fmt.Errorf("%s: pin %d needs a name and types", where, p.Pin))
		}
		for _, t := range p.Types {
			if _, ok := goTypes[t]; !ok && t != dpf.TypeAny {
				errs = append(errs, fmt.Errorf("%s: pin %d: unknown type %q", where, p.Pin, t))
			}
		}
		f := p.fieldName()
		if fields[f] {
			errs = append(errs, fmt.Errorf("%s: pin %d: field name %s clashes (set an alias)", where, p.Pin, f))
		}
		fields[f] = true
	}
	return errs
}

// FromSpecification builds a catalog entry from a live specification.
// Category and type are derived from the name: "levelset::make_sphere"
// becomes levelset.MakeSphere; names without a namespace go to "misc".
func FromSpecification(name string, spec *dpf.Specification) Operator {
	category, base := "misc", name
	if ns, rest, ok := strings.Cut(name, "::"); ok {
		category, base = strings.ToLower(identifier(ns, false)), rest
	}
	op := Operator{
		Name:        name,
		Type:        identifier(base, true),
		Category:    category,
		File:        snake(base),
		Description: spec.Description,
	}
	op.Inputs = pinsFromSpec(spec.Inputs, spec.InputPins())
	op.Outputs = pinsFromSpec(spec.Outputs, spec.OutputPins())
	return op
}

func pinsFromSpec(m map[int]dpf.PinSpecification, order []int) []Pin {
	var pins []Pin
	groups := map[string]int{}
	for _, n := range order {
		ps := m[n]
		p := Pin{
			Pin:      n,
			Name:     ps.Name,
			Types:    slices.Clone(ps.TypeNames),
			Optional: ps.Optional,
			Document: ps.Document,
		}
		if ps.Ellipsis {
			idx := groups[ps.Name]
			groups[ps.Name]++
			p.Ellipsis = &idx
			p.Alias = fmt.Sprintf("%s%d", ps.Name, idx+1)
		}
		pins = append(pins, p)
	}
	return pins
}

// fieldName is the Go field name of the pin in Args and Inputs.
func (p Pin) fieldName() string {
	if p.Alias != "" {
		return identifier(p.Alias, true)
	}
	return identifier(p.Name, true)
}

// ellipsisIndex is the pin's index in its repeated group, or -1.
func (p Pin) ellipsisIndex() int {
	if p.Ellipsis == nil {
		return -1
	}
	return *p.Ellipsis
}

// identifier turns a snake_case or namespaced name into a Go identifier.
func identifier(s string, exported bool) string {
	var b strings.Builder
	upper := exported
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			if b.Len() == 0 && r >= '0' && r <= '9' {
				b.WriteString("Pin")
			}
			if upper && r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = b.Len() > 0 || exported
		}
	}
	out := b.String()
	if !exported && token.IsKeyword(out) {
		out += "_"
	}
	return out
}

func snake(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
			b.WriteByte('_')
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
