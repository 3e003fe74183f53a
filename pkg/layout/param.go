package layout

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/matzehuels/forcelayout/pkg/force"
	"github.com/matzehuels/forcelayout/pkg/graph"
)

type paramKind uint8

const (
	paramConstant paramKind = iota
	paramAttribute
	paramFunc
)

// Param is a force constant: a plain number, a linear rule over a numeric
// element attribute, or an arbitrary pure function of the attributes.
// Params are resolved once per run when the graph snapshot is taken.
//
// The zero Param is the constant 0.
type Param struct {
	kind  paramKind
	value float64
	rule  AttributeRule
	fn    func(graph.Attributes) float64
}

// AttributeRule derives a value as attr*Scale + Offset, falling back to
// Default when the attribute is missing or not numeric. Decoded rules
// default Scale to 1.
type AttributeRule struct {
	Attribute string  `json:"attribute" toml:"attribute"`
	Scale     float64 `json:"scale" toml:"scale"`
	Offset    float64 `json:"offset" toml:"offset"`
	Default   float64 `json:"default" toml:"default"`
}

// Constant returns a Param with a fixed value.
func Constant(v float64) Param { return Param{kind: paramConstant, value: v} }

// AttributeOr returns a Param computed from a numeric attribute.
func AttributeOr(attribute string, scale, offset, def float64) Param {
	return Param{kind: paramAttribute, rule: AttributeRule{Attribute: attribute, Scale: scale, Offset: offset, Default: def}}
}

// FromAttributes wraps fn. fn must be pure; it is called once per element
// per run.
func FromAttributes(fn func(graph.Attributes) float64) Param {
	if fn == nil {
		return Constant(0)
	}
	return Param{kind: paramFunc, fn: fn}
}

// IsConstant reports whether p ignores element attributes.
func (p Param) IsConstant() bool { return p.kind == paramConstant }

// Value returns the constant value, or NaN for non-constant params.
func (p Param) Value() float64 {
	if p.kind != paramConstant {
		return math.NaN()
	}
	return p.value
}

// Rule returns the attribute rule and whether p is one.
func (p Param) Rule() (AttributeRule, bool) { return p.rule, p.kind == paramAttribute }

// Func returns the resolver handed to the force model.
func (p Param) Func() force.Func {
	switch p.kind {
	case paramAttribute:
		r := p.rule
		return func(a graph.Attributes) float64 {
			v, ok := a.Float(r.Attribute)
			if !ok {
				return r.Default
			}
			return v*r.Scale + r.Offset
		}
	case paramFunc:
		return p.fn
	default:
		return force.Const(p.value)
	}
}

// Fingerprint returns a stable textual form of p. Function params have
// none; the second result is false for them.
func (p Param) Fingerprint() (string, bool) {
	switch p.kind {
	case paramAttribute:
		r := p.rule
		return fmt.Sprintf("attr(%s*%g+%g|%g)", strconv.Quote(r.Attribute), r.Scale, r.Offset, r.Default), true
	case paramFunc:
		return "", false
	default:
		return strconv.FormatFloat(p.value, 'g', -1, 64), true
	}
}

// String implements fmt.Stringer.
func (p Param) String() string {
	if fp, ok := p.Fingerprint(); ok {
		return fp
	}
	return "func"
}

// MarshalJSON encodes constants as numbers and rules as objects. Function
// params cannot be encoded.
func (p Param) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case paramAttribute:
		return json.Marshal(p.rule)
	case paramFunc:
		return nil, fmt.Errorf("function param cannot be encoded")
	default:
		return json.Marshal(p.value)
	}
}

// UnmarshalJSON accepts a number or an attribute rule object.
func (p *Param) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*p = Constant(v)
		return nil
	}
	r := AttributeRule{Scale: 1}
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("param must be a number or {attribute, scale, offset, default}: %w", err)
	}
	if r.Attribute == "" {
		return fmt.Errorf("param rule needs an attribute")
	}
	*p = AttributeOr(r.Attribute, r.Scale, r.Offset, r.Default)
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler. It accepts a number or a
// table with attribute, scale, offset and default keys.
func (p *Param) UnmarshalTOML(data any) error {
	if v, ok := tomlNumber(data); ok {
		*p = Constant(v)
		return nil
	}
	tbl, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("param must be a number or a table, got %T", data)
	}
	attr, _ := tbl["attribute"].(string)
	if attr == "" {
		return fmt.Errorf("param table needs an attribute")
	}
	r := AttributeRule{Attribute: attr, Scale: 1}
	for key, dst := range map[string]*float64{"scale": &r.Scale, "offset": &r.Offset, "default": &r.Default} {
		raw, present := tbl[key]
		if !present {
			continue
		}
		v, ok := tomlNumber(raw)
		if !ok {
			return fmt.Errorf("param %s must be a number, got %T", key, raw)
		}
		*dst = v
	}
	for key := range tbl {
		switch key {
		case "attribute", "scale", "offset", "default":
		default:
			return fmt.Errorf("unknown param key %q", key)
		}
	}
	*p = AttributeOr(r.Attribute, r.Scale, r.Offset, r.Default)
	return nil
}

func tomlNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
