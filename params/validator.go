package params

import (
	"fmt"
	"math"
	"strconv"
)

// Scope selects which descriptors a validator checks.
type Scope int

// Validator scopes.
const (
	ScopeAll Scope = iota
	ScopeFiles
	ScopeNonFiles
)

// Validator is a table-driven check over one method's parameter values.
// It enforces required/optional, coerces values to the declared type,
// accepts lists where is_list, and rejects unrecognized keys.
type Validator struct {
	descriptors []Descriptor
	scope       Scope
}

// NewValidator builds a validator over the given descriptors.
func NewValidator(descriptors []Descriptor, scope Scope) *Validator {
	return &Validator{descriptors: descriptors, scope: scope}
}

// MethodValidator builds a validator for the method-specific parameters
// of the named method. Returns an error for an unknown method.
func MethodValidator(methodName string, scope Scope) (*Validator, error) {
	m := FindMethod(methodName)
	if m == nil {
		return nil, fmt.Errorf("unknown analysis method %q", methodName)
	}
	return NewValidator(m.Params, scope), nil
}

// GlobalValidator builds a validator for the engine-level parameters.
func GlobalValidator(scope Scope) *Validator {
	return NewValidator(globalDescriptors, scope)
}

func (v *Validator) inScope(d Descriptor) bool {
	switch v.scope {
	case ScopeFiles:
		return d.Type == TypeFile
	case ScopeNonFiles:
		return d.Type != TypeFile
	default:
		return true
	}
}

func (v *Validator) inScopeByName() map[string]Descriptor {
	byName := make(map[string]Descriptor, len(v.descriptors))
	for _, d := range v.descriptors {
		if v.inScope(d) {
			byName[d.Name] = d
		}
	}
	return byName
}

// ValidateSupplied checks only the supplied keys: each must name an
// in-scope descriptor and coerce to its declared type. Nothing is
// back-filled, so the result is safe to merge over previously stored
// values without disturbing keys the caller did not send.
func (v *Validator) ValidateSupplied(values map[string]any) (map[string]any, error) {
	byName := v.inScopeByName()
	out := make(map[string]any, len(values))
	for name, raw := range values {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unrecognized parameter %q", name)
		}
		coerced, err := d.Coerce(raw)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

// Validate checks values against the descriptor table and returns the
// coerced value map. Keys not covered by any in-scope descriptor are
// rejected; missing values fall back to their declared default, and a
// missing required value without one is an error.
func (v *Validator) Validate(values map[string]any) (map[string]any, error) {
	byName := v.inScopeByName()

	out := make(map[string]any, len(values))
	for name, raw := range values {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unrecognized parameter %q", name)
		}
		coerced, err := d.Coerce(raw)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}

	for name, d := range byName {
		if val, ok := out[name]; ok && val != nil {
			continue
		}
		if d.Default != nil {
			out[name] = d.Default
			continue
		}
		if d.Required {
			return nil, fmt.Errorf("missing required parameter %q", name)
		}
	}
	return out, nil
}

// Coerce converts raw into the declared type of d, accepting a list
// when d.IsList and wrapping a bare scalar into a one-element list.
func (d Descriptor) Coerce(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if d.IsList {
		items, ok := raw.([]any)
		if !ok {
			// Accept a bare scalar for a list parameter.
			items = []any{raw}
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			coerced, err := coerceScalar(d, item)
			if err != nil {
				return nil, err
			}
			out = append(out, coerced)
		}
		return out, nil
	}
	return coerceScalar(d, raw)
}

func coerceScalar(d Descriptor, raw any) (any, error) {
	switch d.Type {
	case TypeStr, TypeFile:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q: expected string, got %T", d.Name, raw)
		}
		return s, nil

	case TypeInt:
		switch val := raw.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			// JSON numbers decode as float64; accept integral values only.
			if val != math.Trunc(val) {
				return nil, fmt.Errorf("parameter %q: expected integer, got %v", d.Name, val)
			}
			return int(val), nil
		case string:
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: expected integer, got %q", d.Name, val)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("parameter %q: expected integer, got %T", d.Name, raw)
		}

	case TypeFloat:
		switch val := raw.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		case string:
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: expected float, got %q", d.Name, val)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("parameter %q: expected float, got %T", d.Name, raw)
		}

	case TypeBool:
		switch val := raw.(type) {
		case bool:
			return val, nil
		case string:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: expected bool, got %q", d.Name, val)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("parameter %q: expected bool, got %T", d.Name, raw)
		}
	}
	return nil, fmt.Errorf("parameter %q: unsupported type %q", d.Name, d.Type)
}
