// Package params describes the parameter surface of the analysis engine.
//
// The catalog is declarative: every analysis method and its typed
// parameters are defined at build time (catalog.go) rather than derived
// by runtime introspection. The HTTP layer publishes descriptors, and
// the engine adapter validates values against them before invocation.
package params

// ParamType is the declared type of a parameter value.
type ParamType string

// Supported parameter types.
const (
	TypeStr   ParamType = "str"
	TypeInt   ParamType = "int"
	TypeFloat ParamType = "float"
	TypeBool  ParamType = "bool"
	TypeFile  ParamType = "file"
)

// Descriptor describes one parameter of the analysis engine: its name,
// declared type, list-ness, whether it is required, its default, and a
// human-readable description.
type Descriptor struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	IsList      bool      `json:"is_list"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// DescriptorSet is the published schema of one method: the engine-level
// (global) parameters plus the method-specific ones.
type DescriptorSet struct {
	GlobalParams         []Descriptor `json:"global_params"`
	MethodSpecificParams []Descriptor `json:"method_specific_params"`
}
