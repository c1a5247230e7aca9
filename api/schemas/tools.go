// api/schemas/tools.go
package schemas

// PropertySchema describes one parameter of a tool declaration, in the
// OpenAPI-style subset the upstream accepts.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
}

// ParameterSchema is the object schema wrapping a tool's parameters.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ToolDeclaration advertises one callable tool to the model. The core only
// transports these opaquely; the capability set is produced per actuator.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}
