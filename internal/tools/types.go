// Package tools provides the capability framework: named, schema-described
// actions the model may request during a tool-calling loop.
package tools

// Definition describes a capability for LLM function calling.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  ParamSchema `json:"parameters"`
}

// ParamSchema is the JSON Schema for a capability's arguments.
type ParamSchema struct {
	Type       string           `json:"type"`
	Properties map[string]*Prop `json:"properties,omitempty"`
	Required   []string         `json:"required,omitempty"`
}

// Prop defines a single argument property.
type Prop struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Result is the outcome of one capability dispatch. Failures are results,
// not errors: the model sees the failure text and reacts to it.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// Ok builds a successful result.
func Ok(content string) *Result {
	return &Result{Success: true, Content: content}
}

// Fail builds a failed result carrying the failure description.
func Fail(content string) *Result {
	return &Result{Success: false, Content: content}
}
