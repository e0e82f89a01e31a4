// Package tool contains domain types for the per-session tool catalogue.
package tool

import (
	"encoding/json"
)

// Descriptor describes one callable tool offered by a provider.
// Names are unique within a session's catalogue.
type Descriptor struct {
	// Name is the unique identifier for this tool (required).
	Name string `json:"name"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// InputSchema is the JSON Schema fragment for the tool's arguments.
	InputSchema json.RawMessage `json:"inputSchema"`

	// Capabilities optionally tags the tool with capability names.
	Capabilities []string `json:"capabilities,omitempty"`

	// Metadata carries opaque provider-defined annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CloneList returns a defensive copy of a descriptor list. Callers of the
// relay always read snapshots; only the session's provider mutates the
// catalogue, and it does so wholesale.
func CloneList(tools []Descriptor) []Descriptor {
	if tools == nil {
		return nil
	}
	out := make([]Descriptor, len(tools))
	copy(out, tools)
	return out
}

// Names returns the tool names in catalogue order.
func Names(tools []Descriptor) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
