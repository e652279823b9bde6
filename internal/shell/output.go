package shell

import (
	"github.com/rmacdonaldsmith/shellwatch/internal/signal"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

// Output is a display adapter. It is the scope output-scoped topics hook into.
type Output struct {
	signal.Provider

	id        int
	name      string
	geometry  Geometry
	wset      *WorkspaceSet
	destroyed bool
}

// ID returns the stable output id
func (o *Output) ID() int {
	return o.id
}

// ScopeID returns the output id
func (o *Output) ScopeID() int {
	return o.id
}

// Name returns the connector name, e.g. "DP-1"
func (o *Output) Name() string {
	return o.name
}

// Geometry returns the output's layout rectangle
func (o *Output) Geometry() Geometry {
	return o.geometry
}

// WorkspaceSet returns the workspace set shown on the output
func (o *Output) WorkspaceSet() *WorkspaceSet {
	return o.wset
}

// Destroyed reports whether the output has been removed
func (o *Output) Destroyed() bool {
	return o.destroyed
}

// Describe returns the JSON description of the output
func (o *Output) Describe() map[string]any {
	desc := map[string]any{
		"id":         o.id,
		"name":       o.name,
		"geometry":   o.geometry.Describe(),
		"wset-index": -1,
	}
	if o.wset != nil {
		desc["wset-index"] = o.wset.id
		desc["workspace"] = o.wset.workspaceDescription()
	}
	return desc
}

// DescribeOutput describes o, or returns nil for a nil output
func DescribeOutput(o *Output) any {
	if o == nil {
		return nil
	}
	return o.Describe()
}

// OutputID returns the id of o, or -1 for a nil output
func OutputID(o *Output) int {
	if o == nil {
		return -1
	}
	return o.id
}

// Verify that Output implements scope.Scope at compile time
var _ scope.Scope = (*Output)(nil)
