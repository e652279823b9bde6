package shell

// WorkspaceSet is a grid of workspaces, shown on at most one output
type WorkspaceSet struct {
	id      int
	name    string
	grid    Point
	current Point
	output  *Output
}

// ID returns the stable workspace set index
func (w *WorkspaceSet) ID() int {
	return w.id
}

// Name returns the workspace set name
func (w *WorkspaceSet) Name() string {
	return w.name
}

// Output returns the output the set is shown on, nil if detached
func (w *WorkspaceSet) Output() *Output {
	return w.output
}

// Grid returns the grid size as columns (X) and rows (Y)
func (w *WorkspaceSet) Grid() Point {
	return w.grid
}

// Current returns the current workspace
func (w *WorkspaceSet) Current() Point {
	return w.current
}

// Contains reports whether ws lies inside the grid
func (w *WorkspaceSet) Contains(ws Point) bool {
	return ws.X >= 0 && ws.Y >= 0 && ws.X < w.grid.X && ws.Y < w.grid.Y
}

func (w *WorkspaceSet) workspaceDescription() map[string]any {
	return map[string]any{
		"x":           w.current.X,
		"y":           w.current.Y,
		"grid_width":  w.grid.X,
		"grid_height": w.grid.Y,
	}
}

// Describe returns the JSON description of the workspace set
func (w *WorkspaceSet) Describe() map[string]any {
	desc := map[string]any{
		"index":       w.id,
		"name":        w.name,
		"output-id":   OutputID(w.output),
		"output-name": "",
		"workspace":   w.workspaceDescription(),
	}
	if w.output != nil {
		desc["output-name"] = w.output.name
	}
	return desc
}

// DescribeWorkspaceSet describes w, or returns nil for a nil set
func DescribeWorkspaceSet(w *WorkspaceSet) any {
	if w == nil {
		return nil
	}
	return w.Describe()
}

// WorkspaceSetID returns the index of w, or -1 for a nil set
func WorkspaceSetID(w *WorkspaceSet) int {
	if w == nil {
		return -1
	}
	return w.id
}
