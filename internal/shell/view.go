package shell

// View is a toplevel window
type View struct {
	id         int
	appID      string
	title      string
	geometry   Geometry
	wset       *WorkspaceSet
	workspace  Point
	mapped     bool
	minimized  bool
	fullscreen bool
	sticky     bool
	activated  bool
	tiledEdges uint32
}

// ID returns the stable view id
func (v *View) ID() int {
	return v.id
}

// AppID returns the application id
func (v *View) AppID() string {
	return v.appID
}

// Title returns the window title
func (v *View) Title() string {
	return v.title
}

// Geometry returns the view's layout rectangle
func (v *View) Geometry() Geometry {
	return v.geometry
}

// WorkspaceSet returns the set the view belongs to
func (v *View) WorkspaceSet() *WorkspaceSet {
	return v.wset
}

// Output returns the output the view is shown on, nil if none
func (v *View) Output() *Output {
	if v.wset == nil {
		return nil
	}
	return v.wset.output
}

// Workspace returns the workspace the view is on
func (v *View) Workspace() Point {
	return v.workspace
}

// Mapped reports whether the view is visible
func (v *View) Mapped() bool {
	return v.mapped
}

// Minimized reports whether the view is minimized
func (v *View) Minimized() bool {
	return v.minimized
}

// Fullscreen reports whether the view is fullscreen
func (v *View) Fullscreen() bool {
	return v.fullscreen
}

// Sticky reports whether the view is shown on every workspace
func (v *View) Sticky() bool {
	return v.sticky
}

// Activated reports whether the view has keyboard focus
func (v *View) Activated() bool {
	return v.activated
}

// TiledEdges returns the tiled edge bitmask
func (v *View) TiledEdges() uint32 {
	return v.tiledEdges
}

// Describe returns the JSON description of the view
func (v *View) Describe() map[string]any {
	output := v.Output()
	desc := map[string]any{
		"id":          v.id,
		"title":       v.title,
		"app-id":      v.appID,
		"geometry":    v.geometry.Describe(),
		"output-id":   OutputID(output),
		"output-name": "",
		"wset-index":  WorkspaceSetID(v.wset),
		"workspace":   v.workspace.Describe(),
		"mapped":      v.mapped,
		"minimized":   v.minimized,
		"fullscreen":  v.fullscreen,
		"sticky":      v.sticky,
		"activated":   v.activated,
		"tiled-edges": v.tiledEdges,
		"role":        "toplevel",
	}
	if output != nil {
		desc["output-name"] = output.name
	}
	return desc
}

// DescribeView describes v, or returns nil for a nil view
func DescribeView(v *View) any {
	if v == nil {
		return nil
	}
	return v.Describe()
}
