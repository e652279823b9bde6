package shell

// Core signals, emitted on Core.

// ViewMappedSignal is emitted when a view becomes visible
type ViewMappedSignal struct {
	View *View
}

// ViewUnmappedSignal is emitted when a view is unmapped
type ViewUnmappedSignal struct {
	View *View
}

// ViewSetOutputSignal is emitted after a view moved to another output.
// Previous is the output it left, nil if it had none.
type ViewSetOutputSignal struct {
	View     *View
	Previous *Output
}

// ViewGeometryChangedSignal is emitted after a view's geometry changed
type ViewGeometryChangedSignal struct {
	View        *View
	OldGeometry Geometry
}

// ViewMovedToWsetSignal is emitted after a view changed workspace set
type ViewMovedToWsetSignal struct {
	View    *View
	OldWset *WorkspaceSet
	NewWset *WorkspaceSet
}

// KeyboardFocusChangedSignal is emitted when keyboard focus moves.
// View is nil when nothing has focus.
type KeyboardFocusChangedSignal struct {
	View *View
}

// ViewTitleChangedSignal is emitted after a view's title changed
type ViewTitleChangedSignal struct {
	View *View
}

// ViewAppIDChangedSignal is emitted after a view's app-id changed
type ViewAppIDChangedSignal struct {
	View *View
}

// PluginActivationChangedSignal is emitted when a plugin grabs or releases an output
type PluginActivationChangedSignal struct {
	Plugin    string
	Activated bool
	Output    *Output
}

// OutputGainFocusSignal is emitted when an output becomes the focused output
type OutputGainFocusSignal struct {
	Output *Output
}

// Output signals, emitted on the Output a view lives on.

// ViewTiledSignal is emitted after a view's tiled edges changed
type ViewTiledSignal struct {
	View     *View
	OldEdges uint32
	NewEdges uint32
}

// ViewMinimizedSignal is emitted after a view was minimized or restored
type ViewMinimizedSignal struct {
	View *View
}

// ViewFullscreenSignal is emitted after a view entered or left fullscreen
type ViewFullscreenSignal struct {
	View *View
}

// ViewSetStickySignal is emitted after a view's sticky flag changed
type ViewSetStickySignal struct {
	View *View
}

// ViewChangeWorkspaceSignal is emitted after a view moved between workspaces
type ViewChangeWorkspaceSignal struct {
	View *View
	From Point
	To   Point
}

// WorkspaceSetChangedSignal is emitted after an output switched workspace set
type WorkspaceSetChangedSignal struct {
	Output  *Output
	NewWset *WorkspaceSet
}

// WorkspaceChangedSignal is emitted after an output's current workspace changed
type WorkspaceChangedSignal struct {
	Output      *Output
	OldViewport Point
	NewViewport Point
}
