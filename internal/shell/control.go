package shell

import (
	"errors"
	"fmt"
)

// Command actions accepted by Apply
const (
	ActionAddOutput       = "add-output"
	ActionRemoveOutput    = "remove-output"
	ActionFocusOutput     = "focus-output"
	ActionMapView         = "map-view"
	ActionUnmapView       = "unmap-view"
	ActionFocusView       = "focus-view"
	ActionSetTitle        = "set-title"
	ActionSetAppID        = "set-app-id"
	ActionSetGeometry     = "set-geometry"
	ActionMoveToOutput    = "move-to-output"
	ActionMinimize        = "minimize"
	ActionFullscreen      = "fullscreen"
	ActionSticky          = "sticky"
	ActionTile            = "tile"
	ActionMoveToWorkspace = "move-to-workspace"
	ActionSetWorkspace    = "set-workspace"
	ActionCreateWset      = "create-wset"
	ActionSetWset         = "set-wset"
	ActionPlugin          = "plugin-activation"
)

var (
	ErrUnknownAction = errors.New("unknown shell action")
	ErrMissingField  = errors.New("missing command field")
)

// Command is a request to mutate the host, decoded from the admin API
type Command struct {
	Action    string    `json:"action"`
	View      *int      `json:"view,omitempty"`
	Output    *int      `json:"output,omitempty"`
	Wset      *int      `json:"wset,omitempty"`
	Name      string    `json:"name,omitempty"`
	Title     string    `json:"title,omitempty"`
	AppID     string    `json:"appId,omitempty"`
	Plugin    string    `json:"plugin,omitempty"`
	Geometry  *Geometry `json:"geometry,omitempty"`
	Workspace *Point    `json:"workspace,omitempty"`
	Grid      *Point    `json:"grid,omitempty"`
	Edges     *uint32   `json:"edges,omitempty"`
	Enabled   *bool     `json:"enabled,omitempty"`
}

// Apply executes cmd against the host and returns a description of the
// object it affected.
func (c *Core) Apply(cmd Command) (map[string]any, error) {
	switch cmd.Action {
	case ActionAddOutput:
		o := c.AddOutput(cmd.Name, geometryOr(cmd.Geometry, Geometry{Width: 1920, Height: 1080}))
		return o.Describe(), nil

	case ActionRemoveOutput:
		id, err := requireField(cmd.Output, "output")
		if err != nil {
			return nil, err
		}
		if err := c.RemoveOutput(id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case ActionFocusOutput:
		return c.outputCommand(cmd, c.FocusOutput)

	case ActionMapView:
		id, err := requireField(cmd.Output, "output")
		if err != nil {
			return nil, err
		}
		v, err := c.MapView(cmd.AppID, cmd.Title, id, geometryOr(cmd.Geometry, Geometry{Width: 640, Height: 480}))
		if err != nil {
			return nil, err
		}
		return v.Describe(), nil

	case ActionUnmapView:
		id, err := requireField(cmd.View, "view")
		if err != nil {
			return nil, err
		}
		if err := c.UnmapView(id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case ActionFocusView:
		return c.viewCommand(cmd, c.FocusView)

	case ActionSetTitle:
		return c.viewCommand(cmd, func(id int) error { return c.SetTitle(id, cmd.Title) })

	case ActionSetAppID:
		return c.viewCommand(cmd, func(id int) error { return c.SetAppID(id, cmd.AppID) })

	case ActionSetGeometry:
		if cmd.Geometry == nil {
			return nil, fmt.Errorf("%w: geometry", ErrMissingField)
		}
		return c.viewCommand(cmd, func(id int) error { return c.SetGeometry(id, *cmd.Geometry) })

	case ActionMoveToOutput:
		output, err := requireField(cmd.Output, "output")
		if err != nil {
			return nil, err
		}
		return c.viewCommand(cmd, func(id int) error { return c.MoveViewToOutput(id, output) })

	case ActionMinimize:
		return c.viewCommand(cmd, func(id int) error { return c.SetMinimized(id, enabled(cmd.Enabled)) })

	case ActionFullscreen:
		return c.viewCommand(cmd, func(id int) error { return c.SetFullscreen(id, enabled(cmd.Enabled)) })

	case ActionSticky:
		return c.viewCommand(cmd, func(id int) error { return c.SetSticky(id, enabled(cmd.Enabled)) })

	case ActionTile:
		edges := EdgesAll
		if cmd.Edges != nil {
			edges = *cmd.Edges
		}
		return c.viewCommand(cmd, func(id int) error { return c.SetTiledEdges(id, edges) })

	case ActionMoveToWorkspace:
		if cmd.Workspace == nil {
			return nil, fmt.Errorf("%w: workspace", ErrMissingField)
		}
		return c.viewCommand(cmd, func(id int) error { return c.MoveViewToWorkspace(id, *cmd.Workspace) })

	case ActionSetWorkspace:
		if cmd.Workspace == nil {
			return nil, fmt.Errorf("%w: workspace", ErrMissingField)
		}
		return c.outputCommand(cmd, func(id int) error { return c.SetWorkspace(id, *cmd.Workspace) })

	case ActionCreateWset:
		grid := DefaultGrid
		if cmd.Grid != nil {
			grid = *cmd.Grid
		}
		return c.CreateWorkspaceSet(cmd.Name, grid).Describe(), nil

	case ActionSetWset:
		wset, err := requireField(cmd.Wset, "wset")
		if err != nil {
			return nil, err
		}
		return c.outputCommand(cmd, func(id int) error { return c.SetWorkspaceSet(id, wset) })

	case ActionPlugin:
		if cmd.Plugin == "" {
			return nil, fmt.Errorf("%w: plugin", ErrMissingField)
		}
		output := -1
		if cmd.Output != nil {
			output = *cmd.Output
		}
		if err := c.SetPluginActivated(cmd.Plugin, output, enabled(cmd.Enabled)); err != nil {
			return nil, err
		}
		return map[string]any{"plugin": cmd.Plugin, "active": enabled(cmd.Enabled), "output-id": output}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

func (c *Core) viewCommand(cmd Command, fn func(id int) error) (map[string]any, error) {
	id, err := requireField(cmd.View, "view")
	if err != nil {
		return nil, err
	}
	if err := fn(id); err != nil {
		return nil, err
	}
	v, err := c.View(id)
	if err != nil {
		return nil, err
	}
	return v.Describe(), nil
}

func (c *Core) outputCommand(cmd Command, fn func(id int) error) (map[string]any, error) {
	id, err := requireField(cmd.Output, "output")
	if err != nil {
		return nil, err
	}
	if err := fn(id); err != nil {
		return nil, err
	}
	o, err := c.Output(id)
	if err != nil {
		return nil, err
	}
	return o.Describe(), nil
}

func requireField(v *int, name string) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return *v, nil
}

func geometryOr(g *Geometry, fallback Geometry) Geometry {
	if g == nil {
		return fallback
	}
	return *g
}

// enabled treats an absent flag as true
func enabled(b *bool) bool {
	return b == nil || *b
}
