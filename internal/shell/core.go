package shell

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rmacdonaldsmith/shellwatch/internal/signal"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

var (
	ErrNoSuchView         = errors.New("no such view")
	ErrNoSuchOutput       = errors.New("no such output")
	ErrNoSuchWorkspaceSet = errors.New("no such workspace set")
	ErrWorkspaceSetInUse  = errors.New("workspace set is shown on another output")
	ErrInvalidWorkspace   = errors.New("workspace outside of the grid")
	ErrViewNotOnOutput    = errors.New("view is not on any output")
)

// DefaultGrid is the workspace grid given to workspace sets created with outputs
var DefaultGrid = Point{X: 3, Y: 3}

// Core is the shell host: the root signal provider and the owner of outputs,
// workspace sets and views.
type Core struct {
	signal.Provider

	outputs []*Output
	views   map[int]*View
	wsets   map[int]*WorkspaceSet

	nextOutputID int
	nextViewID   int
	nextWsetID   int

	focusedView   *View
	focusedOutput *Output

	observers []*observerSlot
}

type observerSlot struct {
	observer scope.Observer
}

// NewCore creates an empty host
func NewCore() *Core {
	return &Core{
		views:        make(map[int]*View),
		wsets:        make(map[int]*WorkspaceSet),
		nextOutputID: 1,
		nextViewID:   1,
		nextWsetID:   1,
	}
}

// AddScopeObserver registers o for output creation and destruction.
// The returned func removes it.
func (c *Core) AddScopeObserver(o scope.Observer) func() {
	slot := &observerSlot{observer: o}
	c.observers = append(c.observers, slot)
	return func() {
		for i, s := range c.observers {
			if s == slot {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Scopes returns every live output, in creation order
func (c *Core) Scopes() []scope.Scope {
	out := make([]scope.Scope, 0, len(c.outputs))
	for _, o := range c.outputs {
		out = append(out, o)
	}
	return out
}

// Outputs returns every live output, in creation order
func (c *Core) Outputs() []*Output {
	return append([]*Output(nil), c.outputs...)
}

// Output looks up a live output by id
func (c *Core) Output(id int) (*Output, error) {
	for _, o := range c.outputs {
		if o.id == id {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoSuchOutput, id)
}

// View looks up a view by id
func (c *Core) View(id int) (*View, error) {
	v, ok := c.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchView, id)
	}
	return v, nil
}

// Views returns every view ordered by id
func (c *Core) Views() []*View {
	views := make([]*View, 0, len(c.views))
	for _, v := range c.views {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].id < views[j].id })
	return views
}

// WorkspaceSet looks up a workspace set by index
func (c *Core) WorkspaceSet(id int) (*WorkspaceSet, error) {
	w, ok := c.wsets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchWorkspaceSet, id)
	}
	return w, nil
}

// FocusedView returns the view holding keyboard focus, nil if none
func (c *Core) FocusedView() *View {
	return c.focusedView
}

// FocusedOutput returns the focused output, nil if none
func (c *Core) FocusedOutput() *Output {
	return c.focusedOutput
}

// CreateWorkspaceSet creates a detached workspace set
func (c *Core) CreateWorkspaceSet(name string, grid Point) *WorkspaceSet {
	if grid.X <= 0 || grid.Y <= 0 {
		grid = DefaultGrid
	}
	w := &WorkspaceSet{id: c.nextWsetID, name: name, grid: grid}
	c.nextWsetID++
	if w.name == "" {
		w.name = fmt.Sprintf("wset-%d", w.id)
	}
	c.wsets[w.id] = w
	return w
}

// AddOutput creates an output with a fresh workspace set and announces it
// to scope observers.
func (c *Core) AddOutput(name string, geometry Geometry) *Output {
	o := &Output{id: c.nextOutputID, name: name, geometry: geometry}
	c.nextOutputID++
	if o.name == "" {
		o.name = fmt.Sprintf("OUT-%d", o.id)
	}

	w := c.CreateWorkspaceSet("", DefaultGrid)
	w.output = o
	o.wset = w

	c.outputs = append(c.outputs, o)
	if c.focusedOutput == nil {
		c.focusedOutput = o
	}

	for _, slot := range c.snapshotObservers() {
		slot.observer.ScopeCreated(o)
	}
	return o
}

// RemoveOutput destroys an output. Observers are told first, while the
// output is still fully described; the workspace set is then detached and
// the output's signal provider closed.
func (c *Core) RemoveOutput(id int) error {
	o, err := c.Output(id)
	if err != nil {
		return err
	}

	for _, slot := range c.snapshotObservers() {
		slot.observer.ScopeDestroyed(o)
	}

	for i, candidate := range c.outputs {
		if candidate == o {
			c.outputs = append(c.outputs[:i:i], c.outputs[i+1:]...)
			break
		}
	}

	if o.wset != nil {
		o.wset.output = nil
		o.wset = nil
	}
	o.destroyed = true
	o.Close()

	if c.focusedOutput == o {
		c.focusedOutput = nil
		if len(c.outputs) > 0 {
			c.focusedOutput = c.outputs[0]
			signal.Emit(c, &OutputGainFocusSignal{Output: c.focusedOutput})
		}
	}
	return nil
}

func (c *Core) snapshotObservers() []*observerSlot {
	return append([]*observerSlot(nil), c.observers...)
}

// MapView creates a mapped view on the given output's current workspace
func (c *Core) MapView(appID, title string, outputID int, geometry Geometry) (*View, error) {
	o, err := c.Output(outputID)
	if err != nil {
		return nil, err
	}
	v := &View{
		id:       c.nextViewID,
		appID:    appID,
		title:    title,
		geometry: geometry,
		wset:     o.wset,
		mapped:   true,
	}
	if o.wset != nil {
		v.workspace = o.wset.current
	}
	c.nextViewID++
	c.views[v.id] = v

	signal.Emit(c, &ViewMappedSignal{View: v})
	return v, nil
}

// UnmapView unmaps and forgets a view
func (c *Core) UnmapView(id int) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	v.mapped = false
	signal.Emit(c, &ViewUnmappedSignal{View: v})
	delete(c.views, id)

	if c.focusedView == v {
		v.activated = false
		c.focusedView = nil
		signal.Emit(c, &KeyboardFocusChangedSignal{})
	}
	return nil
}

// FocusView gives keyboard focus to a view
func (c *Core) FocusView(id int) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	if c.focusedView == v {
		return nil
	}
	if c.focusedView != nil {
		c.focusedView.activated = false
	}
	v.activated = true
	c.focusedView = v
	signal.Emit(c, &KeyboardFocusChangedSignal{View: v})

	if o := v.Output(); o != nil && o != c.focusedOutput {
		c.focusedOutput = o
		signal.Emit(c, &OutputGainFocusSignal{Output: o})
	}
	return nil
}

// FocusOutput makes an output the focused one
func (c *Core) FocusOutput(id int) error {
	o, err := c.Output(id)
	if err != nil {
		return err
	}
	if c.focusedOutput == o {
		return nil
	}
	c.focusedOutput = o
	signal.Emit(c, &OutputGainFocusSignal{Output: o})
	return nil
}

// SetTitle changes a view's title
func (c *Core) SetTitle(id int, title string) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	if v.title == title {
		return nil
	}
	v.title = title
	signal.Emit(c, &ViewTitleChangedSignal{View: v})
	return nil
}

// SetAppID changes a view's app-id
func (c *Core) SetAppID(id int, appID string) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	if v.appID == appID {
		return nil
	}
	v.appID = appID
	signal.Emit(c, &ViewAppIDChangedSignal{View: v})
	return nil
}

// SetGeometry moves or resizes a view
func (c *Core) SetGeometry(id int, geometry Geometry) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	if v.geometry == geometry {
		return nil
	}
	old := v.geometry
	v.geometry = geometry
	signal.Emit(c, &ViewGeometryChangedSignal{View: v, OldGeometry: old})
	return nil
}

// MoveViewToOutput moves a view onto the workspace set of another output
func (c *Core) MoveViewToOutput(id, outputID int) error {
	v, err := c.View(id)
	if err != nil {
		return err
	}
	o, err := c.Output(outputID)
	if err != nil {
		return err
	}
	previous := v.Output()
	if previous == o {
		return nil
	}

	oldWset := v.wset
	v.wset = o.wset
	if o.wset != nil && !o.wset.Contains(v.workspace) {
		v.workspace = o.wset.current
	}

	signal.Emit(c, &ViewMovedToWsetSignal{View: v, OldWset: oldWset, NewWset: v.wset})
	signal.Emit(c, &ViewSetOutputSignal{View: v, Previous: previous})
	return nil
}

// SetPluginActivated records a plugin grabbing or releasing an output.
// outputID -1 means no particular output.
func (c *Core) SetPluginActivated(plugin string, outputID int, activated bool) error {
	var o *Output
	if outputID >= 0 {
		var err error
		if o, err = c.Output(outputID); err != nil {
			return err
		}
	}
	signal.Emit(c, &PluginActivationChangedSignal{Plugin: plugin, Activated: activated, Output: o})
	return nil
}

// viewOnOutput resolves a view that must currently be shown on an output
func (c *Core) viewOnOutput(id int) (*View, *Output, error) {
	v, err := c.View(id)
	if err != nil {
		return nil, nil, err
	}
	o := v.Output()
	if o == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrViewNotOnOutput, id)
	}
	return v, o, nil
}

// SetMinimized minimizes or restores a view
func (c *Core) SetMinimized(id int, minimized bool) error {
	v, o, err := c.viewOnOutput(id)
	if err != nil {
		return err
	}
	if v.minimized == minimized {
		return nil
	}
	v.minimized = minimized
	signal.Emit(o, &ViewMinimizedSignal{View: v})
	return nil
}

// SetFullscreen puts a view in or out of fullscreen
func (c *Core) SetFullscreen(id int, fullscreen bool) error {
	v, o, err := c.viewOnOutput(id)
	if err != nil {
		return err
	}
	if v.fullscreen == fullscreen {
		return nil
	}
	v.fullscreen = fullscreen
	signal.Emit(o, &ViewFullscreenSignal{View: v})
	return nil
}

// SetSticky changes whether a view shows on every workspace
func (c *Core) SetSticky(id int, sticky bool) error {
	v, o, err := c.viewOnOutput(id)
	if err != nil {
		return err
	}
	if v.sticky == sticky {
		return nil
	}
	v.sticky = sticky
	signal.Emit(o, &ViewSetStickySignal{View: v})
	return nil
}

// SetTiledEdges tiles a view against the given edges
func (c *Core) SetTiledEdges(id int, edges uint32) error {
	v, o, err := c.viewOnOutput(id)
	if err != nil {
		return err
	}
	edges &= EdgesAll
	if v.tiledEdges == edges {
		return nil
	}
	old := v.tiledEdges
	v.tiledEdges = edges
	signal.Emit(o, &ViewTiledSignal{View: v, OldEdges: old, NewEdges: edges})
	return nil
}

// MoveViewToWorkspace moves a view to another workspace of its set
func (c *Core) MoveViewToWorkspace(id int, ws Point) error {
	v, o, err := c.viewOnOutput(id)
	if err != nil {
		return err
	}
	if !v.wset.Contains(ws) {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidWorkspace, ws.X, ws.Y)
	}
	if v.workspace == ws {
		return nil
	}
	from := v.workspace
	v.workspace = ws
	signal.Emit(o, &ViewChangeWorkspaceSignal{View: v, From: from, To: ws})
	return nil
}

// SetWorkspace switches the current workspace of an output
func (c *Core) SetWorkspace(outputID int, ws Point) error {
	o, err := c.Output(outputID)
	if err != nil {
		return err
	}
	if o.wset == nil || !o.wset.Contains(ws) {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidWorkspace, ws.X, ws.Y)
	}
	if o.wset.current == ws {
		return nil
	}
	old := o.wset.current
	o.wset.current = ws
	signal.Emit(o, &WorkspaceChangedSignal{Output: o, OldViewport: old, NewViewport: ws})
	return nil
}

// SetWorkspaceSet shows another workspace set on an output. The previous
// set is detached and keeps its views.
func (c *Core) SetWorkspaceSet(outputID, wsetID int) error {
	o, err := c.Output(outputID)
	if err != nil {
		return err
	}
	w, err := c.WorkspaceSet(wsetID)
	if err != nil {
		return err
	}
	if o.wset == w {
		return nil
	}
	if w.output != nil {
		return fmt.Errorf("%w: %d", ErrWorkspaceSetInUse, wsetID)
	}
	if o.wset != nil {
		o.wset.output = nil
	}
	w.output = o
	o.wset = w
	signal.Emit(o, &WorkspaceSetChangedSignal{Output: o, NewWset: w})
	return nil
}
