package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/shellwatch/internal/signal"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

func TestCoreOutputLifecycle(t *testing.T) {
	core := NewCore()
	var created, destroyed []int
	remove := core.AddScopeObserver(scope.ObserverFuncs{
		Created:   func(s scope.Scope) { created = append(created, s.ScopeID()) },
		Destroyed: func(s scope.Scope) { destroyed = append(destroyed, s.ScopeID()) },
	})

	a := core.AddOutput("DP-1", Geometry{Width: 1920, Height: 1080})
	b := core.AddOutput("", Geometry{X: 1920, Width: 1280, Height: 1024})
	assert.Equal(t, []int{a.ID(), b.ID()}, created)
	assert.Equal(t, "OUT-2", b.Name())
	assert.Len(t, core.Scopes(), 2)
	assert.Same(t, a, core.FocusedOutput())

	hooked := 0
	conn := signal.NewConnection(func(*ViewMinimizedSignal) { hooked++ })
	signal.Connect(b, conn)

	require.NoError(t, core.RemoveOutput(b.ID()))
	assert.Equal(t, []int{b.ID()}, destroyed)
	assert.True(t, b.Destroyed())
	assert.True(t, b.Closed())
	assert.False(t, conn.Connected(), "closing the output detaches its connections")
	assert.Len(t, core.Scopes(), 1)

	err := core.RemoveOutput(b.ID())
	assert.True(t, errors.Is(err, ErrNoSuchOutput))

	remove()
	core.AddOutput("DP-3", Geometry{})
	assert.Len(t, created, 2, "removed observer is not notified")
}

func TestRemovingFocusedOutputMovesFocus(t *testing.T) {
	core := NewCore()
	a := core.AddOutput("DP-1", Geometry{})
	b := core.AddOutput("DP-2", Geometry{})

	var gained []*Output
	signal.Connect(core, signal.NewConnection(func(ev *OutputGainFocusSignal) { gained = append(gained, ev.Output) }))

	require.NoError(t, core.RemoveOutput(a.ID()))
	assert.Same(t, b, core.FocusedOutput())
	assert.Equal(t, []*Output{b}, gained)
}

func TestDescriptionsUseMinusOneForMissingObjects(t *testing.T) {
	core := NewCore()
	o := core.AddOutput("DP-1", Geometry{Width: 100, Height: 100})
	v, err := core.MapView("foot", "shell", o.ID(), Geometry{Width: 10, Height: 10})
	require.NoError(t, err)

	desc := v.Describe()
	assert.Equal(t, o.ID(), desc["output-id"])
	assert.Equal(t, "DP-1", desc["output-name"])
	assert.Equal(t, o.WorkspaceSet().ID(), desc["wset-index"])

	require.NoError(t, core.RemoveOutput(o.ID()))
	desc = v.Describe()
	assert.Equal(t, -1, desc["output-id"])
	assert.Equal(t, "", desc["output-name"])
	assert.Nil(t, v.Output())

	assert.Nil(t, DescribeView(nil))
	assert.Nil(t, DescribeOutput(nil))
	assert.Nil(t, DescribeWorkspaceSet(nil))
	assert.Equal(t, -1, OutputID(nil))
	assert.Equal(t, -1, WorkspaceSetID(nil))
}

func TestViewSignals(t *testing.T) {
	core := NewCore()
	o := core.AddOutput("DP-1", Geometry{Width: 1920, Height: 1080})

	var events []string
	signal.Connect(core, signal.NewConnection(func(*ViewMappedSignal) { events = append(events, "mapped") }))
	signal.Connect(core, signal.NewConnection(func(*ViewTitleChangedSignal) { events = append(events, "title") }))
	signal.Connect(core, signal.NewConnection(func(*ViewAppIDChangedSignal) { events = append(events, "app-id") }))
	signal.Connect(core, signal.NewConnection(func(ev *ViewGeometryChangedSignal) {
		events = append(events, "geometry")
		assert.Equal(t, Geometry{Width: 10, Height: 10}, ev.OldGeometry)
	}))
	signal.Connect(core, signal.NewConnection(func(ev *KeyboardFocusChangedSignal) {
		if ev.View == nil {
			events = append(events, "unfocused")
			return
		}
		events = append(events, "focused")
	}))
	signal.Connect(core, signal.NewConnection(func(*ViewUnmappedSignal) { events = append(events, "unmapped") }))
	signal.Connect(o, signal.NewConnection(func(*ViewMinimizedSignal) { events = append(events, "minimized") }))
	signal.Connect(o, signal.NewConnection(func(*ViewFullscreenSignal) { events = append(events, "fullscreen") }))
	signal.Connect(o, signal.NewConnection(func(*ViewSetStickySignal) { events = append(events, "sticky") }))
	signal.Connect(o, signal.NewConnection(func(ev *ViewTiledSignal) {
		events = append(events, "tiled")
		assert.Equal(t, uint32(0), ev.OldEdges)
		assert.Equal(t, EdgesAll, ev.NewEdges)
	}))

	v, err := core.MapView("foot", "shell", o.ID(), Geometry{Width: 10, Height: 10})
	require.NoError(t, err)
	require.NoError(t, core.SetTitle(v.ID(), "vim"))
	require.NoError(t, core.SetTitle(v.ID(), "vim"))
	require.NoError(t, core.SetAppID(v.ID(), "kitty"))
	require.NoError(t, core.SetGeometry(v.ID(), Geometry{Width: 20, Height: 20}))
	require.NoError(t, core.FocusView(v.ID()))
	require.NoError(t, core.SetMinimized(v.ID(), true))
	require.NoError(t, core.SetFullscreen(v.ID(), true))
	require.NoError(t, core.SetSticky(v.ID(), true))
	require.NoError(t, core.SetTiledEdges(v.ID(), 0xff))
	require.NoError(t, core.UnmapView(v.ID()))

	assert.Equal(t, []string{
		"mapped", "title", "app-id", "geometry", "focused",
		"minimized", "fullscreen", "sticky", "tiled",
		"unmapped", "unfocused",
	}, events)

	_, err = core.View(v.ID())
	assert.True(t, errors.Is(err, ErrNoSuchView))
	assert.Nil(t, core.FocusedView())
}

func TestMoveViewToOutput(t *testing.T) {
	core := NewCore()
	a := core.AddOutput("DP-1", Geometry{})
	b := core.AddOutput("DP-2", Geometry{})
	v, err := core.MapView("foot", "", a.ID(), Geometry{})
	require.NoError(t, err)

	var order []string
	var previous *Output
	signal.Connect(core, signal.NewConnection(func(ev *ViewMovedToWsetSignal) {
		order = append(order, "wset")
		assert.Same(t, a.WorkspaceSet(), ev.OldWset)
		assert.Same(t, b.WorkspaceSet(), ev.NewWset)
	}))
	signal.Connect(core, signal.NewConnection(func(ev *ViewSetOutputSignal) {
		order = append(order, "output")
		previous = ev.Previous
	}))

	require.NoError(t, core.MoveViewToOutput(v.ID(), b.ID()))
	assert.Equal(t, []string{"wset", "output"}, order)
	assert.Same(t, a, previous)
	assert.Same(t, b, v.Output())

	require.NoError(t, core.MoveViewToOutput(v.ID(), b.ID()))
	assert.Len(t, order, 2, "moving to the same output is a no-op")
}

func TestWorkspaces(t *testing.T) {
	core := NewCore()
	o := core.AddOutput("DP-1", Geometry{})
	v, err := core.MapView("foot", "", o.ID(), Geometry{})
	require.NoError(t, err)

	var changes []WorkspaceChangedSignal
	var viewMoves []ViewChangeWorkspaceSignal
	signal.Connect(o, signal.NewConnection(func(ev *WorkspaceChangedSignal) { changes = append(changes, *ev) }))
	signal.Connect(o, signal.NewConnection(func(ev *ViewChangeWorkspaceSignal) { viewMoves = append(viewMoves, *ev) }))

	require.NoError(t, core.SetWorkspace(o.ID(), Point{X: 1, Y: 2}))
	require.Len(t, changes, 1)
	assert.Equal(t, Point{}, changes[0].OldViewport)
	assert.Equal(t, Point{X: 1, Y: 2}, changes[0].NewViewport)

	err = core.SetWorkspace(o.ID(), Point{X: 3})
	assert.True(t, errors.Is(err, ErrInvalidWorkspace))

	require.NoError(t, core.MoveViewToWorkspace(v.ID(), Point{X: 2, Y: 2}))
	require.Len(t, viewMoves, 1)
	assert.Equal(t, Point{X: 2, Y: 2}, viewMoves[0].To)
	assert.Equal(t, Point{X: 2, Y: 2}, v.Workspace())
}

func TestSetWorkspaceSet(t *testing.T) {
	core := NewCore()
	a := core.AddOutput("DP-1", Geometry{})
	b := core.AddOutput("DP-2", Geometry{})
	spare := core.CreateWorkspaceSet("spare", Point{X: 2, Y: 1})
	oldWset := a.WorkspaceSet()

	var got *WorkspaceSet
	signal.Connect(a, signal.NewConnection(func(ev *WorkspaceSetChangedSignal) { got = ev.NewWset }))

	require.NoError(t, core.SetWorkspaceSet(a.ID(), spare.ID()))
	assert.Same(t, spare, got)
	assert.Same(t, a, spare.Output())
	assert.Nil(t, oldWset.Output())

	err := core.SetWorkspaceSet(a.ID(), b.WorkspaceSet().ID())
	assert.True(t, errors.Is(err, ErrWorkspaceSetInUse))

	err = core.SetWorkspaceSet(a.ID(), 99)
	assert.True(t, errors.Is(err, ErrNoSuchWorkspaceSet))
}

func TestOutputScopedMutationsNeedAnOutput(t *testing.T) {
	core := NewCore()
	o := core.AddOutput("DP-1", Geometry{})
	v, err := core.MapView("foot", "", o.ID(), Geometry{})
	require.NoError(t, err)
	require.NoError(t, core.RemoveOutput(o.ID()))

	err = core.SetMinimized(v.ID(), true)
	assert.True(t, errors.Is(err, ErrViewNotOnOutput))
	assert.False(t, v.Minimized())
}

func TestPluginActivation(t *testing.T) {
	core := NewCore()
	o := core.AddOutput("DP-1", Geometry{})

	var got []PluginActivationChangedSignal
	signal.Connect(core, signal.NewConnection(func(ev *PluginActivationChangedSignal) { got = append(got, *ev) }))

	require.NoError(t, core.SetPluginActivated("expo", o.ID(), true))
	require.NoError(t, core.SetPluginActivated("scale", -1, false))
	assert.True(t, errors.Is(core.SetPluginActivated("expo", 42, true), ErrNoSuchOutput))

	require.Len(t, got, 2)
	assert.Same(t, o, got[0].Output)
	assert.True(t, got[0].Activated)
	assert.Nil(t, got[1].Output)
}

func TestGeometryFromMap(t *testing.T) {
	g, err := GeometryFromMap(map[string]any{"x": 1.0, "y": 2.0, "width": 30.0, "height": 40.0})
	require.NoError(t, err)
	assert.Equal(t, Geometry{X: 1, Y: 2, Width: 30, Height: 40}, g)

	_, err = GeometryFromMap(map[string]any{"x": 1.0, "y": 2.0, "width": 30.0})
	assert.Error(t, err)

	_, err = GeometryFromMap(map[string]any{"x": 1.5, "y": 2.0, "width": 30.0, "height": 40.0})
	assert.Error(t, err)

	_, err = GeometryFromMap(map[string]any{"x": "1", "y": 2.0, "width": 30.0, "height": 40.0})
	assert.Error(t, err)

	_, err = GeometryFromMap(map[string]any{"x": 0.0, "y": 0.0, "width": -1.0, "height": 40.0})
	assert.Error(t, err)
}
