// Package shellevents binds the shell host's signals to broker topics.
//
// Every topic owns one signal connection whose callback turns the signal
// into a record and publishes it. Core topics connect that connection to the
// Core; output topics connect it to every output the topic is activated on.
// Disconnecting the connection detaches it from all providers at once.
package shellevents

import (
	"github.com/rmacdonaldsmith/shellwatch/internal/shell"
	"github.com/rmacdonaldsmith/shellwatch/internal/signal"
	"github.com/rmacdonaldsmith/shellwatch/internal/topics"
	"github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

// Topic names
const (
	ViewMapped              = "view-mapped"
	ViewUnmapped            = "view-unmapped"
	ViewSetOutput           = "view-set-output"
	ViewGeometryChanged     = "view-geometry-changed"
	ViewWsetChanged         = "view-wset-changed"
	ViewFocused             = "view-focused"
	ViewTitleChanged        = "view-title-changed"
	ViewAppIDChanged        = "view-app-id-changed"
	PluginActivationChanged = "plugin-activation-state-changed"
	OutputGainFocus         = "output-gain-focus"

	ViewTiled            = "view-tiled"
	ViewMinimized        = "view-minimized"
	ViewFullscreen       = "view-fullscreen"
	ViewSticky           = "view-sticky"
	ViewWorkspaceChanged = "view-workspace-changed"
	OutputWsetChanged    = "output-wset-changed"
	WsetWorkspaceChanged = "wset-workspace-changed"
)

// Catalogue produces the shell topic set
type Catalogue struct {
	core      *shell.Core
	publisher broker.Publisher
}

// NewCatalogue creates a catalogue for the given host. The publisher may be
// nil until SetPublisher is called; records built before then are dropped.
func NewCatalogue(core *shell.Core, publisher broker.Publisher) *Catalogue {
	return &Catalogue{core: core, publisher: publisher}
}

// SetPublisher sets where records are published
func (c *Catalogue) SetPublisher(p broker.Publisher) {
	c.publisher = p
}

func (c *Catalogue) publish(event string, fields map[string]any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(record.NewWithFields(event, fields))
}

// Topics returns a fresh set of topics with their own connections
func (c *Catalogue) Topics() []topics.Topic {
	return []topics.Topic{
		coreTopic(c, ViewMapped, func(ev *shell.ViewMappedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		coreTopic(c, ViewUnmapped, func(ev *shell.ViewUnmappedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		coreTopic(c, ViewSetOutput, func(ev *shell.ViewSetOutputSignal) map[string]any {
			return map[string]any{
				"output": shell.DescribeOutput(ev.Previous),
				"view":   shell.DescribeView(ev.View),
			}
		}),
		coreTopic(c, ViewGeometryChanged, func(ev *shell.ViewGeometryChangedSignal) map[string]any {
			return map[string]any{
				"old-geometry": ev.OldGeometry.Describe(),
				"view":         shell.DescribeView(ev.View),
			}
		}),
		coreTopic(c, ViewWsetChanged, func(ev *shell.ViewMovedToWsetSignal) map[string]any {
			return map[string]any{
				"old-wset": shell.DescribeWorkspaceSet(ev.OldWset),
				"new-wset": shell.DescribeWorkspaceSet(ev.NewWset),
				"view":     shell.DescribeView(ev.View),
			}
		}),
		coreTopic(c, ViewFocused, func(ev *shell.KeyboardFocusChangedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		coreTopic(c, ViewTitleChanged, func(ev *shell.ViewTitleChangedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		coreTopic(c, ViewAppIDChanged, func(ev *shell.ViewAppIDChangedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		coreTopic(c, PluginActivationChanged, func(ev *shell.PluginActivationChangedSignal) map[string]any {
			return map[string]any{
				"plugin":      ev.Plugin,
				"state":       ev.Activated,
				"output":      shell.OutputID(ev.Output),
				"output-data": shell.DescribeOutput(ev.Output),
			}
		}),
		coreTopic(c, OutputGainFocus, func(ev *shell.OutputGainFocusSignal) map[string]any {
			return map[string]any{"output": shell.DescribeOutput(ev.Output)}
		}),

		outputTopic(c, ViewTiled, func(ev *shell.ViewTiledSignal) map[string]any {
			return map[string]any{
				"old-edges": ev.OldEdges,
				"new-edges": ev.NewEdges,
				"view":      shell.DescribeView(ev.View),
			}
		}),
		outputTopic(c, ViewMinimized, func(ev *shell.ViewMinimizedSignal) map[string]any {
			return viewFields(ev.View)
		}),
		outputTopic(c, ViewFullscreen, func(ev *shell.ViewFullscreenSignal) map[string]any {
			return viewFields(ev.View)
		}),
		outputTopic(c, ViewSticky, func(ev *shell.ViewSetStickySignal) map[string]any {
			return viewFields(ev.View)
		}),
		outputTopic(c, ViewWorkspaceChanged, func(ev *shell.ViewChangeWorkspaceSignal) map[string]any {
			return map[string]any{
				"from": ev.From.Describe(),
				"to":   ev.To.Describe(),
				"view": shell.DescribeView(ev.View),
			}
		}),
		outputTopic(c, OutputWsetChanged, func(ev *shell.WorkspaceSetChangedSignal) map[string]any {
			return map[string]any{
				"new-wset":      shell.WorkspaceSetID(ev.NewWset),
				"output":        shell.OutputID(ev.Output),
				"new-wset-data": shell.DescribeWorkspaceSet(ev.NewWset),
				"output-data":   shell.DescribeOutput(ev.Output),
			}
		}),
		outputTopic(c, WsetWorkspaceChanged, func(ev *shell.WorkspaceChangedSignal) map[string]any {
			var wset *shell.WorkspaceSet
			if ev.Output != nil {
				wset = ev.Output.WorkspaceSet()
			}
			return map[string]any{
				"previous-workspace": ev.OldViewport.Describe(),
				"new-workspace":      ev.NewViewport.Describe(),
				"output":             shell.OutputID(ev.Output),
				"wset":               shell.WorkspaceSetID(wset),
				"output-data":        shell.DescribeOutput(ev.Output),
				"wset-data":          shell.DescribeWorkspaceSet(wset),
			}
		}),
	}
}

func viewFields(v *shell.View) map[string]any {
	return map[string]any{"view": shell.DescribeView(v)}
}

// coreTopic hooks a signal emitted on the Core
func coreTopic[T any](c *Catalogue, name string, build func(*T) map[string]any) topics.Topic {
	conn := signal.NewConnection(func(ev *T) {
		c.publish(name, build(ev))
	})
	return topics.Topic{
		Name:         name,
		ActivateCore: func() { signal.Connect(c.core, conn) },
		Deactivate:   conn.Disconnect,
	}
}

// outputTopic hooks a signal emitted on each Output
func outputTopic[T any](c *Catalogue, name string, build func(*T) map[string]any) topics.Topic {
	conn := signal.NewConnection(func(ev *T) {
		c.publish(name, build(ev))
	})
	return topics.Topic{
		Name: name,
		ActivateScope: func(s scope.Scope) {
			if o, ok := s.(*shell.Output); ok && !o.Destroyed() {
				signal.Connect(o, conn)
			}
		},
		Deactivate: conn.Disconnect,
	}
}
