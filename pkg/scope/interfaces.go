package scope

// Scope represents a live resource unit topics can be hooked into
type Scope interface {
	// ScopeID returns the stable identifier of this scope
	ScopeID() int

	// Describe returns a serializable description of the scope
	Describe() map[string]any
}

// Lister enumerates live scopes
type Lister interface {
	// Scopes returns every scope that is currently live
	Scopes() []Scope
}

// Observer is notified about scope lifecycle changes.
// ScopeCreated is called after the scope is live; ScopeDestroyed is called
// before its teardown completes.
type Observer interface {
	ScopeCreated(s Scope)
	ScopeDestroyed(s Scope)
}

// ObserverFuncs adapts a pair of functions to the Observer interface.
// Nil functions are ignored.
type ObserverFuncs struct {
	Created   func(s Scope)
	Destroyed func(s Scope)
}

// ScopeCreated calls Created if set
func (o ObserverFuncs) ScopeCreated(s Scope) {
	if o.Created != nil {
		o.Created(s)
	}
}

// ScopeDestroyed calls Destroyed if set
func (o ObserverFuncs) ScopeDestroyed(s Scope) {
	if o.Destroyed != nil {
		o.Destroyed(s)
	}
}

// Verify that ObserverFuncs implements Observer at compile time
var _ Observer = ObserverFuncs{}
