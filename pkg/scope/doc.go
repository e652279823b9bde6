// Package scope provides interfaces for dynamically created resource scopes.
//
// A scope is an externally owned resource unit, such as an output (display
// adapter), that some topics must be hooked into individually. Scopes can be
// created and destroyed any number of times while the host runs.
//
// This package defines:
//   - Scope: the opaque unit, identified by a stable integer id
//   - Lister: enumerates the scopes that are currently live
//   - Observer: receives scope creation and destruction notifications
//
// The broker never owns scopes. It only observes their lifecycle and, when a
// scope appears, re-applies the per-scope activation of every topic that is
// active at that moment. Teardown of a scope is assumed to be synchronous and
// total: hooks attached to it are invalidated by the scope itself.
package scope
