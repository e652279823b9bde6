// Package shell models the desktop-shell host the broker instruments.
//
// The host owns outputs (display adapters), workspace sets and views. Core
// is a signal provider for core-wide signals; every Output is a provider for
// its own output-scoped signals and doubles as a scope.Scope. Outputs can be
// added and removed at runtime; removing one notifies scope observers and
// then closes its signal provider, detaching every hook attached to it.
//
// All methods must be called from the host's event loop.
package shell
