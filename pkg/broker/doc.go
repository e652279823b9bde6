// Package broker provides interfaces for the event subscription and broadcast broker.
//
// This package defines the core abstractions the rest of the host talks to:
//   - Broker: subscribe (watch), disconnect, publish, introspection
//   - Publisher: the narrow publish-only view handed to record builders
//   - WatchRequest: a parsed subscribe request
//   - Response: the structured {"status": ...} reply sent to clients
//
// The broker is created once at host startup and its handle is passed to
// every component that publishes or manages scopes. All of its methods must
// be called from the host's event loop goroutine.
//
// Architecture:
//  1. A client sends a watch request with an optional topic list
//  2. The broker resolves the list against the topic registry
//  3. Each resulting topic's activation count is increased; the first
//     subscriber of a topic attaches the hooks that produce it
//  4. Hooks build records and call Publish
//  5. Publish delivers each record to every subscriber whose set matches
//  6. On disconnect every count the client held is released; the last
//     subscriber of a topic detaches its hooks
//
// Example usage:
//
//	req, err := broker.ParseWatchRequest(data)
//	if err != nil {
//		return broker.Error(err.Error())
//	}
//	if _, err := b.Watch(conn, req); err != nil {
//		return broker.Error(err.Error())
//	}
//	return broker.OK()
package broker
