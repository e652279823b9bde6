// Package subscription provides interfaces for subscriber-to-topic routing.
//
// This package defines the core abstractions for the subscription table:
//   - Subscriber: an external connection that can receive records
//   - Entry: one subscriber with the set of topic names it asked for
//   - Table: the mapping from subscribers to topic sets
//
// An empty topic set is a wildcard: the subscriber receives every record
// regardless of topic. A subscription request without a topic list is not
// stored as empty; it is expanded to a snapshot of every topic known at
// subscribe time.
//
// Implementations are confined to the host's event loop and need no locking.
//
// Example usage:
//
//	previous, existed := table.Set(conn, []string{"view-mapped"})
//	for _, sub := range table.Match("view-mapped") {
//		sub.Send(rec)
//	}
//	topics, ok := table.Remove(conn.ID())
package subscription
