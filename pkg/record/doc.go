// Package record provides the structured event record delivered to subscribers.
//
// A Record is a self-describing key-value map for one event occurrence:
//   - Every record carries a mandatory "event" field holding its topic name
//   - Remaining fields are topic-specific data built by the detecting component
//   - Records are immutable once built; With returns a new record
//
// The broker only routes by Event(); it never validates or transforms the
// remaining fields. Record builders should put stable identifiers (view id,
// output id, workspace-set id) in the payload rather than transient
// references, so subscribers can correlate with later state queries.
//
// Example usage:
//
//	rec := record.New("view-title-changed").
//		With("view", map[string]any{"id": 7, "title": "x"})
//
//	data, err := json.Marshal(rec)
//	// {"event":"view-title-changed","view":{"id":7,"title":"x"}}
package record
