// Package topics holds the static topic table and the per-topic activation
// reference counts that decide when instrumentation hooks are attached.
package topics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

var (
	ErrEmptyTopicName = errors.New("topic name cannot be empty")
	ErrDuplicateTopic = errors.New("duplicate topic")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrCountUnderflow = errors.New("activation count underflow")
)

// Topic binds a topic name to the closures that attach and detach its hooks.
// Nil closures are no-ops; topics with no hooks at all are valid and are
// published by other means.
type Topic struct {
	// Name is the event name records of this topic carry
	Name string

	// ActivateCore attaches the topic's core-wide hooks
	ActivateCore func()

	// ActivateScope attaches the topic's hooks for one scope
	ActivateScope func(s scope.Scope)

	// Deactivate detaches every hook the topic holds, core and scoped
	Deactivate func()
}

func (t Topic) activateCore() {
	if t.ActivateCore != nil {
		t.ActivateCore()
	}
}

func (t Topic) activateScope(s scope.Scope) {
	if t.ActivateScope != nil {
		t.ActivateScope(s)
	}
}

func (t Topic) deactivate() {
	if t.Deactivate != nil {
		t.Deactivate()
	}
}

// Registry is the read-only table of known topics
type Registry struct {
	topics map[string]Topic
	names  []string
}

// NewRegistry builds a registry, rejecting empty and duplicate names
func NewRegistry(topics ...Topic) (*Registry, error) {
	r := &Registry{topics: make(map[string]Topic, len(topics))}
	for _, t := range topics {
		if t.Name == "" {
			return nil, ErrEmptyTopicName
		}
		if _, exists := r.topics[t.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, t.Name)
		}
		r.topics[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the topic with the given name
func (r *Registry) Lookup(name string) (Topic, bool) {
	t, ok := r.topics[name]
	return t, ok
}

// Contains reports whether name is a registered topic
func (r *Registry) Contains(name string) bool {
	_, ok := r.topics[name]
	return ok
}

// Names returns every registered name in sorted order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered topics
func (r *Registry) Len() int {
	return len(r.names)
}
