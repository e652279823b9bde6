package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventField is the mandatory key holding the topic name of a record.
const EventField = "event"

var (
	// ErrMissingEvent is returned when a raw record has no string "event" field
	ErrMissingEvent = errors.New("record must contain a string \"event\" field")
	// ErrEmptyEvent is returned when the "event" field is empty
	ErrEmptyEvent = errors.New("record event name cannot be empty")
)

// Record is an immutable structured event record.
type Record struct {
	event     string
	fields    map[string]any
	timestamp time.Time
}

// New creates a record for the given topic with no payload fields.
func New(event string) *Record {
	return &Record{
		event:     event,
		fields:    make(map[string]any),
		timestamp: time.Now().UTC(),
	}
}

// NewWithFields creates a record for the given topic carrying a copy of
// fields. An "event" key in fields is ignored.
func NewWithFields(event string, fields map[string]any) *Record {
	rec := New(event)
	for k, v := range fields {
		if k == EventField {
			continue
		}
		rec.fields[k] = v
	}
	return rec
}

// FromMap builds a record from a decoded JSON object.
// The object must carry a non-empty string "event" field.
func FromMap(data map[string]any) (*Record, error) {
	raw, ok := data[EventField]
	if !ok {
		return nil, ErrMissingEvent
	}
	event, ok := raw.(string)
	if !ok {
		return nil, ErrMissingEvent
	}
	if event == "" {
		return nil, ErrEmptyEvent
	}

	return NewWithFields(event, data), nil
}

// Parse decodes a JSON object into a record.
func Parse(data []byte) (*Record, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	return FromMap(obj)
}

// With returns a copy of the record with key set to value.
// Setting the "event" key is ignored; the topic of a record never changes.
func (r *Record) With(key string, value any) *Record {
	fields := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	if key != EventField {
		fields[key] = value
	}
	return &Record{
		event:     r.event,
		fields:    fields,
		timestamp: r.timestamp,
	}
}

// Event returns the topic name of this record.
func (r *Record) Event() string {
	return r.event
}

// Get returns the value of a payload field.
func (r *Record) Get(key string) (any, bool) {
	if key == EventField {
		return r.event, true
	}
	v, ok := r.fields[key]
	return v, ok
}

// Fields returns a copy of all fields, including "event".
func (r *Record) Fields() map[string]any {
	result := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		result[k] = v
	}
	result[EventField] = r.event
	return result
}

// Len returns the number of fields, including "event".
func (r *Record) Len() int {
	return len(r.fields) + 1
}

// Timestamp returns when this record was created.
func (r *Record) Timestamp() time.Time {
	return r.timestamp
}

// MarshalJSON encodes the record as a flat JSON object.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// String returns the JSON form of the record, for logging.
func (r *Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("record(%s)", r.event)
	}
	return string(data)
}
