package broker

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"
)

// EventsField is the request field holding the requested topic list
const EventsField = "events"

var (
	// ErrInvalidRequest is returned when the request data is not a JSON object
	ErrInvalidRequest = errors.New("watch request must be a JSON object")
	// ErrNotArray is returned when the events field is present but not an array
	ErrNotArray = errors.New("event list is not an array")
	// ErrNonString is returned when the events array holds a non-string entry
	ErrNonString = errors.New("event list contains non-string entries")
)

// WatchRequest is a parsed subscribe request
type WatchRequest struct {
	// All is true when no topic list was given: subscribe to every topic
	// known at subscribe time
	All bool

	// Events is the requested topic list, in request order. Unknown names
	// are kept here and dropped by the broker.
	Events []string
}

// WatchAll returns a request for every known topic
func WatchAll() WatchRequest {
	return WatchRequest{All: true}
}

// WatchTopics returns a request for an explicit topic list
func WatchTopics(events ...string) WatchRequest {
	if events == nil {
		events = []string{}
	}
	return WatchRequest{Events: events}
}

// ParseWatchRequest validates and decodes the data of a watch call.
// Empty data or JSON null is treated as a request without a topic list.
func ParseWatchRequest(data []byte) (WatchRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return WatchAll(), nil
	}
	if !gjson.ValidBytes(data) {
		return WatchRequest{}, ErrInvalidRequest
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		return WatchAll(), nil
	}
	if !root.IsObject() {
		return WatchRequest{}, ErrInvalidRequest
	}

	events := root.Get(EventsField)
	if !events.Exists() {
		return WatchAll(), nil
	}
	if !events.IsArray() {
		return WatchRequest{}, ErrNotArray
	}

	items := events.Array()
	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return WatchRequest{}, ErrNonString
		}
		names = append(names, item.Str)
	}
	return WatchRequest{Events: names}, nil
}

// ErrorMessage returns the message clients receive for a watch request error
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotArray):
		return "Event list is not an array!"
	case errors.Is(err, ErrNonString):
		return "Event list contains non-string entries!"
	case errors.Is(err, ErrInvalidRequest):
		return "Watch request must be a JSON object!"
	default:
		return err.Error()
	}
}
