// Package protocol defines the update-protocol events carried over the
// persistent channel between the dev server and connected clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies an update event. Clients recognize a small fixed
// set; anything else is a protocol error.
type EventKind string

const (
	// KindFullReload instructs the client to reload unconditionally.
	KindFullReload EventKind = "full-reload"
	// KindComponentUpdate delegates a single component change to the
	// reconciler.
	KindComponentUpdate EventKind = "component-update"
	// KindLibraryUpdate attempts a scoped global-binding hot swap.
	KindLibraryUpdate EventKind = "library-update"
	// KindError surfaces a server-side failure to the developer.
	KindError EventKind = "error"
)

// Valid reports whether k is a recognized event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindFullReload, KindComponentUpdate, KindLibraryUpdate, KindError:
		return true
	}
	return false
}

// Event is the wire unit of the update protocol. Fields are populated
// according to Kind; absent fields are omitted from the encoding.
type Event struct {
	Kind EventKind `json:"kind"`

	// component-update
	ComponentName string `json:"componentName,omitempty"`
	ModulePath    string `json:"modulePath,omitempty"`
	ChangeKind    string `json:"changeKind,omitempty"`

	// library-update
	LibraryName string `json:"libraryName,omitempty"`
	LibraryPath string `json:"libraryPath,omitempty"`
	GlobalName  string `json:"globalName,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// FullReload creates a full-reload event.
func FullReload() Event {
	return Event{Kind: KindFullReload, Timestamp: now()}
}

// ComponentUpdate creates a component-update event.
func ComponentUpdate(componentName, modulePath, changeKind string) Event {
	return Event{
		Kind:          KindComponentUpdate,
		ComponentName: componentName,
		ModulePath:    modulePath,
		ChangeKind:    changeKind,
		Timestamp:     now(),
	}
}

// LibraryUpdate creates a library-update event.
func LibraryUpdate(name, path, globalName string) Event {
	return Event{
		Kind:        KindLibraryUpdate,
		LibraryName: name,
		LibraryPath: path,
		GlobalName:  globalName,
		Timestamp:   now(),
	}
}

// Error creates an error event.
func Error(message string) Event {
	return Event{Kind: KindError, Message: message, Timestamp: now()}
}

// Encode serializes an event for the wire.
func Encode(event Event) ([]byte, error) {
	if !event.Kind.Valid() {
		return nil, fmt.Errorf("protocol: invalid event kind %q", event.Kind)
	}
	return json.Marshal(event)
}

// Decode deserializes a wire message, rejecting unknown kinds.
func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("protocol: malformed event: %w", err)
	}
	if !event.Kind.Valid() {
		return Event{}, fmt.Errorf("protocol: unknown event kind %q", event.Kind)
	}
	return event, nil
}

func now() int64 {
	return time.Now().UnixMilli()
}
