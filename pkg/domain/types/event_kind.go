package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// EventKind is the closed set of webhook event types the provider delivers
// for account changes.
type EventKind string

const (
	EventUserCreated EventKind = "user.created"
	EventUserUpdated EventKind = "user.updated"
	EventUserDeleted EventKind = "user.deleted"
)

// Validate checks if the EventKind is one of the known kinds
func (k EventKind) Validate() error {
	switch k {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return nil
	default:
		return goerr.New("unknown event kind", goerr.V("kind", string(k)))
	}
}

// String returns the string representation of EventKind
func (k EventKind) String() string {
	return string(k)
}
