package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// SubjectID is the identity provider's stable unique identifier for an
// account. It is assigned by the provider and never changes.
type SubjectID string

// Validate checks if the SubjectID is valid
func (s SubjectID) Validate() error {
	if s == "" {
		return goerr.New("subject ID cannot be empty")
	}
	return nil
}

// String returns the string representation of SubjectID
func (s SubjectID) String() string {
	return string(s)
}

// OrgID represents the provider-assigned identifier of an organization
type OrgID string

// String returns the string representation of OrgID
func (o OrgID) String() string {
	return string(o)
}

// EventID is the provider-assigned identifier of a webhook delivery,
// used for de-duplication of redelivered events.
type EventID string

// Validate checks if the EventID is valid
func (e EventID) Validate() error {
	if e == "" {
		return goerr.New("event ID cannot be empty")
	}
	return nil
}

// String returns the string representation of EventID
func (e EventID) String() string {
	return string(e)
}
