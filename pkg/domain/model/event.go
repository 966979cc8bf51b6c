package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// Operation is what a provider event asks the reconciler to do to the
// local record.
type Operation string

const (
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// WebhookEvent is a decoded provider notification. Profile is nil for
// delete operations.
type WebhookEvent struct {
	ID      types.EventID
	Kind    types.EventKind
	Subject types.SubjectID
	Profile *Profile
}

// TagInvalidEvent marks an event whose payload can never become valid no
// matter how often the provider redelivers it. Handlers map tagged errors to
// client errors so the provider stops retrying.
var TagInvalidEvent = goerr.NewTag("invalid_event")

// Validate checks if the WebhookEvent is valid
func (e *WebhookEvent) Validate() error {
	if err := e.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid webhook event", goerr.T(TagInvalidEvent))
	}
	if err := e.Kind.Validate(); err != nil {
		return goerr.Wrap(err, "invalid webhook event", goerr.T(TagInvalidEvent), goerr.V("eventID", e.ID))
	}
	if err := e.Subject.Validate(); err != nil {
		return goerr.Wrap(err, "invalid webhook event", goerr.T(TagInvalidEvent), goerr.V("eventID", e.ID))
	}
	return nil
}

// Operation maps the event kind to the reconciler operation. The mapping is
// a closed table: adding an event kind without extending it is a validation
// error, not a silent fallthrough.
var eventOperations = map[types.EventKind]Operation{
	types.EventUserCreated: OpUpsert,
	types.EventUserUpdated: OpUpsert,
	types.EventUserDeleted: OpDelete,
}

// Operation returns the reconciler operation for the event kind
func (e *WebhookEvent) Operation() (Operation, error) {
	op, ok := eventOperations[e.Kind]
	if !ok {
		return "", goerr.New("no operation for event kind", goerr.V("kind", e.Kind))
	}
	return op, nil
}

// ApplyResult describes what a reconciliation actually did to the record
type ApplyResult string

const (
	ApplyCreated     ApplyResult = "created"
	ApplyUpdated     ApplyResult = "updated"
	ApplyResurrected ApplyResult = "resurrected"
	ApplyDeleted     ApplyResult = "deleted"
	ApplyNoop        ApplyResult = "noop"
)
