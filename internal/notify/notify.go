// Package notify publishes credential lifecycle events to interested parties.
// Publishing is fire-and-forget from the caller's point of view: a failure is
// reported but never changes credential state.
package notify

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event types.
const (
	EventSubmitted  = "credential.submitted"
	EventApproved   = "credential.approved"
	EventRejected   = "credential.rejected"
	EventVerified   = "credential.verified"
	EventUnverified = "credential.unverified"
)

// Event describes one credential lifecycle change.
type Event struct {
	ID               string             `json:"id"`
	Type             string             `json:"type"`
	TenantID         primitive.ObjectID `json:"tenant_id"`
	InstanceID       primitive.ObjectID `json:"instance_id"`
	SubjectKind      string             `json:"subject_kind"`
	SubjectID        primitive.ObjectID `json:"subject_id"`
	CredentialTypeID primitive.ObjectID `json:"credential_type_id"`
	CredentialName   string             `json:"credential_name,omitempty"`
	Status           string             `json:"status"`
	Reason           string             `json:"reason,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	At               time.Time          `json:"at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
