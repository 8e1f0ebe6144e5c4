package models

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditAction names a recorded lifecycle event of a credential instance.
type AuditAction string

const (
	AuditSubmit   AuditAction = "submit"
	AuditApprove  AuditAction = "approve"
	AuditReject   AuditAction = "reject"
	AuditVerify   AuditAction = "verify"
	AuditUnverify AuditAction = "unverify"
)

// AuditEntry is one append-only history record of a credential instance.
type AuditEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID      string             `bson:"event_id" json:"event_id"`
	InstanceID   primitive.ObjectID `bson:"instance_id" json:"instance_id"`
	TenantID     primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Action       AuditAction        `bson:"action" json:"action"`
	StatusBefore InstanceStatus     `bson:"status_before" json:"status_before"`
	StatusAfter  InstanceStatus     `bson:"status_after" json:"status_after"`
	ActorID      primitive.ObjectID `bson:"actor_id" json:"actor_id"`
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Reason       string             `bson:"reason,omitempty" json:"reason,omitempty"`
	ExpiresAt    *time.Time         `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	At           time.Time          `bson:"at" json:"at"`
}

// NewAuditEntry records a transition of inst from before to inst.Status.
func NewAuditEntry(inst *CredentialInstance, action AuditAction, before InstanceStatus, actorID primitive.ObjectID, at time.Time) AuditEntry {
	return AuditEntry{
		EventID:      uuid.NewString(),
		InstanceID:   inst.ID,
		TenantID:     inst.TenantID,
		Action:       action,
		StatusBefore: before,
		StatusAfter:  inst.Status,
		ActorID:      actorID,
		ExpiresAt:    inst.ExpiresAt,
		At:           at,
	}
}
