package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InstanceStatus is the lifecycle status of a credential instance.
type InstanceStatus string

const (
	InstanceNotSubmitted  InstanceStatus = "not_submitted"
	InstancePendingReview InstanceStatus = "pending_review"
	InstanceSubmitted     InstanceStatus = "submitted"
	InstanceReviewed      InstanceStatus = "reviewed"
	InstanceApproved      InstanceStatus = "approved"
	InstanceRejected      InstanceStatus = "rejected"
)

// AwaitingReview lists the statuses an administrator still has to act on.
var AwaitingReview = []InstanceStatus{InstancePendingReview, InstanceSubmitted, InstanceReviewed}

// SubjectRef identifies one subject's relationship to one credential type.
type SubjectRef struct {
	Kind             CredentialCategory `bson:"subject_kind" json:"subject_kind"`
	SubjectID        primitive.ObjectID `bson:"subject_id" json:"subject_id"`
	CredentialTypeID primitive.ObjectID `bson:"credential_type_id" json:"credential_type_id"`
}

// CredentialInstance is a driver's or vehicle's copy of a credential type.
// Instances are never deleted.
type CredentialInstance struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID             primitive.ObjectID  `bson:"tenant_id" json:"tenant_id"`
	SubjectRef           `bson:",inline"`
	Status               InstanceStatus      `bson:"status" json:"status"`
	SubmittedAt          *time.Time          `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	ReviewedAt           *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	ReviewedBy           *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ExpiresAt            *time.Time          `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	DriverExpirationDate *time.Time          `bson:"driver_expiration_date,omitempty" json:"driver_expiration_date,omitempty"`
	RejectionReason      string              `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	ReviewNotes          string              `bson:"review_notes,omitempty" json:"review_notes,omitempty"`
	InternalNotes        string              `bson:"internal_notes,omitempty" json:"-"`
	FormData             map[string]string   `bson:"form_data,omitempty" json:"form_data,omitempty"`
	DocumentRefs         []string            `bson:"document_refs,omitempty" json:"document_refs,omitempty"`
	SubmissionVersion    int                 `bson:"submission_version" json:"submission_version"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `bson:"updated_at" json:"updated_at"`
}

// ReviewUpdate is the complete set of review fields written by one review
// transition. Stores apply it as a single write so concurrent reviewers never
// interleave fields.
type ReviewUpdate struct {
	Status          InstanceStatus      `bson:"status"`
	ReviewedAt      *time.Time          `bson:"reviewed_at"`
	ReviewedBy      *primitive.ObjectID `bson:"reviewed_by"`
	ExpiresAt       *time.Time          `bson:"expires_at"`
	RejectionReason string              `bson:"rejection_reason"`
	ReviewNotes     string              `bson:"review_notes"`
	InternalNotes   string              `bson:"internal_notes"`
	// SubmittedAt is only written when non-nil or ClearSubmitted is set.
	SubmittedAt    *time.Time `bson:"-"`
	ClearSubmitted bool       `bson:"-"`
}

// Apply copies the update onto inst.
func (u ReviewUpdate) Apply(inst *CredentialInstance, now time.Time) {
	inst.Status = u.Status
	inst.ReviewedAt = u.ReviewedAt
	inst.ReviewedBy = u.ReviewedBy
	inst.ExpiresAt = u.ExpiresAt
	inst.RejectionReason = u.RejectionReason
	inst.ReviewNotes = u.ReviewNotes
	inst.InternalNotes = u.InternalNotes
	if u.SubmittedAt != nil {
		inst.SubmittedAt = u.SubmittedAt
	} else if u.ClearSubmitted {
		inst.SubmittedAt = nil
	}
	inst.UpdatedAt = now
}

// Submission is the data a driver attaches when finalizing an instance.
type Submission struct {
	SubmittedAt          time.Time
	FormData             map[string]string
	DocumentRefs         []string
	DriverExpirationDate *time.Time
}
