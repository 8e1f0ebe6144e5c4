// Package review implements the administrator side of the credential
// lifecycle: approving, rejecting, verifying and un-verifying instances.
package review

import (
	"strings"
	"time"

	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ApproveInput is an approval decision.
type ApproveInput struct {
	// ExpiresAt overrides the expiration computed from the type's policy.
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ReviewNotes   string     `json:"review_notes,omitempty"`
	InternalNotes string     `json:"internal_notes,omitempty"`
}

// RejectInput is a rejection decision. Reason is shown to the subject.
type RejectInput struct {
	Reason        string `json:"reason"`
	ReviewNotes   string `json:"review_notes,omitempty"`
	InternalNotes string `json:"internal_notes,omitempty"`
}

// VerifyInput marks an administrator-only credential as satisfied.
type VerifyInput struct {
	Notes         string     `json:"notes"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	InternalNotes string     `json:"internal_notes,omitempty"`
}

// UnverifyInput reopens an approved credential.
type UnverifyInput struct {
	Reason string `json:"reason"`
}

// ExpiresAt computes the expiration of an approval at now. manual wins over
// the policy; driver-specified types fall back to the date the driver
// entered.
func ExpiresAt(ct *models.CredentialType, inst *models.CredentialInstance, manual *time.Time, now time.Time) (*time.Time, error) {
	if manual != nil {
		t := *manual
		return &t, nil
	}
	switch ct.ExpirationType {
	case models.ExpirationFixedInterval:
		t := now.AddDate(0, 0, ct.ExpirationIntervalDays)
		return &t, nil
	case models.ExpirationDriverSpecified:
		if inst == nil || inst.DriverExpirationDate == nil {
			return nil, apperr.Validationf("review.ExpiresAt", "%s needs an expiration date", ct.Name)
		}
		t := *inst.DriverExpirationDate
		return &t, nil
	}
	return nil, nil
}

// Approval builds the review update of an approval. inst may be nil when no
// instance exists yet.
func Approval(ct *models.CredentialType, inst *models.CredentialInstance, in ApproveInput, reviewer primitive.ObjectID, now time.Time) (models.ReviewUpdate, error) {
	expires, err := ExpiresAt(ct, inst, in.ExpiresAt, now)
	if err != nil {
		return models.ReviewUpdate{}, err
	}
	at := now
	return models.ReviewUpdate{
		Status:        models.InstanceApproved,
		ReviewedAt:    &at,
		ReviewedBy:    &reviewer,
		ExpiresAt:     expires,
		ReviewNotes:   in.ReviewNotes,
		InternalNotes: in.InternalNotes,
	}, nil
}

// Rejection builds the review update of a rejection. An empty reason is a
// validation error.
func Rejection(in RejectInput, reviewer primitive.ObjectID, now time.Time) (models.ReviewUpdate, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return models.ReviewUpdate{}, apperr.Validationf("review.Rejection", "a rejection reason is required")
	}
	at := now
	return models.ReviewUpdate{
		Status:          models.InstanceRejected,
		ReviewedAt:      &at,
		ReviewedBy:      &reviewer,
		RejectionReason: in.Reason,
		ReviewNotes:     in.ReviewNotes,
		InternalNotes:   in.InternalNotes,
	}, nil
}

// Verification builds the update that approves an administrator-only
// credential. The instance counts as submitted at the time of verification.
func Verification(ct *models.CredentialType, inst *models.CredentialInstance, in VerifyInput, reviewer primitive.ObjectID, now time.Time) (models.ReviewUpdate, error) {
	const op = "review.Verification"
	if !ct.IsAdminOnly() {
		return models.ReviewUpdate{}, apperr.Policyf(op, "%s is submitted by the driver and must be approved", ct.Name)
	}
	if strings.TrimSpace(in.Notes) == "" {
		return models.ReviewUpdate{}, apperr.Validationf(op, "verification notes are required")
	}
	expires, err := ExpiresAt(ct, inst, in.ExpiresAt, now)
	if err != nil {
		return models.ReviewUpdate{}, err
	}
	at := now
	return models.ReviewUpdate{
		Status:        models.InstanceApproved,
		ReviewedAt:    &at,
		ReviewedBy:    &reviewer,
		ExpiresAt:     expires,
		ReviewNotes:   in.Notes,
		InternalNotes: in.InternalNotes,
		SubmittedAt:   &at,
	}, nil
}

// Unverification builds the override that returns an approved instance to
// pending review. It is the only path out of approved other than a new
// approval or rejection.
func Unverification(inst *models.CredentialInstance, in UnverifyInput) (models.ReviewUpdate, error) {
	const op = "review.Unverification"
	if strings.TrimSpace(in.Reason) == "" {
		return models.ReviewUpdate{}, apperr.Validationf(op, "a reason is required")
	}
	if inst == nil || inst.Status != models.InstanceApproved {
		return models.ReviewUpdate{}, apperr.Policyf(op, "only approved credentials can be unverified")
	}
	return models.ReviewUpdate{
		Status:        models.InstancePendingReview,
		InternalNotes: inst.InternalNotes,
	}, nil
}

// CheckTransition enforces that only an unverify moves an approved instance
// back to pending review.
func CheckTransition(action models.AuditAction, from, to models.InstanceStatus) error {
	if from == models.InstanceApproved && to == models.InstancePendingReview && action != models.AuditUnverify {
		return apperr.Policyf("review.CheckTransition", "approved credentials are reopened only by unverify, not %s", action)
	}
	return nil
}
