// Package status computes the display status of a credential from its type
// and instance. Every function here is pure and takes the current time as a
// parameter.
package status

import (
	"math"
	"time"

	"github.com/ukydev/fleet-compliance/internal/models"
)

// DisplayStatus is the status shown to drivers and administrators.
type DisplayStatus string

const (
	Approved             DisplayStatus = "approved"
	Rejected             DisplayStatus = "rejected"
	PendingReview        DisplayStatus = "pending_review"
	AwaitingVerification DisplayStatus = "awaiting_verification"
	Expiring             DisplayStatus = "expiring"
	Expired              DisplayStatus = "expired"
	GracePeriod          DisplayStatus = "grace_period"
	Missing              DisplayStatus = "missing"
	NotSubmitted         DisplayStatus = "not_submitted"
)

const day = 24 * time.Hour

// Classify returns the display status of ct for inst at now. A nil inst means
// the subject has no instance yet. The first matching rule wins.
func Classify(ct *models.CredentialType, inst *models.CredentialInstance, now time.Time) DisplayStatus {
	if inst == nil || inst.Status == models.InstanceNotSubmitted {
		if inst != nil && ct.IsAdminOnly() {
			return AwaitingVerification
		}
		if ct.Requirement == models.RequirementRequired {
			return Missing
		}
		return NotSubmitted
	}

	switch inst.Status {
	case models.InstanceRejected:
		return Rejected
	case models.InstanceApproved:
	default:
		if ct.IsAdminOnly() {
			return AwaitingVerification
		}
		return PendingReview
	}

	if ct.ExpirationType == models.ExpirationNever || inst.ExpiresAt == nil {
		return Approved
	}

	expires := *inst.ExpiresAt
	switch {
	case now.After(expires.Add(time.Duration(ct.GracePeriodDays) * day)):
		return Expired
	case now.After(expires):
		return GracePeriod
	case expires.Sub(now) <= time.Duration(ct.WarningDays)*day:
		return Expiring
	default:
		return Approved
	}
}

// Evaluation is the display status plus the derived values shown alongside it.
type Evaluation struct {
	Status DisplayStatus `json:"display_status"`
	// DaysUntilExpiration is rounded up and negative once expired. Nil when
	// the credential does not expire.
	DaysUntilExpiration *int       `json:"days_until_expiration,omitempty"`
	GracePeriodEndsAt   *time.Time `json:"grace_period_ends_at,omitempty"`
	CanSubmit           bool       `json:"can_submit"`
}

// Evaluate classifies ct and inst and fills in the derived values.
func Evaluate(ct *models.CredentialType, inst *models.CredentialInstance, now time.Time) Evaluation {
	ev := Evaluation{Status: Classify(ct, inst, now)}
	if inst != nil && inst.Status == models.InstanceApproved && inst.ExpiresAt != nil &&
		ct.ExpirationType != models.ExpirationNever {
		days := int(math.Ceil(inst.ExpiresAt.Sub(now).Hours() / 24))
		ev.DaysUntilExpiration = &days
		graceEnd := inst.ExpiresAt.Add(time.Duration(ct.GracePeriodDays) * day)
		ev.GracePeriodEndsAt = &graceEnd
	}
	ev.CanSubmit = !ct.IsAdminOnly() && ev.Status.NeedsAction()
	return ev
}

// NeedsAction reports whether the subject has to submit something.
func (s DisplayStatus) NeedsAction() bool {
	switch s {
	case Missing, NotSubmitted, Rejected, Expiring, GracePeriod, Expired:
		return true
	}
	return false
}

// Summary counts the required credentials of one subject by state.
type Summary struct {
	Total        int `json:"total"`
	Complete     int `json:"complete"`
	Pending      int `json:"pending"`
	ActionNeeded int `json:"action_needed"`
	Percentage   int `json:"percentage"`
}

// Item pairs a credential type's requirement level with its display status.
type Item struct {
	Requirement models.RequirementLevel
	Status      DisplayStatus
}

// Summarize counts only required credentials. A subject with none is 100%
// complete.
func Summarize(items []Item) Summary {
	var s Summary
	for _, it := range items {
		if it.Requirement != models.RequirementRequired {
			continue
		}
		s.Total++
		switch {
		case it.Status == Approved:
			s.Complete++
		case it.Status == PendingReview || it.Status == AwaitingVerification:
			s.Pending++
		case it.Status.NeedsAction():
			s.ActionNeeded++
		}
	}
	s.Percentage = 100
	if s.Total > 0 {
		s.Percentage = int(math.Round(float64(s.Complete) / float64(s.Total) * 100))
	}
	return s
}
