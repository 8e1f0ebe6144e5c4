package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/metrics"
	"github.com/ukydev/fleet-compliance/internal/models"
	"github.com/ukydev/fleet-compliance/internal/notify"
	"github.com/ukydev/fleet-compliance/internal/requirements"
	"github.com/ukydev/fleet-compliance/internal/status"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CredentialLoader checks the actor's access to a subject and loads the
// credential type of a reference.
type CredentialLoader interface {
	LoadCredential(ctx context.Context, actor models.Actor, ref models.SubjectRef) (requirements.Subject, *models.CredentialType, error)
}

// QueueItem is one instance awaiting review.
type QueueItem struct {
	Instance       models.CredentialInstance `json:"instance"`
	CredentialName string                    `json:"credential_name"`
	DisplayStatus  status.DisplayStatus      `json:"display_status"`
}

// Service applies review decisions.
type Service struct {
	loader    CredentialLoader
	types     db.CredentialTypeCollection
	instances db.CredentialInstanceCollection
	audit     db.AuditCollection
	clock     clock.Clock
	metrics   *metrics.Metrics
	notifier  notify.Notifier
	log       log.FieldLogger
}

// NewService creates a review service.
func NewService(store db.Store, loader CredentialLoader, clk clock.Clock, m *metrics.Metrics, n notify.Notifier, logger log.FieldLogger) *Service {
	return &Service{
		loader:    loader,
		types:     store.CredentialTypes,
		instances: store.Instances,
		audit:     store.Audit,
		clock:     clk,
		metrics:   m,
		notifier:  n,
		log:       logger,
	}
}

type decision struct {
	action models.AuditAction
	event  string
	notes  string
	reason string
	build  func(ct *models.CredentialType, inst *models.CredentialInstance, now time.Time) (models.ReviewUpdate, error)
}

// Approve approves the credential, creating its instance if needed.
func (s *Service) Approve(ctx context.Context, actor models.Actor, ref models.SubjectRef, in ApproveInput) (*models.CredentialInstance, error) {
	return s.apply(ctx, actor, ref, decision{
		action: models.AuditApprove,
		event:  notify.EventApproved,
		notes:  in.ReviewNotes,
		build: func(ct *models.CredentialType, inst *models.CredentialInstance, now time.Time) (models.ReviewUpdate, error) {
			return Approval(ct, inst, in, actor.UserID, now)
		},
	})
}

// Reject rejects the credential. A rejection needs a reason.
func (s *Service) Reject(ctx context.Context, actor models.Actor, ref models.SubjectRef, in RejectInput) (*models.CredentialInstance, error) {
	return s.apply(ctx, actor, ref, decision{
		action: models.AuditReject,
		event:  notify.EventRejected,
		notes:  in.ReviewNotes,
		reason: in.Reason,
		build: func(_ *models.CredentialType, _ *models.CredentialInstance, now time.Time) (models.ReviewUpdate, error) {
			return Rejection(in, actor.UserID, now)
		},
	})
}

// Verify approves an administrator-only credential.
func (s *Service) Verify(ctx context.Context, actor models.Actor, ref models.SubjectRef, in VerifyInput) (*models.CredentialInstance, error) {
	return s.apply(ctx, actor, ref, decision{
		action: models.AuditVerify,
		event:  notify.EventVerified,
		notes:  in.Notes,
		build: func(ct *models.CredentialType, inst *models.CredentialInstance, now time.Time) (models.ReviewUpdate, error) {
			return Verification(ct, inst, in, actor.UserID, now)
		},
	})
}

// Unverify returns an approved credential to pending review.
func (s *Service) Unverify(ctx context.Context, actor models.Actor, ref models.SubjectRef, in UnverifyInput) (*models.CredentialInstance, error) {
	return s.apply(ctx, actor, ref, decision{
		action: models.AuditUnverify,
		event:  notify.EventUnverified,
		reason: in.Reason,
		build: func(_ *models.CredentialType, inst *models.CredentialInstance, _ time.Time) (models.ReviewUpdate, error) {
			return Unverification(inst, in)
		},
	})
}

// apply runs one decision: validate against the current instance, ensure the
// instance exists, write every review field at once, then audit and notify.
func (s *Service) apply(ctx context.Context, actor models.Actor, ref models.SubjectRef, d decision) (*models.CredentialInstance, error) {
	op := "review." + string(d.action)
	if !actor.Role.Allows(models.ActionReviewCredentials) {
		return nil, apperr.Forbiddenf(op, "role %s cannot review credentials", actor.Role)
	}
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	inst, err := s.instances.FindInstance(ctx, actor.TenantID, ref)
	if errors.Is(err, db.ErrNotFound) {
		inst = nil
	} else if err != nil {
		return nil, fmt.Errorf("find instance: %w", err)
	}

	now := s.clock.Now()
	update, err := d.build(ct, inst, now)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		var created bool
		inst, created, err = s.instances.EnsureInstance(ctx, actor.TenantID, ref, now)
		if err != nil {
			return nil, fmt.Errorf("ensure instance: %w", err)
		}
		if created {
			s.metrics.ObserveEnsured(string(ref.Kind))
		}
	}
	before := inst.Status
	if err := CheckTransition(d.action, before, update.Status); err != nil {
		return nil, err
	}

	updated, err := s.instances.UpdateReview(ctx, inst.ID, update, now)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	entry := models.NewAuditEntry(updated, d.action, before, actor.UserID, now)
	entry.Notes = d.notes
	entry.Reason = d.reason
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	s.metrics.ObserveReview(string(d.action), string(ref.Kind))

	logger := s.log.WithFields(log.Fields{
		"tenant_id":   actor.TenantID.Hex(),
		"instance_id": updated.ID.Hex(),
		"action":      d.action,
		"reviewer_id": actor.UserID.Hex(),
		"from":        before,
		"to":          updated.Status,
	})
	logger.Info("Credential reviewed")

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, notify.Event{
			ID:               entry.EventID,
			Type:             d.event,
			TenantID:         updated.TenantID,
			InstanceID:       updated.ID,
			SubjectKind:      string(ref.Kind),
			SubjectID:        ref.SubjectID,
			CredentialTypeID: ref.CredentialTypeID,
			CredentialName:   ct.Name,
			Status:           string(updated.Status),
			Reason:           d.reason,
			Notes:            d.notes,
			ExpiresAt:        updated.ExpiresAt,
			At:               now,
		})
		if err != nil {
			s.metrics.ObserveNotificationFailure(d.event)
			logger.WithError(err).Warn("Failed to publish notification")
		}
	}
	return updated, nil
}

// QueueFilter narrows Queue. Zero fields match everything.
type QueueFilter struct {
	Kind             models.CredentialCategory
	CredentialTypeID primitive.ObjectID
	BrokerID         primitive.ObjectID
	SubjectID        primitive.ObjectID
}

// QueueStats counts the work waiting for administrators.
type QueueStats struct {
	PendingReview        int `json:"pending_review"`
	AwaitingVerification int `json:"awaiting_verification"`
	ExpiringSoon         int `json:"expiring_soon"`
	Total                int `json:"total"`
}

// expiringWindow is how far ahead Stats looks for approvals about to lapse.
const expiringWindow = 30 * 24 * time.Hour

// needsAction reports whether an administrator has to act on inst: a
// submission awaiting review, or an administrator-only credential that was
// never verified.
func needsAction(ct *models.CredentialType, inst *models.CredentialInstance) bool {
	for _, st := range models.AwaitingReview {
		if inst.Status == st {
			return true
		}
	}
	return inst.Status == models.InstanceNotSubmitted && ct.IsAdminOnly()
}

func (f QueueFilter) match(ct *models.CredentialType, inst *models.CredentialInstance) bool {
	switch {
	case f.Kind != "" && inst.Kind != f.Kind:
		return false
	case !f.CredentialTypeID.IsZero() && inst.CredentialTypeID != f.CredentialTypeID:
		return false
	case !f.SubjectID.IsZero() && inst.SubjectID != f.SubjectID:
		return false
	case !f.BrokerID.IsZero() && (ct.BrokerID == nil || *ct.BrokerID != f.BrokerID):
		return false
	}
	return true
}

// activeTypes indexes the tenant's active credential types by id. Instances
// of deactivated types drop out of the queue and its counts.
func (s *Service) activeTypes(ctx context.Context, tenantID primitive.ObjectID) (map[primitive.ObjectID]*models.CredentialType, error) {
	types, err := s.types.FindCredentialTypes(ctx, db.CredentialTypeFilter{TenantID: tenantID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list credential types: %w", err)
	}
	byID := make(map[primitive.ObjectID]*models.CredentialType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}
	return byID, nil
}

// Queue lists the instances an administrator has to act on, oldest
// submission first. Never-submitted administrator-only credentials sort last.
func (s *Service) Queue(ctx context.Context, actor models.Actor, filter QueueFilter) ([]QueueItem, error) {
	const op = "review.Queue"
	if !actor.Role.Allows(models.ActionReviewCredentials) {
		return nil, apperr.Forbiddenf(op, "role %s cannot review credentials", actor.Role)
	}
	statuses := append([]models.InstanceStatus{models.InstanceNotSubmitted}, models.AwaitingReview...)
	instances, err := s.instances.FindInstancesByStatus(ctx, actor.TenantID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	byID, err := s.activeTypes(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := []QueueItem{}
	for i := range instances {
		inst := &instances[i]
		ct := byID[inst.CredentialTypeID]
		if ct == nil || !needsAction(ct, inst) || !filter.match(ct, inst) {
			continue
		}
		out = append(out, QueueItem{
			Instance:       *inst,
			CredentialName: ct.Name,
			DisplayStatus:  status.Classify(ct, inst, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Instance.SubmittedAt, out[j].Instance.SubmittedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

// Stats counts pending reviews, unverified administrator-only credentials
// and approvals expiring within 30 days, over active types only.
func (s *Service) Stats(ctx context.Context, actor models.Actor) (*QueueStats, error) {
	const op = "review.Stats"
	if !actor.Role.Allows(models.ActionReviewCredentials) {
		return nil, apperr.Forbiddenf(op, "role %s cannot review credentials", actor.Role)
	}
	statuses := append([]models.InstanceStatus{models.InstanceNotSubmitted, models.InstanceApproved}, models.AwaitingReview...)
	instances, err := s.instances.FindInstancesByStatus(ctx, actor.TenantID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	byID, err := s.activeTypes(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	stats := &QueueStats{}
	for i := range instances {
		inst := &instances[i]
		ct := byID[inst.CredentialTypeID]
		if ct == nil {
			continue
		}
		switch {
		case inst.Status == models.InstanceApproved:
			if inst.ExpiresAt != nil && !inst.ExpiresAt.Before(now) && !inst.ExpiresAt.After(now.Add(expiringWindow)) {
				stats.ExpiringSoon++
			}
		case inst.Status == models.InstanceNotSubmitted:
			if ct.IsAdminOnly() {
				stats.AwaitingVerification++
			}
		default:
			stats.PendingReview++
		}
	}
	stats.Total = stats.PendingReview + stats.AwaitingVerification
	return stats, nil
}

// History returns the audit trail of one credential, oldest first.
func (s *Service) History(ctx context.Context, actor models.Actor, ref models.SubjectRef) ([]models.AuditEntry, error) {
	if _, _, err := s.loader.LoadCredential(ctx, actor, ref); err != nil {
		return nil, err
	}
	inst, err := s.instances.FindInstance(ctx, actor.TenantID, ref)
	if errors.Is(err, db.ErrNotFound) {
		return []models.AuditEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find instance: %w", err)
	}
	entries, err := s.audit.FindAuditByInstance(ctx, actor.TenantID, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("find audit: %w", err)
	}
	return entries, nil
}
