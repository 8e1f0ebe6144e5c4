package instructions

import (
	"context"
	"errors"
	"fmt"
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

// StepStatus summarizes one step for the caller.
type StepStatus struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Required bool   `json:"required"`
	Complete bool   `json:"complete"`
}

// State is the submission state of one credential.
type State struct {
	Instance    *models.CredentialInstance  `json:"instance,omitempty"`
	Document    *models.InstructionDocument `json:"document,omitempty"`
	Progress    *models.Progress            `json:"progress"`
	Steps       []StepStatus                `json:"steps"`
	CanFinalize bool                        `json:"can_finalize"`
}

// FinalizeRequest carries the submission fields that are not block values.
type FinalizeRequest struct {
	DriverExpirationDate *time.Time `json:"driver_expiration_date,omitempty"`
}

// Service persists progress and finalizes submissions.
type Service struct {
	loader    CredentialLoader
	instances db.CredentialInstanceCollection
	progress  db.ProgressCollection
	audit     db.AuditCollection
	clock     clock.Clock
	metrics   *metrics.Metrics
	notifier  notify.Notifier
	log       log.FieldLogger
}

// NewService creates an instruction progress service.
func NewService(store db.Store, loader CredentialLoader, clk clock.Clock, m *metrics.Metrics, n notify.Notifier, logger log.FieldLogger) *Service {
	return &Service{
		loader:    loader,
		instances: store.Instances,
		progress:  store.Progress,
		audit:     store.Audit,
		clock:     clk,
		metrics:   m,
		notifier:  n,
		log:       logger,
	}
}

// Get returns the current state without creating anything.
func (s *Service) Get(ctx context.Context, actor models.Actor, ref models.SubjectRef) (*State, error) {
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	inst, err := s.findInstance(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	p, err := s.loadProgress(ctx, actor, inst)
	if err != nil {
		return nil, err
	}
	return s.state(ct, inst, p), nil
}

// SaveStep records block values for one step, creating the instance on first
// save. Invalid steps or blocks are rejected before anything is written.
func (s *Service) SaveStep(ctx context.Context, actor models.Actor, ref models.SubjectRef, stepID string, updates map[string]models.BlockValue) (*State, error) {
	const op = "instructions.SaveStep"
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := checkWritable(op, ct, now); err != nil {
		return nil, err
	}
	inst, err := s.findInstance(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	base, err := s.loadProgress(ctx, actor, inst)
	if err != nil {
		return nil, err
	}
	next, err := Advance(ct.Instructions, base, stepID, updates, now)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		if inst, err = s.ensure(ctx, actor, ref, now); err != nil {
			return nil, err
		}
	}
	next.InstanceID = inst.ID
	next.TenantID = inst.TenantID
	if err := s.progress.UpsertProgress(ctx, *next); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	s.metrics.ObserveProgressSave()
	s.log.WithFields(log.Fields{
		"tenant_id":   actor.TenantID.Hex(),
		"instance_id": inst.ID.Hex(),
		"step_id":     stepID,
		"complete":    next.Steps[stepID].Completed,
	}).Debug("Saved instruction progress")
	return s.state(ct, inst, next), nil
}

// SetCurrentStep moves the progress cursor to stepID.
func (s *Service) SetCurrentStep(ctx context.Context, actor models.Actor, ref models.SubjectRef, stepID string) (*State, error) {
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := checkWritable("instructions.SetCurrentStep", ct, now); err != nil {
		return nil, err
	}
	inst, err := s.findInstance(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	base, err := s.loadProgress(ctx, actor, inst)
	if err != nil {
		return nil, err
	}
	next, err := SetCurrentStep(ct.Instructions, base, stepID, now)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		if inst, err = s.ensure(ctx, actor, ref, now); err != nil {
			return nil, err
		}
	}
	next.InstanceID = inst.ID
	next.TenantID = inst.TenantID
	if err := s.progress.UpsertProgress(ctx, *next); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return s.state(ct, inst, next), nil
}

// Restart discards saved progress. The instance itself is kept.
func (s *Service) Restart(ctx context.Context, actor models.Actor, ref models.SubjectRef) (*State, error) {
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	inst, err := s.findInstance(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p := New(actor.TenantID, primitive.NilObjectID, now)
	if inst != nil {
		if err := s.progress.DeleteProgress(ctx, inst.ID); err != nil {
			return nil, fmt.Errorf("delete progress: %w", err)
		}
		p = Clear(&models.Progress{TenantID: inst.TenantID, InstanceID: inst.ID}, now)
	}
	return s.state(ct, inst, p), nil
}

// Finalize submits the credential for review once every step is complete.
func (s *Service) Finalize(ctx context.Context, actor models.Actor, ref models.SubjectRef, req FinalizeRequest) (*models.CredentialInstance, error) {
	const op = "instructions.Finalize"
	_, ct, err := s.loader.LoadCredential(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := checkWritable(op, ct, now); err != nil {
		return nil, err
	}
	inst, err := s.findInstance(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	if ev := status.Evaluate(ct, inst, now); !ev.CanSubmit {
		return nil, apperr.Policyf(op, "%s cannot be submitted while %s", ct.Name, ev.Status)
	}
	p, err := s.loadProgress(ctx, actor, inst)
	if err != nil {
		return nil, err
	}
	if !IsAllStepsComplete(ct.Instructions, p) {
		return nil, apperr.Policyf(op, "instructions for %s are not complete", ct.Name)
	}

	collected := Collect(ct.Instructions, p)
	expiration := req.DriverExpirationDate
	if expiration == nil {
		expiration = collected.DriverExpirationDate
	}
	if ct.ExpirationType == models.ExpirationDriverSpecified && expiration == nil {
		return nil, apperr.Validationf(op, "%s requires an expiration date", ct.Name)
	}

	if inst == nil {
		if inst, err = s.ensure(ctx, actor, ref, now); err != nil {
			return nil, err
		}
	}
	before := inst.Status
	submitted, err := s.instances.MarkSubmitted(ctx, inst.ID, models.Submission{
		SubmittedAt:          now,
		FormData:             collected.FormData,
		DocumentRefs:         collected.DocumentRefs,
		DriverExpirationDate: expiration,
	})
	if err != nil {
		return nil, fmt.Errorf("mark submitted: %w", err)
	}
	entry := models.NewAuditEntry(submitted, models.AuditSubmit, before, actor.UserID, now)
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	if err := s.progress.DeleteProgress(ctx, submitted.ID); err != nil {
		return nil, fmt.Errorf("delete progress: %w", err)
	}
	s.metrics.ObserveSubmission(string(ref.Kind))

	logger := s.log.WithFields(log.Fields{
		"tenant_id":   actor.TenantID.Hex(),
		"instance_id": submitted.ID.Hex(),
		"action":      models.AuditSubmit,
		"version":     submitted.SubmissionVersion,
	})
	logger.Info("Credential submitted")
	s.publish(ctx, logger, notify.Event{
		ID:               entry.EventID,
		Type:             notify.EventSubmitted,
		TenantID:         submitted.TenantID,
		InstanceID:       submitted.ID,
		SubjectKind:      string(ref.Kind),
		SubjectID:        ref.SubjectID,
		CredentialTypeID: ref.CredentialTypeID,
		CredentialName:   ct.Name,
		Status:           string(submitted.Status),
		At:               now,
	})
	return submitted, nil
}

// checkWritable rejects driver writes to types that are verified by an
// administrator or not in force at now.
func checkWritable(op string, ct *models.CredentialType, now time.Time) error {
	if ct.IsAdminOnly() {
		return apperr.Policyf(op, "%s is verified by an administrator", ct.Name)
	}
	if !ct.IsLive(now) {
		return apperr.Policyf(op, "%s is not accepting submissions", ct.Name)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, logger log.FieldLogger, e notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.metrics.ObserveNotificationFailure(e.Type)
		logger.WithError(err).Warn("Failed to publish notification")
	}
}

func (s *Service) findInstance(ctx context.Context, actor models.Actor, ref models.SubjectRef) (*models.CredentialInstance, error) {
	inst, err := s.instances.FindInstance(ctx, actor.TenantID, ref)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find instance: %w", err)
	}
	return inst, nil
}

func (s *Service) ensure(ctx context.Context, actor models.Actor, ref models.SubjectRef, now time.Time) (*models.CredentialInstance, error) {
	inst, created, err := s.instances.EnsureInstance(ctx, actor.TenantID, ref, now)
	if err != nil {
		return nil, fmt.Errorf("ensure instance: %w", err)
	}
	if created {
		s.metrics.ObserveEnsured(string(ref.Kind))
	}
	return inst, nil
}

func (s *Service) loadProgress(ctx context.Context, actor models.Actor, inst *models.CredentialInstance) (*models.Progress, error) {
	now := s.clock.Now()
	if inst == nil {
		return New(actor.TenantID, primitive.NilObjectID, now), nil
	}
	p, err := s.progress.FindProgress(ctx, inst.ID)
	if errors.Is(err, db.ErrNotFound) {
		return New(inst.TenantID, inst.ID, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find progress: %w", err)
	}
	return p, nil
}

func (s *Service) state(ct *models.CredentialType, inst *models.CredentialInstance, p *models.Progress) *State {
	st := &State{Instance: inst, Document: ct.Instructions, Progress: p, Steps: []StepStatus{}}
	if ct.Instructions != nil {
		for i := range ct.Instructions.Steps {
			step := &ct.Instructions.Steps[i]
			st.Steps = append(st.Steps, StepStatus{
				ID:       step.ID,
				Title:    step.Title,
				Required: step.Required,
				Complete: IsStepComplete(step, p),
			})
		}
	}
	st.CanFinalize = !ct.IsAdminOnly() &&
		status.Evaluate(ct, inst, s.clock.Now()).CanSubmit &&
		IsAllStepsComplete(ct.Instructions, p)
	return st
}
