package requirements

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/models"
	"github.com/ukydev/fleet-compliance/internal/status"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CredentialView is one required credential of a subject with its current
// instance, if any, and computed status.
type CredentialView struct {
	CredentialType models.CredentialType     `json:"credential_type"`
	Instance       *models.CredentialInstance `json:"instance,omitempty"`
	status.Evaluation
}

// Overview is the credential checklist of one driver or vehicle.
type Overview struct {
	SubjectKind models.CredentialCategory `json:"subject_kind"`
	SubjectID   primitive.ObjectID        `json:"subject_id"`
	Credentials []CredentialView          `json:"credentials"`
	Progress    status.Summary            `json:"progress"`
}

// Service resolves requirements against the stores.
type Service struct {
	types       db.CredentialTypeCollection
	instances   db.CredentialInstanceCollection
	drivers     db.DriverCollection
	vehicles    db.VehicleCollection
	assignments db.AssignmentCollection
	clock       clock.Clock
	log         log.FieldLogger
}

// NewService creates a requirements service.
func NewService(store db.Store, clk clock.Clock, logger log.FieldLogger) *Service {
	return &Service{
		types:       store.CredentialTypes,
		instances:   store.Instances,
		drivers:     store.Drivers,
		vehicles:    store.Vehicles,
		assignments: store.Assignments,
		clock:       clk,
		log:         logger,
	}
}

// LoadSubject looks up a driver or vehicle and checks that actor may see it.
func (s *Service) LoadSubject(ctx context.Context, actor models.Actor, kind models.CredentialCategory, id primitive.ObjectID) (Subject, error) {
	const op = "requirements.LoadSubject"
	switch kind {
	case models.CategoryDriver:
		d, err := s.drivers.FindDriverByID(ctx, actor.TenantID, id)
		if errors.Is(err, db.ErrNotFound) {
			return Subject{}, apperr.NotFoundf(op, "driver %s not found", id.Hex())
		}
		if err != nil {
			return Subject{}, fmt.Errorf("find driver: %w", err)
		}
		if !actor.OwnsDriver(d.ID) {
			return Subject{}, apperr.Forbiddenf(op, "driver %s belongs to another account", id.Hex())
		}
		assignments, err := s.assignments.FindAssignmentsByDriver(ctx, actor.TenantID, d.ID)
		if err != nil {
			return Subject{}, fmt.Errorf("find assignments: %w", err)
		}
		return DriverSubject(d, assignments), nil

	case models.CategoryVehicle:
		v, err := s.vehicles.FindVehicleByID(ctx, actor.TenantID, id)
		if errors.Is(err, db.ErrNotFound) {
			return Subject{}, apperr.NotFoundf(op, "vehicle %s not found", id.Hex())
		}
		if err != nil {
			return Subject{}, fmt.Errorf("find vehicle: %w", err)
		}
		if !actor.IsAdmin() && (v.OwnerDriverID == nil || !actor.OwnsDriver(*v.OwnerDriverID)) {
			return Subject{}, apperr.Forbiddenf(op, "vehicle %s belongs to another account", id.Hex())
		}
		var assignments []models.BrokerAssignment
		if v.OwnerDriverID != nil {
			assignments, err = s.assignments.FindAssignmentsByDriver(ctx, actor.TenantID, *v.OwnerDriverID)
			if err != nil {
				return Subject{}, fmt.Errorf("find assignments: %w", err)
			}
		}
		return VehicleSubject(v, assignments), nil
	}
	return Subject{}, apperr.Validationf(op, "unknown subject kind %q", kind)
}

// ResolveForSubject returns the credential types required of subject now.
func (s *Service) ResolveForSubject(ctx context.Context, subject Subject) ([]models.CredentialType, error) {
	catalog, err := s.types.FindCredentialTypes(ctx, db.CredentialTypeFilter{
		TenantID:   subject.TenantID,
		Category:   subject.Kind,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list credential types: %w", err)
	}
	return Resolve(catalog, subject, s.clock.Now()), nil
}

// ResolveForDriver returns the credential types required of a driver.
func (s *Service) ResolveForDriver(ctx context.Context, actor models.Actor, driverID primitive.ObjectID) ([]models.CredentialType, error) {
	subject, err := s.LoadSubject(ctx, actor, models.CategoryDriver, driverID)
	if err != nil {
		return nil, err
	}
	return s.ResolveForSubject(ctx, subject)
}

// ResolveForVehicle returns the credential types required of a vehicle.
func (s *Service) ResolveForVehicle(ctx context.Context, actor models.Actor, vehicleID primitive.ObjectID) ([]models.CredentialType, error) {
	subject, err := s.LoadSubject(ctx, actor, models.CategoryVehicle, vehicleID)
	if err != nil {
		return nil, err
	}
	return s.ResolveForSubject(ctx, subject)
}

// Overview merges a subject's required credential types with its instances.
func (s *Service) Overview(ctx context.Context, actor models.Actor, kind models.CredentialCategory, subjectID primitive.ObjectID) (*Overview, error) {
	subject, err := s.LoadSubject(ctx, actor, kind, subjectID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	required, err := s.ResolveForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	instances, err := s.instances.FindInstancesBySubject(ctx, actor.TenantID, kind, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	byType := make(map[primitive.ObjectID]*models.CredentialInstance, len(instances))
	for i := range instances {
		byType[instances[i].CredentialTypeID] = &instances[i]
	}

	ov := &Overview{SubjectKind: kind, SubjectID: subjectID, Credentials: make([]CredentialView, 0, len(required))}
	items := make([]status.Item, 0, len(required))
	for i := range required {
		ct := &required[i]
		inst := byType[ct.ID]
		ev := status.Evaluate(ct, inst, now)
		ov.Credentials = append(ov.Credentials, CredentialView{CredentialType: *ct, Instance: inst, Evaluation: ev})
		items = append(items, status.Item{Requirement: ct.Requirement, Status: ev.Status})
	}
	ov.Progress = status.Summarize(items)

	s.log.WithFields(log.Fields{
		"tenant_id":    actor.TenantID.Hex(),
		"subject_kind": kind,
		"subject_id":   subjectID.Hex(),
		"required":     len(required),
		"complete":     ov.Progress.Complete,
	}).Debug("Resolved credential overview")
	return ov, nil
}

// LoadCredentialType returns the credential type ref points at. A missing type
// is a not-found error and a type of the wrong category a validation error.
func (s *Service) LoadCredentialType(ctx context.Context, actor models.Actor, ref models.SubjectRef) (*models.CredentialType, error) {
	const op = "requirements.LoadCredentialType"
	ct, err := s.types.FindCredentialTypeByID(ctx, actor.TenantID, ref.CredentialTypeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFoundf(op, "credential type %s not found", ref.CredentialTypeID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("find credential type: %w", err)
	}
	if ct.Category != ref.Kind {
		return nil, apperr.Validationf(op, "credential type %s is a %s credential, not %s", ct.Name, ct.Category, ref.Kind)
	}
	return ct, nil
}

// LoadCredential checks access to the subject of ref and loads its type.
func (s *Service) LoadCredential(ctx context.Context, actor models.Actor, ref models.SubjectRef) (Subject, *models.CredentialType, error) {
	subject, err := s.LoadSubject(ctx, actor, ref.Kind, ref.SubjectID)
	if err != nil {
		return Subject{}, nil, err
	}
	ct, err := s.LoadCredentialType(ctx, actor, ref)
	if err != nil {
		return Subject{}, nil, err
	}
	return subject, ct, nil
}
