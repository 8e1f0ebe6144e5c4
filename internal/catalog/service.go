// Package catalog manages a tenant's credential types.
package catalog

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
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Draft holds the fields of a new credential type. Zero values take the
// registry defaults.
type Draft struct {
	Name                   string                      `json:"name"`
	Description            string                      `json:"description"`
	Category               models.CredentialCategory   `json:"category"`
	Scope                  models.CredentialScope      `json:"scope"`
	BrokerID               *primitive.ObjectID         `json:"broker_id,omitempty"`
	EmploymentType         models.EmploymentFilter     `json:"employment_type"`
	Requirement            models.RequirementLevel     `json:"requirement"`
	VehicleTypes           []string                    `json:"vehicle_types,omitempty"`
	RequiresDriverAction   *bool                       `json:"requires_driver_action,omitempty"`
	ExpirationType         models.ExpirationType       `json:"expiration_type"`
	ExpirationIntervalDays int                         `json:"expiration_interval_days"`
	WarningDays            *int                        `json:"expiration_warning_days,omitempty"`
	GracePeriodDays        *int                        `json:"grace_period_days,omitempty"`
	Instructions           *models.InstructionDocument `json:"instructions,omitempty"`
	TemplateID             string                      `json:"template_id,omitempty"`
	Status                 models.CredentialTypeStatus `json:"status"`
	EffectiveDate          *time.Time                  `json:"effective_date,omitempty"`
}

// Patch changes selected fields of a credential type. Nil fields are left
// alone. The category of a type is fixed once created.
type Patch struct {
	Name                   *string                      `json:"name,omitempty"`
	Description            *string                      `json:"description,omitempty"`
	Scope                  *models.CredentialScope      `json:"scope,omitempty"`
	BrokerID               *primitive.ObjectID          `json:"broker_id,omitempty"`
	EmploymentType         *models.EmploymentFilter     `json:"employment_type,omitempty"`
	Requirement            *models.RequirementLevel     `json:"requirement,omitempty"`
	VehicleTypes           *[]string                    `json:"vehicle_types,omitempty"`
	RequiresDriverAction   *bool                        `json:"requires_driver_action,omitempty"`
	ExpirationType         *models.ExpirationType       `json:"expiration_type,omitempty"`
	ExpirationIntervalDays *int                         `json:"expiration_interval_days,omitempty"`
	WarningDays            *int                         `json:"expiration_warning_days,omitempty"`
	GracePeriodDays        *int                         `json:"grace_period_days,omitempty"`
	Status                 *models.CredentialTypeStatus `json:"status,omitempty"`
	EffectiveDate          *time.Time                   `json:"effective_date,omitempty"`
}

// ListFilter narrows List.
type ListFilter struct {
	Category        models.CredentialCategory
	IncludeInactive bool
}

// Service is the credential type registry.
type Service struct {
	types     db.CredentialTypeCollection
	templates []Template
	clock     clock.Clock
	log       log.FieldLogger
}

// NewService creates a registry backed by the store's credential types.
func NewService(store db.Store, clk clock.Clock, logger log.FieldLogger) *Service {
	return &Service{
		types:     store.CredentialTypes,
		templates: Builtin(),
		clock:     clk,
		log:       logger,
	}
}

func canManage(op string, actor models.Actor) error {
	if !actor.Role.Allows(models.ActionManageCredentialTypes) {
		return apperr.Forbiddenf(op, "role %s cannot manage credential types", actor.Role)
	}
	return nil
}

// Templates returns the built-in instruction templates.
func (s *Service) Templates() []Template {
	return s.templates
}

// Template looks a built-in template up by id.
func (s *Service) Template(id string) (Template, bool) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Create validates and stores a new credential type. The type is appended
// after the tenant's existing types of the same category.
func (s *Service) Create(ctx context.Context, actor models.Actor, d Draft) (*models.CredentialType, error) {
	const op = "catalog.Create"
	if err := canManage(op, actor); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	ct := &models.CredentialType{
		TenantID:               actor.TenantID,
		Name:                   d.Name,
		Description:            d.Description,
		Category:               d.Category,
		Scope:                  d.Scope,
		BrokerID:               d.BrokerID,
		EmploymentType:         d.EmploymentType,
		Requirement:            d.Requirement,
		VehicleTypes:           normalizeVehicleTypes(d.VehicleTypes),
		RequiresDriverAction:   models.DriverAction(true),
		ExpirationType:         d.ExpirationType,
		ExpirationIntervalDays: d.ExpirationIntervalDays,
		WarningDays:            models.DefaultWarningDays,
		GracePeriodDays:        models.DefaultGracePeriodDays,
		Instructions:           d.Instructions.Clone(),
		IsActive:               true,
		Status:                 d.Status,
		EffectiveDate:          d.EffectiveDate,
		CreatedBy:              actor.UserID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if ct.Scope == "" {
		ct.Scope = models.ScopeGlobal
	}
	if ct.EmploymentType == "" {
		ct.EmploymentType = models.EmploymentBoth
	}
	if ct.Requirement == "" {
		ct.Requirement = models.RequirementRequired
	}
	if ct.ExpirationType == "" {
		ct.ExpirationType = models.ExpirationNever
	}
	if ct.Status == "" {
		ct.Status = models.TypeStatusActive
	}
	if d.WarningDays != nil {
		ct.WarningDays = *d.WarningDays
	}
	if d.GracePeriodDays != nil {
		ct.GracePeriodDays = *d.GracePeriodDays
	}

	if ct.Instructions == nil {
		id := d.TemplateID
		if id == "" {
			id = DefaultTemplateID
		}
		t, ok := s.Template(id)
		if !ok {
			return nil, apperr.Validationf(op, "unknown template %q", id)
		}
		ct.Instructions = t.Instantiate()
		ct.RequiresDriverAction = models.DriverAction(!t.AdminOnly)
	}
	if d.RequiresDriverAction != nil {
		ct.RequiresDriverAction = models.DriverAction(*d.RequiresDriverAction)
	}
	ct.SubmissionType = DeriveSubmissionType(ct.Instructions, ct.DriverActs())
	if err := Validate(ct); err != nil {
		return nil, err
	}

	existing, err := s.types.FindCredentialTypes(ctx, db.CredentialTypeFilter{TenantID: actor.TenantID, Category: ct.Category})
	if err != nil {
		return nil, fmt.Errorf("list credential types: %w", err)
	}
	for _, e := range existing {
		if e.DisplayOrder >= ct.DisplayOrder {
			ct.DisplayOrder = e.DisplayOrder + 1
		}
	}
	if err := s.types.InsertCredentialType(ctx, ct); err != nil {
		return nil, fmt.Errorf("insert credential type: %w", err)
	}
	s.log.WithFields(log.Fields{
		"tenant_id":          actor.TenantID.Hex(),
		"credential_type_id": ct.ID.Hex(),
		"category":           ct.Category,
		"scope":              ct.Scope,
	}).Info("Credential type created")
	return ct, nil
}

// Get returns one credential type of the actor's tenant.
func (s *Service) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.CredentialType, error) {
	ct, err := s.types.FindCredentialTypeByID(ctx, actor.TenantID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFoundf("catalog.Get", "credential type %s not found", id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("find credential type: %w", err)
	}
	return ct, nil
}

// List returns the tenant's credential types ordered by scope, category and
// display order. Drivers only see live types.
func (s *Service) List(ctx context.Context, actor models.Actor, f ListFilter) ([]models.CredentialType, error) {
	all, err := s.types.FindCredentialTypes(ctx, db.CredentialTypeFilter{
		TenantID:   actor.TenantID,
		Category:   f.Category,
		ActiveOnly: !f.IncludeInactive || !actor.IsAdmin(),
	})
	if err != nil {
		return nil, fmt.Errorf("list credential types: %w", err)
	}
	out := all[:0]
	now := s.clock.Now()
	for _, ct := range all {
		if !actor.IsAdmin() && !ct.IsLive(now) {
			continue
		}
		out = append(out, ct)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scope != b.Scope {
			return a.Scope == models.ScopeGlobal
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.DisplayOrder < b.DisplayOrder
	})
	return out, nil
}

// Update applies a patch and revalidates the type.
func (s *Service) Update(ctx context.Context, actor models.Actor, id primitive.ObjectID, p Patch) (*models.CredentialType, error) {
	const op = "catalog.Update"
	if err := canManage(op, actor); err != nil {
		return nil, err
	}
	ct, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		ct.Name = *p.Name
	}
	if p.Description != nil {
		ct.Description = *p.Description
	}
	if p.Scope != nil {
		ct.Scope = *p.Scope
		if ct.Scope == models.ScopeGlobal {
			ct.BrokerID = nil
		}
	}
	if p.BrokerID != nil {
		ct.BrokerID = p.BrokerID
	}
	if p.EmploymentType != nil {
		ct.EmploymentType = *p.EmploymentType
	}
	if p.Requirement != nil {
		ct.Requirement = *p.Requirement
	}
	if p.VehicleTypes != nil {
		ct.VehicleTypes = normalizeVehicleTypes(*p.VehicleTypes)
	}
	if p.RequiresDriverAction != nil {
		ct.RequiresDriverAction = models.DriverAction(*p.RequiresDriverAction)
	}
	if p.ExpirationType != nil {
		ct.ExpirationType = *p.ExpirationType
		if ct.ExpirationType != models.ExpirationFixedInterval {
			ct.ExpirationIntervalDays = 0
		}
	}
	if p.ExpirationIntervalDays != nil {
		ct.ExpirationIntervalDays = *p.ExpirationIntervalDays
	}
	if p.WarningDays != nil {
		ct.WarningDays = *p.WarningDays
	}
	if p.GracePeriodDays != nil {
		ct.GracePeriodDays = *p.GracePeriodDays
	}
	if p.Status != nil {
		ct.Status = *p.Status
	}
	if p.EffectiveDate != nil {
		ct.EffectiveDate = p.EffectiveDate
	}
	ct.SubmissionType = DeriveSubmissionType(ct.Instructions, ct.DriverActs())
	if err := Validate(ct); err != nil {
		return nil, err
	}
	return s.save(ctx, actor, ct, "Credential type updated")
}

// UpdateInstructions replaces the instruction document of a type.
func (s *Service) UpdateInstructions(ctx context.Context, actor models.Actor, id primitive.ObjectID, doc *models.InstructionDocument) (*models.CredentialType, error) {
	const op = "catalog.UpdateInstructions"
	if err := canManage(op, actor); err != nil {
		return nil, err
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	ct, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	ct.Instructions = doc.Clone()
	ct.SubmissionType = DeriveSubmissionType(ct.Instructions, ct.DriverActs())
	return s.save(ctx, actor, ct, "Credential type instructions updated")
}

// Deactivate hides a type from requirement resolution. Existing instances
// are kept.
func (s *Service) Deactivate(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.CredentialType, error) {
	return s.setActive(ctx, actor, id, false)
}

// Reactivate makes a deactivated type apply again.
func (s *Service) Reactivate(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.CredentialType, error) {
	return s.setActive(ctx, actor, id, true)
}

func (s *Service) setActive(ctx context.Context, actor models.Actor, id primitive.ObjectID, active bool) (*models.CredentialType, error) {
	if err := canManage("catalog.SetActive", actor); err != nil {
		return nil, err
	}
	ct, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	ct.IsActive = active
	msg := "Credential type deactivated"
	if active {
		msg = "Credential type reactivated"
	}
	return s.save(ctx, actor, ct, msg)
}

// Reorder assigns display order by position in ids. Every id must belong to
// the tenant; nothing is written otherwise.
func (s *Service) Reorder(ctx context.Context, actor models.Actor, ids []primitive.ObjectID) error {
	const op = "catalog.Reorder"
	if err := canManage(op, actor); err != nil {
		return err
	}
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return apperr.Validationf(op, "credential type %s listed twice", id.Hex())
		}
		seen[id] = true
		if _, err := s.Get(ctx, actor, id); err != nil {
			return err
		}
	}
	now := s.clock.Now()
	for i, id := range ids {
		if err := s.types.SetDisplayOrder(ctx, actor.TenantID, id, i, now); err != nil {
			return fmt.Errorf("set display order: %w", err)
		}
	}
	s.log.WithFields(log.Fields{
		"tenant_id": actor.TenantID.Hex(),
		"count":     len(ids),
	}).Info("Credential types reordered")
	return nil
}

func (s *Service) save(ctx context.Context, actor models.Actor, ct *models.CredentialType, msg string) (*models.CredentialType, error) {
	ct.UpdatedAt = s.clock.Now()
	if err := s.types.UpdateCredentialType(ctx, *ct); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFoundf("catalog.save", "credential type %s not found", ct.ID.Hex())
		}
		return nil, fmt.Errorf("update credential type: %w", err)
	}
	s.log.WithFields(log.Fields{
		"tenant_id":          actor.TenantID.Hex(),
		"credential_type_id": ct.ID.Hex(),
		"active":             ct.IsActive,
	}).Info(msg)
	return ct, nil
}

func normalizeVehicleTypes(vt []string) []string {
	if len(vt) == 0 {
		return nil
	}
	return append([]string(nil), vt...)
}
