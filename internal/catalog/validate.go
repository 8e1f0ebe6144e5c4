package catalog

import (
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/models"
)

// Validate checks a credential type before it is stored.
func Validate(ct *models.CredentialType) error {
	const op = "catalog.Validate"
	if ct.Name == "" {
		return apperr.Validationf(op, "name is required")
	}
	if !models.IsValidCategory(ct.Category) {
		return apperr.Validationf(op, "invalid category %q", ct.Category)
	}
	if !models.IsValidScope(ct.Scope) {
		return apperr.Validationf(op, "invalid scope %q", ct.Scope)
	}
	switch {
	case ct.Scope == models.ScopeBroker && ct.BrokerID == nil:
		return apperr.Validationf(op, "broker scoped types need a broker")
	case ct.Scope == models.ScopeGlobal && ct.BrokerID != nil:
		return apperr.Validationf(op, "global types cannot name a broker")
	}
	if !models.IsValidRequirement(ct.Requirement) {
		return apperr.Validationf(op, "invalid requirement %q", ct.Requirement)
	}
	if !models.IsValidEmploymentFilter(ct.EmploymentType) {
		return apperr.Validationf(op, "invalid employment type %q", ct.EmploymentType)
	}
	if ct.Category == models.CategoryVehicle && ct.EmploymentType != models.EmploymentBoth {
		return apperr.Validationf(op, "employment filters apply to driver types only")
	}
	if len(ct.VehicleTypes) > 0 && ct.Category != models.CategoryVehicle {
		return apperr.Validationf(op, "vehicle types apply to vehicle types only")
	}
	if !models.IsValidExpirationType(ct.ExpirationType) {
		return apperr.Validationf(op, "invalid expiration type %q", ct.ExpirationType)
	}
	if ct.ExpirationType == models.ExpirationFixedInterval {
		if ct.ExpirationIntervalDays <= 0 {
			return apperr.Validationf(op, "fixed interval expiration needs a positive interval")
		}
	} else if ct.ExpirationIntervalDays != 0 {
		return apperr.Validationf(op, "interval days are only used by fixed interval expiration")
	}
	if ct.WarningDays < 0 || ct.GracePeriodDays < 0 {
		return apperr.Validationf(op, "warning and grace days cannot be negative")
	}
	switch ct.Status {
	case models.TypeStatusActive, models.TypeStatusInactive:
	case models.TypeStatusScheduled:
		if ct.EffectiveDate == nil {
			return apperr.Validationf(op, "scheduled types need an effective date")
		}
	default:
		return apperr.Validationf(op, "invalid status %q", ct.Status)
	}
	return ValidateDocument(ct.Instructions)
}

// ValidateDocument checks that step ids are unique, that block ids are unique
// across the document and that every block carries the payload of its kind.
// A nil document is valid.
func ValidateDocument(doc *models.InstructionDocument) error {
	const op = "catalog.ValidateDocument"
	if doc == nil {
		return nil
	}
	switch doc.Settings.CompletionBehavior {
	case "", models.CompleteAllSteps, models.CompleteRequiredOnly:
	default:
		return apperr.Validationf(op, "invalid completion behavior %q", doc.Settings.CompletionBehavior)
	}
	steps := make(map[string]bool, len(doc.Steps))
	blocks := map[string]bool{}
	for i := range doc.Steps {
		s := &doc.Steps[i]
		if s.ID == "" {
			return apperr.Validationf(op, "step %d has no id", i)
		}
		if steps[s.ID] {
			return apperr.Validationf(op, "duplicate step id %q", s.ID)
		}
		steps[s.ID] = true
		for j := range s.Blocks {
			b := &s.Blocks[j]
			if b.ID == "" {
				return apperr.Validationf(op, "step %q block %d has no id", s.ID, j)
			}
			if blocks[b.ID] {
				return apperr.Validationf(op, "duplicate block id %q", b.ID)
			}
			blocks[b.ID] = true
			if err := b.Validate(); err != nil {
				return apperr.Wrap(apperr.Validation, op, err, "invalid block")
			}
			if err := validateChoices(b); err != nil {
				return apperr.Wrap(apperr.Validation, op, err, "invalid block")
			}
		}
	}
	return nil
}

func validateChoices(b *models.Block) error {
	seen := map[string]bool{}
	check := func(id string) error {
		if id == "" || seen[id] {
			return apperr.Validationf("", "block %s: choice ids must be unique and non-empty", b.ID)
		}
		seen[id] = true
		return nil
	}
	switch b.Kind {
	case models.BlockChecklist:
		for _, item := range b.Checklist.Items {
			if err := check(item.ID); err != nil {
				return err
			}
		}
	case models.BlockQuizQuestion:
		for _, o := range b.Quiz.Options {
			if err := check(o.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
