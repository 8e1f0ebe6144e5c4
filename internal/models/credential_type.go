package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CredentialCategory says whether a credential belongs to a driver or a vehicle.
type CredentialCategory string

const (
	CategoryDriver  CredentialCategory = "driver"
	CategoryVehicle CredentialCategory = "vehicle"
)

// CredentialScope says whether a credential applies tenant-wide or per broker.
type CredentialScope string

const (
	ScopeGlobal CredentialScope = "global"
	ScopeBroker CredentialScope = "broker"
)

// RequirementLevel is how strongly a credential type is required.
type RequirementLevel string

const (
	RequirementRequired    RequirementLevel = "required"
	RequirementRecommended RequirementLevel = "recommended"
	RequirementOptional    RequirementLevel = "optional"
)

// EmploymentFilter restricts driver credential types by employment type.
type EmploymentFilter string

const (
	EmploymentBoth     EmploymentFilter = "both"
	EmploymentW2Only   EmploymentFilter = "w2_only"
	Employment1099Only EmploymentFilter = "1099_only"
)

// ExpirationType is the expiration policy of a credential type.
type ExpirationType string

const (
	ExpirationNever           ExpirationType = "never"
	ExpirationFixedInterval   ExpirationType = "fixed_interval"
	ExpirationDriverSpecified ExpirationType = "driver_specified"
)

// CredentialTypeStatus is the publication state of a credential type.
type CredentialTypeStatus string

const (
	TypeStatusActive    CredentialTypeStatus = "active"
	TypeStatusScheduled CredentialTypeStatus = "scheduled"
	TypeStatusInactive  CredentialTypeStatus = "inactive"
)

// SubmissionType is the legacy single-mode submission kind derived from the
// instruction document.
type SubmissionType string

const (
	SubmissionNone           SubmissionType = ""
	SubmissionDocumentUpload SubmissionType = "document_upload"
	SubmissionPhoto          SubmissionType = "photo"
	SubmissionSignature      SubmissionType = "signature"
	SubmissionForm           SubmissionType = "form"
	SubmissionAdminVerified  SubmissionType = "admin_verified"
	SubmissionDateEntry      SubmissionType = "date_entry"
)

// Default windows applied when a credential type is created without them.
const (
	DefaultWarningDays     = 30
	DefaultGracePeriodDays = 30
)

// CredentialType is a tenant-owned template describing one compliance
// document or attestation.
type CredentialType struct {
	ID                     primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	TenantID               primitive.ObjectID   `bson:"tenant_id" json:"tenant_id"`
	Name                   string               `bson:"name" json:"name"`
	Description            string               `bson:"description,omitempty" json:"description,omitempty"`
	Category               CredentialCategory   `bson:"category" json:"category"`
	Scope                  CredentialScope      `bson:"scope" json:"scope"`
	BrokerID               *primitive.ObjectID  `bson:"broker_id,omitempty" json:"broker_id,omitempty"`
	EmploymentType         EmploymentFilter     `bson:"employment_type" json:"employment_type"`
	Requirement            RequirementLevel     `bson:"requirement" json:"requirement"`
	VehicleTypes           []string             `bson:"vehicle_types,omitempty" json:"vehicle_types,omitempty"`
	SubmissionType         SubmissionType       `bson:"submission_type,omitempty" json:"submission_type,omitempty"`
	RequiresDriverAction   *bool                `bson:"requires_driver_action,omitempty" json:"requires_driver_action,omitempty"`
	ExpirationType         ExpirationType       `bson:"expiration_type" json:"expiration_type"`
	ExpirationIntervalDays int                  `bson:"expiration_interval_days,omitempty" json:"expiration_interval_days,omitempty"`
	WarningDays            int                  `bson:"expiration_warning_days" json:"expiration_warning_days"`
	GracePeriodDays        int                  `bson:"grace_period_days" json:"grace_period_days"`
	Instructions           *InstructionDocument `bson:"instructions,omitempty" json:"instructions,omitempty"`
	DisplayOrder           int                  `bson:"display_order" json:"display_order"`
	IsActive               bool                 `bson:"is_active" json:"is_active"`
	Status                 CredentialTypeStatus `bson:"status" json:"status"`
	EffectiveDate          *time.Time           `bson:"effective_date,omitempty" json:"effective_date,omitempty"`
	CreatedBy              primitive.ObjectID   `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt              time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time            `bson:"updated_at" json:"updated_at"`
}

// DriverAction returns v as a RequiresDriverAction value.
func DriverAction(v bool) *bool { return &v }

// DriverActs reports whether the driver completes the type. Documents without
// requires_driver_action fall back to the submission type.
func (ct *CredentialType) DriverActs() bool {
	if ct.RequiresDriverAction != nil {
		return *ct.RequiresDriverAction
	}
	return ct.SubmissionType != SubmissionAdminVerified
}

// IsAdminOnly reports whether only an administrator can satisfy the type.
func (ct *CredentialType) IsAdminOnly() bool {
	return !ct.DriverActs()
}

// IsLive reports whether the type is in force at now. Inactive types are never
// live; scheduled types become live once their effective date has passed.
func (ct *CredentialType) IsLive(now time.Time) bool {
	if !ct.IsActive {
		return false
	}
	switch ct.Status {
	case TypeStatusInactive:
		return false
	case TypeStatusScheduled:
		return ct.EffectiveDate != nil && !ct.EffectiveDate.After(now)
	default:
		return ct.EffectiveDate == nil || !ct.EffectiveDate.After(now)
	}
}

// AppliesToVehicleType reports whether the vehicle-type filter admits vt. An
// empty filter admits every vehicle type.
func (ct *CredentialType) AppliesToVehicleType(vt string) bool {
	if len(ct.VehicleTypes) == 0 {
		return true
	}
	for _, t := range ct.VehicleTypes {
		if t == vt {
			return true
		}
	}
	return false
}

// AppliesToEmployment reports whether the employment filter admits et.
func (ct *CredentialType) AppliesToEmployment(et EmploymentType) bool {
	switch ct.EmploymentType {
	case EmploymentW2Only:
		return et == EmploymentW2
	case Employment1099Only:
		return et == Employment1099
	default:
		return true
	}
}

// IsValidCategory checks if a credential category is known
func IsValidCategory(c CredentialCategory) bool {
	return c == CategoryDriver || c == CategoryVehicle
}

// IsValidScope checks if a credential scope is known
func IsValidScope(s CredentialScope) bool {
	return s == ScopeGlobal || s == ScopeBroker
}

// IsValidRequirement checks if a requirement level is known
func IsValidRequirement(r RequirementLevel) bool {
	switch r {
	case RequirementRequired, RequirementRecommended, RequirementOptional:
		return true
	}
	return false
}

// IsValidExpirationType checks if an expiration policy is known
func IsValidExpirationType(e ExpirationType) bool {
	switch e {
	case ExpirationNever, ExpirationFixedInterval, ExpirationDriverSpecified:
		return true
	}
	return false
}

// IsValidEmploymentFilter checks if an employment filter is known
func IsValidEmploymentFilter(e EmploymentFilter) bool {
	switch e {
	case EmploymentBoth, EmploymentW2Only, Employment1099Only:
		return true
	}
	return false
}
