package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by every store when the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrDuplicate is returned when an insert violates a unique index.
var ErrDuplicate = errors.New("duplicate document")

// CredentialTypeFilter narrows FindCredentialTypes. Zero fields match everything.
type CredentialTypeFilter struct {
	TenantID   primitive.ObjectID
	Category   models.CredentialCategory
	ActiveOnly bool
}

// CredentialTypeCollection defines the interface for credential type operations.
type CredentialTypeCollection interface {
	InsertCredentialType(ctx context.Context, ct *models.CredentialType) error
	FindCredentialTypeByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.CredentialType, error)
	FindCredentialTypes(ctx context.Context, filter CredentialTypeFilter) ([]models.CredentialType, error)
	UpdateCredentialType(ctx context.Context, ct models.CredentialType) error
	SetDisplayOrder(ctx context.Context, tenantID, id primitive.ObjectID, order int, now time.Time) error
}

// CredentialInstanceCollection defines the interface for credential instance
// operations. Implementations must keep at most one instance per SubjectRef.
type CredentialInstanceCollection interface {
	// EnsureInstance returns the instance for ref, creating it in the
	// not_submitted state when absent. created reports whether this call
	// created it.
	EnsureInstance(ctx context.Context, tenantID primitive.ObjectID, ref models.SubjectRef, now time.Time) (inst *models.CredentialInstance, created bool, err error)
	FindInstance(ctx context.Context, tenantID primitive.ObjectID, ref models.SubjectRef) (*models.CredentialInstance, error)
	FindInstanceByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.CredentialInstance, error)
	FindInstancesBySubject(ctx context.Context, tenantID primitive.ObjectID, kind models.CredentialCategory, subjectID primitive.ObjectID) ([]models.CredentialInstance, error)
	FindInstancesByStatus(ctx context.Context, tenantID primitive.ObjectID, statuses []models.InstanceStatus) ([]models.CredentialInstance, error)
	// UpdateReview writes every review field of u in a single update and
	// returns the resulting instance.
	UpdateReview(ctx context.Context, id primitive.ObjectID, u models.ReviewUpdate, now time.Time) (*models.CredentialInstance, error)
	// MarkSubmitted moves the instance to submitted, stores the submission
	// data and increments the submission version.
	MarkSubmitted(ctx context.Context, id primitive.ObjectID, sub models.Submission) (*models.CredentialInstance, error)
}

// ProgressCollection defines the interface for instruction progress operations.
type ProgressCollection interface {
	FindProgress(ctx context.Context, instanceID primitive.ObjectID) (*models.Progress, error)
	UpsertProgress(ctx context.Context, p models.Progress) error
	DeleteProgress(ctx context.Context, instanceID primitive.ObjectID) error
}

// AssignmentCollection defines the interface for broker assignment operations.
type AssignmentCollection interface {
	FindAssignmentsByDriver(ctx context.Context, tenantID, driverID primitive.ObjectID) ([]models.BrokerAssignment, error)
	UpsertAssignment(ctx context.Context, a models.BrokerAssignment) error
}

// AuditCollection defines the interface for the append-only review history.
type AuditCollection interface {
	AppendAudit(ctx context.Context, e models.AuditEntry) error
	FindAuditByInstance(ctx context.Context, tenantID, instanceID primitive.ObjectID) ([]models.AuditEntry, error)
}

// DriverCollection defines the interface for driver lookups.
type DriverCollection interface {
	InsertDriver(ctx context.Context, d *models.Driver) error
	FindDriverByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.Driver, error)
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, v *models.Vehicle) error
	FindVehicleByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.Vehicle, error)
	FindVehiclesByOwner(ctx context.Context, tenantID, driverID primitive.ObjectID) ([]models.Vehicle, error)
	UpdateVehicleStatus(ctx context.Context, tenantID, id primitive.ObjectID, status models.VehicleStatus) error
}

// Store bundles every collection the service needs.
type Store struct {
	CredentialTypes CredentialTypeCollection
	Instances       CredentialInstanceCollection
	Progress        ProgressCollection
	Assignments     AssignmentCollection
	Audit           AuditCollection
	Drivers         DriverCollection
	Vehicles        VehicleCollection
	Users           UserCollection
}
