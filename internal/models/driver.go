package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmploymentType is how a driver is engaged by the tenant.
type EmploymentType string

const (
	EmploymentW2   EmploymentType = "w2"
	Employment1099 EmploymentType = "1099"
)

// DriverStatus is the account state of a driver.
type DriverStatus string

const (
	DriverActive    DriverStatus = "active"
	DriverInactive  DriverStatus = "inactive"
	DriverSuspended DriverStatus = "suspended"
	DriverArchived  DriverStatus = "archived"
)

// Driver represents a driver onboarded by a tenant.
type Driver struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID       primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	UserID         primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	EmploymentType EmploymentType     `bson:"employment_type" json:"employment_type"`
	State          string             `bson:"state,omitempty" json:"state,omitempty"`
	Status         DriverStatus       `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
