package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentStatus is the state of a driver's relationship to a broker.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAssigned AssignmentStatus = "assigned"
	AssignmentRemoved  AssignmentStatus = "removed"
	// AssignmentRequested is the legacy spelling of a pending request.
	AssignmentRequested AssignmentStatus = "requested"
)

// Qualifies reports whether the assignment makes the broker's credential
// types apply to the driver.
func (s AssignmentStatus) Qualifies() bool {
	switch s {
	case AssignmentAssigned, AssignmentPending, AssignmentRequested:
		return true
	}
	return false
}

// BrokerAssignment relates a driver to a trip-source broker.
type BrokerAssignment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	DriverID  primitive.ObjectID `bson:"driver_id" json:"driver_id"`
	BrokerID  primitive.ObjectID `bson:"broker_id" json:"broker_id"`
	Status    AssignmentStatus   `bson:"status" json:"status"`
	UpdatedBy primitive.ObjectID `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
