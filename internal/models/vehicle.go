package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Vehicle types the tenant's fleet can contain.
const (
	VehicleSedan         = "sedan"
	VehicleSUV           = "suv"
	VehicleMinivan       = "minivan"
	VehicleWheelchairVan = "wheelchair_van"
	VehicleStretcherVan  = "stretcher_van"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleActive   VehicleStatus = "active"
	VehicleInactive VehicleStatus = "inactive"
	VehicleRetired  VehicleStatus = "retired"
)

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID      primitive.ObjectID  `bson:"tenant_id" json:"tenant_id"`
	VehicleType   string              `bson:"vehicle_type" json:"vehicle_type"`
	Make          string              `bson:"make" json:"make"`
	Model         string              `bson:"model" json:"model"`
	Year          int                 `bson:"year" json:"year"`
	OwnerDriverID *primitive.ObjectID `bson:"owner_driver_id,omitempty" json:"owner_driver_id,omitempty"`
	Status        VehicleStatus       `bson:"status" json:"status"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}
