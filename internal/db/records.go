package db

import (
	"context"

	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProgressCollection wraps a MongoDB collection for instruction progress.
type MongoProgressCollection struct {
	Collection *mongo.Collection
}

// FindProgress returns the saved progress of an instance.
func (c *MongoProgressCollection) FindProgress(ctx context.Context, instanceID primitive.ObjectID) (*models.Progress, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var p models.Progress
	if err := c.Collection.FindOne(ctx, bson.M{"instance_id": instanceID}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// UpsertProgress replaces the progress document of p.InstanceID.
func (c *MongoProgressCollection) UpsertProgress(ctx context.Context, p models.Progress) error {
	if c.Collection == nil {
		return errNilCollection
	}
	p.ID = primitive.NilObjectID
	_, err := c.Collection.ReplaceOne(ctx, bson.M{"instance_id": p.InstanceID}, p, options.Replace().SetUpsert(true))
	return err
}

// DeleteProgress removes saved progress. Deleting absent progress is not an error.
func (c *MongoProgressCollection) DeleteProgress(ctx context.Context, instanceID primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.DeleteOne(ctx, bson.M{"instance_id": instanceID})
	return err
}

// MongoAssignmentCollection wraps a MongoDB collection for broker assignments.
type MongoAssignmentCollection struct {
	Collection *mongo.Collection
}

// FindAssignmentsByDriver lists every assignment of a driver, in any status.
func (c *MongoAssignmentCollection) FindAssignmentsByDriver(ctx context.Context, tenantID, driverID primitive.ObjectID) ([]models.BrokerAssignment, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"tenant_id": tenantID, "driver_id": driverID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := []models.BrokerAssignment{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertAssignment stores the assignment keyed by driver and broker.
func (c *MongoAssignmentCollection) UpsertAssignment(ctx context.Context, a models.BrokerAssignment) error {
	if c.Collection == nil {
		return errNilCollection
	}
	a.ID = primitive.NilObjectID
	_, err := c.Collection.ReplaceOne(ctx,
		bson.M{"driver_id": a.DriverID, "broker_id": a.BrokerID},
		a,
		options.Replace().SetUpsert(true),
	)
	return err
}

// MongoAuditCollection wraps a MongoDB collection for review history.
type MongoAuditCollection struct {
	Collection *mongo.Collection
}

// AppendAudit inserts an audit entry.
func (c *MongoAuditCollection) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.InsertOne(ctx, e)
	return err
}

// FindAuditByInstance returns an instance's history, oldest first.
func (c *MongoAuditCollection) FindAuditByInstance(ctx context.Context, tenantID, instanceID primitive.ObjectID) ([]models.AuditEntry, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"tenant_id": tenantID, "instance_id": instanceID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := []models.AuditEntry{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoDriverCollection wraps a MongoDB collection for drivers.
type MongoDriverCollection struct {
	Collection *mongo.Collection
}

// InsertDriver inserts a driver and assigns its ID when unset.
func (c *MongoDriverCollection) InsertDriver(ctx context.Context, d *models.Driver) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, d)
	return err
}

// FindDriverByID finds a tenant's driver by its ID.
func (c *MongoDriverCollection) FindDriverByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.Driver, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var d models.Driver
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&d); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// MongoVehicleCollection wraps a MongoDB collection for vehicles.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record and assigns its ID when unset.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, v *models.Vehicle) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	_, err := c.Collection.InsertOne(ctx, v)
	return err
}

// FindVehicleByID finds a tenant's vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, tenantID, id primitive.ObjectID) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var v models.Vehicle
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&v); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// FindVehiclesByOwner lists the vehicles owned by a driver.
func (c *MongoVehicleCollection) FindVehiclesByOwner(ctx context.Context, tenantID, driverID primitive.ObjectID) ([]models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"tenant_id": tenantID, "owner_driver_id": driverID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := []models.Vehicle{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVehicleStatus changes a vehicle's status. Retired vehicles keep their
// credential instances.
func (c *MongoVehicleCollection) UpdateVehicleStatus(ctx context.Context, tenantID, id primitive.ObjectID, status models.VehicleStatus) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
