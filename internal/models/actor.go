package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Actor is the caller on whose behalf a core operation runs. Every service
// method receives it explicitly instead of reading session state.
type Actor struct {
	TenantID primitive.ObjectID
	UserID   primitive.ObjectID
	Role     Role
	// DriverID is set for driver accounts.
	DriverID *primitive.ObjectID
}

// IsAdmin reports whether the actor administers its tenant.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// OwnsDriver reports whether the actor may act for the given driver. Admins
// may act for every driver of their tenant.
func (a Actor) OwnsDriver(driverID primitive.ObjectID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.DriverID != nil && *a.DriverID == driverID
}

// ActorFromClaims converts validated token claims into an Actor.
func ActorFromClaims(c *Claims) (Actor, error) {
	tenantID, err := primitive.ObjectIDFromHex(c.TenantID)
	if err != nil {
		return Actor{}, err
	}
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		return Actor{}, err
	}
	actor := Actor{TenantID: tenantID, UserID: userID, Role: c.Role}
	if c.DriverID != "" {
		driverID, err := primitive.ObjectIDFromHex(c.DriverID)
		if err != nil {
			return Actor{}, err
		}
		actor.DriverID = &driverID
	}
	return actor, nil
}
