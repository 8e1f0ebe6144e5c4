// Package requirements decides which credential types apply to a driver or a
// vehicle, and merges that set with the subject's instances.
package requirements

import (
	"bytes"
	"sort"
	"time"

	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subject holds the attributes of a driver or vehicle that resolution reads.
type Subject struct {
	Kind     models.CredentialCategory
	ID       primitive.ObjectID
	TenantID primitive.ObjectID
	// EmploymentType is set for drivers.
	EmploymentType models.EmploymentType
	// VehicleType is set for vehicles.
	VehicleType string
	// Brokers are the brokers the subject has a qualifying relationship
	// with. A vehicle inherits its owning driver's brokers.
	Brokers []primitive.ObjectID
}

// DriverSubject builds the Subject of a driver.
func DriverSubject(d *models.Driver, assignments []models.BrokerAssignment) Subject {
	return Subject{
		Kind:           models.CategoryDriver,
		ID:             d.ID,
		TenantID:       d.TenantID,
		EmploymentType: d.EmploymentType,
		Brokers:        qualifyingBrokers(assignments),
	}
}

// VehicleSubject builds the Subject of a vehicle from the assignments of its
// owning driver. Fleet vehicles without an owner have no brokers.
func VehicleSubject(v *models.Vehicle, ownerAssignments []models.BrokerAssignment) Subject {
	return Subject{
		Kind:        models.CategoryVehicle,
		ID:          v.ID,
		TenantID:    v.TenantID,
		VehicleType: v.VehicleType,
		Brokers:     qualifyingBrokers(ownerAssignments),
	}
}

func qualifyingBrokers(assignments []models.BrokerAssignment) []primitive.ObjectID {
	var out []primitive.ObjectID
	for _, a := range assignments {
		if a.Status.Qualifies() {
			out = append(out, a.BrokerID)
		}
	}
	return out
}

func (s Subject) hasBroker(id primitive.ObjectID) bool {
	for _, b := range s.Brokers {
		if b == id {
			return true
		}
	}
	return false
}

// Applies reports whether ct is required of subject at now.
func Applies(ct *models.CredentialType, subject Subject, now time.Time) bool {
	if ct.TenantID != subject.TenantID || ct.Category != subject.Kind {
		return false
	}
	if !ct.IsLive(now) {
		return false
	}
	switch ct.Scope {
	case models.ScopeGlobal:
	case models.ScopeBroker:
		if ct.BrokerID == nil || !subject.hasBroker(*ct.BrokerID) {
			return false
		}
	default:
		return false
	}
	switch subject.Kind {
	case models.CategoryVehicle:
		return ct.AppliesToVehicleType(subject.VehicleType)
	case models.CategoryDriver:
		return ct.AppliesToEmployment(subject.EmploymentType)
	}
	return false
}

// Resolve returns the credential types of catalog that apply to subject,
// ordered global before broker, then by display order, name and id. The input
// slice is not modified.
func Resolve(catalog []models.CredentialType, subject Subject, now time.Time) []models.CredentialType {
	out := []models.CredentialType{}
	for i := range catalog {
		if Applies(&catalog[i], subject, now) {
			out = append(out, catalog[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	return out
}

func less(a, b *models.CredentialType) bool {
	if ga, gb := a.Scope == models.ScopeGlobal, b.Scope == models.ScopeGlobal; ga != gb {
		return ga
	}
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
