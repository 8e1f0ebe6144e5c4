package requirements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	now      = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tenantID = primitive.NewObjectID()
)

func credType(name string, category models.CredentialCategory, order int) models.CredentialType {
	return models.CredentialType{
		ID:                   primitive.NewObjectID(),
		TenantID:             tenantID,
		Name:                 name,
		Category:             category,
		Scope:                models.ScopeGlobal,
		Requirement:          models.RequirementRequired,
		RequiresDriverAction: models.DriverAction(true),
		DisplayOrder:         order,
		IsActive:             true,
		Status:               models.TypeStatusActive,
	}
}

func vehicle(vt string) Subject {
	return Subject{Kind: models.CategoryVehicle, ID: primitive.NewObjectID(), TenantID: tenantID, VehicleType: vt}
}

func names(types []models.CredentialType) []string {
	out := make([]string, len(types))
	for i, ct := range types {
		out[i] = ct.Name
	}
	return out
}

func TestResolve_VehicleTypeFilter(t *testing.T) {
	unfiltered := credType("Registration", models.CategoryVehicle, 0)
	emptyFilter := credType("Insurance", models.CategoryVehicle, 1)
	emptyFilter.VehicleTypes = []string{}
	wheelchair := credType("Ramp Inspection", models.CategoryVehicle, 2)
	wheelchair.VehicleTypes = []string{models.VehicleWheelchairVan}
	catalog := []models.CredentialType{unfiltered, emptyFilter, wheelchair}

	for _, vt := range []string{models.VehicleSedan, models.VehicleWheelchairVan, models.VehicleStretcherVan} {
		got := names(Resolve(catalog, vehicle(vt), now))
		assert.Contains(t, got, "Registration", vt)
		assert.Contains(t, got, "Insurance", vt)
	}
	assert.NotContains(t, names(Resolve(catalog, vehicle(models.VehicleSedan), now)), "Ramp Inspection")
	assert.Contains(t, names(Resolve(catalog, vehicle(models.VehicleWheelchairVan), now)), "Ramp Inspection")
}

func TestResolve_BrokerScoping(t *testing.T) {
	brokerID := primitive.NewObjectID()
	global := credType("License", models.CategoryDriver, 5)
	broker := credType("Broker Training", models.CategoryDriver, 0)
	broker.Scope = models.ScopeBroker
	broker.BrokerID = &brokerID
	catalog := []models.CredentialType{broker, global}

	d := &models.Driver{ID: primitive.NewObjectID(), TenantID: tenantID, EmploymentType: models.EmploymentW2}

	assert.Equal(t, []string{"License"}, names(Resolve(catalog, DriverSubject(d, nil), now)))

	removed := []models.BrokerAssignment{{DriverID: d.ID, BrokerID: brokerID, Status: models.AssignmentRemoved}}
	assert.Equal(t, []string{"License"}, names(Resolve(catalog, DriverSubject(d, removed), now)))

	for _, st := range []models.AssignmentStatus{models.AssignmentAssigned, models.AssignmentRequested, models.AssignmentPending} {
		assigned := []models.BrokerAssignment{{DriverID: d.ID, BrokerID: brokerID, Status: st}}
		assert.Equal(t, []string{"License", "Broker Training"}, names(Resolve(catalog, DriverSubject(d, assigned), now)), st)
	}

	other := []models.BrokerAssignment{{DriverID: d.ID, BrokerID: primitive.NewObjectID(), Status: models.AssignmentAssigned}}
	assert.Equal(t, []string{"License"}, names(Resolve(catalog, DriverSubject(d, other), now)))
}

func TestResolve_VehicleInheritsOwnerBrokers(t *testing.T) {
	brokerID := primitive.NewObjectID()
	broker := credType("Broker Decal", models.CategoryVehicle, 0)
	broker.Scope = models.ScopeBroker
	broker.BrokerID = &brokerID

	owner := primitive.NewObjectID()
	v := &models.Vehicle{ID: primitive.NewObjectID(), TenantID: tenantID, VehicleType: models.VehicleMinivan, OwnerDriverID: &owner}
	assignments := []models.BrokerAssignment{{DriverID: owner, BrokerID: brokerID, Status: models.AssignmentAssigned}}

	assert.Len(t, Resolve([]models.CredentialType{broker}, VehicleSubject(v, assignments), now), 1)
	assert.Empty(t, Resolve([]models.CredentialType{broker}, VehicleSubject(v, nil), now))
}

func TestResolve_EffectiveDatesAndActivity(t *testing.T) {
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	live := credType("Live", models.CategoryDriver, 0)
	scheduledPast := credType("Scheduled Past", models.CategoryDriver, 1)
	scheduledPast.Status = models.TypeStatusScheduled
	scheduledPast.EffectiveDate = &past
	scheduledFuture := credType("Scheduled Future", models.CategoryDriver, 2)
	scheduledFuture.Status = models.TypeStatusScheduled
	scheduledFuture.EffectiveDate = &future
	scheduledNoDate := credType("Scheduled Undated", models.CategoryDriver, 3)
	scheduledNoDate.Status = models.TypeStatusScheduled
	inactive := credType("Inactive", models.CategoryDriver, 4)
	inactive.IsActive = false
	inactive.Status = models.TypeStatusInactive
	vehicleType := credType("Vehicle Only", models.CategoryVehicle, 0)
	otherTenant := credType("Other Tenant", models.CategoryDriver, 0)
	otherTenant.TenantID = primitive.NewObjectID()

	catalog := []models.CredentialType{live, scheduledPast, scheduledFuture, scheduledNoDate, inactive, vehicleType, otherTenant}
	d := &models.Driver{ID: primitive.NewObjectID(), TenantID: tenantID, EmploymentType: models.Employment1099}

	assert.Equal(t, []string{"Live", "Scheduled Past"}, names(Resolve(catalog, DriverSubject(d, nil), now)))
}

func TestResolve_EmploymentFilter(t *testing.T) {
	w2 := credType("W-4", models.CategoryDriver, 0)
	w2.EmploymentType = models.EmploymentW2Only
	contractor := credType("W-9", models.CategoryDriver, 1)
	contractor.EmploymentType = models.Employment1099Only
	both := credType("License", models.CategoryDriver, 2)
	both.EmploymentType = models.EmploymentBoth
	catalog := []models.CredentialType{w2, contractor, both}

	employee := &models.Driver{ID: primitive.NewObjectID(), TenantID: tenantID, EmploymentType: models.EmploymentW2}
	assert.Equal(t, []string{"W-4", "License"}, names(Resolve(catalog, DriverSubject(employee, nil), now)))

	employee.EmploymentType = models.Employment1099
	assert.Equal(t, []string{"W-9", "License"}, names(Resolve(catalog, DriverSubject(employee, nil), now)))
}

func TestResolve_OrderingIsDeterministic(t *testing.T) {
	brokerID := primitive.NewObjectID()
	a := credType("Alpha", models.CategoryVehicle, 2)
	b := credType("Bravo", models.CategoryVehicle, 1)
	c := credType("Charlie", models.CategoryVehicle, 1)
	brokerFirst := credType("Broker", models.CategoryVehicle, 0)
	brokerFirst.Scope = models.ScopeBroker
	brokerFirst.BrokerID = &brokerID

	subject := vehicle(models.VehicleSUV)
	subject.Brokers = []primitive.ObjectID{brokerID}
	catalog := []models.CredentialType{a, brokerFirst, c, b}

	want := []string{"Bravo", "Charlie", "Alpha", "Broker"}
	for i := 0; i < 10; i++ {
		got := Resolve(catalog, subject, now)
		require.Len(t, got, 4)
		assert.Equal(t, want, names(got))
	}
	assert.Equal(t, "Alpha", catalog[0].Name, "input must not be reordered")
}
