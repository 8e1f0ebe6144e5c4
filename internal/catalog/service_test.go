package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.Fake, models.Actor) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := clock.NewFake(now)
	admin := models.Actor{TenantID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
	return NewService(db.NewMemoryStore(), clk, logger), clk, admin
}

func TestService_CreateAppliesDefaults(t *testing.T) {
	svc, _, admin := newTestService(t)
	ct, err := svc.Create(context.Background(), admin, Draft{Name: "Driver License", Category: models.CategoryDriver})
	require.NoError(t, err)

	assert.False(t, ct.ID.IsZero())
	assert.Equal(t, admin.TenantID, ct.TenantID)
	assert.Equal(t, models.ScopeGlobal, ct.Scope)
	assert.Equal(t, models.EmploymentBoth, ct.EmploymentType)
	assert.Equal(t, models.RequirementRequired, ct.Requirement)
	assert.Equal(t, models.ExpirationNever, ct.ExpirationType)
	assert.Equal(t, models.DefaultWarningDays, ct.WarningDays)
	assert.Equal(t, models.DefaultGracePeriodDays, ct.GracePeriodDays)
	assert.True(t, ct.IsActive)
	assert.True(t, ct.DriverActs())
	require.NotNil(t, ct.Instructions, "the default template is applied")
	assert.Equal(t, models.SubmissionDocumentUpload, ct.SubmissionType)
	assert.Equal(t, admin.UserID, ct.CreatedBy)
	assert.True(t, ct.CreatedAt.Equal(now))
}

func TestService_CreateFromAdminTemplate(t *testing.T) {
	svc, _, admin := newTestService(t)
	ct, err := svc.Create(context.Background(), admin, Draft{Name: "Background check", Category: models.CategoryDriver, TemplateID: "admin_verified"})
	require.NoError(t, err)
	assert.False(t, ct.DriverActs())
	assert.True(t, ct.IsAdminOnly())
	assert.Equal(t, models.SubmissionAdminVerified, ct.SubmissionType)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, Draft{Category: models.CategoryDriver})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Create(ctx, admin, Draft{Name: "x", Category: models.CategoryDriver, TemplateID: "nope"})
	assert.True(t, apperr.IsValidation(err))

	list, err := svc.List(ctx, admin, ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateNormalizesVehicleTypes(t *testing.T) {
	svc, _, admin := newTestService(t)
	ct, err := svc.Create(context.Background(), admin, Draft{Name: "Inspection", Category: models.CategoryVehicle, VehicleTypes: []string{}})
	require.NoError(t, err)
	assert.Nil(t, ct.VehicleTypes)
}

func TestService_DriverCannotManage(t *testing.T) {
	svc, _, admin := newTestService(t)
	driver := admin
	driver.Role = models.RoleDriver
	_, err := svc.Create(context.Background(), driver, Draft{Name: "x", Category: models.CategoryDriver})
	assert.True(t, apperr.IsForbidden(err))
}

func TestService_GetNotFound(t *testing.T) {
	svc, _, admin := newTestService(t)
	_, err := svc.Get(context.Background(), admin, primitive.NewObjectID())
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_GetIsTenantScoped(t *testing.T) {
	svc, _, admin := newTestService(t)
	ct, err := svc.Create(context.Background(), admin, Draft{Name: "x", Category: models.CategoryDriver})
	require.NoError(t, err)

	other := admin
	other.TenantID = primitive.NewObjectID()
	_, err = svc.Get(context.Background(), other, ct.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestService_UpdateRevalidates(t *testing.T) {
	svc, clk, admin := newTestService(t)
	ctx := context.Background()
	ct, err := svc.Create(ctx, admin, Draft{Name: "Insurance", Category: models.CategoryVehicle})
	require.NoError(t, err)

	interval := models.ExpirationFixedInterval
	_, err = svc.Update(ctx, admin, ct.ID, Patch{ExpirationType: &interval})
	assert.True(t, apperr.IsValidation(err))

	stored, err := svc.Get(ctx, admin, ct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExpirationNever, stored.ExpirationType, "failed updates are not stored")

	clk.Advance(time.Hour)
	days := 365
	updated, err := svc.Update(ctx, admin, ct.ID, Patch{ExpirationType: &interval, ExpirationIntervalDays: &days})
	require.NoError(t, err)
	assert.Equal(t, 365, updated.ExpirationIntervalDays)
	assert.True(t, updated.UpdatedAt.Equal(now.Add(time.Hour)))

	never := false
	updated, err = svc.Update(ctx, admin, ct.ID, Patch{RequiresDriverAction: &never})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionAdminVerified, updated.SubmissionType)
}

func TestService_DeactivateReactivate(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	ct, err := svc.Create(ctx, admin, Draft{Name: "x", Category: models.CategoryDriver})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, admin, ct.ID)
	require.NoError(t, err)
	active, err := svc.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.List(ctx, admin, ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	again, err := svc.Reactivate(ctx, admin, ct.ID)
	require.NoError(t, err)
	assert.True(t, again.IsActive)
}

func TestService_ListOrdering(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	broker := primitive.NewObjectID()

	b, err := svc.Create(ctx, admin, Draft{Name: "Broker badge", Category: models.CategoryDriver, Scope: models.ScopeBroker, BrokerID: &broker})
	require.NoError(t, err)
	first, err := svc.Create(ctx, admin, Draft{Name: "License", Category: models.CategoryDriver})
	require.NoError(t, err)
	second, err := svc.Create(ctx, admin, Draft{Name: "Medical card", Category: models.CategoryDriver})
	require.NoError(t, err)
	veh, err := svc.Create(ctx, admin, Draft{Name: "Registration", Category: models.CategoryVehicle})
	require.NoError(t, err)

	require.NoError(t, svc.Reorder(ctx, admin, []primitive.ObjectID{second.ID, first.ID, b.ID}))

	list, err := svc.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	var ids []primitive.ObjectID
	for _, ct := range list {
		ids = append(ids, ct.ID)
	}
	assert.Equal(t, []primitive.ObjectID{second.ID, first.ID, veh.ID, b.ID}, ids)

	drivers, err := svc.List(ctx, admin, ListFilter{Category: models.CategoryVehicle})
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, veh.ID, drivers[0].ID)
}

func TestService_ReorderUnknownIDWritesNothing(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, admin, Draft{Name: "a", Category: models.CategoryDriver})
	require.NoError(t, err)
	b, err := svc.Create(ctx, admin, Draft{Name: "b", Category: models.CategoryDriver})
	require.NoError(t, err)

	err = svc.Reorder(ctx, admin, []primitive.ObjectID{b.ID, primitive.NewObjectID(), a.ID})
	assert.True(t, apperr.IsNotFound(err))

	stored, err := svc.Get(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DisplayOrder)

	err = svc.Reorder(ctx, admin, []primitive.ObjectID{a.ID, a.ID})
	assert.True(t, apperr.IsValidation(err))
}

func TestService_UpdateInstructions(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	ct, err := svc.Create(ctx, admin, Draft{Name: "Agreement", Category: models.CategoryDriver})
	require.NoError(t, err)

	tmpl, ok := svc.Template("signature")
	require.True(t, ok)
	updated, err := svc.UpdateInstructions(ctx, admin, ct.ID, tmpl.Instantiate())
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSignature, updated.SubmissionType)
	assert.Len(t, updated.Instructions.Steps, 2)

	bad := &models.InstructionDocument{Steps: []models.InstructionStep{{ID: "s"}, {ID: "s"}}}
	_, err = svc.UpdateInstructions(ctx, admin, ct.ID, bad)
	assert.True(t, apperr.IsValidation(err))
}

func TestService_DriversSeeOnlyLiveTypes(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	future := now.Add(48 * time.Hour)
	_, err := svc.Create(ctx, admin, Draft{Name: "Later", Category: models.CategoryDriver, Status: models.TypeStatusScheduled, EffectiveDate: &future})
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, Draft{Name: "Now", Category: models.CategoryDriver})
	require.NoError(t, err)

	driver := admin
	driver.Role = models.RoleDriver
	list, err := svc.List(ctx, driver, ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Now", list[0].Name)
}
