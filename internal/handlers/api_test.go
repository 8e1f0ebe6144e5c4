package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/auth"
	"github.com/ukydev/fleet-compliance/internal/catalog"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/instructions"
	"github.com/ukydev/fleet-compliance/internal/metrics"
	"github.com/ukydev/fleet-compliance/internal/middleware"
	"github.com/ukydev/fleet-compliance/internal/models"
	"github.com/ukydev/fleet-compliance/internal/notify"
	"github.com/ukydev/fleet-compliance/internal/requirements"
	"github.com/ukydev/fleet-compliance/internal/review"
	"github.com/ukydev/fleet-compliance/internal/status"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testServer struct {
	handler     http.Handler
	authService *auth.Service
	tenantID    primitive.ObjectID
	adminToken  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := db.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger, _ := test.NewNullLogger()
	m := metrics.New()
	authService := auth.NewService("test-secret", 0)
	authMW := middleware.NewAuthMiddleware(authService)

	req := requirements.NewService(store, clk, logger)
	ins := instructions.NewService(store, req, clk, m, notify.Nop{}, logger)
	rev := review.NewService(store, req, clk, m, notify.Nop{}, logger)
	rt := &Router{
		Auth:            NewAuthHandler(authService, store.Users, logger),
		CredentialTypes: NewCredentialTypeHandler(catalog.NewService(store, clk, logger), logger),
		Drivers:         NewCredentialHandler(models.CategoryDriver, req, ins, rev, logger),
		Vehicles:        NewCredentialHandler(models.CategoryVehicle, req, ins, rev, logger),
		ReviewQueue:     NewReviewQueueHandler(rev, logger),
		Fleet:           NewFleetHandler(store, clk, logger),
		Metrics:         m.Handler(),
		Middleware:      authMW,
	}

	s := &testServer{
		handler:     authMW.Authenticate(rt.Handler()),
		authService: authService,
		tenantID:    primitive.NewObjectID(),
	}
	s.adminToken = s.token(t, models.RoleAdmin, nil)
	return s
}

func (s *testServer) token(t *testing.T, role models.Role, driverID *primitive.ObjectID) string {
	t.Helper()
	token, err := s.authService.GenerateToken(&models.User{
		ID:       primitive.NewObjectID(),
		TenantID: s.tenantID,
		DriverID: driverID,
		Username: "user-" + string(role),
		Role:     role,
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// onboardDriver creates a driver and returns its id and a token for it.
func (s *testServer) onboardDriver(t *testing.T) (primitive.ObjectID, string) {
	t.Helper()
	w := s.do(t, s.adminToken, "POST", "/api/drivers", CreateDriverRequest{EmploymentType: models.EmploymentW2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[models.Driver](t, w)
	return d.ID, s.token(t, models.RoleDriver, &d.ID)
}

func (s *testServer) createType(t *testing.T, draft catalog.Draft) models.CredentialType {
	t.Helper()
	w := s.do(t, s.adminToken, "POST", "/api/credential-types", draft)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.CredentialType](t, w)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperr.Validationf("op", "bad")))
	assert.Equal(t, http.StatusNotFound, statusFor(apperr.NotFoundf("op", "missing")))
	assert.Equal(t, http.StatusForbidden, statusFor(apperr.Forbiddenf("op", "no")))
	assert.Equal(t, http.StatusConflict, statusFor(apperr.Policyf("op", "not now")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "", "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	w = s.do(t, "", "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = s.do(t, "", "GET", "/api/credential-types", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCredentialTypeEndpoints(t *testing.T) {
	s := newTestServer(t)
	_, driverToken := s.onboardDriver(t)

	ct := s.createType(t, catalog.Draft{Name: "Driver License", Category: models.CategoryDriver})
	assert.Equal(t, models.SubmissionDocumentUpload, ct.SubmissionType)
	assert.Equal(t, models.DefaultWarningDays, ct.WarningDays)
	require.NotNil(t, ct.Instructions)

	t.Run("drivers cannot create", func(t *testing.T) {
		w := s.do(t, driverToken, "POST", "/api/credential-types", catalog.Draft{Name: "X", Category: models.CategoryDriver})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("validation", func(t *testing.T) {
		w := s.do(t, s.adminToken, "POST", "/api/credential-types", catalog.Draft{Category: models.CategoryDriver})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = s.do(t, s.adminToken, "POST", "/api/credential-types", catalog.Draft{
			Name: "Broker form", Category: models.CategoryDriver, Scope: models.ScopeBroker,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := s.do(t, driverToken, "GET", "/api/credential-types/"+ct.ID.Hex(), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, ct.Name, decode[models.CredentialType](t, w).Name)

		w = s.do(t, s.adminToken, "GET", "/api/credential-types/"+primitive.NewObjectID().Hex(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(t, s.adminToken, "GET", "/api/credential-types/not-an-id", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update", func(t *testing.T) {
		name := "Commercial License"
		w := s.do(t, s.adminToken, "PUT", "/api/credential-types/"+ct.ID.Hex(), catalog.Patch{Name: &name})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, name, decode[models.CredentialType](t, w).Name)

		negative := -1
		w = s.do(t, s.adminToken, "PUT", "/api/credential-types/"+ct.ID.Hex(), catalog.Patch{WarningDays: &negative})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deactivate hides the type from drivers", func(t *testing.T) {
		w := s.do(t, s.adminToken, "POST", "/api/credential-types/"+ct.ID.Hex()+"/deactivate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decode[models.CredentialType](t, w).IsActive)

		w = s.do(t, driverToken, "GET", "/api/credential-types", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]models.CredentialType](t, w))

		w = s.do(t, s.adminToken, "GET", "/api/credential-types?include_inactive=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.CredentialType](t, w), 1)

		w = s.do(t, s.adminToken, "POST", "/api/credential-types/"+ct.ID.Hex()+"/reactivate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decode[models.CredentialType](t, w).IsActive)
	})

	t.Run("reorder", func(t *testing.T) {
		second := s.createType(t, catalog.Draft{Name: "Background Check", Category: models.CategoryDriver})
		w := s.do(t, s.adminToken, "POST", "/api/credential-types/order", map[string]any{
			"ids": []string{second.ID.Hex(), ct.ID.Hex()},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, s.adminToken, "GET", "/api/credential-types?category=driver", nil)
		list := decode[[]models.CredentialType](t, w)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)

		w = s.do(t, s.adminToken, "POST", "/api/credential-types/order", map[string]any{"ids": []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad filters", func(t *testing.T) {
		w := s.do(t, s.adminToken, "GET", "/api/credential-types?category=boat", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = s.do(t, s.adminToken, "GET", "/api/credential-types?include_inactive=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("templates", func(t *testing.T) {
		w := s.do(t, s.adminToken, "GET", "/api/credential-templates", nil)
		require.Equal(t, http.StatusOK, w.Code)
		templates := decode[[]catalog.Template](t, w)
		assert.NotEmpty(t, templates)
		assert.Equal(t, catalog.DefaultTemplateID, templates[0].ID)
	})
}

func TestSubmissionAndReviewFlow(t *testing.T) {
	s := newTestServer(t)
	driverID, driverToken := s.onboardDriver(t)
	ct := s.createType(t, catalog.Draft{Name: "Insurance Card", Category: models.CategoryDriver})

	base := "/api/drivers/" + driverID.Hex() + "/credentials"
	one := base + "/" + ct.ID.Hex()

	w := s.do(t, driverToken, "GET", base, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ov := decode[requirements.Overview](t, w)
	require.Len(t, ov.Credentials, 1)
	assert.Equal(t, status.Missing, ov.Credentials[0].Status)

	// Submitting before any progress is a policy error.
	w = s.do(t, driverToken, "POST", one+"/submit", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var stepID, blockID string
	for _, step := range ct.Instructions.Steps {
		for _, b := range step.Blocks {
			if b.Kind == models.BlockFileUpload {
				stepID, blockID = step.ID, b.ID
			}
		}
	}
	require.NotEmpty(t, blockID)

	w = s.do(t, driverToken, "PUT", one+"/progress", SaveStepRequest{
		StepID: stepID,
		Blocks: map[string]models.BlockValue{blockID: {Files: []string{"uploads/insurance.pdf"}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[instructions.State](t, w)
	assert.True(t, state.CanFinalize)

	w = s.do(t, driverToken, "GET", one+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[instructions.State](t, w).CanFinalize)

	w = s.do(t, driverToken, "POST", one+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	inst := decode[models.CredentialInstance](t, w)
	assert.Equal(t, models.InstanceSubmitted, inst.Status)
	assert.Equal(t, []string{"uploads/insurance.pdf"}, inst.DocumentRefs)

	t.Run("drivers cannot review", func(t *testing.T) {
		w := s.do(t, driverToken, "POST", one+"/approve", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		w = s.do(t, driverToken, "GET", "/api/review-queue", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	w = s.do(t, s.adminToken, "GET", "/api/review-queue?kind=driver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decode[[]review.QueueItem](t, w)
	require.Len(t, queue, 1)
	assert.Equal(t, "Insurance Card", queue[0].CredentialName)
	assert.Equal(t, status.PendingReview, queue[0].DisplayStatus)

	w = s.do(t, s.adminToken, "GET", "/api/review-queue?credential_type_id="+ct.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]review.QueueItem](t, w), 1)
	w = s.do(t, s.adminToken, "GET", "/api/review-queue?broker_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, s.adminToken, "GET", "/api/review-queue/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, review.QueueStats{PendingReview: 1, Total: 1}, decode[review.QueueStats](t, w))

	w = s.do(t, s.adminToken, "POST", one+"/reject", review.RejectInput{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, s.adminToken, "POST", one+"/unverify", review.UnverifyInput{Reason: "re-check"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, s.adminToken, "POST", one+"/verify", review.VerifyInput{Notes: "seen"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, s.adminToken, "POST", one+"/approve", review.ApproveInput{ReviewNotes: "looks good"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.InstanceApproved, decode[models.CredentialInstance](t, w).Status)

	w = s.do(t, driverToken, "GET", one+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.AuditEntry](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, models.AuditSubmit, history[0].Action)
	assert.Equal(t, models.AuditApprove, history[1].Action)

	w = s.do(t, driverToken, "GET", base, nil)
	ov = decode[requirements.Overview](t, w)
	assert.Equal(t, status.Approved, ov.Credentials[0].Status)
	assert.Equal(t, 1, ov.Progress.Complete)

	w = s.do(t, s.adminToken, "POST", one+"/unverify", review.UnverifyInput{Reason: "document was forged"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.InstancePendingReview, decode[models.CredentialInstance](t, w).Status)
}

func TestCredentialAccess(t *testing.T) {
	s := newTestServer(t)
	driverID, _ := s.onboardDriver(t)
	_, otherToken := s.onboardDriver(t)
	ct := s.createType(t, catalog.Draft{Name: "Drug Test", Category: models.CategoryDriver})

	w := s.do(t, otherToken, "GET", "/api/drivers/"+driverID.Hex()+"/credentials", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, s.adminToken, "GET", "/api/drivers/"+primitive.NewObjectID().Hex()+"/credentials", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, s.adminToken, "GET", "/api/drivers/"+driverID.Hex()+"/credentials/"+primitive.NewObjectID().Hex()+"/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, s.adminToken, "GET", "/api/drivers/"+driverID.Hex()+"/credentials/"+ct.ID.Hex()+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.AuditEntry](t, w))

	w = s.do(t, s.adminToken, "PUT", "/api/drivers/"+driverID.Hex()+"/credentials/"+ct.ID.Hex()+"/progress", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFleetEndpoints(t *testing.T) {
	s := newTestServer(t)
	driverID, driverToken := s.onboardDriver(t)
	brokerID := primitive.NewObjectID()

	t.Run("invalid driver", func(t *testing.T) {
		w := s.do(t, s.adminToken, "POST", "/api/drivers", CreateDriverRequest{EmploymentType: "contractor"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = s.do(t, driverToken, "POST", "/api/drivers", CreateDriverRequest{EmploymentType: models.EmploymentW2})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	w := s.do(t, s.adminToken, "POST", "/api/vehicles", CreateVehicleRequest{
		VehicleType: models.VehicleWheelchairVan, Make: "Ford", Model: "Transit", Year: 2022, OwnerDriverID: &driverID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	vehicle := decode[models.Vehicle](t, w)

	w = s.do(t, s.adminToken, "POST", "/api/vehicles", CreateVehicleRequest{VehicleType: "boat"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := primitive.NewObjectID()
	w = s.do(t, s.adminToken, "POST", "/api/vehicles", CreateVehicleRequest{VehicleType: models.VehicleSedan, OwnerDriverID: &missing})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, driverToken, "GET", "/api/drivers/"+driverID.Hex()+"/vehicles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	vehicles := decode[[]models.Vehicle](t, w)
	require.Len(t, vehicles, 1)
	assert.Equal(t, vehicle.ID, vehicles[0].ID)

	// A broker-scoped vehicle type applies once the owner is assigned.
	s.createType(t, catalog.Draft{
		Name: "Broker Inspection", Category: models.CategoryVehicle, Scope: models.ScopeBroker, BrokerID: &brokerID,
	})
	overview := func() requirements.Overview {
		w := s.do(t, driverToken, "GET", "/api/vehicles/"+vehicle.ID.Hex()+"/credentials", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[requirements.Overview](t, w)
	}
	assert.Empty(t, overview().Credentials)

	path := "/api/drivers/" + driverID.Hex() + "/brokers/" + brokerID.Hex()
	w = s.do(t, s.adminToken, "PUT", path, map[string]string{"status": "assigned"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, overview().Credentials, 1)

	w = s.do(t, driverToken, "GET", "/api/vehicles/"+vehicle.ID.Hex()+"/requirements", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	required := decode[[]models.CredentialType](t, w)
	require.Len(t, required, 1)
	assert.Equal(t, "Broker Inspection", required[0].Name)

	w = s.do(t, driverToken, "GET", "/api/drivers/"+driverID.Hex()+"/requirements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.CredentialType](t, w))

	w = s.do(t, s.adminToken, "PUT", path, map[string]string{"status": "removed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, overview().Credentials)

	w = s.do(t, s.adminToken, "PUT", path, map[string]string{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, s.adminToken, "PUT", "/api/vehicles/"+vehicle.ID.Hex()+"/status", map[string]string{"status": "retired"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, s.adminToken, "PUT", "/api/vehicles/"+primitive.NewObjectID().Hex()+"/status", map[string]string{"status": "retired"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, s.adminToken, "GET", "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.User](t, w))
	w = s.do(t, driverToken, "GET", "/api/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
