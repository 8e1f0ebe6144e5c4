package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-compliance/internal/middleware"
	"github.com/ukydev/fleet-compliance/internal/models"
)

// Router holds every handler of the API.
type Router struct {
	Auth            *AuthHandler
	CredentialTypes *CredentialTypeHandler
	Drivers         *CredentialHandler
	Vehicles        *CredentialHandler
	ReviewQueue     *ReviewQueueHandler
	Fleet           *FleetHandler
	Metrics         http.Handler
	Middleware      *middleware.AuthMiddleware
}

// Handler registers the routes on a new mux. Authentication itself wraps the
// returned handler; per-route permission checks are applied here.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	perm := func(action string, h http.HandlerFunc) http.Handler {
		return rt.Middleware.RequirePermission(action)(h)
	}

	mux.HandleFunc("GET /health", Health)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.HandleFunc("POST /api/auth/login", rt.Auth.Login)
	mux.HandleFunc("POST /api/auth/register", rt.Auth.Register)
	mux.HandleFunc("GET /api/auth/profile", rt.Auth.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", rt.Auth.UpdateProfile)
	mux.HandleFunc("POST /api/auth/change-password", rt.Auth.ChangePassword)
	mux.Handle("GET /api/users", perm(models.ActionManageFleet, rt.Auth.ListUsers))

	ct := rt.CredentialTypes
	mux.Handle("GET /api/credential-types", perm(models.ActionViewCredentialTypes, ct.List))
	mux.Handle("POST /api/credential-types", perm(models.ActionManageCredentialTypes, ct.Create))
	mux.Handle("POST /api/credential-types/order", perm(models.ActionManageCredentialTypes, ct.Reorder))
	mux.Handle("GET /api/credential-types/{id}", perm(models.ActionViewCredentialTypes, ct.Get))
	mux.Handle("PUT /api/credential-types/{id}", perm(models.ActionManageCredentialTypes, ct.Update))
	mux.Handle("PUT /api/credential-types/{id}/instructions", perm(models.ActionManageCredentialTypes, ct.UpdateInstructions))
	mux.Handle("POST /api/credential-types/{id}/deactivate", perm(models.ActionManageCredentialTypes, ct.Deactivate))
	mux.Handle("POST /api/credential-types/{id}/reactivate", perm(models.ActionManageCredentialTypes, ct.Reactivate))
	mux.Handle("GET /api/credential-templates", perm(models.ActionManageCredentialTypes, ct.Templates))

	for prefix, h := range map[string]*CredentialHandler{"/api/drivers": rt.Drivers, "/api/vehicles": rt.Vehicles} {
		base := prefix + "/{subjectID}/credentials"
		one := base + "/{typeID}"
		mux.Handle("GET "+base, perm(models.ActionViewCredentials, h.Overview))
		mux.Handle("GET "+prefix+"/{subjectID}/requirements", perm(models.ActionViewCredentials, h.Requirements))
		mux.Handle("GET "+one+"/progress", perm(models.ActionViewCredentials, h.GetProgress))
		mux.Handle("PUT "+one+"/progress", perm(models.ActionSubmitCredentials, h.SaveProgress))
		mux.Handle("POST "+one+"/progress/current", perm(models.ActionSubmitCredentials, h.SetCurrentStep))
		mux.Handle("POST "+one+"/progress/restart", perm(models.ActionSubmitCredentials, h.RestartProgress))
		mux.Handle("POST "+one+"/submit", perm(models.ActionSubmitCredentials, h.Submit))
		mux.Handle("POST "+one+"/approve", perm(models.ActionReviewCredentials, h.Approve))
		mux.Handle("POST "+one+"/reject", perm(models.ActionReviewCredentials, h.Reject))
		mux.Handle("POST "+one+"/verify", perm(models.ActionReviewCredentials, h.Verify))
		mux.Handle("POST "+one+"/unverify", perm(models.ActionReviewCredentials, h.Unverify))
		mux.Handle("GET "+one+"/history", perm(models.ActionViewCredentials, h.History))
	}
	mux.Handle("GET /api/review-queue", perm(models.ActionReviewCredentials, rt.ReviewQueue.Queue))
	mux.Handle("GET /api/review-queue/stats", perm(models.ActionReviewCredentials, rt.ReviewQueue.Stats))

	fl := rt.Fleet
	mux.Handle("POST /api/drivers", perm(models.ActionManageFleet, fl.CreateDriver))
	mux.Handle("GET /api/drivers/{subjectID}/vehicles", perm(models.ActionViewCredentials, fl.DriverVehicles))
	mux.Handle("PUT /api/drivers/{subjectID}/brokers/{brokerID}", perm(models.ActionManageFleet, fl.SetAssignment))
	mux.Handle("POST /api/vehicles", perm(models.ActionManageFleet, fl.CreateVehicle))
	mux.Handle("PUT /api/vehicles/{subjectID}/status", perm(models.ActionManageFleet, fl.UpdateVehicleStatus))

	return mux
}

// Health reports that the process is serving.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
