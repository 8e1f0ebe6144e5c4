package handlers

import (
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FleetHandler onboards the subjects credentials attach to: drivers,
// vehicles and broker assignments.
type FleetHandler struct {
	drivers     db.DriverCollection
	vehicles    db.VehicleCollection
	assignments db.AssignmentCollection
	clock       clock.Clock
	log         log.FieldLogger
}

// NewFleetHandler creates a fleet handler
func NewFleetHandler(store db.Store, clk clock.Clock, logger log.FieldLogger) *FleetHandler {
	return &FleetHandler{
		drivers:     store.Drivers,
		vehicles:    store.Vehicles,
		assignments: store.Assignments,
		clock:       clk,
		log:         logger,
	}
}

// CreateDriverRequest is the body of CreateDriver.
type CreateDriverRequest struct {
	UserID         *primitive.ObjectID   `json:"user_id,omitempty"`
	EmploymentType models.EmploymentType `json:"employment_type"`
	State          string                `json:"state,omitempty"`
}

// CreateVehicleRequest is the body of CreateVehicle.
type CreateVehicleRequest struct {
	VehicleType   string              `json:"vehicle_type"`
	Make          string              `json:"make"`
	Model         string              `json:"model"`
	Year          int                 `json:"year"`
	OwnerDriverID *primitive.ObjectID `json:"owner_driver_id,omitempty"`
}

func isVehicleType(vt string) bool {
	switch vt {
	case models.VehicleSedan, models.VehicleSUV, models.VehicleMinivan, models.VehicleWheelchairVan, models.VehicleStretcherVan:
		return true
	}
	return false
}

// CreateDriver adds a driver to the caller's tenant.
func (h *FleetHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CreateDriverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.EmploymentType != models.EmploymentW2 && req.EmploymentType != models.Employment1099 {
		http.Error(w, "Invalid employment_type", http.StatusBadRequest)
		return
	}
	d := &models.Driver{
		TenantID:       actor.TenantID,
		EmploymentType: req.EmploymentType,
		State:          req.State,
		Status:         models.DriverActive,
		CreatedAt:      h.clock.Now(),
	}
	if req.UserID != nil {
		d.UserID = *req.UserID
	}
	if err := h.drivers.InsertDriver(r.Context(), d); err != nil {
		writeError(w, r, h.log, fmt.Errorf("insert driver: %w", err))
		return
	}
	h.log.WithFields(log.Fields{
		"tenant_id": actor.TenantID.Hex(),
		"driver_id": d.ID.Hex(),
	}).Info("Driver created")
	writeJSON(w, http.StatusCreated, d)
}

// CreateVehicle adds a vehicle to the caller's tenant.
func (h *FleetHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CreateVehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if !isVehicleType(req.VehicleType) {
		http.Error(w, "Invalid vehicle_type", http.StatusBadRequest)
		return
	}
	if req.OwnerDriverID != nil {
		if err := h.findDriver(r, actor, *req.OwnerDriverID); err != nil {
			writeError(w, r, h.log, err)
			return
		}
	}
	v := &models.Vehicle{
		TenantID:      actor.TenantID,
		VehicleType:   req.VehicleType,
		Make:          req.Make,
		Model:         req.Model,
		Year:          req.Year,
		OwnerDriverID: req.OwnerDriverID,
		Status:        models.VehicleActive,
		CreatedAt:     h.clock.Now(),
	}
	if err := h.vehicles.InsertVehicle(r.Context(), v); err != nil {
		writeError(w, r, h.log, fmt.Errorf("insert vehicle: %w", err))
		return
	}
	h.log.WithFields(log.Fields{
		"tenant_id":  actor.TenantID.Hex(),
		"vehicle_id": v.ID.Hex(),
		"type":       v.VehicleType,
	}).Info("Vehicle created")
	writeJSON(w, http.StatusCreated, v)
}

// UpdateVehicleStatus changes a vehicle's operational status.
func (h *FleetHandler) UpdateVehicleStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "subjectID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		Status models.VehicleStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	switch req.Status {
	case models.VehicleActive, models.VehicleInactive, models.VehicleRetired:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	err = h.vehicles.UpdateVehicleStatus(r.Context(), actor.TenantID, id, req.Status)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, r, h.log, apperr.NotFoundf("fleet.UpdateVehicleStatus", "vehicle %s not found", id.Hex()))
		return
	}
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("update vehicle status: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle status updated"})
}

// DriverVehicles lists the vehicles owned by a driver.
func (h *FleetHandler) DriverVehicles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	driverID, err := pathID(r, "subjectID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if !actor.OwnsDriver(driverID) {
		writeError(w, r, h.log, apperr.Forbiddenf("fleet.DriverVehicles", "driver %s belongs to another account", driverID.Hex()))
		return
	}
	vehicles, err := h.vehicles.FindVehiclesByOwner(r.Context(), actor.TenantID, driverID)
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("list vehicles: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// SetAssignment records a driver's relationship to a broker.
func (h *FleetHandler) SetAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	driverID, err := pathID(r, "subjectID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	brokerID, err := pathID(r, "brokerID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req struct {
		Status models.AssignmentStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	switch req.Status {
	case models.AssignmentPending, models.AssignmentAssigned, models.AssignmentRemoved, models.AssignmentRequested:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	if err := h.findDriver(r, actor, driverID); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	now := h.clock.Now()
	a := models.BrokerAssignment{
		TenantID:  actor.TenantID,
		DriverID:  driverID,
		BrokerID:  brokerID,
		Status:    req.Status,
		UpdatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.assignments.UpsertAssignment(r.Context(), a); err != nil {
		writeError(w, r, h.log, fmt.Errorf("upsert assignment: %w", err))
		return
	}
	h.log.WithFields(log.Fields{
		"tenant_id": actor.TenantID.Hex(),
		"driver_id": driverID.Hex(),
		"broker_id": brokerID.Hex(),
		"status":    req.Status,
	}).Info("Broker assignment updated")
	writeJSON(w, http.StatusOK, a)
}

func (h *FleetHandler) findDriver(r *http.Request, actor models.Actor, id primitive.ObjectID) error {
	_, err := h.drivers.FindDriverByID(r.Context(), actor.TenantID, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFoundf("fleet", "driver %s not found", id.Hex())
	}
	if err != nil {
		return fmt.Errorf("find driver: %w", err)
	}
	return nil
}
