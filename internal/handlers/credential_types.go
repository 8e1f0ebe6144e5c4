package handlers

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/catalog"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CredentialTypeHandler serves the credential type registry.
type CredentialTypeHandler struct {
	catalog *catalog.Service
	log     log.FieldLogger
}

// NewCredentialTypeHandler creates a credential type handler
func NewCredentialTypeHandler(svc *catalog.Service, logger log.FieldLogger) *CredentialTypeHandler {
	return &CredentialTypeHandler{catalog: svc, log: logger}
}

// List returns the tenant's credential types. Query parameters: category,
// include_inactive.
func (h *CredentialTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	f := catalog.ListFilter{Category: models.CredentialCategory(r.URL.Query().Get("category"))}
	if f.Category != "" && !models.IsValidCategory(f.Category) {
		http.Error(w, "Invalid category", http.StatusBadRequest)
		return
	}
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid include_inactive", http.StatusBadRequest)
			return
		}
		f.IncludeInactive = include
	}
	types, err := h.catalog.List(r.Context(), actor, f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// Create adds a credential type.
func (h *CredentialTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var draft catalog.Draft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ct, err := h.catalog.Create(r.Context(), actor, draft)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

// Get returns one credential type.
func (h *CredentialTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ct, err := h.catalog.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// Update patches a credential type.
func (h *CredentialTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var patch catalog.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ct, err := h.catalog.Update(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// UpdateInstructions replaces the instruction document of a type.
func (h *CredentialTypeHandler) UpdateInstructions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var doc models.InstructionDocument
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ct, err := h.catalog.UpdateInstructions(r.Context(), actor, id, &doc)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// Deactivate soft-deletes a credential type.
func (h *CredentialTypeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Reactivate restores a deactivated credential type.
func (h *CredentialTypeHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *CredentialTypeHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var ct *models.CredentialType
	if active {
		ct, err = h.catalog.Reactivate(r.Context(), actor, id)
	} else {
		ct, err = h.catalog.Deactivate(r.Context(), actor, id)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// Reorder sets the display order from a list of ids.
func (h *CredentialTypeHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []primitive.ObjectID `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, h.log, apperr.Validationf("reorder", "ids are required"))
		return
	}
	if err := h.catalog.Reorder(r.Context(), actor, req.IDs); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Credential types reordered"})
}

// Templates lists the built-in instruction templates.
func (h *CredentialTypeHandler) Templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Templates())
}
