package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/instructions"
	"github.com/ukydev/fleet-compliance/internal/models"
	"github.com/ukydev/fleet-compliance/internal/requirements"
	"github.com/ukydev/fleet-compliance/internal/review"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CredentialHandler serves a subject's credentials: the overview, the
// submission flow and the review actions. Kind selects drivers or vehicles.
type CredentialHandler struct {
	kind         models.CredentialCategory
	requirements *requirements.Service
	instructions *instructions.Service
	review       *review.Service
	log          log.FieldLogger
}

// NewCredentialHandler creates a credential handler for one subject kind.
func NewCredentialHandler(kind models.CredentialCategory, req *requirements.Service, ins *instructions.Service, rev *review.Service, logger log.FieldLogger) *CredentialHandler {
	return &CredentialHandler{
		kind:         kind,
		requirements: req,
		instructions: ins,
		review:       rev,
		log:          logger.WithField("subject_kind", kind),
	}
}

// SaveStepRequest is the body of a progress auto-save.
type SaveStepRequest struct {
	StepID string                       `json:"step_id"`
	Blocks map[string]models.BlockValue `json:"blocks"`
}

// Overview lists the subject's required credentials with their status.
func (h *CredentialHandler) Overview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	subjectID, err := pathID(r, "subjectID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ov, err := h.requirements.Overview(r.Context(), actor, h.kind, subjectID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Requirements lists the credential types the subject must hold right now.
func (h *CredentialHandler) Requirements(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	subjectID, err := pathID(r, "subjectID")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var types []models.CredentialType
	if h.kind == models.CategoryVehicle {
		types, err = h.requirements.ResolveForVehicle(r.Context(), actor, subjectID)
	} else {
		types, err = h.requirements.ResolveForDriver(r.Context(), actor, subjectID)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if types == nil {
		types = []models.CredentialType{}
	}
	writeJSON(w, http.StatusOK, types)
}

// GetProgress returns the submission state of one credential.
func (h *CredentialHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.instructions.Get(r.Context(), actor, ref)
	})
}

// SaveProgress records the block values of one step.
func (h *CredentialHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	var req SaveStepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.instructions.SaveStep(r.Context(), actor, ref, req.StepID, req.Blocks)
	})
}

// SetCurrentStep moves the progress cursor.
func (h *CredentialHandler) SetCurrentStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StepID string `json:"step_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.instructions.SetCurrentStep(r.Context(), actor, ref, req.StepID)
	})
}

// RestartProgress discards saved progress.
func (h *CredentialHandler) RestartProgress(w http.ResponseWriter, r *http.Request) {
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.instructions.Restart(r.Context(), actor, ref)
	})
}

// Submit finalizes the submission for review.
func (h *CredentialHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req instructions.FinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.instructions.Finalize(r.Context(), actor, ref, req)
	})
}

// Approve approves the credential.
func (h *CredentialHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var in review.ApproveInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.review.Approve(r.Context(), actor, ref, in)
	})
}

// Reject rejects the credential with a reason.
func (h *CredentialHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var in review.RejectInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.review.Reject(r.Context(), actor, ref, in)
	})
}

// Verify marks an administrator-only credential as satisfied.
func (h *CredentialHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var in review.VerifyInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.review.Verify(r.Context(), actor, ref, in)
	})
}

// Unverify reopens an approved credential.
func (h *CredentialHandler) Unverify(w http.ResponseWriter, r *http.Request) {
	var in review.UnverifyInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.review.Unverify(r.Context(), actor, ref, in)
	})
}

// History returns the review trail of the credential.
func (h *CredentialHandler) History(w http.ResponseWriter, r *http.Request) {
	h.withRef(w, r, func(actor models.Actor, ref models.SubjectRef) (any, error) {
		return h.review.History(r.Context(), actor, ref)
	})
}

func (h *CredentialHandler) withRef(w http.ResponseWriter, r *http.Request, fn func(models.Actor, models.SubjectRef) (any, error)) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ref, err := subjectRef(r, h.kind)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out, err := fn(actor, ref)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ReviewQueueHandler lists the credentials awaiting review.
type ReviewQueueHandler struct {
	review *review.Service
	log    log.FieldLogger
}

// NewReviewQueueHandler creates a review queue handler
func NewReviewQueueHandler(rev *review.Service, logger log.FieldLogger) *ReviewQueueHandler {
	return &ReviewQueueHandler{review: rev, log: logger}
}

// Queue lists the credentials awaiting an administrator. Query parameters:
// kind, credential_type_id, broker_id, subject_id.
func (h *ReviewQueueHandler) Queue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	filter, err := queueFilter(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	items, err := h.review.Queue(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Stats returns the review queue counters.
func (h *ReviewQueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.review.Stats(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queueFilter(r *http.Request) (review.QueueFilter, error) {
	const op = "review.QueueFilter"
	q := r.URL.Query()
	filter := review.QueueFilter{Kind: models.CredentialCategory(q.Get("kind"))}
	if filter.Kind != "" && !models.IsValidCategory(filter.Kind) {
		return filter, apperr.Validationf(op, "invalid kind %q", filter.Kind)
	}
	for name, dst := range map[string]*primitive.ObjectID{
		"credential_type_id": &filter.CredentialTypeID,
		"broker_id":          &filter.BrokerID,
		"subject_id":         &filter.SubjectID,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return filter, apperr.Validationf(op, "invalid %s %q", name, v)
		}
		*dst = id
	}
	return filter, nil
}
