// Package instructions tracks a driver's progress through a credential
// type's instruction document and finalizes the submission.
package instructions

import (
	"strings"
	"time"

	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExpirationFieldKey is the form field key whose value, when present, is taken
// as the driver-specified expiration date.
const ExpirationFieldKey = "expiration_date"

// New returns empty progress for an instance.
func New(tenantID, instanceID primitive.ObjectID, now time.Time) *models.Progress {
	return &models.Progress{
		TenantID:   tenantID,
		InstanceID: instanceID,
		Steps:      map[string]models.StepState{},
		UpdatedAt:  now,
	}
}

// Advance records updates for the blocks of one step and recomputes that
// step's completion. It returns new progress and leaves p untouched. Applying
// the same updates again yields the same result, and a step that stays
// complete keeps its first completion time.
func Advance(doc *models.InstructionDocument, p *models.Progress, stepID string, updates map[string]models.BlockValue, now time.Time) (*models.Progress, error) {
	const op = "instructions.Advance"
	step, ok := doc.Step(stepID)
	if !ok {
		return nil, apperr.Validationf(op, "unknown step %q", stepID)
	}
	for blockID := range updates {
		b := findBlock(step, blockID)
		if b == nil {
			return nil, apperr.Validationf(op, "step %q has no block %q", stepID, blockID)
		}
		if !b.Kind.IsInput() {
			return nil, apperr.Validationf(op, "block %q of kind %s does not take input", blockID, b.Kind)
		}
	}

	next := p.Clone()
	if next == nil {
		next = &models.Progress{Steps: map[string]models.StepState{}}
	}
	state := next.Steps[stepID]
	if state.Blocks == nil {
		state.Blocks = map[string]models.BlockValue{}
	}
	for blockID, v := range updates {
		state.Blocks[blockID] = v.Clone()
	}

	complete := isStepComplete(step, state)
	switch {
	case complete && !state.Completed:
		at := now
		state.Completed = true
		state.CompletedAt = &at
	case !complete:
		state.Completed = false
		state.CompletedAt = nil
	}
	next.Steps[stepID] = state
	next.CurrentStepID = stepID
	next.UpdatedAt = now
	return next, nil
}

// SetCurrentStep moves the cursor without touching recorded values. Steps
// are not gated, so any step of the document may be selected.
func SetCurrentStep(doc *models.InstructionDocument, p *models.Progress, stepID string, now time.Time) (*models.Progress, error) {
	if _, ok := doc.Step(stepID); !ok {
		return nil, apperr.Validationf("instructions.SetCurrentStep", "unknown step %q", stepID)
	}
	next := p.Clone()
	if next == nil {
		next = &models.Progress{Steps: map[string]models.StepState{}}
	}
	next.CurrentStepID = stepID
	next.UpdatedAt = now
	return next, nil
}

// Clear returns empty progress for the same instance.
func Clear(p *models.Progress, now time.Time) *models.Progress {
	return New(p.TenantID, p.InstanceID, now)
}

func findBlock(step *models.InstructionStep, id string) *models.Block {
	for i := range step.Blocks {
		if step.Blocks[i].ID == id {
			return &step.Blocks[i]
		}
	}
	return nil
}

// IsStepComplete reports whether every required block of step has an
// acceptable value in p. A step without required blocks is complete.
func IsStepComplete(step *models.InstructionStep, p *models.Progress) bool {
	var state models.StepState
	if p != nil {
		state = p.Steps[step.ID]
	}
	return isStepComplete(step, state)
}

func isStepComplete(step *models.InstructionStep, state models.StepState) bool {
	for i := range step.Blocks {
		b := &step.Blocks[i]
		if !b.Required || !b.Kind.IsInput() {
			continue
		}
		v, ok := state.Blocks[b.ID]
		if !ok || !IsBlockComplete(b, v) {
			return false
		}
	}
	return true
}

// IsAllStepsComplete reports whether the document can be finalized. Under
// CompleteAllSteps every step counts; otherwise only steps marked required.
func IsAllStepsComplete(doc *models.InstructionDocument, p *models.Progress) bool {
	if doc == nil {
		return true
	}
	all := doc.Settings.CompletionBehavior == models.CompleteAllSteps
	for i := range doc.Steps {
		s := &doc.Steps[i]
		if !all && !s.Required {
			continue
		}
		if !IsStepComplete(s, p) {
			return false
		}
	}
	return true
}

// IsBlockComplete reports whether v satisfies block b.
func IsBlockComplete(b *models.Block, v models.BlockValue) bool {
	switch b.Kind {
	case models.BlockFileUpload:
		for _, f := range v.Files {
			if strings.TrimSpace(f) != "" {
				return true
			}
		}
		return false
	case models.BlockSignaturePad:
		return v.Signature != nil &&
			(strings.TrimSpace(v.Signature.Value) != "" || strings.TrimSpace(v.Signature.ImageRef) != "")
	case models.BlockFormField:
		return strings.TrimSpace(v.Value) != ""
	case models.BlockChecklist:
		return checklistComplete(b.Checklist, v.Checked)
	case models.BlockQuizQuestion:
		return quizAnswered(b.Quiz, v.Answer)
	case models.BlockHeading, models.BlockParagraph, models.BlockAlert, models.BlockExternalLink,
		models.BlockVideo, models.BlockImage, models.BlockDivider:
		return true
	}
	return false
}

func checklistComplete(c *models.ChecklistContent, checked map[string]bool) bool {
	if c == nil {
		return true
	}
	anyRequired := false
	for _, it := range c.Items {
		if it.Required {
			anyRequired = true
			break
		}
	}
	for _, it := range c.Items {
		mustCheck := it.Required || c.RequireAllChecked || !anyRequired
		if mustCheck && !checked[it.ID] {
			return false
		}
	}
	return true
}

func quizAnswered(q *models.QuizQuestionContent, answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}
	if q == nil {
		return true
	}
	if q.CorrectAnswer != "" {
		return strings.EqualFold(answer, strings.TrimSpace(q.CorrectAnswer))
	}
	hasCorrect := false
	for _, o := range q.Options {
		if !o.IsCorrect {
			continue
		}
		hasCorrect = true
		if o.ID == answer {
			return true
		}
	}
	return !hasCorrect
}

// Collected is the submission data gathered from completed progress.
type Collected struct {
	FormData             map[string]string
	DocumentRefs         []string
	DriverExpirationDate *time.Time
}

// Collect gathers form values by field key and every file and signature
// reference, in document order.
func Collect(doc *models.InstructionDocument, p *models.Progress) Collected {
	var out Collected
	if doc == nil || p == nil {
		return out
	}
	for _, s := range doc.Steps {
		state := p.Steps[s.ID]
		for i := range s.Blocks {
			b := &s.Blocks[i]
			v, ok := state.Blocks[b.ID]
			if !ok {
				continue
			}
			switch b.Kind {
			case models.BlockFormField:
				if b.FormField == nil || strings.TrimSpace(v.Value) == "" {
					continue
				}
				if out.FormData == nil {
					out.FormData = map[string]string{}
				}
				out.FormData[b.FormField.Key] = v.Value
				if b.FormField.Key == ExpirationFieldKey {
					if d, err := time.Parse("2006-01-02", strings.TrimSpace(v.Value)); err == nil {
						out.DriverExpirationDate = &d
					}
				}
			case models.BlockFileUpload:
				for _, f := range v.Files {
					if strings.TrimSpace(f) != "" {
						out.DocumentRefs = append(out.DocumentRefs, f)
					}
				}
			case models.BlockSignaturePad:
				if v.Signature != nil && v.Signature.ImageRef != "" {
					out.DocumentRefs = append(out.DocumentRefs, v.Signature.ImageRef)
				}
			}
		}
	}
	return out
}
