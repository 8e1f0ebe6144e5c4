package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SignatureData references a captured signature.
type SignatureData struct {
	Type     string    `bson:"type" json:"type"` // "typed" or "drawn"
	Value    string    `bson:"value" json:"value"`
	ImageRef string    `bson:"image_ref,omitempty" json:"image_ref,omitempty"`
	SignedAt time.Time `bson:"signed_at" json:"signed_at"`
}

// BlockValue is the value recorded for one input block.
type BlockValue struct {
	Files     []string        `bson:"files,omitempty" json:"files,omitempty"`
	Signature *SignatureData  `bson:"signature,omitempty" json:"signature,omitempty"`
	Value     string          `bson:"value,omitempty" json:"value,omitempty"`
	Checked   map[string]bool `bson:"checked,omitempty" json:"checked,omitempty"`
	Answer    string          `bson:"answer,omitempty" json:"answer,omitempty"`
}

// StepState is the recorded state of one instruction step.
type StepState struct {
	Completed   bool                  `bson:"completed" json:"completed"`
	CompletedAt *time.Time            `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Blocks      map[string]BlockValue `bson:"blocks" json:"blocks"`
}

// Progress tracks an in-flight multi-step submission. Steps are keyed by step
// id so editing the document's step order does not disturb saved state.
type Progress struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	InstanceID    primitive.ObjectID   `bson:"instance_id" json:"instance_id"`
	TenantID      primitive.ObjectID   `bson:"tenant_id" json:"tenant_id"`
	CurrentStepID string               `bson:"current_step_id,omitempty" json:"current_step_id,omitempty"`
	Steps         map[string]StepState `bson:"steps" json:"steps"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the progress.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	out := *p
	out.Steps = make(map[string]StepState, len(p.Steps))
	for id, st := range p.Steps {
		blocks := make(map[string]BlockValue, len(st.Blocks))
		for bid, v := range st.Blocks {
			blocks[bid] = v.Clone()
		}
		st.Blocks = blocks
		out.Steps[id] = st
	}
	return &out
}

// Clone returns a deep copy of the value.
func (v BlockValue) Clone() BlockValue {
	v.Files = append([]string(nil), v.Files...)
	if v.Signature != nil {
		s := *v.Signature
		v.Signature = &s
	}
	if v.Checked != nil {
		checked := make(map[string]bool, len(v.Checked))
		for k, c := range v.Checked {
			checked[k] = c
		}
		v.Checked = checked
	}
	return v
}
