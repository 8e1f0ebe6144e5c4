package catalog

import (
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-compliance/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// DefaultTemplateID is used when a type is created without instructions.
const DefaultTemplateID = "document_upload"

// Template is a ready-made instruction document.
type Template struct {
	ID          string                     `yaml:"id" json:"id"`
	Label       string                     `yaml:"label" json:"label"`
	Description string                     `yaml:"description" json:"description"`
	AdminOnly   bool                       `yaml:"admin_only" json:"admin_only"`
	Document    models.InstructionDocument `yaml:"document" json:"document"`

	// Requirements is derived from Document when the templates are loaded.
	Requirements []RequirementKind `yaml:"-" json:"requirements"`
}

// LoadTemplates parses a YAML template list.
func LoadTemplates(data []byte) ([]Template, error) {
	var out []Template
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	seen := map[string]bool{}
	for i := range out {
		t := &out[i]
		if t.ID == "" || seen[t.ID] {
			return nil, fmt.Errorf("template ids must be unique and non-empty: %q", t.ID)
		}
		seen[t.ID] = true
		t.Requirements = Requirements(&t.Document)
	}
	return out, nil
}

// Builtin returns the embedded templates.
func Builtin() []Template {
	out, err := LoadTemplates(templatesYAML)
	if err != nil {
		panic(err)
	}
	return out
}

// Instantiate returns a copy of the template's document with fresh ids for
// every step, block and choice.
func (t Template) Instantiate() *models.InstructionDocument {
	doc := t.Document.Clone()
	for i := range doc.Steps {
		s := &doc.Steps[i]
		s.ID = uuid.NewString()
		s.Order = i + 1
		for j := range s.Blocks {
			b := &s.Blocks[j]
			b.ID = uuid.NewString()
			b.Order = j + 1
			if b.Checklist != nil {
				for k := range b.Checklist.Items {
					b.Checklist.Items[k].ID = uuid.NewString()
				}
			}
			if b.Quiz != nil {
				for k := range b.Quiz.Options {
					b.Quiz.Options[k].ID = uuid.NewString()
				}
			}
		}
	}
	return doc
}
