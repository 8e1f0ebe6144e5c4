package models

import "fmt"

// InstructionDocument is the ordered, block-based description of how a
// credential is submitted.
type InstructionDocument struct {
	Version  int                 `bson:"version" json:"version" yaml:"version"`
	Settings InstructionSettings `bson:"settings" json:"settings" yaml:"settings"`
	Steps    []InstructionStep   `bson:"steps" json:"steps" yaml:"steps"`
}

// CompletionBehavior decides which steps must be complete before finalizing.
type CompletionBehavior string

const (
	CompleteAllSteps     CompletionBehavior = "all_steps"
	CompleteRequiredOnly CompletionBehavior = "required_only"
)

// InstructionSettings are document-wide options.
type InstructionSettings struct {
	ShowProgressBar    bool               `bson:"show_progress_bar" json:"show_progress_bar" yaml:"show_progress_bar"`
	AllowStepSkip      bool               `bson:"allow_step_skip" json:"allow_step_skip" yaml:"allow_step_skip"`
	CompletionBehavior CompletionBehavior `bson:"completion_behavior" json:"completion_behavior" yaml:"completion_behavior"`
}

// StepType classifies a step for presentation.
type StepType string

const (
	StepInformation    StepType = "information"
	StepExternalAction StepType = "external_action"
	StepFormInput      StepType = "form_input"
	StepDocumentUpload StepType = "document_upload"
	StepSignature      StepType = "signature"
	StepKnowledgeCheck StepType = "knowledge_check"
	StepAdminVerify    StepType = "admin_verify"
)

// InstructionStep is one page of an instruction document.
type InstructionStep struct {
	ID       string   `bson:"id" json:"id" yaml:"id"`
	Order    int      `bson:"order" json:"order" yaml:"order"`
	Title    string   `bson:"title" json:"title" yaml:"title"`
	Type     StepType `bson:"type" json:"type" yaml:"type"`
	Required bool     `bson:"required" json:"required" yaml:"required"`
	Blocks   []Block  `bson:"blocks" json:"blocks" yaml:"blocks"`
}

// BlockKind tags the payload carried by a Block.
type BlockKind string

const (
	BlockFileUpload   BlockKind = "file_upload"
	BlockSignaturePad BlockKind = "signature_pad"
	BlockFormField    BlockKind = "form_field"
	BlockChecklist    BlockKind = "checklist"
	BlockQuizQuestion BlockKind = "quiz_question"

	BlockHeading      BlockKind = "heading"
	BlockParagraph    BlockKind = "paragraph"
	BlockAlert        BlockKind = "alert"
	BlockExternalLink BlockKind = "external_link"
	BlockVideo        BlockKind = "video"
	BlockImage        BlockKind = "image"
	BlockDivider      BlockKind = "divider"
)

// IsInput reports whether blocks of this kind collect a value.
func (k BlockKind) IsInput() bool {
	switch k {
	case BlockFileUpload, BlockSignaturePad, BlockFormField, BlockChecklist, BlockQuizQuestion:
		return true
	}
	return false
}

// IsInformational reports whether blocks of this kind only display content.
func (k BlockKind) IsInformational() bool {
	switch k {
	case BlockHeading, BlockParagraph, BlockAlert, BlockExternalLink, BlockVideo, BlockImage, BlockDivider:
		return true
	}
	return false
}

// Block is a tagged union: Kind selects which one of the payload pointers is
// set. Informational kinds share the Info payload.
type Block struct {
	ID       string    `bson:"id" json:"id" yaml:"id"`
	Order    int       `bson:"order" json:"order" yaml:"order"`
	Kind     BlockKind `bson:"kind" json:"kind" yaml:"kind"`
	Required bool      `bson:"required" json:"required" yaml:"required"`

	FileUpload *FileUploadContent   `bson:"file_upload,omitempty" json:"file_upload,omitempty" yaml:"file_upload,omitempty"`
	Signature  *SignaturePadContent `bson:"signature_pad,omitempty" json:"signature_pad,omitempty" yaml:"signature_pad,omitempty"`
	FormField  *FormFieldContent    `bson:"form_field,omitempty" json:"form_field,omitempty" yaml:"form_field,omitempty"`
	Checklist  *ChecklistContent    `bson:"checklist,omitempty" json:"checklist,omitempty" yaml:"checklist,omitempty"`
	Quiz       *QuizQuestionContent `bson:"quiz_question,omitempty" json:"quiz_question,omitempty" yaml:"quiz_question,omitempty"`
	Info       *InfoContent         `bson:"info,omitempty" json:"info,omitempty" yaml:"info,omitempty"`
}

// FileUploadContent configures a file upload block.
type FileUploadContent struct {
	Label     string  `bson:"label" json:"label" yaml:"label"`
	Accept    string  `bson:"accept,omitempty" json:"accept,omitempty" yaml:"accept,omitempty"`
	MaxSizeMB float64 `bson:"max_size_mb,omitempty" json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	Multiple  bool    `bson:"multiple" json:"multiple" yaml:"multiple"`
}

// SignaturePadContent configures a signature block.
type SignaturePadContent struct {
	Label         string `bson:"label" json:"label" yaml:"label"`
	AgreementText string `bson:"agreement_text,omitempty" json:"agreement_text,omitempty" yaml:"agreement_text,omitempty"`
	AllowTyped    bool   `bson:"allow_typed" json:"allow_typed" yaml:"allow_typed"`
	AllowDrawn    bool   `bson:"allow_drawn" json:"allow_drawn" yaml:"allow_drawn"`
}

// FormFieldType is the input type of a form field.
type FormFieldType string

const (
	FieldText     FormFieldType = "text"
	FieldNumber   FormFieldType = "number"
	FieldDate     FormFieldType = "date"
	FieldSelect   FormFieldType = "select"
	FieldTextarea FormFieldType = "textarea"
	FieldCheckbox FormFieldType = "checkbox"
	FieldEmail    FormFieldType = "email"
	FieldPhone    FormFieldType = "phone"
)

// FormFieldContent configures a single form input.
type FormFieldContent struct {
	Key         string        `bson:"key" json:"key" yaml:"key"`
	Label       string        `bson:"label" json:"label" yaml:"label"`
	Type        FormFieldType `bson:"type" json:"type" yaml:"type"`
	Placeholder string        `bson:"placeholder,omitempty" json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options     []string      `bson:"options,omitempty" json:"options,omitempty" yaml:"options,omitempty"`
}

// ChecklistContent configures a checklist block.
type ChecklistContent struct {
	Title             string          `bson:"title,omitempty" json:"title,omitempty" yaml:"title,omitempty"`
	Items             []ChecklistItem `bson:"items" json:"items" yaml:"items"`
	RequireAllChecked bool            `bson:"require_all_checked" json:"require_all_checked" yaml:"require_all_checked"`
}

// ChecklistItem is one line of a checklist.
type ChecklistItem struct {
	ID       string `bson:"id" json:"id" yaml:"id"`
	Text     string `bson:"text" json:"text" yaml:"text"`
	Required bool   `bson:"required" json:"required" yaml:"required"`
}

// QuizQuestionContent configures a knowledge-check question.
type QuizQuestionContent struct {
	Question      string       `bson:"question" json:"question" yaml:"question"`
	QuestionType  string       `bson:"question_type" json:"question_type" yaml:"question_type"`
	Options       []QuizOption `bson:"options,omitempty" json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer string       `bson:"correct_answer,omitempty" json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	Explanation   string       `bson:"explanation,omitempty" json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// QuizOption is one choice of a multiple-choice question.
type QuizOption struct {
	ID        string `bson:"id" json:"id" yaml:"id"`
	Text      string `bson:"text" json:"text" yaml:"text"`
	IsCorrect bool   `bson:"is_correct" json:"is_correct" yaml:"is_correct"`
}

// InfoContent is the payload of informational blocks.
type InfoContent struct {
	Title   string `bson:"title,omitempty" json:"title,omitempty" yaml:"title,omitempty"`
	Text    string `bson:"text,omitempty" json:"text,omitempty" yaml:"text,omitempty"`
	URL     string `bson:"url,omitempty" json:"url,omitempty" yaml:"url,omitempty"`
	Variant string `bson:"variant,omitempty" json:"variant,omitempty" yaml:"variant,omitempty"`
}

// Validate checks that the payload matching Kind is present and that no other
// payload is set.
func (b *Block) Validate() error {
	set := 0
	for _, p := range []bool{b.FileUpload != nil, b.Signature != nil, b.FormField != nil,
		b.Checklist != nil, b.Quiz != nil, b.Info != nil} {
		if p {
			set++
		}
	}
	if b.Kind.IsInformational() {
		if set == 0 || (b.Info != nil && set == 1) {
			return nil
		}
		return fmt.Errorf("block %s: payload does not match kind %q", b.ID, b.Kind)
	}
	var ok bool
	switch b.Kind {
	case BlockFileUpload:
		ok = b.FileUpload != nil
	case BlockSignaturePad:
		ok = b.Signature != nil
	case BlockFormField:
		ok = b.FormField != nil && b.FormField.Key != ""
	case BlockChecklist:
		ok = b.Checklist != nil
	case BlockQuizQuestion:
		ok = b.Quiz != nil
	default:
		return fmt.Errorf("block %s: unknown kind %q", b.ID, b.Kind)
	}
	if !ok || set != 1 {
		return fmt.Errorf("block %s: payload does not match kind %q", b.ID, b.Kind)
	}
	return nil
}

// Step returns the step with the given id.
func (d *InstructionDocument) Step(id string) (*InstructionStep, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// Blocks returns every block of the document in step order.
func (d *InstructionDocument) Blocks() []Block {
	if d == nil {
		return nil
	}
	var out []Block
	for _, s := range d.Steps {
		out = append(out, s.Blocks...)
	}
	return out
}

// Clone returns a deep copy of the document.
func (d *InstructionDocument) Clone() *InstructionDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Steps = make([]InstructionStep, len(d.Steps))
	for i, s := range d.Steps {
		s.Blocks = append([]Block(nil), s.Blocks...)
		for j := range s.Blocks {
			s.Blocks[j] = s.Blocks[j].clone()
		}
		out.Steps[i] = s
	}
	return &out
}

func (b Block) clone() Block {
	if b.FileUpload != nil {
		v := *b.FileUpload
		b.FileUpload = &v
	}
	if b.Signature != nil {
		v := *b.Signature
		b.Signature = &v
	}
	if b.FormField != nil {
		v := *b.FormField
		v.Options = append([]string(nil), v.Options...)
		b.FormField = &v
	}
	if b.Checklist != nil {
		v := *b.Checklist
		v.Items = append([]ChecklistItem(nil), v.Items...)
		b.Checklist = &v
	}
	if b.Quiz != nil {
		v := *b.Quiz
		v.Options = append([]QuizOption(nil), v.Options...)
		b.Quiz = &v
	}
	if b.Info != nil {
		v := *b.Info
		b.Info = &v
	}
	return b
}
