package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validType() *models.CredentialType {
	return &models.CredentialType{
		TenantID:       primitive.NewObjectID(),
		Name:           "Insurance",
		Category:       models.CategoryVehicle,
		Scope:          models.ScopeGlobal,
		EmploymentType: models.EmploymentBoth,
		Requirement:    models.RequirementRequired,
		ExpirationType: models.ExpirationNever,
		Status:         models.TypeStatusActive,
	}
}

func TestValidate(t *testing.T) {
	broker := primitive.NewObjectID()
	tests := []struct {
		name   string
		mutate func(ct *models.CredentialType)
		valid  bool
	}{
		{"valid", func(ct *models.CredentialType) {}, true},
		{"missing name", func(ct *models.CredentialType) { ct.Name = "" }, false},
		{"bad category", func(ct *models.CredentialType) { ct.Category = "boat" }, false},
		{"broker scope without broker", func(ct *models.CredentialType) { ct.Scope = models.ScopeBroker }, false},
		{"broker scope with broker", func(ct *models.CredentialType) {
			ct.Scope = models.ScopeBroker
			ct.BrokerID = &broker
		}, true},
		{"global with broker", func(ct *models.CredentialType) { ct.BrokerID = &broker }, false},
		{"fixed interval without days", func(ct *models.CredentialType) { ct.ExpirationType = models.ExpirationFixedInterval }, false},
		{"fixed interval with days", func(ct *models.CredentialType) {
			ct.ExpirationType = models.ExpirationFixedInterval
			ct.ExpirationIntervalDays = 365
		}, true},
		{"interval days without fixed interval", func(ct *models.CredentialType) { ct.ExpirationIntervalDays = 30 }, false},
		{"negative grace", func(ct *models.CredentialType) { ct.GracePeriodDays = -1 }, false},
		{"vehicle types on driver type", func(ct *models.CredentialType) {
			ct.Category = models.CategoryDriver
			ct.VehicleTypes = []string{models.VehicleSedan}
		}, false},
		{"employment filter on vehicle type", func(ct *models.CredentialType) { ct.EmploymentType = models.EmploymentW2Only }, false},
		{"scheduled without date", func(ct *models.CredentialType) { ct.Status = models.TypeStatusScheduled }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := validType()
			tt.mutate(ct)
			err := Validate(ct)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.IsValidation(err), "got %v", err)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	upload := func(id string) models.Block {
		return models.Block{ID: id, Kind: models.BlockFileUpload, FileUpload: &models.FileUploadContent{Label: "x"}}
	}
	t.Run("nil document", func(t *testing.T) {
		assert.NoError(t, ValidateDocument(nil))
	})
	t.Run("duplicate step ids", func(t *testing.T) {
		doc := &models.InstructionDocument{Steps: []models.InstructionStep{{ID: "s"}, {ID: "s"}}}
		assert.True(t, apperr.IsValidation(ValidateDocument(doc)))
	})
	t.Run("duplicate block ids across steps", func(t *testing.T) {
		doc := &models.InstructionDocument{Steps: []models.InstructionStep{
			{ID: "s1", Blocks: []models.Block{upload("b")}},
			{ID: "s2", Blocks: []models.Block{upload("b")}},
		}}
		assert.True(t, apperr.IsValidation(ValidateDocument(doc)))
	})
	t.Run("payload does not match kind", func(t *testing.T) {
		doc := &models.InstructionDocument{Steps: []models.InstructionStep{
			{ID: "s1", Blocks: []models.Block{{ID: "b", Kind: models.BlockSignaturePad, FileUpload: &models.FileUploadContent{}}}},
		}}
		assert.True(t, apperr.IsValidation(ValidateDocument(doc)))
	})
	t.Run("duplicate quiz options", func(t *testing.T) {
		doc := &models.InstructionDocument{Steps: []models.InstructionStep{
			{ID: "s1", Blocks: []models.Block{{ID: "q", Kind: models.BlockQuizQuestion, Quiz: &models.QuizQuestionContent{
				Options: []models.QuizOption{{ID: "a"}, {ID: "a"}},
			}}}},
		}}
		assert.True(t, apperr.IsValidation(ValidateDocument(doc)))
	})
	t.Run("valid", func(t *testing.T) {
		doc := &models.InstructionDocument{Steps: []models.InstructionStep{
			{ID: "s1", Blocks: []models.Block{upload("a"), {ID: "h", Kind: models.BlockHeading}}},
		}}
		assert.NoError(t, ValidateDocument(doc))
	})
}

func step(typ models.StepType, blocks ...models.Block) models.InstructionStep {
	return models.InstructionStep{ID: string(typ), Type: typ, Blocks: blocks}
}

func TestDeriveSubmissionType(t *testing.T) {
	sig := models.Block{Kind: models.BlockSignaturePad, Signature: &models.SignaturePadContent{}}
	up := models.Block{Kind: models.BlockFileUpload, FileUpload: &models.FileUploadContent{}}
	text := models.Block{Kind: models.BlockFormField, FormField: &models.FormFieldContent{Key: "n", Type: models.FieldText}}
	date := models.Block{Kind: models.BlockFormField, FormField: &models.FormFieldContent{Key: "d", Type: models.FieldDate}}
	quiz := models.Block{Kind: models.BlockQuizQuestion, Quiz: &models.QuizQuestionContent{}}
	heading := models.Block{Kind: models.BlockHeading}
	doc := func(steps ...models.InstructionStep) *models.InstructionDocument {
		return &models.InstructionDocument{Steps: steps}
	}

	assert.Equal(t, models.SubmissionAdminVerified, DeriveSubmissionType(doc(step(models.StepDocumentUpload, up)), false))
	assert.Equal(t, models.SubmissionNone, DeriveSubmissionType(nil, true))
	assert.Equal(t, models.SubmissionNone, DeriveSubmissionType(doc(), true))
	assert.Equal(t, models.SubmissionAdminVerified, DeriveSubmissionType(doc(step(models.StepAdminVerify, heading)), true))
	assert.Equal(t, models.SubmissionSignature, DeriveSubmissionType(doc(step(models.StepSignature, up, sig)), true))
	assert.Equal(t, models.SubmissionDocumentUpload, DeriveSubmissionType(doc(step(models.StepDocumentUpload, up, text)), true))
	assert.Equal(t, models.SubmissionForm, DeriveSubmissionType(doc(step(models.StepFormInput, date, text)), true))
	assert.Equal(t, models.SubmissionForm, DeriveSubmissionType(doc(step(models.StepKnowledgeCheck, quiz)), true))
	assert.Equal(t, models.SubmissionDateEntry, DeriveSubmissionType(doc(step(models.StepFormInput, date)), true))
	assert.Equal(t, models.SubmissionNone, DeriveSubmissionType(doc(step(models.StepInformation, heading)), true))
}

func TestRequirements(t *testing.T) {
	doc := &models.InstructionDocument{Steps: []models.InstructionStep{
		step(models.StepFormInput,
			models.Block{Kind: models.BlockFormField, FormField: &models.FormFieldContent{Key: "d", Type: models.FieldDate}},
			models.Block{Kind: models.BlockFileUpload, FileUpload: &models.FileUploadContent{}},
		),
		step(models.StepSignature,
			models.Block{Kind: models.BlockFileUpload, FileUpload: &models.FileUploadContent{}},
			models.Block{Kind: models.BlockChecklist, Checklist: &models.ChecklistContent{}},
			models.Block{Kind: models.BlockSignaturePad, Signature: &models.SignaturePadContent{}},
		),
	}}
	assert.Equal(t, []RequirementKind{RequireDate, RequireUpload, RequireChecklist, RequireSignature}, Requirements(doc))
	assert.Empty(t, Requirements(nil))
}

func TestBuiltinTemplates(t *testing.T) {
	templates := Builtin()
	ids := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"document_upload", "photo_capture", "signature", "training_quiz", "external_upload", "admin_verified"}, ids)
	assert.Equal(t, []RequirementKind{RequireUpload}, templates[0].Requirements)

	for _, tmpl := range templates {
		t.Run(tmpl.ID, func(t *testing.T) {
			doc := tmpl.Instantiate()
			require.NoError(t, ValidateDocument(doc))
			assert.NotEmpty(t, doc.Steps)
		})
	}
}

func TestTemplateInstantiateAssignsFreshIDs(t *testing.T) {
	var quiz Template
	for _, tmpl := range Builtin() {
		if tmpl.ID == "training_quiz" {
			quiz = tmpl
		}
	}
	a := quiz.Instantiate()
	b := quiz.Instantiate()
	assert.NotEqual(t, a.Steps[0].ID, b.Steps[0].ID)
	assert.NotEqual(t, a.Steps[1].Blocks[0].ID, b.Steps[1].Blocks[0].ID)
	assert.NotEqual(t, a.Steps[1].Blocks[0].Quiz.Options[0].ID, b.Steps[1].Blocks[0].Quiz.Options[0].ID)
	assert.Empty(t, quiz.Document.Steps[0].ID, "the template itself is not modified")
	assert.True(t, a.Steps[1].Blocks[0].Quiz.Options[0].IsCorrect)
	assert.Equal(t, models.CompleteAllSteps, a.Settings.CompletionBehavior)
}

func TestLoadTemplatesRejectsDuplicates(t *testing.T) {
	_, err := LoadTemplates([]byte("- id: a\n- id: a\n"))
	assert.Error(t, err)
	_, err = LoadTemplates([]byte("not: [valid"))
	assert.Error(t, err)
}
