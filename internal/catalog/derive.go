package catalog

import "github.com/ukydev/fleet-compliance/internal/models"

// RequirementKind names one kind of input a credential asks for.
type RequirementKind string

const (
	RequireUpload    RequirementKind = "upload"
	RequireSignature RequirementKind = "signature"
	RequireDate      RequirementKind = "date"
	RequireForm      RequirementKind = "form"
	RequireChecklist RequirementKind = "checklist"
	RequireQuiz      RequirementKind = "quiz"
)

// DeriveSubmissionType computes the single-mode submission type kept for
// older clients.
func DeriveSubmissionType(doc *models.InstructionDocument, requiresDriverAction bool) models.SubmissionType {
	if !requiresDriverAction {
		return models.SubmissionAdminVerified
	}
	if doc == nil || len(doc.Steps) == 0 {
		return models.SubmissionNone
	}
	var signature, upload, form, nonDate, date, quiz, adminVerify bool
	for _, s := range doc.Steps {
		if s.Type == models.StepAdminVerify {
			adminVerify = true
		}
		for _, b := range s.Blocks {
			switch b.Kind {
			case models.BlockSignaturePad:
				signature = true
			case models.BlockFileUpload:
				upload = true
			case models.BlockFormField:
				form = true
				if b.FormField != nil && b.FormField.Type == models.FieldDate {
					date = true
				} else {
					nonDate = true
				}
			case models.BlockQuizQuestion:
				quiz = true
			}
		}
	}
	switch {
	case adminVerify && !signature && !upload && !form:
		return models.SubmissionAdminVerified
	case signature:
		return models.SubmissionSignature
	case upload:
		return models.SubmissionDocumentUpload
	case nonDate || quiz:
		return models.SubmissionForm
	case date:
		return models.SubmissionDateEntry
	}
	return models.SubmissionNone
}

// Requirements lists the distinct kinds of input the document asks for, in
// the order they first appear.
func Requirements(doc *models.InstructionDocument) []RequirementKind {
	out := []RequirementKind{}
	if doc == nil {
		return out
	}
	seen := map[RequirementKind]bool{}
	add := func(k RequirementKind) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, b := range doc.Blocks() {
		switch b.Kind {
		case models.BlockFileUpload:
			add(RequireUpload)
		case models.BlockSignaturePad:
			add(RequireSignature)
		case models.BlockFormField:
			if b.FormField != nil && b.FormField.Type == models.FieldDate {
				add(RequireDate)
			} else {
				add(RequireForm)
			}
		case models.BlockChecklist:
			add(RequireChecklist)
		case models.BlockQuizQuestion:
			add(RequireQuiz)
		}
	}
	return out
}
