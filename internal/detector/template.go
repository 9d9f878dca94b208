// File: internal/detector/template.go
package detector

import (
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// validationPatterns supplies per-type value checks recorded on learned
// templates so later replays can pre-validate bound values.
var validationPatterns = map[schemas.FieldType]string{
	schemas.FieldEmail: `^[^@\s]+@[^@\s]+\.[^@\s]+$`,
	schemas.FieldPhone: `^[+\d][\d\s().-]{5,}$`,
	schemas.FieldURL:   `^https?://`,
}

// ToTemplate converts a live detection into a durable FormTemplate for the
// given URL. The caller owns versioning; new templates start at version 1
// and stores bump it on save.
func ToTemplate(form schemas.DetectedForm, url string) schemas.FormTemplate {
	tpl := schemas.FormTemplate{
		URL:            url,
		FormType:       form.Type,
		Version:        1,
		SubmitSelector: form.SubmitSelector,
		LearnedAt:      time.Now().UTC(),
	}
	for _, f := range form.Fields {
		tpl.Fields = append(tpl.Fields, schemas.TemplateField{
			Name:              f.Name,
			Type:              f.Type,
			Selector:          f.Selector,
			Required:          f.Required,
			ValidationPattern: validationPatterns[f.Type],
		})
	}
	return tpl
}

// FromTemplate reconstructs the detected-form shape from a stored template
// so the mapper and fill path treat both sources identically.
func FromTemplate(tpl schemas.FormTemplate) schemas.DetectedForm {
	form := schemas.DetectedForm{
		Type:           tpl.FormType,
		SubmitSelector: tpl.SubmitSelector,
		// Pre-learned templates are trusted input.
		Confidence: 100,
	}
	for _, f := range tpl.Fields {
		form.Fields = append(form.Fields, schemas.DetectedField{
			Name:     f.Name,
			Type:     f.Type,
			Selector: f.Selector,
			Required: f.Required,
		})
	}
	return form
}
