package schemas

import "time"

// -- Page Schemas --

// PageSnapshot is an immutable capture of a loaded page. The detector and
// verifier operate on snapshots only, never on a live browser session, which
// keeps both deterministic and testable without a browser.
type PageSnapshot struct {
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	HTML    string    `json:"html"`
	TakenAt time.Time `json:"taken_at"`
}

// -- Field Schemas --

// FieldType is the semantic type derived for a form control.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPassword FieldType = "password"
	FieldPhone    FieldType = "tel"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldURL      FieldType = "url"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
)

// DetectedField describes one fillable control found on a page. Detected
// structures are page-scoped; they live for a single visit.
type DetectedField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	Selector string    `json:"selector"`
	Required bool      `json:"required"`
	// Placeholder and DataAttrs feed classification and selector generation.
	Placeholder string            `json:"placeholder,omitempty"`
	DataAttrs   map[string]string `json:"data_attrs,omitempty"`
}

// FormType classifies the purpose of a detected form.
type FormType string

const (
	FormRegistration FormType = "registration"
	FormLogin        FormType = "login"
	FormContact      FormType = "contact"
	FormCheckout     FormType = "checkout"
	FormProfile      FormType = "profile"
	FormSurvey       FormType = "survey"
	FormUnknown      FormType = "unknown"
)

// DetectedForm aggregates the fields of one form-like container together
// with its classification and a 0-100 confidence score.
type DetectedForm struct {
	Selector       string          `json:"selector"`
	Type           FormType        `json:"type"`
	Fields         []DetectedField `json:"fields"`
	SubmitSelector string          `json:"submit_selector,omitempty"`
	HasCaptcha     bool            `json:"has_captcha"`
	Confidence     int             `json:"confidence"`
}

// -- Template Schemas --

// TemplateField is one ordered field descriptor inside a FormTemplate.
type TemplateField struct {
	Name              string    `json:"name"`
	Type              FieldType `json:"type"`
	Selector          string    `json:"selector"`
	Required          bool      `json:"required"`
	ValidationPattern string    `json:"validation_pattern,omitempty"`
}

// FormTemplate is a durable, per-site description of a form learned by the
// detector or supplied by the caller. The engine treats templates as
// read-only input.
type FormTemplate struct {
	URL            string          `json:"url"`
	FormType       FormType        `json:"form_type"`
	Version        int             `json:"version"`
	Fields         []TemplateField `json:"fields"`
	SubmitSelector string          `json:"submit_selector,omitempty"`
	LearnedAt      time.Time       `json:"learned_at"`
}

// -- Mapping Schemas --

// FieldMapping binds a resolved value to a field name for one fill attempt.
// Confidence records the provenance quality of the match (0-100).
type FieldMapping struct {
	FieldName  string `json:"field_name"`
	Selector   string `json:"selector"`
	Value      string `json:"value"`
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
}

// -- Verification Schemas --

// SubmissionOutcome is the verifier's classification of a submit attempt.
type SubmissionOutcome struct {
	Status         ResultStatus `json:"status"`
	Navigated      bool         `json:"navigated"`
	SuccessSignals []string     `json:"success_signals,omitempty"`
	ErrorSignals   []string     `json:"error_signals,omitempty"`
}
