// File: internal/detector/detector.go
// The detector turns a page snapshot into a ranked list of candidate forms.
// It operates purely on the serialized DOM, so repeated analyses of an
// unchanged page always produce identical output.
package detector

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// controlSelector matches fillable controls. Hidden inputs and the various
// button flavors are excluded; they are never mapping targets.
const controlSelector = `input:not([type=hidden]):not([type=submit]):not([type=button]):not([type=reset]):not([type=image]), select, textarea`

// submitSelectorQuery matches controls that can submit a form.
const submitSelectorQuery = `button[type=submit], input[type=submit], button:not([type])`

// captchaSelector matches the widget containers of the common captcha
// providers. Presence only flags the form; solving is an external capability.
const captchaSelector = `.g-recaptcha, .h-captcha, .cf-turnstile, [data-sitekey], iframe[src*="recaptcha"], iframe[src*="hcaptcha"]`

// Detector analyzes page snapshots for fillable forms.
type Detector struct {
	cfg    config.DetectorConfig
	logger *zap.Logger
}

var _ schemas.FormDetector = (*Detector)(nil)

// New creates a Detector with the given tuning configuration.
func New(cfg config.DetectorConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{cfg: cfg, logger: logger.Named("detector")}
}

// Analyze enumerates form-like containers in the snapshot and returns them
// ordered by descending confidence. Ties keep document order, so the result
// is fully deterministic for a given snapshot.
func (d *Detector) Analyze(snapshot schemas.PageSnapshot) []schemas.DetectedForm {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot.HTML))
	if err != nil {
		d.logger.Warn("Failed to parse snapshot HTML", zap.String("url", snapshot.URL), zap.Error(err))
		return nil
	}

	pageText := strings.ToLower(doc.Find("body").Text())

	var forms []schemas.DetectedForm
	containers := d.findContainers(doc)
	for _, container := range containers {
		form := d.analyzeContainer(doc, container)
		if len(form.Fields) < d.cfg.MinFields {
			continue
		}
		form.Type = classifyForm(form.Fields, pageText)
		form.Confidence = d.score(form)
		forms = append(forms, form)
	}

	sort.SliceStable(forms, func(i, j int) bool {
		return forms[i].Confidence > forms[j].Confidence
	})

	d.logger.Debug("Snapshot analyzed",
		zap.String("url", snapshot.URL),
		zap.Int("forms", len(forms)),
	)
	return forms
}

// findContainers returns the form-like containers of the document: every
// <form> element, plus the body itself when a page renders bare controls
// without a form wrapper (common with JS-driven submission).
func (d *Detector) findContainers(doc *goquery.Document) []*goquery.Selection {
	var containers []*goquery.Selection
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		containers = append(containers, s)
	})
	if len(containers) > 0 {
		return containers
	}

	body := doc.Find("body")
	if body.Find(controlSelector).Length() > 0 {
		containers = append(containers, body)
	}
	return containers
}

// analyzeContainer extracts the fields and submit control of one container.
func (d *Detector) analyzeContainer(doc *goquery.Document, container *goquery.Selection) schemas.DetectedForm {
	formSel := containerSelector(container)
	form := schemas.DetectedForm{
		Selector:   formSel,
		HasCaptcha: container.Find(captchaSelector).Length() > 0 || doc.Find(captchaSelector).Length() > 0,
	}

	container.Find(controlSelector).Each(func(_ int, s *goquery.Selection) {
		field := d.extractField(doc, container, formSel, s)
		form.Fields = append(form.Fields, field)
	})

	if submit := container.Find(submitSelectorQuery).First(); submit.Length() > 0 {
		form.SubmitSelector = elementSelector(submit, formSel)
	}

	return form
}

// extractField builds a DetectedField from one control node.
func (d *Detector) extractField(doc *goquery.Document, container *goquery.Selection, formSel string, s *goquery.Selection) schemas.DetectedField {
	name, _ := s.Attr("name")
	placeholder, _ := s.Attr("placeholder")

	field := schemas.DetectedField{
		Name:        name,
		Type:        fieldType(s),
		Label:       deriveLabel(doc, s),
		Placeholder: placeholder,
		Selector:    elementSelector(s, formSel),
		DataAttrs:   dataAttributes(s),
	}
	field.Required = isRequired(doc, s)

	if field.Name == "" {
		// Fall back to something the mapper can still pattern-match on.
		if id, ok := s.Attr("id"); ok {
			field.Name = id
		} else if placeholder != "" {
			field.Name = placeholder
		}
	}
	return field
}

// fieldType derives the semantic type from the control's declared type.
func fieldType(s *goquery.Selection) schemas.FieldType {
	switch goquery.NodeName(s) {
	case "select":
		return schemas.FieldSelect
	case "textarea":
		return schemas.FieldTextarea
	}

	typ, _ := s.Attr("type")
	switch strings.ToLower(typ) {
	case "email":
		return schemas.FieldEmail
	case "password":
		return schemas.FieldPassword
	case "tel":
		return schemas.FieldPhone
	case "number":
		return schemas.FieldNumber
	case "date", "datetime-local":
		return schemas.FieldDate
	case "url":
		return schemas.FieldURL
	case "checkbox":
		return schemas.FieldCheckbox
	case "radio":
		return schemas.FieldRadio
	default:
		return schemas.FieldText
	}
}

// deriveLabel resolves a human-readable label using the association chain:
// label[for] -> wrapping label -> nearby text -> placeholder -> aria-label.
func deriveLabel(doc *goquery.Document, s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		if lbl := doc.Find(`label[for="` + id + `"]`).First(); lbl.Length() > 0 {
			if text := cleanLabel(lbl.Text()); text != "" {
				return text
			}
		}
	}

	if parent := s.ParentsFiltered("label").First(); parent.Length() > 0 {
		if text := cleanLabel(ownText(parent, s)); text != "" {
			return text
		}
	}

	// Nearby text: the nearest preceding sibling with visible text.
	for prev := s.Prev(); prev.Length() > 0; prev = prev.Prev() {
		name := goquery.NodeName(prev)
		if name == "input" || name == "select" || name == "textarea" {
			break
		}
		if text := cleanLabel(prev.Text()); text != "" {
			return text
		}
	}

	if placeholder, ok := s.Attr("placeholder"); ok && strings.TrimSpace(placeholder) != "" {
		return strings.TrimSpace(placeholder)
	}
	if aria, ok := s.Attr("aria-label"); ok && strings.TrimSpace(aria) != "" {
		return strings.TrimSpace(aria)
	}
	return ""
}

// ownText returns parent's text with the control's own text removed, which
// matters for <label>Name <input></label> style markup.
func ownText(parent, control *goquery.Selection) string {
	parentText := parent.Text()
	controlText := control.Text()
	if controlText != "" {
		parentText = strings.Replace(parentText, controlText, "", 1)
	}
	return parentText
}

// cleanLabel normalizes whitespace and strips the required marker.
func cleanLabel(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimSuffix(text, "*")
	return strings.TrimSpace(text)
}

// isRequired checks explicit attributes plus the visual '*' convention.
// The '*' check reads the raw label text; cleanLabel strips the marker
// before the label reaches the field.
func isRequired(doc *goquery.Document, s *goquery.Selection) bool {
	if _, ok := s.Attr("required"); ok {
		return true
	}
	if aria, ok := s.Attr("aria-required"); ok && aria == "true" {
		return true
	}
	if id, ok := s.Attr("id"); ok && id != "" {
		if lbl := doc.Find(`label[for="` + id + `"]`).First(); lbl.Length() > 0 && strings.Contains(lbl.Text(), "*") {
			return true
		}
	}
	if parent := s.ParentsFiltered("label").First(); parent.Length() > 0 && strings.Contains(parent.Text(), "*") {
		return true
	}
	return false
}

// dataAttributes collects the control's data-* attributes.
func dataAttributes(s *goquery.Selection) map[string]string {
	var attrs map[string]string
	for _, node := range s.Nodes {
		for _, a := range node.Attr {
			if strings.HasPrefix(a.Key, "data-") {
				if attrs == nil {
					attrs = map[string]string{}
				}
				attrs[a.Key] = a.Val
			}
		}
	}
	return attrs
}

// score combines the tunable confidence components and clamps to [0,100].
func (d *Detector) score(form schemas.DetectedForm) int {
	base := len(form.Fields) * d.cfg.BaseScorePerField
	if base > d.cfg.BaseScoreCap {
		base = d.cfg.BaseScoreCap
	}

	labelled := 0
	for _, f := range form.Fields {
		if f.Name != "" && f.Label != "" {
			labelled += d.cfg.LabelledFieldBonus
		}
	}
	if labelled > d.cfg.LabelledBonusCap {
		labelled = d.cfg.LabelledBonusCap
	}

	score := base + labelled
	if form.Type != schemas.FormUnknown {
		score += d.cfg.ClassifiedBonus
	}
	if form.SubmitSelector != "" {
		score += d.cfg.SubmitBonus
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
