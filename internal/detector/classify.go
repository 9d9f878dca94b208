// File: internal/detector/classify.go
package detector

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// classifierRule associates a form type with the keyword patterns that vote
// for it. Rules are evaluated in order; the first rule whose patterns match
// the form's fields or the page text wins.
type classifierRule struct {
	formType schemas.FormType
	patterns []*regexp.Regexp
}

var confirmPassword = regexp.MustCompile(`(?i)(confirm|repeat|retype|verify).{0,12}(password|pass)|password.{0,12}(confirm|again|2)`)

// classifierRules is ordered by specificity: checkout before contact, since
// checkout pages usually also carry contact-like fields.
var classifierRules = []classifierRule{
	{schemas.FormCheckout, compileAll(
		`(?i)checkout|billing|shipping|payment|card.?number|cvv|cvc|order`,
	)},
	{schemas.FormRegistration, compileAll(
		`(?i)sign.?up|register|create.{0,8}account|join`,
	)},
	{schemas.FormLogin, compileAll(
		`(?i)log.?in|sign.?in|username|remember.?me`,
	)},
	{schemas.FormContact, compileAll(
		`(?i)contact|message|enquiry|inquiry|subject|get.?in.?touch`,
	)},
	{schemas.FormProfile, compileAll(
		`(?i)profile|account.{0,8}settings|preferences|edit.{0,8}account`,
	)},
	{schemas.FormSurvey, compileAll(
		`(?i)survey|feedback|questionnaire|rating|how.{0,8}did.{0,8}we`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// classifyForm applies the ordered keyword rules across field names, labels,
// and the page text. A password field disambiguates registration from login:
// forms with a password-confirmation field register, forms with a single
// password field and login vocabulary log in.
func classifyForm(fields []schemas.DetectedField, pageText string) schemas.FormType {
	var sb strings.Builder
	passwordCount := 0
	hasConfirm := false
	for _, f := range fields {
		sb.WriteString(strings.ToLower(f.Name))
		sb.WriteByte(' ')
		sb.WriteString(strings.ToLower(f.Label))
		sb.WriteByte(' ')
		if f.Type == schemas.FieldPassword {
			passwordCount++
		}
		if confirmPassword.MatchString(f.Name) || confirmPassword.MatchString(f.Label) {
			hasConfirm = true
		}
	}
	fieldText := sb.String()

	// Password heuristics take precedence over keyword votes.
	if passwordCount >= 2 || (passwordCount >= 1 && hasConfirm) {
		return schemas.FormRegistration
	}

	for _, rule := range classifierRules {
		for _, p := range rule.patterns {
			if p.MatchString(fieldText) {
				return rule.formType
			}
		}
	}

	// Field text was inconclusive; fall back to the page copy.
	for _, rule := range classifierRules {
		for _, p := range rule.patterns {
			if p.MatchString(pageText) {
				return rule.formType
			}
		}
	}

	if passwordCount == 1 {
		return schemas.FormLogin
	}
	return schemas.FormUnknown
}
