// File: internal/verifier/verifier.go
// Post-submission verification. All heuristics work on page snapshots so
// classification is reproducible after the fact.
package verifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// errorElementSelector matches markup commonly used for inline failures.
const errorElementSelector = `.error, .errors, .alert-danger, .alert-error, .field-error, .form-error, [role=alert], .invalid-feedback`

// successElementSelector matches markup commonly used for confirmations.
const successElementSelector = `.success, .alert-success, .confirmation, .thank-you, .thankyou`

// Verifier classifies submission outcomes from before/after snapshots.
type Verifier struct {
	cfg    config.VerifierConfig
	logger *zap.Logger
}

var _ schemas.SubmissionVerifier = (*Verifier)(nil)

// New creates a Verifier with the configured keyword lists.
func New(cfg config.VerifierConfig, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{cfg: cfg, logger: logger.Named("verifier")}
}

// Verify applies the heuristics in order: URL change, success indicators,
// error indicators, page-title keywords. Any error indicator overrides the
// positive signals and classifies the attempt as a failure; a positive
// signal with no error indicators is a success; neither is partial.
func (v *Verifier) Verify(before, after schemas.PageSnapshot) schemas.SubmissionOutcome {
	outcome := schemas.SubmissionOutcome{
		Navigated: before.URL != "" && after.URL != "" && before.URL != after.URL,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(after.HTML))
	if err != nil {
		v.logger.Warn("Failed to parse post-submission snapshot", zap.String("url", after.URL), zap.Error(err))
		// With no DOM to inspect, navigation is the only usable signal.
		if outcome.Navigated {
			outcome.Status = schemas.ResultSuccess
		} else {
			outcome.Status = schemas.ResultPartial
		}
		return outcome
	}

	bodyText := strings.ToLower(doc.Find("body").Text())

	doc.Find(errorElementSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			outcome.ErrorSignals = append(outcome.ErrorSignals, clip(text))
		}
	})
	for _, kw := range v.cfg.ErrorKeywords {
		if strings.Contains(bodyText, strings.ToLower(kw)) {
			outcome.ErrorSignals = append(outcome.ErrorSignals, "keyword: "+kw)
		}
	}

	doc.Find(successElementSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			outcome.SuccessSignals = append(outcome.SuccessSignals, clip(text))
		}
	})
	for _, kw := range v.cfg.SuccessKeywords {
		if strings.Contains(bodyText, strings.ToLower(kw)) {
			outcome.SuccessSignals = append(outcome.SuccessSignals, "keyword: "+kw)
		}
	}

	title := strings.ToLower(after.Title)
	for _, kw := range v.cfg.TitleKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			outcome.SuccessSignals = append(outcome.SuccessSignals, "title: "+kw)
		}
	}

	switch {
	case len(outcome.ErrorSignals) > 0:
		outcome.Status = schemas.ResultFailure
	case outcome.Navigated || len(outcome.SuccessSignals) > 0:
		outcome.Status = schemas.ResultSuccess
	default:
		outcome.Status = schemas.ResultPartial
	}
	return outcome
}

// clip bounds a signal string for logs and results.
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:120] + "…"
	}
	return s
}
