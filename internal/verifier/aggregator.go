// File: internal/verifier/aggregator.go
package verifier

import (
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// BuildResult converts a verified outcome plus fill accounting into the
// session's ExecutionResult. A submission that verified as success but
// filled fewer fields than the form carries is downgraded to partial.
func BuildResult(jobID, url string, outcome schemas.SubmissionOutcome, filled, total, attempts int, duration time.Duration, warnings []string) schemas.ExecutionResult {
	status := outcome.Status
	if status == schemas.ResultSuccess && total > 0 && filled < total {
		status = schemas.ResultPartial
	}

	res := schemas.ExecutionResult{
		JobID:        jobID,
		URL:          url,
		Status:       status,
		FilledFields: filled,
		TotalFields:  total,
		Attempts:     attempts,
		Duration:     duration,
		Warnings:     warnings,
		FinishedAt:   time.Now().UTC(),
	}
	if status == schemas.ResultFailure && len(outcome.ErrorSignals) > 0 {
		res.Error = outcome.ErrorSignals[0]
	}
	return res
}

// SuccessRate computes the fraction of successful results in 0-100 percent.
func SuccessRate(results []schemas.ExecutionResult) float64 {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if r.Status == schemas.ResultSuccess {
			ok++
		}
	}
	return float64(ok) / float64(len(results)) * 100
}
