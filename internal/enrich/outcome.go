// Package enrich implements the enrichment workers and the fan-out
// coordinator that drives them over a slice of papers.
package enrich

import "github.com/scholargraph/enrich-cli/internal/model"

// OutcomeStatus classifies a worker result. Workers never return Go errors
// or panic across the fan-out boundary; everything an invocation can
// produce is folded into an Outcome.
type OutcomeStatus int

const (
	// StatusOK means the worker completed, possibly with an empty fragment
	// (no-match and malformed-response both land here).
	StatusOK OutcomeStatus = iota

	// StatusFailed means the worker gave up after exhausting retries.
	StatusFailed

	// StatusQuotaExhausted means every credential in the pool is spent.
	// The coordinator stops dispatching and the session pauses.
	StatusQuotaExhausted
)

// Outcome is the result of one worker invocation.
type Outcome struct {
	Status   OutcomeStatus
	Fragment *model.Fragment
	Reason   string
}

// Success wraps a fragment in an OK outcome.
func Success(f *model.Fragment) Outcome {
	return Outcome{Status: StatusOK, Fragment: f}
}

// Failure records a terminal worker failure with its reason.
func Failure(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// QuotaExhausted signals a spent credential pool.
func QuotaExhausted(reason string) Outcome {
	return Outcome{Status: StatusQuotaExhausted, Reason: reason}
}
