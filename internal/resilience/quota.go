package resilience

import (
	"errors"
	"strings"
)

// QuotaError marks a provider response that indicates a spent credential
// rather than a transient hiccup. Retrying it on the same key is pointless;
// the caller rotates to the next credential or pauses the session.
type QuotaError struct {
	Err      error
	Provider string
}

func (e *QuotaError) Error() string {
	return e.Err.Error()
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// NewQuotaError wraps an error as a quota-exhaustion signal.
func NewQuotaError(err error, provider string) *QuotaError {
	return &QuotaError{Err: err, Provider: provider}
}

// quotaPatterns are the message fragments search providers use to report a
// spent key. Matched case-insensitively against the whole error chain.
var quotaPatterns = []string{
	"quota",
	"usage limit",
	"monthly limit",
	"daily limit",
	"rate limit",
	"too many requests",
	"429",
	"exceeded",
	"credits",
}

// IsQuotaExhausted returns true if the error is a QuotaError or its message
// matches a known quota-exhaustion pattern.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}

	var qe *QuotaError
	if errors.As(err, &qe) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
