package calls

import "time"

// Retry policy for transient call failures.
//
// The policy is global domain knowledge: which ended reasons are worth another
// attempt, and how long to wait. The per-record retry ceiling (MaxRetries) is
// record-level configuration and is enforced by the Service, not here.

// DefaultRetryBaseDelay is the backoff unit: delay = 2^retryCount * base,
// so successive retries wait 5, 10, 20 minutes.
const DefaultRetryBaseDelay = 5 * time.Minute

// transientEndedReasons is the fixed allowlist of ended reasons that indicate
// the customer may simply be reachable later.
var transientEndedReasons = map[string]struct{}{
	"customer-busy":           {},
	"customer-did-not-answer": {},
	"dial-busy":               {},
	"dial-no-answer":          {},
	"voicemail":               {},
}

// ShouldRetry reports whether endedReason is a transient outcome.
func ShouldRetry(endedReason string) bool {
	_, ok := transientEndedReasons[endedReason]
	return ok
}

// RetryDelay returns the backoff before attempt retryCount+1 using the
// default base unit.
func RetryDelay(retryCount int) time.Duration {
	return retryDelayFrom(DefaultRetryBaseDelay, retryCount)
}

func retryDelayFrom(base time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(1<<uint(retryCount)) * base
}
