package calls

import (
	"testing"
	"time"
)

func TestRetryDelay_ExponentialBackoff(t *testing.T) {
	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute, 40 * time.Minute}
	for n, w := range want {
		if got := RetryDelay(n); got != w {
			t.Fatalf("RetryDelay(%d) = %v, want %v", n, got, w)
		}
	}
	for n := 1; n < len(want); n++ {
		if RetryDelay(n) <= RetryDelay(n-1) {
			t.Fatalf("expected monotonically increasing delays at n=%d", n)
		}
	}
}

func TestRetryDelay_NegativeCountClamped(t *testing.T) {
	if got := RetryDelay(-1); got != 5*time.Minute {
		t.Fatalf("expected base delay for negative count, got %v", got)
	}
}

func TestShouldRetry_TransientReasons(t *testing.T) {
	transient := []string{"customer-busy", "customer-did-not-answer", "dial-busy", "dial-no-answer", "voicemail"}
	for _, reason := range transient {
		if !ShouldRetry(reason) {
			t.Fatalf("expected %q to be retryable", reason)
		}
	}
}

func TestShouldRetry_PermanentReasons(t *testing.T) {
	permanent := []string{"assistant-ended-call", "customer-ended-call", "assistant-error", "dial-failed", "", "something-new"}
	for _, reason := range permanent {
		if ShouldRetry(reason) {
			t.Fatalf("expected %q to be non-retryable", reason)
		}
	}
}

func TestClassifyEndedReason(t *testing.T) {
	cases := []struct {
		reason string
		want   CallStatus
	}{
		{"assistant-ended-call", CallStatusCompleted},
		{"customer-ended-call", CallStatusCompleted},
		{"call-cancelled-by-operator", CallStatusCancelled},
		{"dial-no-answer", CallStatusFailed},
		{"voicemail", CallStatusFailed},
		{"pipeline-error-openai-llm-failed", CallStatusFailed},
		// Unrecognized reasons fail open so records never get stuck.
		{"brand-new-provider-reason", CallStatusCompleted},
	}
	for _, tc := range cases {
		if got := classifyEndedReason(tc.reason); got != tc.want {
			t.Fatalf("classifyEndedReason(%q) = %q, want %q", tc.reason, got, tc.want)
		}
	}
}
