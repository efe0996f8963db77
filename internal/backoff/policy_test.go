package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// These cases exercise the formula both of this module's real consumers
// rely on: internal/sandboxclient.retryPolicy (InitialMs:2000, Factor:2,
// cap 5 attempts, §4.1) and internal/provider's Anthropic stream retry.
// Presets (DefaultPolicy/AggressivePolicy/ConservativePolicy) are not used
// by either and aren't tested here — neither collaborator reaches for
// them, each supplies its own literal BackoffPolicy tuned to its timeout
// budget.
func TestComputeBackoffWithRand(t *testing.T) {
	tests := []struct {
		name        string
		policy      BackoffPolicy
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "first attempt with no jitter",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0},
			attempt:     1,
			randomValue: 0.5,
			expected:    2000 * time.Millisecond,
		},
		{
			name:        "second attempt doubles",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0},
			attempt:     2,
			randomValue: 0.5,
			expected:    4000 * time.Millisecond,
		},
		{
			name:        "fourth attempt, sandboxclient's MAX_RETRIES=4 ceiling",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0},
			attempt:     4,
			randomValue: 0.5,
			expected:    16000 * time.Millisecond,
		},
		{
			name:        "clamped to max",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 5000, Factor: 2, Jitter: 0},
			attempt:     10,
			randomValue: 0.5,
			expected:    5000 * time.Millisecond,
		},
		{
			name:        "with 10% jitter at max random, matching sandboxclient's policy",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0.1},
			attempt:     1,
			randomValue: 1.0,
			expected:    2200 * time.Millisecond,
		},
		{
			name:        "with 10% jitter at zero random",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0.1},
			attempt:     1,
			randomValue: 0.0,
			expected:    2000 * time.Millisecond,
		},
		{
			name:        "attempt 0 treated as 1",
			policy:      BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0},
			attempt:     0,
			randomValue: 0.5,
			expected:    2000 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBackoffWithRand(tt.policy, tt.attempt, tt.randomValue)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeBackoff_JitterRange(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 2000, MaxMs: 32000, Factor: 2, Jitter: 0.1}

	minExpected := 2000 * time.Millisecond
	maxExpected := 2200 * time.Millisecond

	for i := 0; i < 100; i++ {
		got := ComputeBackoff(policy, 1)
		assert.GreaterOrEqual(t, got, minExpected)
		assert.LessOrEqual(t, got, maxExpected)
	}
}
