package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/internal/ratelimit"
)

// Q4: the rate limiter admits exactly N requests per 60s window for a key
// with limit N and rejects the N+1-th arriving within the window.
func TestLimiterAdmitsExactlyN(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	limit := 2
	require.True(t, l.Allow("k1", &limit))
	require.True(t, l.Allow("k1", &limit))
	require.False(t, l.Allow("k1", &limit))
}

func TestLimiterNilLimitUnlimited(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("unlimited", nil))
	}
}

func TestLimiterRejectsRepeatWithinWindow(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	limit := 1
	require.True(t, l.Allow("k2", &limit))
	require.False(t, l.Allow("k2", &limit))

	// Simulate time passing beyond the window by using a fresh limiter
	// with an injected clock would require exporting `now`; instead we
	// verify same-instant behavior is deterministic, which is what the
	// production GC sweep and window check both depend on.
	time.Sleep(time.Millisecond)
	require.False(t, l.Allow("k2", &limit))
}
