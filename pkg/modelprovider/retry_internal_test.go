package modelprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPruneWindow_ReleasesBackingArray(t *testing.T) {
	r := &RetryingProvider{
		nowFunc: time.Now,
	}

	now := time.Now()

	// Add many entries with old timestamps so they will be pruned.
	const n = 1000
	for i := range n {
		r.window = append(r.window, callEntry{
			timestamp:   now.Add(-2 * time.Minute).Add(time.Duration(i) * time.Millisecond),
			inputTokens: 10,
		})
	}

	// Add one recent entry that should survive pruning.
	r.window = append(r.window, callEntry{
		timestamp:   now,
		inputTokens: 10,
	})

	capBefore := cap(r.window)
	assert.Greater(t, capBefore, n, "backing array should be large before pruning")

	r.pruneWindow(now)

	assert.Len(t, r.window, 1, "only the recent entry should remain")
	assert.Less(t, cap(r.window), capBefore, "backing array capacity should shrink after pruning")
}

func TestRetryable_Classification(t *testing.T) {
	after, ok := retryable(&ThrottledError{RetryAfter: 3 * time.Second})
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, after)

	after, ok = retryable(&UnavailableError{Status: 502})
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), after)

	_, ok = retryable(&RejectedError{Status: 401})
	assert.False(t, ok)

	_, ok = retryable(assert.AnError)
	assert.False(t, ok)
}
