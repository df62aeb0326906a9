package usage_test

import (
	"sync"
	"testing"

	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/stretchr/testify/assert"
)

func TestTokenCount_Total(t *testing.T) {
	tc := usage.TokenCount{InputTokens: 100, OutputTokens: 50}
	assert.Equal(t, 150, tc.Total())
}

func TestTokenCount_Total_Zero(t *testing.T) {
	tc := usage.TokenCount{}
	assert.Equal(t, 0, tc.Total())
}

func TestTracker_Add_And_Count(t *testing.T) {
	var tr usage.Tracker

	assert.Equal(t, 0, tr.Count())

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, 1, tr.Count())

	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 10})
	assert.Equal(t, 2, tr.Count())
}

func TestTracker_Last_Empty(t *testing.T) {
	var tr usage.Tracker

	tc, ok := tr.Last()
	assert.False(t, ok)
	assert.Equal(t, usage.TokenCount{}, tc)
}

func TestTracker_Last(t *testing.T) {
	var tr usage.Tracker

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 10})

	tc, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 20, OutputTokens: 10}, tc)
}

func TestTracker_Total(t *testing.T) {
	var tr usage.Tracker

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 10})

	total := tr.Total()
	assert.Equal(t, 30, total.InputTokens)
	assert.Equal(t, 15, total.OutputTokens)
	assert.Equal(t, 45, total.Total())
}

func TestTracker_Total_Empty(t *testing.T) {
	var tr usage.Tracker

	total := tr.Total()
	assert.Equal(t, usage.TokenCount{}, total)
}

func TestTracker_Reset(t *testing.T) {
	var tr usage.Tracker

	tr.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})
	tr.Add(usage.TokenCount{InputTokens: 20, OutputTokens: 10})
	assert.Equal(t, 2, tr.Count())

	tr.Reset()
	assert.Equal(t, 0, tr.Count())

	_, ok := tr.Last()
	assert.False(t, ok)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	var tr usage.Tracker
	var wg sync.WaitGroup

	const goroutines = 10
	const perGoroutine = 100

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				tr.Add(usage.TokenCount{InputTokens: 1, OutputTokens: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, tr.Count())
	assert.Equal(t, goroutines*perGoroutine, tr.Total().InputTokens)
}
