package reputation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestUpdateRunningAverage(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	first := tracker.Update("node-a", 80)
	assert.Equal(t, uint64(1), first.TotalContributions)
	assert.Equal(t, uint64(80), first.AverageQuality)
	assert.Equal(t, uint64(80), first.ReputationScore)

	second := tracker.Update("node-a", 90)
	assert.Equal(t, uint64(2), second.TotalContributions)
	assert.Equal(t, uint64(85), second.AverageQuality)
	assert.Equal(t, uint64(170), second.ReputationScore)

	third := tracker.Update("node-a", 100)
	assert.Equal(t, uint64(3), third.TotalContributions)
	assert.Equal(t, uint64(90), third.AverageQuality)
	assert.Equal(t, uint64(270), third.ReputationScore)
}

func TestUpdateIntegerAverageTruncates(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	tracker.Update("node-a", 80)
	record := tracker.Update("node-a", 85)
	// (80 + 85) / 2 = 82 with integer division.
	assert.Equal(t, uint64(82), record.AverageQuality)
}

func TestContributorsAreIndependent(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	tracker.Update("node-a", 100)
	tracker.Update("node-b", 50)

	assert.Equal(t, 2, tracker.Count())
	assert.Equal(t, uint64(100), tracker.Get("node-a").AverageQuality)
	assert.Equal(t, uint64(50), tracker.Get("node-b").AverageQuality)
}

func TestGetUnknownContributor(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))
	assert.Nil(t, tracker.Get("node-a"))
}

func TestGetReturnsSnapshot(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))
	tracker.Update("node-a", 90)

	snap := tracker.Get("node-a")
	snap.ReputationScore = 0

	assert.Equal(t, uint64(90), tracker.Get("node-a").ReputationScore)
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				tracker.Update("node-a", 80)
			}
		}()
	}
	wg.Wait()

	record := tracker.Get("node-a")
	require.NotNil(t, record)
	assert.Equal(t, uint64(workers*perWorker), record.TotalContributions)
	assert.Equal(t, uint64(80), record.AverageQuality)
	assert.Equal(t, uint64(workers*perWorker*80), record.ReputationScore)
}

func TestRangeVisitsAll(t *testing.T) {
	tracker := NewTracker(zaptest.NewLogger(t))
	for i := range 5 {
		tracker.Update(fmt.Sprintf("node-%d", i), 90)
	}

	seen := 0
	tracker.Range(func(r *Record) bool {
		seen++
		return true
	})
	assert.Equal(t, 5, seen)
}
