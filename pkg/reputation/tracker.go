// Package reputation tracks per-contributor quality history. Updates are
// atomic per address so concurrent submissions from the same contributor
// never lose increments.
package reputation

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Record is a contributor's accumulated standing. Records handed out by the
// tracker are snapshots; mutating one does not affect the tracker.
type Record struct {
	Address            string    `json:"address"`
	TotalContributions uint64    `json:"total_contributions"`
	AverageQuality     uint64    `json:"average_quality"`
	ReputationScore    uint64    `json:"reputation_score"`
	LastContribution   time.Time `json:"last_contribution"`
}

// Tracker maintains contributor records in a concurrent map keyed by
// address. Reads are lock-free; writes serialize per key.
type Tracker struct {
	records *xsync.Map[string, *Record]
	logger  *zap.Logger
	now     func() time.Time
}

// NewTracker builds an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		records: xsync.NewMap[string, *Record](),
		logger:  logger.Named("reputation"),
		now:     time.Now,
	}
}

// Update folds a new quality score into the contributor's record, creating
// it on first contribution. The running average uses integer division; the
// reputation score is a monotonic accumulator of raw quality. Returns the
// updated snapshot.
func (t *Tracker) Update(address string, qualityScore uint8) *Record {
	updated, _ := t.records.Compute(address, func(old *Record, loaded bool) (*Record, xsync.ComputeOp) {
		if !loaded {
			return &Record{
				Address:            address,
				TotalContributions: 1,
				AverageQuality:     uint64(qualityScore),
				ReputationScore:    uint64(qualityScore),
				LastContribution:   t.now(),
			}, xsync.UpdateOp
		}
		n := old.TotalContributions
		return &Record{
			Address:            address,
			TotalContributions: n + 1,
			AverageQuality:     (old.AverageQuality*n + uint64(qualityScore)) / (n + 1),
			ReputationScore:    old.ReputationScore + uint64(qualityScore),
			LastContribution:   t.now(),
		}, xsync.UpdateOp
	})

	t.logger.Debug("contributor updated",
		zap.String("address", address),
		zap.Uint8("quality_score", qualityScore),
		zap.Uint64("total_contributions", updated.TotalContributions))
	return updated
}

// Get returns the record for an address, or nil if the contributor has
// never submitted.
func (t *Tracker) Get(address string) *Record {
	record, ok := t.records.Load(address)
	if !ok {
		return nil
	}
	snap := *record
	return &snap
}

// Count reports how many contributors have records.
func (t *Tracker) Count() int { return t.records.Size() }

// Range visits every record snapshot until fn returns false.
func (t *Tracker) Range(fn func(*Record) bool) {
	t.records.Range(func(_ string, record *Record) bool {
		snap := *record
		return fn(&snap)
	})
}
