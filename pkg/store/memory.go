package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/zk"
)

// maxHistoryPerMetric bounds the in-memory history ring per metric type.
const maxHistoryPerMetric = 4096

type metricHistory struct {
	mu     sync.RWMutex
	values []*metrics.Value // ordered by Timestamp ascending
}

// Memory is an in-process Store backed by concurrent maps. It is the
// default for tests and single-node deployments without ClickHouse.
type Memory struct {
	metricsByType *xsync.Map[string, *metricHistory]
	proofs        *xsync.Map[string, *zk.Proof]
	contributors  *xsync.Map[string, *reputation.Record]
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		metricsByType: xsync.NewMap[string, *metricHistory](),
		proofs:        xsync.NewMap[string, *zk.Proof](),
		contributors:  xsync.NewMap[string, *reputation.Record](),
	}
}

func (m *Memory) StoreMetric(_ context.Context, v *metrics.Value) error {
	hist, _ := m.metricsByType.LoadOrCompute(v.MetricType, func() (*metricHistory, bool) {
		return &metricHistory{}, false
	})
	hist.mu.Lock()
	defer hist.mu.Unlock()
	hist.values = append(hist.values, v)
	sort.SliceStable(hist.values, func(i, j int) bool {
		return hist.values[i].Timestamp < hist.values[j].Timestamp
	})
	if len(hist.values) > maxHistoryPerMetric {
		hist.values = hist.values[len(hist.values)-maxHistoryPerMetric:]
	}
	return nil
}

func (m *Memory) LoadMetric(_ context.Context, metricType string) (*metrics.Value, error) {
	hist, ok := m.metricsByType.Load(metricType)
	if !ok {
		return nil, ErrNotFound
	}
	hist.mu.RLock()
	defer hist.mu.RUnlock()
	if len(hist.values) == 0 {
		return nil, ErrNotFound
	}
	return hist.values[len(hist.values)-1], nil
}

func (m *Memory) LoadMetricAsOf(_ context.Context, metricType string, asOf time.Time) (*metrics.Value, error) {
	hist, ok := m.metricsByType.Load(metricType)
	if !ok {
		return nil, ErrNotFound
	}
	hist.mu.RLock()
	defer hist.mu.RUnlock()

	cutoff := uint64(asOf.Unix())
	// Latest value at or before the cutoff.
	idx := sort.Search(len(hist.values), func(i int) bool {
		return hist.values[i].Timestamp > cutoff
	})
	if idx == 0 {
		return nil, ErrNotFound
	}
	return hist.values[idx-1], nil
}

func (m *Memory) MetricTypes(_ context.Context) ([]string, error) {
	types := make([]string, 0, m.metricsByType.Size())
	m.metricsByType.Range(func(metricType string, hist *metricHistory) bool {
		hist.mu.RLock()
		if len(hist.values) > 0 {
			types = append(types, metricType)
		}
		hist.mu.RUnlock()
		return true
	})
	sort.Strings(types)
	return types, nil
}

func (m *Memory) StoreProof(_ context.Context, proofID string, p *zk.Proof) error {
	m.proofs.Store(proofID, p)
	return nil
}

func (m *Memory) LoadProof(_ context.Context, proofID string) (*zk.Proof, error) {
	p, ok := m.proofs.Load(proofID)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *Memory) DeleteProof(_ context.Context, proofID string) error {
	m.proofs.Delete(proofID)
	return nil
}

func (m *Memory) StoreContributor(_ context.Context, r *reputation.Record) error {
	m.contributors.Store(r.Address, r)
	return nil
}

func (m *Memory) LoadContributor(_ context.Context, address string) (*reputation.Record, error) {
	r, ok := m.contributors.Load(address)
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Close() error { return nil }
