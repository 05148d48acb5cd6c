// Package store defines the persistence ports the pipeline core writes
// through, plus an in-memory implementation. The clickhouse subpackage
// provides the durable implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/zk"
)

// ErrNotFound is returned when a metric, proof or contributor is unknown.
var ErrNotFound = errors.New("not found")

// MetricStore persists accepted metric values. StoreMetric replaces the
// current value for the metric type; history remains queryable for trend
// computation.
type MetricStore interface {
	StoreMetric(ctx context.Context, v *metrics.Value) error
	LoadMetric(ctx context.Context, metricType string) (*metrics.Value, error)
	// LoadMetricAsOf returns the latest value recorded at or before the
	// given instant, for historical snapshot comparison.
	LoadMetricAsOf(ctx context.Context, metricType string, asOf time.Time) (*metrics.Value, error)
	// MetricTypes lists every metric type with at least one recorded value.
	MetricTypes(ctx context.Context) ([]string, error)
}

// ProofStore persists completed proofs keyed by proof id. DeleteProof
// removes a stored proof and is a no-op for unknown ids, so acceptance can
// roll back a proof write when a later step fails.
type ProofStore interface {
	StoreProof(ctx context.Context, proofID string, p *zk.Proof) error
	LoadProof(ctx context.Context, proofID string) (*zk.Proof, error)
	DeleteProof(ctx context.Context, proofID string) error
}

// ContributorStore persists contributor reputation records.
type ContributorStore interface {
	StoreContributor(ctx context.Context, r *reputation.Record) error
	LoadContributor(ctx context.Context, address string) (*reputation.Record, error)
}

// Store bundles the three ports a full deployment wires together.
type Store interface {
	MetricStore
	ProofStore
	ContributorStore
	Close() error
}
