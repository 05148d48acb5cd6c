// Package analytics is the application core: it wires the proof scheduler,
// privacy filter, reputation tracker, health service and stores behind the
// operations the transport layer exposes.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/health"
	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/privacy"
	"github.com/polyvisor/pulse/pkg/redis"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/store"
	"github.com/polyvisor/pulse/pkg/trust"
	"github.com/polyvisor/pulse/pkg/zk"
)

// ErrUnauthorized is returned when the submitter is not a trusted node.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned for unknown proof ids, metric types and
// contributors.
var ErrNotFound = errors.New("not found")

// MinQualityScore is the floor below which submissions are rejected before
// any proof work.
const MinQualityScore = 70

// Config tunes the service's proof lifecycle sweeps.
type Config struct {
	Scheduler     zk.SchedulerConfig
	ProofMaxAge   time.Duration // cache eviction age for generated proofs
	PendingMaxAge time.Duration // Pending jobs older than this expire
	JobRetention  time.Duration // terminal jobs older than this are dropped
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler:     zk.DefaultSchedulerConfig(),
		ProofMaxAge:   time.Hour,
		PendingMaxAge: 10 * time.Minute,
		JobRetention:  24 * time.Hour,
	}
}

// Service implements the core operations over its collaborators. All
// methods are safe for concurrent use.
type Service struct {
	cfg        Config
	pipeline   *zk.Pipeline
	scheduler  *zk.Scheduler
	reputation *reputation.Tracker
	health     *health.Service
	store      store.Store
	oracle     trust.Oracle
	events     *redis.Client // nil disables event fanout
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires the service. events may be nil when Redis is not
// deployed; accepted metrics then skip fanout but everything else works.
func NewService(cfg Config, pipeline *zk.Pipeline, tracker *reputation.Tracker, healthSvc *health.Service, st store.Store, oracle trust.Oracle, events *redis.Client, logger *zap.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		pipeline:   pipeline,
		reputation: tracker,
		health:     healthSvc,
		store:      st,
		oracle:     oracle,
		events:     events,
		logger:     logger.Named("analytics"),
		now:        time.Now,
	}
	s.scheduler = zk.NewScheduler(pipeline, cfg.Scheduler, logger, s.accept)
	return s
}

// accept runs when a proof completes, before the job is marked Completed.
// Everything here is the acceptance transaction: if any step fails the job
// is Failed and no partial state survives.
func (s *Service) accept(ctx context.Context, proofID string, sub *metrics.Submission, proof *zk.Proof) error {
	value := &metrics.Value{
		MetricType:   sub.MetricType,
		Value:        sub.PublicMetric,
		Timestamp:    uint64(s.now().Unix()),
		ProofID:      proofID,
		QualityScore: sub.QualityScore,
		SourceNode:   sub.Contributor,
	}

	if err := s.store.StoreProof(ctx, proofID, proof); err != nil {
		return fmt.Errorf("store proof: %w", err)
	}
	if err := s.store.StoreMetric(ctx, value); err != nil {
		// Roll the proof back so a failed acceptance leaves nothing behind.
		if delErr := s.store.DeleteProof(ctx, proofID); delErr != nil {
			s.logger.Warn("proof rollback failed",
				zap.String("proof_id", proofID),
				zap.Error(delErr))
		}
		return fmt.Errorf("store metric: %w", err)
	}

	record := s.reputation.Update(sub.Contributor, sub.QualityScore)
	if err := s.store.StoreContributor(ctx, record); err != nil {
		// The in-memory record is already updated; persistence lagging is
		// logged, not fatal, because the tracker is the source of truth.
		s.logger.Warn("contributor persistence failed",
			zap.String("address", sub.Contributor),
			zap.Error(err))
	}

	if s.events != nil {
		s.events.PublishMetricAccepted(ctx, value)
	}

	s.logger.Info("metric accepted",
		zap.String("metric_type", sub.MetricType),
		zap.String("proof_id", proofID),
		zap.String("contributor", sub.Contributor),
		zap.Uint8("quality_score", sub.QualityScore))
	return nil
}

// Submit gates a submission on trust and minimum quality, then queues proof
// generation. Returns a handle for polling.
func (s *Service) Submit(ctx context.Context, sub *metrics.Submission) (*zk.Handle, error) {
	if !s.oracle.IsTrustedNode(sub.Contributor) {
		return nil, fmt.Errorf("%w: %s is not a trusted node", ErrUnauthorized, sub.Contributor)
	}
	if sub.QualityScore < MinQualityScore {
		return nil, fmt.Errorf("%w: quality score %d below minimum %d",
			metrics.ErrInvalidSubmission, sub.QualityScore, MinQualityScore)
	}
	return s.scheduler.Submit(ctx, sub)
}

// Status returns the current handle for a proof id.
func (s *Service) Status(proofID string) (*zk.Handle, error) {
	h, err := s.scheduler.Status(proofID)
	if errors.Is(err, zk.ErrProofNotFound) {
		return nil, fmt.Errorf("%w: proof %s", ErrNotFound, proofID)
	}
	return h, err
}

// Cancel requests cancellation of a proof job; cancelling a finished job is
// a successful no-op.
func (s *Service) Cancel(proofID string) (*zk.Handle, error) {
	h, err := s.scheduler.Cancel(proofID)
	if errors.Is(err, zk.ErrProofNotFound) {
		return nil, fmt.Errorf("%w: proof %s", ErrNotFound, proofID)
	}
	return h, err
}

// Verify runs detailed verification on a proof.
func (s *Service) Verify(ctx context.Context, proof *zk.Proof) (*zk.VerificationReport, error) {
	return s.pipeline.VerifyDetailed(ctx, proof)
}

// VerifyBatch verifies proofs in order, one report each.
func (s *Service) VerifyBatch(ctx context.Context, proofs []*zk.Proof) ([]*zk.VerificationReport, error) {
	return s.pipeline.VerifyBatch(ctx, proofs)
}

// LoadProof fetches a stored proof by id.
func (s *Service) LoadProof(ctx context.Context, proofID string) (*zk.Proof, error) {
	p, err := s.store.LoadProof(ctx, proofID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: proof %s", ErrNotFound, proofID)
	}
	return p, err
}

// ReadMetric returns the latest value of a metric type filtered for the
// viewer's privacy tier.
func (s *Service) ReadMetric(ctx context.Context, metricType string, tier privacy.Tier) (*metrics.Value, error) {
	v, err := s.store.LoadMetric(ctx, metricType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: metric %s", ErrNotFound, metricType)
		}
		return nil, err
	}
	return privacy.Apply(v, tier), nil
}

// Health computes the current network health report.
func (s *Service) Health(ctx context.Context) health.Score {
	return s.health.Report(ctx)
}

// ContributorStats returns the reputation record for an address. The
// in-memory tracker is authoritative; the store answers for contributors
// from before the current process started.
func (s *Service) ContributorStats(ctx context.Context, address string) (*reputation.Record, error) {
	if r := s.reputation.Get(address); r != nil {
		return r, nil
	}
	r, err := s.store.LoadContributor(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: contributor %s", ErrNotFound, address)
	}
	return r, err
}

// PipelineStats snapshots the proof pipeline counters.
func (s *Service) PipelineStats() zk.PipelineStats {
	return s.pipeline.Stats()
}

// Stats is the combined operational snapshot: pipeline counters plus a
// tally of tracked proof jobs by status.
type Stats struct {
	Pipeline zk.PipelineStats     `json:"pipeline"`
	Jobs     map[zk.JobStatus]int `json:"jobs"`
}

// Snapshot gathers the pipeline counters and per-status job counts.
func (s *Service) Snapshot() Stats {
	return Stats{
		Pipeline: s.pipeline.Stats(),
		Jobs:     s.scheduler.StatusCounts(),
	}
}

// Sweep runs the periodic maintenance pass: evicts expired cached proofs
// and expires or drops stale jobs.
func (s *Service) Sweep() {
	evicted := s.pipeline.CleanupExpired(s.cfg.ProofMaxAge)
	expired, removed := s.scheduler.ExpireStale(s.cfg.PendingMaxAge, s.cfg.JobRetention)
	if evicted > 0 || expired > 0 || removed > 0 {
		s.logger.Debug("sweep complete",
			zap.Int("proofs_evicted", evicted),
			zap.Int("jobs_expired", expired),
			zap.Int("jobs_removed", removed))
	}
}

// Close drains in-flight proof work.
func (s *Service) Close() {
	s.scheduler.Close()
}
