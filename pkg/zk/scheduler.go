package zk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// ErrProofNotFound is returned when a proof id is unknown to the scheduler.
var ErrProofNotFound = errors.New("proof not found")

// JobStatus is the observable lifecycle of an asynchronous proof job.
type JobStatus string

const (
	StatusPending    JobStatus = "Pending"
	StatusProcessing JobStatus = "Processing"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
	StatusExpired    JobStatus = "Expired"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Handle is the caller-facing snapshot of a proof job.
type Handle struct {
	ProofID             string    `json:"proof_id"`
	Status              JobStatus `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	CacheHit            bool      `json:"cache_hit"`
	Error               string    `json:"error,omitempty"`
	Proof               *Proof    `json:"proof,omitempty"`
}

type job struct {
	mu         sync.Mutex
	id         string
	submission *metrics.Submission
	status     JobStatus
	createdAt  time.Time
	estimated  time.Time
	cacheHit   bool
	errMsg     string
	proof      *Proof
	cancel     context.CancelFunc
	cancelled  bool
}

func (j *job) snapshot() *Handle {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &Handle{
		ProofID:             j.id,
		Status:              j.status,
		CreatedAt:           j.createdAt,
		EstimatedCompletion: j.estimated,
		CacheHit:            j.cacheHit,
		Error:               j.errMsg,
		Proof:               j.proof,
	}
}

// AcceptFunc runs after a proof completes, before the job is marked
// Completed. It carries the side effects of acceptance (reputation update,
// metric storage, event publish); if it errors the job is Failed instead,
// so a rejected submission never leaves partial state behind.
type AcceptFunc func(ctx context.Context, proofID string, s *metrics.Submission, proof *Proof) error

// Scheduler runs proof generation as background work on a bounded pool and
// tracks each job through Pending, Processing and a terminal state. Safe for
// concurrent use.
type Scheduler struct {
	pipeline   *Pipeline
	pool       pond.Pool
	jobs       *xsync.Map[string, *job]
	logger     *zap.Logger
	onAccepted AcceptFunc
}

// SchedulerConfig bounds the scheduler's worker pool.
type SchedulerConfig struct {
	Workers   int
	QueueSize int
}

// DefaultSchedulerConfig sizes the pool for a single-node deployment.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Workers: 8, QueueSize: 256}
}

// NewScheduler builds a scheduler over the pipeline. onAccepted may be nil
// when completion needs no side effects.
func NewScheduler(pipeline *Pipeline, cfg SchedulerConfig, logger *zap.Logger, onAccepted AcceptFunc) *Scheduler {
	return &Scheduler{
		pipeline:   pipeline,
		pool:       pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.QueueSize)),
		jobs:       xsync.NewMap[string, *job](),
		logger:     logger.Named("zk.scheduler"),
		onAccepted: onAccepted,
	}
}

// Submit enqueues proof generation for the submission and returns a handle
// immediately. The estimated completion comes from the selected circuit's
// cost model.
func (s *Scheduler) Submit(ctx context.Context, sub *metrics.Submission) (*Handle, error) {
	if err := metrics.Validate(sub); err != nil {
		return nil, err
	}
	circuit, err := s.pipeline.SelectCircuit(sub)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	complexity := circuit.EstimateComplexity(len(sub.PrivateData), len(sub.DataSources))
	j := &job{
		id:         uuid.NewString(),
		submission: sub,
		status:     StatusPending,
		createdAt:  now,
		estimated:  now.Add(time.Duration(complexity.EstimatedGenerationMs) * time.Millisecond),
	}
	s.jobs.Store(j.id, j)

	s.pool.Submit(func() {
		s.run(j)
	})

	s.logger.Debug("proof job queued",
		zap.String("proof_id", j.id),
		zap.Uint32("circuit_id", circuit.ID),
		zap.String("metric_type", sub.MetricType))
	return j.snapshot(), nil
}

func (s *Scheduler) run(j *job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j.mu.Lock()
	if j.status != StatusPending {
		// Cancelled or expired while queued.
		j.mu.Unlock()
		return
	}
	j.status = StatusProcessing
	j.cancel = cancel
	j.mu.Unlock()

	proof, cacheHit, err := s.pipeline.Generate(ctx, j.submission)

	// The acceptance hook carries side effects, so it only runs if no
	// cancel landed first, and once it succeeds the job is Completed even
	// if a cancel races in afterwards.
	accepted := false
	if err == nil {
		j.mu.Lock()
		aborted := j.cancelled
		j.mu.Unlock()
		if !aborted {
			if s.onAccepted != nil {
				err = s.onAccepted(ctx, j.id, j.submission, proof)
			}
			accepted = err == nil
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = nil
	if j.status != StatusProcessing {
		return
	}
	switch {
	case accepted:
		j.status = StatusCompleted
		j.proof = proof
		j.cacheHit = cacheHit
	case j.cancelled:
		j.status = StatusFailed
		j.errMsg = "cancelled"
	default:
		j.status = StatusFailed
		j.errMsg = err.Error()
		s.logger.Warn("proof job failed",
			zap.String("proof_id", j.id),
			zap.Error(err))
	}
}

// Status returns the current handle for a proof id.
func (s *Scheduler) Status(proofID string) (*Handle, error) {
	j, ok := s.jobs.Load(proofID)
	if !ok {
		return nil, ErrProofNotFound
	}
	return j.snapshot(), nil
}

// Cancel requests cancellation of a proof job. Pending and Processing jobs
// transition to Failed; cancelling a job that already reached a terminal
// state is a no-op that still succeeds.
func (s *Scheduler) Cancel(proofID string) (*Handle, error) {
	j, ok := s.jobs.Load(proofID)
	if !ok {
		return nil, ErrProofNotFound
	}

	j.mu.Lock()
	switch j.status {
	case StatusPending:
		j.status = StatusFailed
		j.errMsg = "cancelled"
	case StatusProcessing:
		j.cancelled = true
		if j.cancel != nil {
			j.cancel()
		}
	}
	j.mu.Unlock()

	return j.snapshot(), nil
}

// ExpireStale walks the job table: Pending jobs older than pendingMaxAge
// become Expired, and terminal jobs older than retention are dropped so the
// table does not grow without bound. Returns (expired, removed).
func (s *Scheduler) ExpireStale(pendingMaxAge, retention time.Duration) (int, int) {
	now := time.Now()
	expired, removed := 0, 0
	s.jobs.Range(func(id string, j *job) bool {
		j.mu.Lock()
		switch {
		case j.status == StatusPending && now.Sub(j.createdAt) > pendingMaxAge:
			j.status = StatusExpired
			j.errMsg = "expired before processing"
			expired++
		case j.status.Terminal() && now.Sub(j.createdAt) > retention:
			s.jobs.Delete(id)
			removed++
		}
		j.mu.Unlock()
		return true
	})
	if expired > 0 || removed > 0 {
		s.logger.Info("stale proof jobs swept",
			zap.Int("expired", expired),
			zap.Int("removed", removed))
	}
	return expired, removed
}

// JobCount reports how many jobs the scheduler is tracking.
func (s *Scheduler) JobCount() int { return s.jobs.Size() }

// StatusCounts tallies tracked jobs by lifecycle status.
func (s *Scheduler) StatusCounts() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	s.jobs.Range(func(_ string, j *job) bool {
		j.mu.Lock()
		counts[j.status]++
		j.mu.Unlock()
		return true
	})
	return counts
}

// Close stops the worker pool, waiting for in-flight jobs to finish.
func (s *Scheduler) Close() {
	s.pool.StopAndWait()
}
