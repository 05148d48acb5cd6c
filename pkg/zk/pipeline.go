package zk

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// DefaultProofTTL is how long a generated proof stays valid before the
// cleanup sweep evicts it.
const DefaultProofTTL = time.Hour

// PipelineStats is a point-in-time snapshot of pipeline counters.
type PipelineStats struct {
	ProofsGenerated     uint64  `json:"proofs_generated"`
	ProofCacheHits      uint64  `json:"proof_cache_hits"`
	ProofCacheMisses    uint64  `json:"proof_cache_misses"`
	VerificationsRun    uint64  `json:"verifications_run"`
	VerifyCacheHits     uint64  `json:"verify_cache_hits"`
	ConstraintRejects   uint64  `json:"constraint_rejects"`
	GenerationFailures  uint64  `json:"generation_failures"`
	AvgGenerationMs     uint64  `json:"avg_generation_ms"`
	CacheHitRatio       float64 `json:"cache_hit_ratio"`
	CachedProofs        int     `json:"cached_proofs"`
	CachedVerifications int     `json:"cached_verifications"`
}

// VerificationStatus labels the overall outcome of a verification.
type VerificationStatus string

const (
	VerificationValid     VerificationStatus = "Valid"
	VerificationInvalid   VerificationStatus = "Invalid"
	VerificationMalformed VerificationStatus = "Malformed"
)

// VerificationReport is the detailed result of verifying a single proof,
// broken down by check so callers can tell a structural rejection apart from
// a cryptographic one.
type VerificationReport struct {
	Valid             bool               `json:"is_valid"`
	Status            VerificationStatus `json:"status"`
	Algorithm         string             `json:"algorithm_used"`
	StructureValid    bool               `json:"structure_valid"`
	PublicInputsValid bool               `json:"public_inputs_valid"`
	CryptoValid       bool               `json:"crypto_valid"`
	CircuitID         uint32             `json:"circuit_id"`
	Expired           bool               `json:"expired"`
	FromCache         bool               `json:"from_cache"`
	DurationMs        int64              `json:"duration_ms"`
	CheckedAt         time.Time          `json:"checked_at"`
	Error             string             `json:"error,omitempty"`
}

// Pipeline generates and verifies proofs with content-addressed caching on
// both paths. Safe for concurrent use.
type Pipeline struct {
	catalog *Catalog
	backend ProvingBackend
	logger  *zap.Logger
	ttl     time.Duration

	proofCache  *xsync.Map[string, *Proof]
	verifyCache *xsync.Map[string, bool]

	proofsGenerated    atomic.Uint64
	proofCacheHits     atomic.Uint64
	proofCacheMisses   atomic.Uint64
	verificationsRun   atomic.Uint64
	verifyCacheHits    atomic.Uint64
	constraintRejects  atomic.Uint64
	generationFailures atomic.Uint64
	generationMsTotal  atomic.Uint64
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithProofTTL overrides the proof validity window.
func WithProofTTL(ttl time.Duration) PipelineOption {
	return func(p *Pipeline) { p.ttl = ttl }
}

// NewPipeline builds a pipeline over the given catalog and backend.
func NewPipeline(catalog *Catalog, backend ProvingBackend, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		catalog:     catalog,
		backend:     backend,
		logger:      logger.Named("zk.pipeline"),
		ttl:         DefaultProofTTL,
		proofCache:  xsync.NewMap[string, *Proof](),
		verifyCache: xsync.NewMap[string, bool](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog exposes the circuit catalog the pipeline selects from.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// SelectCircuit picks the cheapest circuit fitting the submission.
func (p *Pipeline) SelectCircuit(s *metrics.Submission) (*Circuit, error) {
	return p.catalog.Select(len(s.PrivateData), len(s.DataSources))
}

// Generate produces a proof for the submission, reusing a cached proof when
// an identical submission was proved before and the cached proof is still
// valid. The boolean result reports whether the proof came from cache.
func (p *Pipeline) Generate(ctx context.Context, s *metrics.Submission) (*Proof, bool, error) {
	if err := metrics.Validate(s); err != nil {
		return nil, false, err
	}

	circuit, err := p.SelectCircuit(s)
	if err != nil {
		return nil, false, err
	}

	key := SubmissionCacheKey(s, circuit.ID)
	if cached, ok := p.proofCache.Load(key); ok {
		if !cached.Expired(time.Now()) {
			p.proofCacheHits.Add(1)
			p.logger.Debug("proof cache hit",
				zap.Uint32("circuit_id", circuit.ID),
				zap.String("metric_type", s.MetricType))
			return cached, true, nil
		}
		p.proofCache.Delete(key)
	}
	p.proofCacheMisses.Add(1)

	if !circuit.VerifyConstraints(s.PrivateData, s.SourceReliabilities(), s.PublicMetric, s.QualityScore) {
		p.constraintRejects.Add(1)
		return nil, false, fmt.Errorf("%w: submission violates circuit %d constraints", ErrInvalidProof, circuit.ID)
	}

	witness := make([][]byte, 0, len(s.PrivateData))
	for _, v := range s.PrivateData {
		b := v.Bytes32()
		witness = append(witness, b[:])
	}
	publicInputs := PublicInputsFor(s)

	proveStart := time.Now()
	proofData, verificationKey, err := p.backend.Prove(ctx, circuit, witness, publicInputs)
	if err != nil {
		p.generationFailures.Add(1)
		if ctx.Err() != nil {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
	}

	now := time.Now()
	proof := &Proof{
		CircuitID:       circuit.ID,
		ProofData:       proofData,
		PublicInputs:    publicInputs,
		VerificationKey: verificationKey,
		Algorithm:       p.backend.Algorithm(),
		GeneratedAt:     now,
		ExpiresAt:       now.Add(p.ttl),
	}
	p.proofCache.Store(key, proof)
	p.proofsGenerated.Add(1)
	p.generationMsTotal.Add(uint64(time.Since(proveStart).Milliseconds()))

	p.logger.Debug("proof generated",
		zap.Uint32("circuit_id", circuit.ID),
		zap.String("metric_type", s.MetricType),
		zap.Int("data_points", len(s.PrivateData)))
	return proof, false, nil
}

// Verify checks a proof's validity. Results are memoized on the proof's
// content key, so re-verifying the same proof is a cache lookup.
func (p *Pipeline) Verify(ctx context.Context, proof *Proof) (bool, error) {
	report, err := p.VerifyDetailed(ctx, proof)
	if err != nil {
		return false, err
	}
	return report.Valid, nil
}

// VerifyDetailed checks a proof and returns the full verification report.
// Malformed proof bytes or public inputs are reported as a cryptographic
// error rather than a plain negative result.
func (p *Pipeline) VerifyDetailed(ctx context.Context, proof *Proof) (*VerificationReport, error) {
	start := time.Now()
	report := &VerificationReport{
		CircuitID: proof.CircuitID,
		Algorithm: proof.Algorithm,
		CheckedAt: start,
	}
	done := func() *VerificationReport {
		report.DurationMs = time.Since(start).Milliseconds()
		switch {
		case !report.StructureValid || !report.PublicInputsValid:
			report.Status = VerificationMalformed
		case report.Valid:
			report.Status = VerificationValid
		default:
			report.Status = VerificationInvalid
		}
		return report
	}

	circuit, err := p.catalog.Get(proof.CircuitID)
	if err != nil {
		return nil, err
	}

	if len(proof.ProofData) == 0 {
		report.Error = "empty proof data"
		return done(), fmt.Errorf("%w: empty proof data", ErrCryptographic)
	}
	if len(proof.VerificationKey) == 0 {
		report.Error = "missing verification key"
		return done(), fmt.Errorf("%w: missing verification key", ErrCryptographic)
	}
	report.StructureValid = true

	report.PublicInputsValid = validPublicInputs(proof.PublicInputs)
	if !report.PublicInputsValid {
		report.Error = "malformed public inputs"
		return done(), fmt.Errorf("%w: malformed public inputs", ErrCryptographic)
	}

	if proof.Expired(start) {
		report.Expired = true
		report.Error = "proof expired"
		return done(), nil
	}

	key := ProofCacheKey(proof)
	if valid, ok := p.verifyCache.Load(key); ok {
		p.verifyCacheHits.Add(1)
		report.Valid = valid
		report.CryptoValid = valid
		report.FromCache = true
		return done(), nil
	}

	valid, err := p.backend.Verify(ctx, circuit, proof.ProofData, proof.PublicInputs, proof.VerificationKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		report.Error = err.Error()
		return done(), fmt.Errorf("%w: %v", ErrProofVerificationFailed, err)
	}
	p.verificationsRun.Add(1)
	p.verifyCache.Store(key, valid)

	report.Valid = valid
	report.CryptoValid = valid
	return done(), nil
}

// VerifyBatch verifies proofs in order, returning one report per proof.
// Individual failures are recorded in their report; only context
// cancellation aborts the batch.
func (p *Pipeline) VerifyBatch(ctx context.Context, proofs []*Proof) ([]*VerificationReport, error) {
	reports := make([]*VerificationReport, 0, len(proofs))
	for _, proof := range proofs {
		report, err := p.VerifyDetailed(ctx, proof)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if report == nil {
				report = &VerificationReport{
					CircuitID: proof.CircuitID,
					Algorithm: proof.Algorithm,
					Status:    VerificationMalformed,
					CheckedAt: time.Now(),
					Error:     err.Error(),
				}
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// validPublicInputs checks the canonical public-input shape: a 16-byte
// aggregate word followed by an 8-byte quality word.
func validPublicInputs(inputs [][]byte) bool {
	if len(inputs) != 2 {
		return false
	}
	if _, err := DecodePublicInput(inputs[0]); err != nil {
		return false
	}
	_, err := DecodeQualityInput(inputs[1])
	return err == nil
}

// CleanupExpired evicts cached proofs older than maxAge, along with any
// whose validity window has passed, and returns how many were removed.
func (p *Pipeline) CleanupExpired(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	p.proofCache.Range(func(key string, proof *Proof) bool {
		if proof.Expired(now) || now.Sub(proof.GeneratedAt) > maxAge {
			p.proofCache.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		p.logger.Info("expired proofs evicted", zap.Int("count", removed))
	}
	return removed
}

// Stats snapshots the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	stats := PipelineStats{
		ProofsGenerated:     p.proofsGenerated.Load(),
		ProofCacheHits:      p.proofCacheHits.Load(),
		ProofCacheMisses:    p.proofCacheMisses.Load(),
		VerificationsRun:    p.verificationsRun.Load(),
		VerifyCacheHits:     p.verifyCacheHits.Load(),
		ConstraintRejects:   p.constraintRejects.Load(),
		GenerationFailures:  p.generationFailures.Load(),
		CachedProofs:        p.proofCache.Size(),
		CachedVerifications: p.verifyCache.Size(),
	}
	if stats.ProofsGenerated > 0 {
		stats.AvgGenerationMs = p.generationMsTotal.Load() / stats.ProofsGenerated
	}
	if lookups := stats.ProofCacheHits + stats.ProofCacheMisses; lookups > 0 {
		stats.CacheHitRatio = float64(stats.ProofCacheHits) / float64(lookups)
	}
	return stats
}
