package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/store"
	"github.com/polyvisor/pulse/pkg/zk"
)

const (
	metricsTable      = "metric_values"
	proofsTable       = "proofs"
	contributorsTable = "contributors"
)

// Store implements store.Store on ClickHouse. Metric history accumulates in
// an append-only MergeTree; proofs and contributors use ReplacingMergeTree
// so the latest row wins after merges.
type Store struct {
	client *Client
	name   string
	logger *zap.Logger
}

// NewStore connects and initializes the pulse database and its tables.
func NewStore(ctx context.Context, logger *zap.Logger, dbName string) (*Store, error) {
	client, err := New(ctx, logger, SanitizeName(dbName), DefaultPoolConfig("store"))
	if err != nil {
		return nil, err
	}
	s := &Store{
		client: client,
		name:   SanitizeName(dbName),
		logger: logger.Named("store.clickhouse"),
	}
	if err := s.initialize(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if err := s.client.CreateDbIfNotExists(ctx, s.name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", s.name, err)
	}

	metricsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			metric_type LowCardinality(String),
			value UInt128,
			timestamp UInt64,
			proof_id String,
			quality_score UInt8,
			source_node String,
			INDEX idx_timestamp timestamp TYPE minmax GRANULARITY 8192
		) ENGINE = MergeTree
		ORDER BY (metric_type, timestamp)
	`, s.name, metricsTable)
	if err := s.client.Exec(ctx, metricsQuery); err != nil {
		return fmt.Errorf("create %s: %w", metricsTable, err)
	}

	proofsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			proof_id String,
			circuit_id UInt32,
			proof_data String,
			public_inputs Array(String),
			verification_key String,
			algorithm LowCardinality(String),
			generated_at DateTime64(3),
			expires_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(generated_at)
		ORDER BY (proof_id)
	`, s.name, proofsTable)
	if err := s.client.Exec(ctx, proofsQuery); err != nil {
		return fmt.Errorf("create %s: %w", proofsTable, err)
	}

	contributorsQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			address String,
			total_contributions UInt64,
			average_quality UInt64,
			reputation_score UInt64,
			last_contribution DateTime64(3)
		) ENGINE = ReplacingMergeTree(last_contribution)
		ORDER BY (address)
	`, s.name, contributorsTable)
	if err := s.client.Exec(ctx, contributorsQuery); err != nil {
		return fmt.Errorf("create %s: %w", contributorsTable, err)
	}

	s.logger.Info("tables initialized", zap.String("database", s.name))
	return nil
}

func (s *Store) StoreMetric(ctx context.Context, v *metrics.Value) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."%s" (metric_type, value, timestamp, proof_id, quality_score, source_node)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.name, metricsTable)
	return s.client.Exec(ctx, query,
		v.MetricType, v.Value.ToBig(), v.Timestamp, v.ProofID, v.QualityScore, v.SourceNode)
}

func (s *Store) scanMetric(row interface{ Scan(...any) error }, metricType string) (*metrics.Value, error) {
	var (
		v     metrics.Value
		value big.Int
	)
	err := row.Scan(&value, &v.Timestamp, &v.ProofID, &v.QualityScore, &v.SourceNode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	v.MetricType = metricType
	v.Value, _ = uint256.FromBig(&value)
	return &v, nil
}

func (s *Store) LoadMetric(ctx context.Context, metricType string) (*metrics.Value, error) {
	query := fmt.Sprintf(`
		SELECT value, timestamp, proof_id, quality_score, source_node
		FROM "%s"."%s"
		WHERE metric_type = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, s.name, metricsTable)
	return s.scanMetric(s.client.QueryRow(ctx, query, metricType), metricType)
}

func (s *Store) LoadMetricAsOf(ctx context.Context, metricType string, asOf time.Time) (*metrics.Value, error) {
	query := fmt.Sprintf(`
		SELECT value, timestamp, proof_id, quality_score, source_node
		FROM "%s"."%s"
		WHERE metric_type = ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, s.name, metricsTable)
	return s.scanMetric(s.client.QueryRow(ctx, query, metricType, uint64(asOf.Unix())), metricType)
}

func (s *Store) MetricTypes(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT metric_type FROM "%s"."%s" ORDER BY metric_type
	`, s.name, metricsTable)
	rows, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) StoreProof(ctx context.Context, proofID string, p *zk.Proof) error {
	inputs := make([]string, 0, len(p.PublicInputs))
	for _, in := range p.PublicInputs {
		inputs = append(inputs, string(in))
	}
	query := fmt.Sprintf(`
		INSERT INTO "%s"."%s" (proof_id, circuit_id, proof_data, public_inputs, verification_key, algorithm, generated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.name, proofsTable)
	return s.client.Exec(ctx, query,
		proofID, p.CircuitID, string(p.ProofData), inputs, string(p.VerificationKey), p.Algorithm, p.GeneratedAt, p.ExpiresAt)
}

func (s *Store) LoadProof(ctx context.Context, proofID string) (*zk.Proof, error) {
	query := fmt.Sprintf(`
		SELECT circuit_id, proof_data, public_inputs, verification_key, algorithm, generated_at, expires_at
		FROM "%s"."%s" FINAL
		WHERE proof_id = ?
		LIMIT 1
	`, s.name, proofsTable)

	var (
		p         zk.Proof
		proofData string
		inputs    []string
		vk        string
	)
	err := s.client.QueryRow(ctx, query, proofID).Scan(
		&p.CircuitID, &proofData, &inputs, &vk, &p.Algorithm, &p.GeneratedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.ProofData = []byte(proofData)
	p.VerificationKey = []byte(vk)
	p.PublicInputs = make([][]byte, 0, len(inputs))
	for _, in := range inputs {
		p.PublicInputs = append(p.PublicInputs, []byte(in))
	}
	return &p, nil
}

func (s *Store) DeleteProof(ctx context.Context, proofID string) error {
	query := fmt.Sprintf(`
		DELETE FROM "%s"."%s" WHERE proof_id = ?
	`, s.name, proofsTable)
	return s.client.Exec(ctx, query, proofID)
}

func (s *Store) StoreContributor(ctx context.Context, r *reputation.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."%s" (address, total_contributions, average_quality, reputation_score, last_contribution)
		VALUES (?, ?, ?, ?, ?)
	`, s.name, contributorsTable)
	return s.client.Exec(ctx, query,
		r.Address, r.TotalContributions, r.AverageQuality, r.ReputationScore, r.LastContribution)
}

func (s *Store) LoadContributor(ctx context.Context, address string) (*reputation.Record, error) {
	query := fmt.Sprintf(`
		SELECT address, total_contributions, average_quality, reputation_score, last_contribution
		FROM "%s"."%s" FINAL
		WHERE address = ?
		LIMIT 1
	`, s.name, contributorsTable)

	var r reputation.Record
	err := s.client.QueryRow(ctx, query, address).Scan(
		&r.Address, &r.TotalContributions, &r.AverageQuality, &r.ReputationScore, &r.LastContribution)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Close terminates the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
