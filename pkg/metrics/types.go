// Package metrics defines the network-metric data model shared by the
// proof pipeline, the stores, and the API surface.
package metrics

import (
	"time"

	"github.com/holiman/uint256"
)

// Well-known metric types. Submissions are not restricted to this list, but
// the health aggregator only derives category scores from these.
const (
	TypeBlockTime         = "block_time"
	TypeTransactionVolume = "transaction_volume"
	TypeValidatorUptime   = "validator_uptime"
	TypeNetworkCongestion = "network_congestion"
	TypeNodeAvailability  = "node_availability"
	TypeNetworkLatency    = "network_latency"
	TypeGasUsage          = "gas_usage"
)

// SourceType classifies where a raw reading came from.
type SourceType string

const (
	SourceValidatorNode  SourceType = "validator_node"
	SourceFullNode       SourceType = "full_node"
	SourceLightNode      SourceType = "light_node"
	SourceParachain      SourceType = "parachain"
	SourceRelayChain     SourceType = "relay_chain"
	SourceExternalOracle SourceType = "external_oracle"
)

// DataSource identifies one origin of raw readings inside a submission.
type DataSource struct {
	SourceType       SourceType `json:"source_type"`
	SourceID         string     `json:"source_id"`
	Timestamp        uint64     `json:"timestamp"` // unix seconds
	ReliabilityScore uint8      `json:"reliability_score"`
}

// Submission is one batch of private readings plus the claimed public
// aggregate the submitter wants proven.
type Submission struct {
	MetricType      string         `json:"metric_type"`
	PrivateData     []*uint256.Int `json:"private_data"`
	DataSources     []DataSource   `json:"data_sources"`
	PublicMetric    *uint256.Int   `json:"public_metric"`
	QualityScore    uint8          `json:"quality_score"`
	TimeWindowHours uint8          `json:"time_window_hours"`
	Contributor     string         `json:"contributor"`
}

// SourceReliabilities returns the reliability scores in source order.
func (s *Submission) SourceReliabilities() []uint8 {
	out := make([]uint8, len(s.DataSources))
	for i, ds := range s.DataSources {
		out[i] = ds.ReliabilityScore
	}
	return out
}

// DataAge returns the mean age of the submission's sources in seconds.
func (s *Submission) DataAge(now time.Time) uint64 {
	if len(s.DataSources) == 0 {
		return 0
	}
	nowSec := uint64(now.Unix())
	var total uint64
	for _, ds := range s.DataSources {
		if ds.Timestamp < nowSec {
			total += nowSec - ds.Timestamp
		}
	}
	return total / uint64(len(s.DataSources))
}

// Value is the stored, last-write-wins record for one metric type.
type Value struct {
	MetricType   string       `json:"metric_type"`
	Value        *uint256.Int `json:"value"`
	Timestamp    uint64       `json:"timestamp"` // unix seconds
	ProofID      string       `json:"proof_id"`
	QualityScore uint8        `json:"quality_score"`
	SourceNode   string       `json:"source_node"`
}

// Age returns how long ago the value was recorded.
func (v Value) Age(now time.Time) time.Duration {
	ts := time.Unix(int64(v.Timestamp), 0)
	if ts.After(now) {
		return 0
	}
	return now.Sub(ts)
}
