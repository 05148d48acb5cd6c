package types

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// DataSourceRequest is the wire form of one data source attribution.
type DataSourceRequest struct {
	SourceType       string `json:"source_type"`
	SourceID         string `json:"source_id"`
	Timestamp        uint64 `json:"timestamp"`
	ReliabilityScore uint8  `json:"reliability_score"`
}

// SubmitRequest is the wire form of a metric submission. Readings and the
// aggregate are decimal strings so clients need no 128-bit integer support.
type SubmitRequest struct {
	MetricType      string              `json:"metric_type"`
	PrivateData     []string            `json:"private_data"`
	DataSources     []DataSourceRequest `json:"data_sources"`
	PublicMetric    string              `json:"public_metric"`
	QualityScore    uint8               `json:"quality_score"`
	TimeWindowHours uint8               `json:"time_window_hours"`
	Contributor     string              `json:"contributor"`
}

func parseValue(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

// ToSubmission parses the request into a domain submission.
func (r *SubmitRequest) ToSubmission() (*metrics.Submission, error) {
	privateData := make([]*uint256.Int, 0, len(r.PrivateData))
	for _, s := range r.PrivateData {
		v, err := parseValue(s)
		if err != nil {
			return nil, err
		}
		privateData = append(privateData, v)
	}

	publicMetric, err := parseValue(r.PublicMetric)
	if err != nil {
		return nil, err
	}

	sources := make([]metrics.DataSource, 0, len(r.DataSources))
	for _, src := range r.DataSources {
		sources = append(sources, metrics.DataSource{
			SourceType:       metrics.SourceType(src.SourceType),
			SourceID:         src.SourceID,
			Timestamp:        src.Timestamp,
			ReliabilityScore: src.ReliabilityScore,
		})
	}

	return &metrics.Submission{
		MetricType:      r.MetricType,
		PrivateData:     privateData,
		DataSources:     sources,
		PublicMetric:    publicMetric,
		QualityScore:    r.QualityScore,
		TimeWindowHours: r.TimeWindowHours,
		Contributor:     r.Contributor,
	}, nil
}

// MetricResponse is the wire form of a (privacy-filtered) metric value.
type MetricResponse struct {
	MetricType   string `json:"metric_type"`
	Value        string `json:"value"`
	Timestamp    uint64 `json:"timestamp"`
	ProofID      string `json:"proof_id"`
	QualityScore uint8  `json:"quality_score"`
	SourceNode   string `json:"source_node"`
	Tier         string `json:"tier"`
}

// MetricResponseFrom renders a metric value for the wire.
func MetricResponseFrom(v *metrics.Value, tier string) MetricResponse {
	return MetricResponse{
		MetricType:   v.MetricType,
		Value:        v.Value.Dec(),
		Timestamp:    v.Timestamp,
		ProofID:      v.ProofID,
		QualityScore: v.QualityScore,
		SourceNode:   v.SourceNode,
		Tier:         tier,
	}
}
