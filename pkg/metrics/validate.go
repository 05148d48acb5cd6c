package metrics

import (
	"errors"
	"fmt"
)

// ErrInvalidSubmission marks structural or numeric violations. It is never
// retriable: the submitter has to fix the payload and resubmit.
var ErrInvalidSubmission = errors.New("invalid submission")

const (
	MinDataSources     = 2
	MaxQualityScore    = 100
	MinTimeWindowHours = 1
	MaxTimeWindowHours = 24
)

// Validate checks the submission against the structural and numeric
// invariants, failing fast on the first violation. It has no side effects
// and runs before any proof work is attempted.
func Validate(s *Submission) error {
	if len(s.PrivateData) == 0 {
		return fmt.Errorf("%w: private data cannot be empty", ErrInvalidSubmission)
	}
	if len(s.DataSources) < MinDataSources {
		return fmt.Errorf("%w: at least %d data sources required, got %d",
			ErrInvalidSubmission, MinDataSources, len(s.DataSources))
	}
	if s.QualityScore > MaxQualityScore {
		return fmt.Errorf("%w: quality score %d exceeds %d",
			ErrInvalidSubmission, s.QualityScore, MaxQualityScore)
	}
	if s.TimeWindowHours < MinTimeWindowHours || s.TimeWindowHours > MaxTimeWindowHours {
		return fmt.Errorf("%w: time window must be between %d and %d hours, got %d",
			ErrInvalidSubmission, MinTimeWindowHours, MaxTimeWindowHours, s.TimeWindowHours)
	}
	for i, ds := range s.DataSources {
		if ds.ReliabilityScore > MaxQualityScore {
			return fmt.Errorf("%w: source %d reliability score %d exceeds %d",
				ErrInvalidSubmission, i, ds.ReliabilityScore, MaxQualityScore)
		}
	}
	if s.PublicMetric == nil {
		return fmt.Errorf("%w: public metric is required", ErrInvalidSubmission)
	}
	return nil
}
