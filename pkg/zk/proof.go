package zk

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"

	"github.com/polyvisor/pulse/pkg/metrics"
)

// Proof is a generated proof together with the public inputs it binds and
// enough metadata to verify and expire it.
type Proof struct {
	CircuitID       uint32    `json:"circuit_id"`
	ProofData       []byte    `json:"proof_data"`
	PublicInputs    [][]byte  `json:"public_inputs"`
	VerificationKey []byte    `json:"verification_key"`
	Algorithm       string    `json:"algorithm"`
	GeneratedAt     time.Time `json:"generated_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the proof's validity window has passed.
func (p *Proof) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// EncodePublicInput renders a value as a fixed 16-byte big-endian word, the
// canonical public-input encoding.
func EncodePublicInput(v *uint256.Int) []byte {
	full := v.Bytes32()
	out := make([]byte, 16)
	copy(out, full[16:])
	return out
}

// DecodePublicInput parses a canonical 16-byte big-endian public-input
// word.
func DecodePublicInput(b []byte) (*uint256.Int, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("public input must be 16 bytes, got %d", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// EncodeQualityInput renders a quality score as an 8-byte big-endian word.
func EncodeQualityInput(quality uint8) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(quality))
	return out
}

// DecodeQualityInput parses the 8-byte quality word.
func DecodeQualityInput(b []byte) (uint8, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("quality input must be 8 bytes, got %d", len(b))
	}
	v := binary.BigEndian.Uint64(b)
	if v > 255 {
		return 0, fmt.Errorf("quality input %d out of range", v)
	}
	return uint8(v), nil
}

// PublicInputsFor builds the canonical public-input vector for a submission:
// the aggregate metric followed by the quality score.
func PublicInputsFor(s *metrics.Submission) [][]byte {
	return [][]byte{
		EncodePublicInput(s.PublicMetric),
		EncodeQualityInput(s.QualityScore),
	}
}

// SubmissionCacheKey derives a content-addressed key from everything that
// influences proof generation. Two submissions with identical content hash
// to the same key regardless of contributor or arrival time.
func SubmissionCacheKey(s *metrics.Submission, circuitID uint32) string {
	h, _ := blake2b.New256(nil)

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], circuitID)
	h.Write(word[:])

	h.Write([]byte(s.MetricType))

	for _, v := range s.PrivateData {
		b := v.Bytes32()
		h.Write(b[:])
	}
	for _, src := range s.DataSources {
		h.Write([]byte(src.SourceID))
		h.Write([]byte{src.ReliabilityScore})
	}

	pm := s.PublicMetric.Bytes32()
	h.Write(pm[:])
	h.Write([]byte{s.QualityScore, s.TimeWindowHours})

	return hex.EncodeToString(h.Sum(nil))
}

// ProofCacheKey derives a content-addressed key over a proof's bytes and
// public inputs, used to memoize verification results.
func ProofCacheKey(p *Proof) string {
	h, _ := blake2b.New256(nil)

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], p.CircuitID)
	h.Write(word[:])
	h.Write(p.ProofData)
	for _, input := range p.PublicInputs {
		h.Write(input)
	}
	h.Write(p.VerificationKey)

	return hex.EncodeToString(h.Sum(nil))
}
