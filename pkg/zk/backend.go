package zk

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ProvingBackend abstracts the proving system. The pipeline only depends on
// this interface, so a production SNARK prover can replace the mock without
// touching the pipeline.
type ProvingBackend interface {
	// Prove generates a proof for the circuit over the given witness
	// (private) and public inputs, returning the proof bytes and the
	// verification key they verify under.
	Prove(ctx context.Context, circuit *Circuit, witness [][]byte, publicInputs [][]byte) (proofData, verificationKey []byte, err error)
	// Verify checks a proof against the circuit, public inputs and
	// verification key.
	Verify(ctx context.Context, circuit *Circuit, proofData []byte, publicInputs [][]byte, verificationKey []byte) (bool, error)
	// Algorithm names the proving system, recorded on each proof.
	Algorithm() string
}

// MockBackend is a deterministic stand-in prover. Proof bytes are keyed
// hashes over the circuit and inputs, so the same submission always yields
// the same proof, and verification recomputes the public-input commitment
// the proof carries. It is NOT sound against a malicious prover and exists
// for development and testing.
type MockBackend struct {
	// Latency, when set, simulates proving time and makes the backend
	// respect context cancellation mid-generation.
	Latency time.Duration
}

// Mock proof layout: 160 bytes of witness-dependent filler followed by a
// 32-byte commitment to the circuit and public inputs.
const (
	mockFillerLen = 160
	mockProofLen  = mockFillerLen + 32
)

func (m *MockBackend) Algorithm() string { return "mock-blake2b" }

// mockVerificationKey derives the per-circuit verification key. A real
// proving system fixes the key at circuit setup; the mock derives it from
// the circuit id so it is stable across processes.
func mockVerificationKey(circuit *Circuit) []byte {
	h, _ := blake2b.New256([]byte("pulse-mock-vk"))
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], circuit.ID)
	h.Write(word[:])
	return h.Sum(nil)
}

func mockCommitment(circuit *Circuit, publicInputs [][]byte) []byte {
	h, _ := blake2b.New256([]byte("pulse-mock-prover"))
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], circuit.ID)
	h.Write(word[:])
	for _, p := range publicInputs {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (m *MockBackend) Prove(ctx context.Context, circuit *Circuit, witness [][]byte, publicInputs [][]byte) ([]byte, []byte, error) {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if len(publicInputs) == 0 {
		return nil, nil, fmt.Errorf("%w: empty public inputs", ErrProofGenerationFailed)
	}

	seed, _ := blake2b.New256([]byte("pulse-mock-witness"))
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], circuit.ID)
	seed.Write(word[:])
	for _, w := range witness {
		seed.Write(w)
	}
	seedSum := seed.Sum(nil)

	// Expand the witness seed to the filler length via counter-mode hashing.
	out := make([]byte, 0, mockProofLen)
	var ctr [4]byte
	for i := 0; len(out) < mockFillerLen; i++ {
		binary.BigEndian.PutUint32(ctr[:], uint32(i))
		block, _ := blake2b.New256(nil)
		block.Write(seedSum)
		block.Write(ctr[:])
		out = append(out, block.Sum(nil)...)
	}
	out = out[:mockFillerLen]

	return append(out, mockCommitment(circuit, publicInputs)...), mockVerificationKey(circuit), nil
}

func (m *MockBackend) Verify(ctx context.Context, circuit *Circuit, proofData []byte, publicInputs [][]byte, verificationKey []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(proofData) != mockProofLen {
		return false, nil
	}
	if !bytes.Equal(verificationKey, mockVerificationKey(circuit)) {
		return false, nil
	}
	return bytes.Equal(proofData[mockFillerLen:], mockCommitment(circuit, publicInputs)), nil
}
