package zk

import "errors"

var (
	// ErrUnsupportedCircuit means no registered circuit has the capacity for
	// the submission shape. Fatal for that shape until a larger circuit is
	// registered at startup.
	ErrUnsupportedCircuit = errors.New("unsupported circuit")

	// ErrInvalidProof means the pre-proof constraint gate rejected the
	// submission: the claimed aggregate or quality score does not line up
	// with the private readings.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrProofGenerationFailed wraps proving-backend faults.
	ErrProofGenerationFailed = errors.New("proof generation failed")

	// ErrProofVerificationFailed wraps verifier faults. A clean negative
	// verdict is not an error; this covers backend failures only.
	ErrProofVerificationFailed = errors.New("proof verification failed")

	// ErrCryptographic marks malformed proof bytes, keys or public inputs.
	ErrCryptographic = errors.New("cryptographic error")
)
