package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/polyvisor/pulse/pkg/analytics"
	"github.com/polyvisor/pulse/pkg/zk"
)

// HandleProofStatus returns the current handle for a proof id.
func (c *Controller) HandleProofStatus(w http.ResponseWriter, r *http.Request) {
	proofID := mux.Vars(r)["id"]

	handle, err := c.App.Service.Status(proofID)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// HandleProofCancel requests cancellation. Cancelling a finished proof is a
// no-op and still returns 200.
func (c *Controller) HandleProofCancel(w http.ResponseWriter, r *http.Request) {
	proofID := mux.Vars(r)["id"]

	handle, err := c.App.Service.Cancel(proofID)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// HandleProofData returns a stored proof by id.
func (c *Controller) HandleProofData(w http.ResponseWriter, r *http.Request) {
	proofID := mux.Vars(r)["id"]

	proof, err := c.App.Service.LoadProof(r.Context(), proofID)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// HandleVerify runs detailed verification on a posted proof.
func (c *Controller) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var proof zk.Proof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	report, err := c.App.Service.Verify(r.Context(), &proof)
	if err != nil {
		switch {
		case errors.Is(err, zk.ErrUnsupportedCircuit):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, zk.ErrCryptographic):
			// The report still carries the per-check breakdown.
			writeJSON(w, http.StatusOK, report)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleVerifyBatch verifies a posted slice of proofs in order, returning
// one report per proof. Per-proof failures land in their report.
func (c *Controller) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var proofs []*zk.Proof
	if err := json.NewDecoder(r.Body).Decode(&proofs); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if len(proofs) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}

	reports, err := c.App.Service.VerifyBatch(r.Context(), proofs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// HandleStats snapshots the proof pipeline counters and job tallies.
func (c *Controller) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.App.Service.Snapshot())
}
