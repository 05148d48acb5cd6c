package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/polyvisor/pulse/app/api/controller/types"
	"github.com/polyvisor/pulse/pkg/analytics"
	"github.com/polyvisor/pulse/pkg/metrics"
	"github.com/polyvisor/pulse/pkg/privacy"
	"github.com/polyvisor/pulse/pkg/zk"
)

// HandleSubmit accepts a metric submission and queues proof generation.
// Responds 202 with the proof handle for polling.
func (c *Controller) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in types.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	sub, err := in.ToSubmission()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := c.App.Service.Submit(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, analytics.ErrUnauthorized):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, metrics.ErrInvalidSubmission), errors.Is(err, zk.ErrUnsupportedCircuit):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, handle)
}

// viewerTier resolves the privacy tier for a read. Authenticated viewers may
// request any tier; anonymous viewers are capped at Medium.
func (c *Controller) viewerTier(r *http.Request) privacy.Tier {
	requested := privacy.TierLow
	if s := r.URL.Query().Get("tier"); s != "" {
		if t, err := privacy.ParseTier(s); err == nil {
			requested = t
		}
	}
	if c.ValidateToken(r) || c.ValidateSessionCookie(r) {
		return requested
	}
	if requested > privacy.TierMedium {
		return privacy.TierMedium
	}
	return requested
}

// HandleReadMetric returns the latest value of a metric type, filtered for
// the viewer's privacy tier (?tier=maximum|high|medium|low|minimal).
func (c *Controller) HandleReadMetric(w http.ResponseWriter, r *http.Request) {
	metricType := mux.Vars(r)["type"]
	tier := c.viewerTier(r)

	v, err := c.App.Service.ReadMetric(r.Context(), metricType, tier)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types.MetricResponseFrom(v, tier.String()))
}
