package controller

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/polyvisor/pulse/pkg/analytics"
)

// HandleContributorStats returns the reputation record for an address.
func (c *Controller) HandleContributorStats(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	record, err := c.App.Service.ContributorStats(r.Context(), address)
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}
