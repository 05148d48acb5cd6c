package controller

import (
	"net/http"
)

// HandleHealth returns the current network health report.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.App.Service.Health(r.Context()))
}
