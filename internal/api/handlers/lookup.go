package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/ranking"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
)

// LookupHandler serves shareable simulation pages
type LookupHandler struct {
	lookup *simulation.Lookup
	logger *logrus.Logger
}

// NewLookupHandler creates a lookup handler
func NewLookupHandler(lookup *simulation.Lookup, logger *logrus.Logger) *LookupHandler {
	return &LookupHandler{lookup: lookup, logger: logger}
}

type lookupPage struct {
	Title         string
	ID            string
	NotFound      bool
	Error         string
	Result        *ResultView
	Notifications []notify.Notification
}

// Page renders GET /simulation/:id. Unknown ids render a not-found page with
// status 404; transport and server failures render 502.
func (h *LookupHandler) Page(c *gin.Context) {
	id := c.Param("id")
	page := lookupPage{Title: "Simulation", ID: id}
	if s := middleware.CurrentSession(c); s != nil {
		page.Notifications = s.Notifications.Active()
	}

	resp, err := h.lookup.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, simulation.ErrSimulationNotFound):
		page.NotFound = true
		page.Error = err.Error()
		c.HTML(http.StatusNotFound, "simulation.html", page)
		return
	case err != nil:
		h.logger.WithError(err).WithField("simulation_id", id).Warn("Simulation lookup failed")
		page.Error = err.Error()
		c.HTML(http.StatusBadGateway, "simulation.html", page)
		return
	}

	page.Result = NewResultView(resp.SimulationID, ranking.Rows(resp.Results), ranking.TopRows(resp.Results, ranking.FavouritesCount))
	c.HTML(http.StatusOK, "simulation.html", page)
}
