package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/ranking"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/selection"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/utils"
)

// APIHandler exposes the simulator workflow as JSON for scripts and the
// websocket-driven page
type APIHandler struct {
	lookup *simulation.Lookup
	logger *logrus.Logger
}

// NewAPIHandler creates the JSON API handler
func NewAPIHandler(lookup *simulation.Lookup, logger *logrus.Logger) *APIHandler {
	return &APIHandler{lookup: lookup, logger: logger}
}

type simulatorState struct {
	Selected   []string                   `json:"selected"`
	Runs       int                        `json:"runs"`
	Validation string                     `json:"validation"`
	Running    bool                       `json:"running"`
	Result     *models.SimulationResponse `json:"result,omitempty"`
	Favourites []models.TeamProbability   `json:"favourites,omitempty"`
}

// GetTeams handles GET /api/v1/teams
func (h *APIHandler) GetTeams(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if err := s.Simulator.EnsureTeams(c.Request.Context()); err != nil {
		h.sendBackendError(c, err)
		return
	}
	utils.SendSuccess(c, s.Simulator.Snapshot().Teams)
}

// GetSimulator handles GET /api/v1/simulator
func (h *APIHandler) GetSimulator(c *gin.Context) {
	s := middleware.CurrentSession(c)
	state := s.Simulator.Snapshot()

	out := simulatorState{
		Selected:   state.Selected,
		Runs:       state.Runs,
		Validation: state.Validation.String(),
		Running:    state.Running,
		Result:     state.Result,
	}
	if state.Result != nil {
		out.Favourites = ranking.TopN(state.Result.Results, ranking.FavouritesCount)
	}
	utils.SendSuccess(c, out)
}

// RunSimulation handles POST /api/v1/simulator/run. The body replaces the
// session selection before running.
func (h *APIHandler) RunSimulation(c *gin.Context) {
	s := middleware.CurrentSession(c)

	var req models.SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}
	resp, err := s.Simulator.RunTeams(c.Request.Context(), req.Teams, req.NRuns)
	switch {
	case err == nil:
		s.Notifications.Info("Simulation complete", "Simulation "+resp.SimulationID+" finished.")
		utils.SendSuccess(c, resp)
	case errors.Is(err, selection.ErrTooFewTeams),
		errors.Is(err, selection.ErrNotPowerOfTwo),
		errors.Is(err, selection.ErrInvalidRunCount):
		utils.SendValidationError(c, "Invalid simulation request", err.Error())
	case errors.Is(err, simulation.ErrRunInFlight):
		utils.SendConflict(c, err.Error())
	default:
		h.sendBackendError(c, err)
	}
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *APIHandler) GetSimulation(c *gin.Context) {
	resp, err := h.lookup.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, simulation.ErrSimulationNotFound) {
			utils.SendNotFound(c, "Simulation not found")
			return
		}
		h.sendBackendError(c, err)
		return
	}
	utils.SendSuccess(c, resp)
}

func (h *APIHandler) sendBackendError(c *gin.Context, err error) {
	_ = c.Error(err)
	if providers.IsTransport(err) {
		utils.SendServiceUnavailable(c, "Tournament backend unavailable", err.Error())
		return
	}
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) && !apiErr.ServerFailure() {
		utils.SendValidationError(c, "Rejected by tournament backend", apiErr.Message)
		return
	}
	utils.SendUpstreamError(c, "Tournament backend error", err.Error())
}
