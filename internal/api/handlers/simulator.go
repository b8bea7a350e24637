package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/ranking"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/selection"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/session"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/config"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

// SimulatorHandler serves the simulator page and its form actions
type SimulatorHandler struct {
	sessions *session.Manager
	cfg      *config.Config
	logger   *logrus.Logger
}

// NewSimulatorHandler creates a simulator handler
func NewSimulatorHandler(sessions *session.Manager, cfg *config.Config, log *logrus.Logger) *SimulatorHandler {
	return &SimulatorHandler{sessions: sessions, cfg: cfg, logger: log}
}

// ResultView is a simulation result prepared for display
type ResultView struct {
	SimulationID string
	ShareURL     string
	Favourites   []ranking.Row
	Rows         []ranking.Row
}

type simulatorPage struct {
	Title         string
	Query         string
	Available     []string
	Selected      []string
	Runs          string
	MinRuns       int
	MaxRuns       int
	Ready         bool
	Hint          string
	Running       bool
	TeamsLoaded   bool
	TeamsError    string
	Result        *ResultView
	Notifications []notify.Notification
}

// NewResultView ranks results for display
func NewResultView(id string, rows []ranking.Row, favourites []ranking.Row) *ResultView {
	return &ResultView{
		SimulationID: id,
		ShareURL:     "/simulation/" + url.PathEscape(id),
		Favourites:   favourites,
		Rows:         rows,
	}
}

// Page renders GET /simulate
func (h *SimulatorHandler) Page(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if err := s.Simulator.EnsureTeams(c.Request.Context()); err != nil {
		s.Notifications.Error("Failed to load teams", err.Error())
	}

	query := strings.TrimSpace(c.Query("q"))
	state := s.Simulator.Snapshot()

	page := simulatorPage{
		Title:         "Simulator",
		Query:         query,
		Available:     s.Simulator.Available(query),
		Selected:      state.Selected,
		Runs:          state.RunsInput,
		MinRuns:       h.cfg.MinSuggestedRuns,
		MaxRuns:       h.cfg.MaxSuggestedRuns,
		Ready:         state.Validation == selection.OK,
		Hint:          selectionHint(state.Validation, len(state.Selected)),
		Running:       state.Running,
		TeamsLoaded:   state.TeamsLoaded,
		Notifications: s.Notifications.Active(),
	}
	if state.TeamsErr != nil {
		page.TeamsError = state.TeamsErr.Error()
	}
	if r := state.Result; r != nil {
		page.Result = NewResultView(r.SimulationID, ranking.Rows(r.Results), ranking.TopRows(r.Results, ranking.FavouritesCount))
	}
	c.HTML(http.StatusOK, "simulate.html", page)
}

func selectionHint(v selection.Result, n int) string {
	switch v {
	case selection.TooFew:
		return "Select at least 2 teams."
	case selection.NotPowerOfTwo:
		return fmt.Sprintf("%d teams selected. Use a power of 2 (4, 8, 16, 32, ...).", n)
	default:
		return fmt.Sprintf("%d teams selected.", n)
	}
}

// Toggle handles POST /simulate/teams/toggle
func (h *SimulatorHandler) Toggle(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if team := c.PostForm("team"); team != "" {
		s.Simulator.Toggle(team)
		h.persist(c, s)
	}
	c.Redirect(http.StatusSeeOther, simulatePath(c.PostForm("q")))
}

// Reset handles POST /simulate/reset
func (h *SimulatorHandler) Reset(c *gin.Context) {
	s := middleware.CurrentSession(c)
	s.Simulator.Reset()
	h.persist(c, s)
	c.Redirect(http.StatusSeeOther, "/simulate")
}

// Run handles POST /simulate/run
func (h *SimulatorHandler) Run(c *gin.Context) {
	s := middleware.CurrentSession(c)
	defer c.Redirect(http.StatusSeeOther, simulatePath(c.PostForm("q")))

	ctx := c.Request.Context()
	resp, err := s.Simulator.RunInput(ctx, c.PostForm("runs"))
	h.persist(c, s)
	if err != nil {
		// skip when the browser has gone away
		if ctx.Err() == nil {
			notifySimulationError(s.Notifications, err)
		}
		return
	}
	s.Notifications.Info("Simulation complete",
		fmt.Sprintf("Simulation %s finished with %d runs.", resp.SimulationID, s.Simulator.Snapshot().Runs))
}

func notifySimulationError(bus *notify.Bus, err error) {
	switch {
	case errors.Is(err, selection.ErrTooFewTeams):
		bus.Error("Select more teams", "You need at least 2 teams for a tournament.")
	case errors.Is(err, selection.ErrNotPowerOfTwo):
		bus.Error("Team count must be a power of 2", "Please select 4, 8, 16, 32, ... teams to form a knockout bracket.")
	case errors.Is(err, selection.ErrInvalidRunCount):
		bus.Error("Invalid number of runs", "Please use a positive number of simulation runs.")
	case errors.Is(err, simulation.ErrRunInFlight):
		bus.Error("Simulation already running", "Wait for the current simulation to finish.")
	case errors.Is(err, simulation.ErrStaleResult):
		// the view was reset or the browser left; nothing to show
	default:
		bus.Error("Simulation failed", err.Error())
	}
}

func (h *SimulatorHandler) persist(c *gin.Context, s *session.Session) {
	if err := h.sessions.Persist(c.Request.Context(), s); err != nil {
		logger.WithSession(h.logger, s.ID).WithError(err).Warn("Failed to persist session")
	}
}

func simulatePath(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "/simulate"
	}
	return "/simulate?q=" + url.QueryEscape(query)
}
