// Package simulation drives the simulator workflow: loading the team
// catalogue, holding a session's selection and run count, submitting a
// simulation and looking up stored simulations by id.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/selection"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

var (
	ErrRunInFlight = errors.New("a simulation is already running")
	// ErrStaleResult is returned when a response arrives after the view was
	// reset or the request context ended. The response is not applied.
	ErrStaleResult = errors.New("simulation result discarded")
)

// Backend is the subset of the tournament API the simulator needs
type Backend interface {
	GetTeams(ctx context.Context) ([]string, error)
	SimulateTournament(ctx context.Context, req models.SimulationRequest) (*models.SimulationResponse, error)
}

// State is a point-in-time copy of a view
type State struct {
	Teams       []string
	TeamsLoaded bool
	TeamsErr    error
	Selected    []string
	Runs        int
	// RunsInput is the run count as last entered, kept verbatim when it was
	// not a number; otherwise it is Runs in decimal
	RunsInput  string
	Validation selection.Result
	Result      *models.SimulationResponse
	Running     bool
}

// View is one session's simulator. Network calls never hold the view lock.
type View struct {
	mu      sync.Mutex
	backend Backend
	logger  *logrus.Entry

	teams       []string
	teamsLoaded bool
	teamsErr    error
	loading     bool

	selection *selection.Selection
	runs      int
	runsInput string
	result    *models.SimulationResponse
	running   bool

	// generation advances on Reset so responses for older state are dropped
	generation uint64
}

// NewView creates a simulator view with the given initial run count
func NewView(backend Backend, defaultRuns int, log *logrus.Entry) *View {
	if log == nil {
		log = logger.WithComponent(logger.DashboardService, "simulator")
	} else {
		log = log.WithField("component", "simulator")
	}
	return &View{
		backend:   backend,
		logger:    log,
		selection: selection.New(),
		runs:      defaultRuns,
		runsInput: strconv.Itoa(defaultRuns),
	}
}

// LoadTeams fetches the team catalogue. A failed load keeps any previously
// loaded catalogue and records the error. Concurrent loads are collapsed.
func (v *View) LoadTeams(ctx context.Context) error {
	v.mu.Lock()
	if v.loading {
		v.mu.Unlock()
		return nil
	}
	v.loading = true
	v.mu.Unlock()

	teams, err := v.backend.GetTeams(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	if err != nil {
		v.teamsErr = err
		v.logger.WithError(err).Warn("Failed to load teams")
		return fmt.Errorf("failed to load teams: %w", err)
	}
	v.teams = teams
	v.teamsLoaded = true
	v.teamsErr = nil
	return nil
}

// EnsureTeams loads the catalogue unless it is already loaded
func (v *View) EnsureTeams(ctx context.Context) error {
	v.mu.Lock()
	loaded := v.teamsLoaded
	v.mu.Unlock()
	if loaded {
		return nil
	}
	return v.LoadTeams(ctx)
}

// Toggle flips a team's membership, reporting whether it is now selected
func (v *View) Toggle(team string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selection.Toggle(team)
}

// Reset clears the selection and the displayed result. A run still in
// flight will be discarded when it returns.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection.Reset()
	v.result = nil
	v.generation++
}

// SetRuns stores the requested run count without validating it
func (v *View) SetRuns(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setRuns(n, strconv.Itoa(n), false)
}

// setRuns must be called with mu held. A malformed input leaves the last
// numeric run count in place.
func (v *View) setRuns(n int, input string, malformed bool) {
	if !malformed {
		v.runs = n
	}
	v.runsInput = input
}

// Run validates the selection and run count then submits one simulation.
// Validation failures never reach the backend. On failure the previous
// result stays in place.
func (v *View) Run(ctx context.Context, runs int) (*models.SimulationResponse, error) {
	return v.submit(ctx, submission{runs: runs, input: strconv.Itoa(runs)})
}

// RunInput is Run for a run count typed into a form. Text that is not a
// number is kept for redisplay and rejected as ErrInvalidRunCount.
func (v *View) RunInput(ctx context.Context, input string) (*models.SimulationResponse, error) {
	input = strings.TrimSpace(input)
	runs, err := strconv.Atoi(input)
	return v.submit(ctx, submission{runs: runs, input: input, malformed: err != nil})
}

// RunTeams replaces the selection with teams and runs it. The in-flight check
// and the replacement happen under one lock, so a pending run never has its
// selection swapped.
func (v *View) RunTeams(ctx context.Context, teams []string, runs int) (*models.SimulationResponse, error) {
	if teams == nil {
		teams = []string{}
	}
	return v.submit(ctx, submission{runs: runs, input: strconv.Itoa(runs), teams: teams})
}

type submission struct {
	runs      int
	input     string
	malformed bool
	// teams replaces the selection when non-nil
	teams []string
}

func (v *View) submit(ctx context.Context, sub submission) (*models.SimulationResponse, error) {
	v.mu.Lock()
	if v.running {
		if sub.teams == nil {
			v.setRuns(sub.runs, sub.input, sub.malformed)
		}
		v.mu.Unlock()
		return nil, ErrRunInFlight
	}
	v.setRuns(sub.runs, sub.input, sub.malformed)
	if sub.teams != nil {
		v.selection = selection.New(sub.teams...)
	}
	if err := v.selection.Validate().Err(); err != nil {
		v.mu.Unlock()
		return nil, err
	}
	if sub.malformed {
		v.mu.Unlock()
		return nil, selection.ErrInvalidRunCount
	}
	runs := sub.runs
	if err := selection.ValidateRuns(runs); err != nil {
		v.mu.Unlock()
		return nil, err
	}
	req := models.SimulationRequest{Teams: v.selection.Teams(), NRuns: runs}
	generation := v.generation
	v.running = true
	v.mu.Unlock()

	log := logger.WithSimulationContext(v.logger, len(req.Teams), runs)
	log.Info("Submitting simulation")

	resp, err := v.backend.SimulateTournament(ctx, req)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.running = false

	if err != nil {
		log.WithError(err).Warn("Simulation failed")
		return nil, err
	}
	if generation != v.generation || ctx.Err() != nil {
		log.WithField("simulation_id", resp.SimulationID).Info("Discarding stale simulation result")
		return nil, ErrStaleResult
	}

	v.result = resp
	log.WithField("simulation_id", resp.SimulationID).Info("Simulation complete")
	return resp, nil
}

// Snapshot returns a copy of the view state
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		Teams:       append([]string(nil), v.teams...),
		TeamsLoaded: v.teamsLoaded,
		TeamsErr:    v.teamsErr,
		Selected:    v.selection.Teams(),
		Runs:        v.runs,
		RunsInput:   v.runsInput,
		Validation:  v.selection.Validate(),
		Result:      v.result,
		Running:     v.running,
	}
}

// Available returns the unselected catalogue teams matching query
func (v *View) Available(query string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []string
	for team := range v.selection.Filter(v.teams, query) {
		out = append(out, team)
	}
	return out
}

// Restore replaces the selection and run count, used when rehydrating a
// session from a snapshot store
func (v *View) Restore(selected []string, runs int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection = selection.New(selected...)
	if runs != 0 {
		v.setRuns(runs, strconv.Itoa(runs), false)
	}
}
