package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/admin"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/ranking"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/selection"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
)

func newTeamsCommand(a *app) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List the teams available for simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := a.client.GetTeams(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load teams: %w", err)
			}
			teams := slices.Collect(selection.New().Filter(all, search))

			if a.printer.Structured() {
				return a.printer.Data(teams)
			}
			if len(teams) == 0 {
				a.printer.Line("No teams found")
				return nil
			}
			rows := make([][]string, 0, len(teams))
			for _, team := range teams {
				rows = append(rows, []string{team})
			}
			a.printer.Table([]string{"Team"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only list teams whose name contains this text")
	return cmd
}

func newSimulateCommand(a *app) *cobra.Command {
	var (
		teams []string
		runs  int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a knockout tournament simulation",
		Example: `  simctl simulate --team Brazil --team France --team Germany --team Spain --runs 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("runs") {
				runs = a.cfg.DefaultRuns
			}
			sel := selection.New(teams...)
			if err := sel.Validate().Err(); err != nil {
				return err
			}
			if err := selection.ValidateRuns(runs); err != nil {
				return err
			}

			log := a.entry("simulate")
			log.WithField("teams", sel.Len()).WithField("runs", runs).Debug("Submitting simulation")

			resp, err := a.client.SimulateTournament(cmd.Context(), models.SimulationRequest{
				Teams: sel.Teams(),
				NRuns: runs,
			})
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			if a.printer.Structured() {
				return a.printer.Data(resp)
			}
			a.printer.Title("Simulation %s (%d runs)", resp.SimulationID, runs)
			a.printResults(resp)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&teams, "team", "t", nil, "team to include (repeat for each team)")
	cmd.Flags().IntVarP(&runs, "runs", "n", 0, "number of simulation runs (defaults to DEFAULT_RUNS)")
	return cmd
}

func newSimulationCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "simulation <id>",
		Short: "Show a stored simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := simulation.NewLookup(a.client).Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, simulation.ErrSimulationNotFound) {
					return fmt.Errorf("simulation %q not found", args[0])
				}
				return fmt.Errorf("failed to load simulation: %w", err)
			}
			if a.printer.Structured() {
				return a.printer.Data(resp)
			}
			a.printer.Title("Simulation %s", resp.SimulationID)
			a.printResults(resp)
			return nil
		},
	}
}

func (a *app) printResults(resp *models.SimulationResponse) {
	if len(resp.Results) == 0 {
		a.printer.Line("No results")
		return
	}
	rows := [][]string{}
	for _, r := range ranking.Rows(resp.Results) {
		rows = append(rows, []string{
			strconv.Itoa(r.Rank), r.Team, r.WinProb, r.FinalProb, r.SemiProb, r.Wins, r.Finals, r.Semis,
		})
	}
	a.printer.Table([]string{"#", "Team", "Win", "Final", "Semi", "Wins", "Finals", "Semis"}, rows)
}

func newAdminCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Run data pipeline steps",
	}
	for _, action := range admin.Actions {
		cmd.AddCommand(newPipelineCommand(a, action))
	}
	return cmd
}

func newPipelineCommand(a *app, action admin.Action) *cobra.Command {
	return &cobra.Command{
		Use:   string(action),
		Short: fmt.Sprintf("Run the %s step", action.Title()),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline := admin.NewPipeline(a.client, a.entry("admin"))
			outcome, err := pipeline.Trigger(cmd.Context(), action)
			if err != nil {
				return fmt.Errorf("%s failed: %w", action.Title(), err)
			}
			if a.printer.Structured() {
				switch {
				case outcome.Ingestion != nil:
					return a.printer.Data(outcome.Ingestion)
				case outcome.Processing != nil:
					return a.printer.Data(outcome.Processing)
				default:
					return a.printer.Data(outcome.Training)
				}
			}
			a.printer.Line("%s complete: %s", action.Title(), outcome.Summary())
			return nil
		},
	}
}

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and activate trained model runs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List model runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := admin.NewRegistry(a.client, a.entry("models"))
			if err := registry.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load model runs: %w", err)
			}
			state := registry.Snapshot()
			if a.printer.Structured() {
				return a.printer.Data(state.Runs)
			}
			if len(state.Runs) == 0 {
				a.printer.Line("No model runs")
				return nil
			}
			rows := [][]string{}
			for _, row := range admin.Rows(state) {
				marker := ""
				if row.IsActive {
					marker = "*"
				}
				rows = append(rows, []string{marker, row.ID, row.CreatedAt, row.Status, row.Accuracy, row.LogLoss, row.Notes})
			}
			a.printer.Table([]string{"", "ID", "Created", "Status", "Accuracy", "Log loss", "Notes"}, rows)
			return nil
		},
	}

	active := &cobra.Command{
		Use:   "active",
		Short: "Show the active model run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := a.client.GetActiveModel(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load active model: %w", err)
			}
			if a.printer.Structured() {
				return a.printer.Data(run)
			}
			if run == nil {
				a.printer.Line("No active model")
				return nil
			}
			a.printer.Table(
				[]string{"ID", "Created", "Status", "Accuracy", "Log loss"},
				[][]string{{run.ID, admin.FormatCreated(*run), string(run.Status), admin.FormatMetric(*run, "accuracy"), admin.FormatMetric(*run, "log_loss")}},
			)
			return nil
		},
	}

	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a model run the active model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := admin.NewRegistry(a.client, a.entry("models"))
			if err := registry.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load model runs: %w", err)
			}
			result, err := registry.Activate(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("activation failed: %w", err)
			}
			if a.printer.Structured() {
				return a.printer.Data(result)
			}
			a.printer.Line("Active model set to %s", result.ActiveModelRunID)
			return nil
		},
	}

	cmd.AddCommand(list, active, activate)
	return cmd
}
