// Package cli implements simctl, a command-line client for the tournament
// simulation backend.
package cli

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/config"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

// app carries the state shared by every subcommand of one invocation
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *logrus.Logger
	client  *providers.TournamentClient
	printer *Printer
}

// NewRootCommand builds the simctl command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "simctl",
		Short: "Command-line client for the tournament simulator",
		Long: `simctl drives the tournament simulation backend from a terminal:
list teams, run knockout simulations, look up earlier runs and manage the
data pipeline and model registry.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "env-format config file (default is ./.env)")
	flags.String("api-url", "", "tournament API base URL (overrides API_BASE_URL)")
	flags.StringP("output", "o", OutputTable, "output format: table, json or yaml")
	flags.Duration("timeout", 0, "per-request timeout (0 waits indefinitely)")
	flags.BoolP("verbose", "v", false, "log requests to stderr")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = a.v.BindPFlag("output", flags.Lookup("output"))
	_ = a.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("verbose", flags.Lookup("verbose"))

	a.v.SetEnvPrefix("SIMCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newTeamsCommand(a),
		newSimulateCommand(a),
		newSimulationCommand(a),
		newAdminCommand(a),
		newModelsCommand(a),
	)
	return root
}

// Execute runs simctl with the process arguments
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	var err error
	if path := a.v.GetString("config"); path != "" {
		a.cfg, err = config.LoadConfigFile(path)
	} else {
		a.cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}

	a.printer, err = NewPrinter(cmd.OutOrStdout(), a.v.GetString("output"))
	if err != nil {
		return err
	}

	level := "warn"
	if a.v.GetBool("verbose") {
		level = "debug"
	}
	a.logger = logger.InitLoggerWithOutput(level, true, cmd.ErrOrStderr())

	baseURL := strings.TrimSuffix(a.v.GetString("api_url"), "/")
	if baseURL == "" {
		baseURL = a.cfg.APIBaseURL
	}
	timeout := a.cfg.APITimeout
	if d := a.v.GetDuration("timeout"); d > 0 {
		timeout = d
	}

	a.client = providers.NewTournamentClient(providers.ClientConfig{
		BaseURL:          baseURL,
		Timeout:          timeout,
		BreakerThreshold: a.cfg.CircuitBreakerThreshold,
		BreakerTimeout:   a.cfg.CircuitBreakerTimeout,
	}, a.logger)

	a.logger.WithFields(logrus.Fields{
		"api_base": baseURL,
		"output":   a.printer.format,
		"timeout":  timeout.String(),
	}).Debug("simctl configured")
	return nil
}

func (a *app) entry(command string) *logrus.Entry {
	return logger.WithComponent("simctl", command)
}
