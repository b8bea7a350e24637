package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/ranking"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

// Backend is everything the admin page needs from the tournament API
type Backend interface {
	PipelineBackend
	RegistryBackend
}

// View is one session's admin page
type View struct {
	Pipeline *Pipeline
	Registry *Registry
	logger   *logrus.Entry
}

// NewView creates an admin view
func NewView(backend Backend, log *logrus.Entry) *View {
	if log == nil {
		log = logger.WithService(logger.DashboardService)
	}
	return &View{
		Pipeline: NewPipeline(backend, log),
		Registry: NewRegistry(backend, log),
		logger:   log,
	}
}

// Trigger runs a pipeline step; a successful training run refreshes the registry
func (v *View) Trigger(ctx context.Context, action Action) (Outcome, error) {
	outcome, err := v.Pipeline.Trigger(ctx, action)
	if err != nil {
		return outcome, err
	}
	if action == ActionTrain {
		if err := v.Registry.Refresh(ctx); err != nil {
			v.logger.WithError(err).Warn("Registry refresh after training failed")
		}
	}
	return outcome, nil
}

// RunRow is one display line of the model registry table
type RunRow struct {
	ID          string
	CreatedAt   string
	Status      string
	Accuracy    string
	LogLoss     string
	Notes       string
	IsActive    bool
	Activatable bool
}

// Rows renders registry runs in backend order
func Rows(state RegistryState) []RunRow {
	rows := make([]RunRow, 0, len(state.Runs))
	for _, run := range state.Runs {
		row := RunRow{
			ID:          run.ID,
			CreatedAt:   FormatCreated(run),
			Status:      string(run.Status),
			Accuracy:    FormatMetric(run, "accuracy"),
			LogLoss:     FormatMetric(run, "log_loss"),
			IsActive:    state.Active != nil && state.Active.ID == run.ID,
			Activatable: CanActivate(run, state.Active) == nil,
		}
		if run.Notes != nil {
			row.Notes = *run.Notes
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatMetric renders a numeric metric with four decimals or the unknown marker
func FormatMetric(run models.ModelRun, name string) string {
	v, ok := run.Metric(name)
	if !ok {
		return ranking.UnknownMarker
	}
	return fmt.Sprintf("%.4f", v)
}

// Metric is one named entry of a run's metrics
type Metric struct {
	Name  string
	Value string
}

// Metrics renders every metrics entry in name order. Numbers get four
// decimals, strings are shown verbatim and anything else as JSON.
func Metrics(run models.ModelRun) []Metric {
	names := make([]string, 0, len(run.Metrics))
	for name := range run.Metrics {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]Metric, 0, len(names))
	for _, name := range names {
		out = append(out, Metric{Name: name, Value: formatMetricValue(run, name)})
	}
	return out
}

func formatMetricValue(run models.ModelRun, name string) string {
	if v, ok := run.Metric(name); ok {
		return fmt.Sprintf("%.4f", v)
	}
	switch v := run.Metrics[name].(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// FormatCreated renders a run timestamp in local time, or verbatim when unparseable
func FormatCreated(run models.ModelRun) string {
	t, ok := run.Created()
	if !ok {
		return run.CreatedAt
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
