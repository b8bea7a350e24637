// Package admin triggers the backend data pipeline and manages the model
// registry for one view session.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

var (
	ErrUnknownAction   = errors.New("unknown pipeline action")
	ErrActionInFlight  = errors.New("action is already running")
	ErrNotActivatable  = errors.New("model run cannot be activated")
	ErrUnknownRun      = errors.New("model run not found in registry")
	ErrRefreshInFlight = errors.New("registry refresh is already running")
)

// Action is one of the pipeline steps
type Action string

const (
	ActionIngest  Action = "ingest"
	ActionProcess Action = "process"
	ActionTrain   Action = "train"
)

// Actions lists the pipeline steps in the order they are usually run
var Actions = []Action{ActionIngest, ActionProcess, ActionTrain}

// ParseAction maps a route or CLI argument to an Action
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionIngest, ActionProcess, ActionTrain:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Title is the label used on buttons and notifications
func (a Action) Title() string {
	switch a {
	case ActionIngest:
		return "Ingestion"
	case ActionProcess:
		return "Processing"
	case ActionTrain:
		return "Training"
	default:
		return string(a)
	}
}

// PipelineBackend is the subset of the tournament API that runs pipeline steps
type PipelineBackend interface {
	IngestData(ctx context.Context) (*models.IngestionStatus, error)
	ProcessData(ctx context.Context) (*models.ProcessingStatus, error)
	TrainModel(ctx context.Context) (*models.TrainingStatus, error)
}

// Outcome is the status summary of one successful pipeline step
type Outcome struct {
	Action     Action
	Ingestion  *models.IngestionStatus
	Processing *models.ProcessingStatus
	Training   *models.TrainingStatus
	FinishedAt time.Time
}

// Timestamp is the backend's completion time for the step, verbatim
func (o Outcome) Timestamp() string {
	switch {
	case o.Ingestion != nil:
		return o.Ingestion.Timestamp
	case o.Processing != nil:
		return o.Processing.Timestamp
	case o.Training != nil:
		return o.Training.Timestamp
	default:
		return ""
	}
}

// Summary is a one-line description of the outcome
func (o Outcome) Summary() string {
	switch {
	case o.Ingestion != nil:
		return fmt.Sprintf("%d files ingested", len(o.Ingestion.Files))
	case o.Processing != nil:
		return fmt.Sprintf("%d records for %d teams", o.Processing.Records, o.Processing.Teams)
	case o.Training != nil:
		return fmt.Sprintf("model run %s", o.Training.ModelRunID)
	default:
		return ""
	}
}

// Pipeline runs pipeline steps. Each step may have one invocation in flight;
// different steps run independently.
type Pipeline struct {
	mu      sync.Mutex
	backend PipelineBackend
	logger  *logrus.Entry
	pending map[Action]bool
	last    map[Action]Outcome
	errs    map[Action]error
}

// NewPipeline creates a pipeline trigger
func NewPipeline(backend PipelineBackend, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logger.WithComponent(logger.DashboardService, "pipeline")
	} else {
		log = log.WithField("component", "pipeline")
	}
	return &Pipeline{
		backend: backend,
		logger:  log,
		pending: make(map[Action]bool),
		last:    make(map[Action]Outcome),
		errs:    make(map[Action]error),
	}
}

// Trigger runs one step. It is never retried.
func (p *Pipeline) Trigger(ctx context.Context, action Action) (Outcome, error) {
	p.mu.Lock()
	if p.pending[action] {
		p.mu.Unlock()
		return Outcome{}, fmt.Errorf("%s: %w", action, ErrActionInFlight)
	}
	p.pending[action] = true
	p.mu.Unlock()

	log := p.logger.WithField("action", action)
	log.Info("Triggering pipeline step")

	outcome, err := p.call(ctx, action)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, action)
	if err != nil {
		p.errs[action] = err
		log.WithError(err).Warn("Pipeline step failed")
		return Outcome{}, err
	}
	delete(p.errs, action)
	p.last[action] = outcome
	log.WithField("summary", outcome.Summary()).Info("Pipeline step complete")
	return outcome, nil
}

func (p *Pipeline) call(ctx context.Context, action Action) (Outcome, error) {
	outcome := Outcome{Action: action}
	var err error
	switch action {
	case ActionIngest:
		outcome.Ingestion, err = p.backend.IngestData(ctx)
	case ActionProcess:
		outcome.Processing, err = p.backend.ProcessData(ctx)
	case ActionTrain:
		outcome.Training, err = p.backend.TrainModel(ctx)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		return Outcome{}, err
	}
	outcome.FinishedAt = time.Now()
	return outcome, nil
}

// Pending reports whether action is in flight
func (p *Pipeline) Pending(action Action) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[action]
}

// Last returns the most recent successful outcome of action
func (p *Pipeline) Last(action Action) (Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.last[action]
	return o, ok
}

// LastError returns the error of the latest attempt when it failed
func (p *Pipeline) LastError(action Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs[action]
}
