package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/logger"
)

// RegistryBackend is the subset of the tournament API that manages model runs
type RegistryBackend interface {
	ListModelRuns(ctx context.Context) ([]models.ModelRun, error)
	GetActiveModel(ctx context.Context) (*models.ModelRun, error)
	ActivateModelRun(ctx context.Context, id string) (*models.ActivationResult, error)
}

// RegistryState is a point-in-time copy of the registry
type RegistryState struct {
	Runs        []models.ModelRun
	Active      *models.ModelRun
	Loaded      bool
	Err         error
	Refreshing  bool
	Activating  string
	RefreshedAt time.Time
}

// Registry caches the model runs and the active run. A failed refresh keeps
// the previous data.
type Registry struct {
	mu      sync.Mutex
	backend RegistryBackend
	logger  *logrus.Entry

	runs        []models.ModelRun
	active      *models.ModelRun
	loaded      bool
	err         error
	refreshing  bool
	activating  string
	refreshedAt time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(backend RegistryBackend, log *logrus.Entry) *Registry {
	if log == nil {
		log = logger.WithComponent(logger.DashboardService, "model_registry")
	} else {
		log = log.WithField("component", "model_registry")
	}
	return &Registry{
		backend: backend,
		logger:  log,
	}
}

// Refresh fetches the run list and the active run together
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.refreshing {
		r.mu.Unlock()
		return ErrRefreshInFlight
	}
	r.refreshing = true
	r.mu.Unlock()

	var (
		runs   []models.ModelRun
		active *models.ModelRun
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		runs, err = r.backend.ListModelRuns(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = r.backend.GetActiveModel(gctx)
		return err
	})
	err := g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshing = false
	if err != nil {
		r.err = err
		r.logger.WithError(err).Warn("Failed to refresh model registry")
		return fmt.Errorf("failed to refresh model registry: %w", err)
	}
	r.runs = runs
	r.active = active
	r.loaded = true
	r.err = nil
	r.refreshedAt = time.Now()
	return nil
}

// EnsureLoaded refreshes unless the registry has loaded once
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	r.mu.Lock()
	loaded := r.loaded
	r.mu.Unlock()
	if loaded {
		return nil
	}
	return r.Refresh(ctx)
}

// CanActivate reports why a run may not be activated, or nil when it may
func CanActivate(run models.ModelRun, active *models.ModelRun) error {
	if run.Status.IsFailed() {
		return fmt.Errorf("%w: run %s is %s", ErrNotActivatable, run.ID, run.Status)
	}
	if strings.EqualFold(string(run.Status), string(models.ModelStatusActive)) || (active != nil && active.ID == run.ID) {
		return fmt.Errorf("%w: run %s is already active", ErrNotActivatable, run.ID)
	}
	return nil
}

// Activate makes runID the active model. FAILED and already active runs are
// rejected without a request. The registry is re-fetched after success.
func (r *Registry) Activate(ctx context.Context, runID string) (*models.ActivationResult, error) {
	r.mu.Lock()
	if r.activating != "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("activate %s: %w", r.activating, ErrActionInFlight)
	}
	run, ok := r.find(runID)
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err := CanActivate(run, r.active); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.activating = runID
	r.mu.Unlock()

	log := r.logger.WithField("model_run_id", runID)
	result, err := r.backend.ActivateModelRun(ctx, runID)

	r.mu.Lock()
	r.activating = ""
	r.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("Model activation failed")
		return nil, err
	}
	log.Info("Model activated")

	if err := r.Refresh(ctx); err != nil {
		// activation itself succeeded; the stale list is refreshed next time
		log.WithError(err).Warn("Registry refresh after activation failed")
	}
	return result, nil
}

func (r *Registry) find(id string) (models.ModelRun, bool) {
	for _, run := range r.runs {
		if run.ID == id {
			return run, true
		}
	}
	return models.ModelRun{}, false
}

// Snapshot returns a copy of the registry state
func (r *Registry) Snapshot() RegistryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegistryState{
		Runs:        append([]models.ModelRun(nil), r.runs...),
		Active:      r.active,
		Loaded:      r.loaded,
		Err:         r.err,
		Refreshing:  r.refreshing,
		Activating:  r.activating,
		RefreshedAt: r.refreshedAt,
	}
}
