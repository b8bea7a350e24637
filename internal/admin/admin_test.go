package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) IngestData(ctx context.Context) (*models.IngestionStatus, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*models.IngestionStatus)
	return out, args.Error(1)
}

func (m *mockBackend) ProcessData(ctx context.Context) (*models.ProcessingStatus, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*models.ProcessingStatus)
	return out, args.Error(1)
}

func (m *mockBackend) TrainModel(ctx context.Context) (*models.TrainingStatus, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*models.TrainingStatus)
	return out, args.Error(1)
}

func (m *mockBackend) ListModelRuns(ctx context.Context) ([]models.ModelRun, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]models.ModelRun)
	return out, args.Error(1)
}

func (m *mockBackend) GetActiveModel(ctx context.Context) (*models.ModelRun, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).(*models.ModelRun)
	return out, args.Error(1)
}

func (m *mockBackend) ActivateModelRun(ctx context.Context, id string) (*models.ActivationResult, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*models.ActivationResult)
	return out, args.Error(1)
}

func strPtr(s string) *string { return &s }

var (
	runActive    = models.ModelRun{ID: "run-1", CreatedAt: "2024-01-01T10:00:00Z", Status: models.ModelStatusActive, Metrics: map[string]any{"accuracy": 0.61234, "log_loss": 0.9}}
	runCompleted = models.ModelRun{ID: "run-2", CreatedAt: "2024-01-02T10:00:00Z", Status: models.ModelStatusCompleted, Metrics: map[string]any{"accuracy": 0.6}, Notes: strPtr("retrained")}
	runFailed    = models.ModelRun{ID: "run-3", CreatedAt: "not a date", Status: "failed"}
)

type AdminTestSuite struct {
	suite.Suite
	backend *mockBackend
	view    *View
	ctx     context.Context
}

func (s *AdminTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.backend = &mockBackend{}
	s.view = NewView(s.backend, logrus.NewEntry(logger))
	s.ctx = context.Background()
}

func (s *AdminTestSuite) loadRegistry() {
	s.backend.On("ListModelRuns", mock.Anything).Return([]models.ModelRun{runActive, runCompleted, runFailed}, nil).Once()
	s.backend.On("GetActiveModel", mock.Anything).Return(&runActive, nil).Once()
	s.Require().NoError(s.view.Registry.Refresh(s.ctx))
}

func (s *AdminTestSuite) TestActivateFailedRunMakesNoRequest() {
	s.loadRegistry()

	_, err := s.view.Registry.Activate(s.ctx, runFailed.ID)
	s.ErrorIs(err, ErrNotActivatable)
	s.backend.AssertNotCalled(s.T(), "ActivateModelRun", mock.Anything, mock.Anything)
}

func (s *AdminTestSuite) TestActivateActiveRunMakesNoRequest() {
	s.loadRegistry()

	_, err := s.view.Registry.Activate(s.ctx, runActive.ID)
	s.ErrorIs(err, ErrNotActivatable)
	s.backend.AssertNotCalled(s.T(), "ActivateModelRun", mock.Anything, mock.Anything)
}

func (s *AdminTestSuite) TestActivateUnknownRun() {
	s.loadRegistry()

	_, err := s.view.Registry.Activate(s.ctx, "run-404")
	s.ErrorIs(err, ErrUnknownRun)
	s.backend.AssertNotCalled(s.T(), "ActivateModelRun", mock.Anything, mock.Anything)
}

func (s *AdminTestSuite) TestActivateRefreshesRegistry() {
	s.loadRegistry()

	promoted := runCompleted
	promoted.Status = models.ModelStatusActive
	demoted := runActive
	demoted.Status = models.ModelStatusCompleted

	s.backend.On("ActivateModelRun", mock.Anything, runCompleted.ID).
		Return(&models.ActivationResult{Status: "ok", ActiveModelRunID: runCompleted.ID}, nil).Once()
	s.backend.On("ListModelRuns", mock.Anything).Return([]models.ModelRun{demoted, promoted, runFailed}, nil).Once()
	s.backend.On("GetActiveModel", mock.Anything).Return(&promoted, nil).Once()

	result, err := s.view.Registry.Activate(s.ctx, runCompleted.ID)
	s.Require().NoError(err)
	s.Equal(runCompleted.ID, result.ActiveModelRunID)

	state := s.view.Registry.Snapshot()
	s.Require().NotNil(state.Active)
	s.Equal(runCompleted.ID, state.Active.ID)
	s.Empty(state.Activating)
	s.backend.AssertExpectations(s.T())
}

func (s *AdminTestSuite) TestActivateBackendRejection() {
	s.loadRegistry()
	rejection := &providers.APIError{StatusCode: 400, Message: "Cannot activate a FAILED model run", HasDetail: true}
	s.backend.On("ActivateModelRun", mock.Anything, runCompleted.ID).Return(nil, rejection).Once()

	_, err := s.view.Registry.Activate(s.ctx, runCompleted.ID)
	s.ErrorIs(err, rejection)
	s.Equal(runActive.ID, s.view.Registry.Snapshot().Active.ID, "registry is untouched")
	s.backend.AssertNumberOfCalls(s.T(), "ListModelRuns", 1)
}

func (s *AdminTestSuite) TestRefreshFailureKeepsPriorData() {
	s.loadRegistry()
	s.backend.On("ListModelRuns", mock.Anything).Return(nil, fmt.Errorf("%w: refused", providers.ErrTransport)).Once()
	s.backend.On("GetActiveModel", mock.Anything).Return(&runActive, nil).Maybe()

	err := s.view.Registry.Refresh(s.ctx)
	s.Require().Error(err)
	s.True(providers.IsTransport(err))

	state := s.view.Registry.Snapshot()
	s.Len(state.Runs, 3)
	s.Error(state.Err)
	s.True(state.Loaded)
	s.False(state.Refreshing)
}

func (s *AdminTestSuite) TestNoActiveModel() {
	s.backend.On("ListModelRuns", mock.Anything).Return([]models.ModelRun{}, nil).Once()
	s.backend.On("GetActiveModel", mock.Anything).Return(nil, nil).Once()

	s.Require().NoError(s.view.Registry.EnsureLoaded(s.ctx))
	s.Require().NoError(s.view.Registry.EnsureLoaded(s.ctx))

	state := s.view.Registry.Snapshot()
	s.Nil(state.Active)
	s.NoError(state.Err)
	s.True(state.Loaded)
}

func (s *AdminTestSuite) TestTrainRefreshesRegistry() {
	s.backend.On("TrainModel", mock.Anything).Return(&models.TrainingStatus{Status: "ok", ModelRunID: "run-9"}, nil).Once()
	s.backend.On("ListModelRuns", mock.Anything).Return([]models.ModelRun{{ID: "run-9", Status: models.ModelStatusCompleted}}, nil).Once()
	s.backend.On("GetActiveModel", mock.Anything).Return(nil, nil).Once()

	outcome, err := s.view.Trigger(s.ctx, ActionTrain)
	s.Require().NoError(err)
	s.Equal("model run run-9", outcome.Summary())
	s.Len(s.view.Registry.Snapshot().Runs, 1)
	s.backend.AssertExpectations(s.T())
}

func (s *AdminTestSuite) TestIngestDoesNotRefreshRegistry() {
	s.backend.On("IngestData", mock.Anything).Return(&models.IngestionStatus{Status: "ok", Files: []string{"a.csv", "b.csv"}}, nil).Once()

	outcome, err := s.view.Trigger(s.ctx, ActionIngest)
	s.Require().NoError(err)
	s.Equal("2 files ingested", outcome.Summary())
	s.backend.AssertNotCalled(s.T(), "ListModelRuns", mock.Anything)

	last, ok := s.view.Pipeline.Last(ActionIngest)
	s.True(ok)
	s.False(last.FinishedAt.IsZero())
}

func (s *AdminTestSuite) TestActionsAreIndependent() {
	release := make(chan struct{})
	started := make(chan struct{})
	s.backend.On("IngestData", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&models.IngestionStatus{Status: "ok"}, nil).Once()
	s.backend.On("ProcessData", mock.Anything).Return(nil, &providers.APIError{StatusCode: 500, Message: "API error: 500 Internal Server Error"}).Once()

	done := make(chan error, 1)
	go func() {
		_, err := s.view.Trigger(s.ctx, ActionIngest)
		done <- err
	}()
	<-started

	s.True(s.view.Pipeline.Pending(ActionIngest))
	_, err := s.view.Trigger(s.ctx, ActionIngest)
	s.ErrorIs(err, ErrActionInFlight)

	_, err = s.view.Trigger(s.ctx, ActionProcess)
	s.Error(err)
	s.Error(s.view.Pipeline.LastError(ActionProcess))
	s.False(s.view.Pipeline.Pending(ActionProcess))

	close(release)
	s.NoError(<-done)
	s.NoError(s.view.Pipeline.LastError(ActionIngest))
	s.backend.AssertNumberOfCalls(s.T(), "IngestData", 1)
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"ingest", "PROCESS", " train "} {
		_, err := ParseAction(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseAction("deploy")
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.Equal(t, "Training", ActionTrain.Title())
}

func TestCanActivate(t *testing.T) {
	assert.ErrorIs(t, CanActivate(runFailed, nil), ErrNotActivatable, "status compare ignores case")
	assert.ErrorIs(t, CanActivate(runActive, nil), ErrNotActivatable)
	assert.ErrorIs(t, CanActivate(runCompleted, &runCompleted), ErrNotActivatable)
	assert.NoError(t, CanActivate(runCompleted, &runActive))
	assert.NoError(t, CanActivate(models.ModelRun{ID: "x", Status: "ARCHIVED"}, nil), "unknown statuses are allowed")
}

func TestRows(t *testing.T) {
	rows := Rows(RegistryState{Runs: []models.ModelRun{runActive, runCompleted, runFailed}, Active: &runActive})
	require.Len(t, rows, 3)

	assert.Equal(t, "run-1", rows[0].ID)
	assert.True(t, rows[0].IsActive)
	assert.False(t, rows[0].Activatable)
	assert.Equal(t, "0.6123", rows[0].Accuracy)
	assert.Equal(t, "0.9000", rows[0].LogLoss)

	assert.True(t, rows[1].Activatable)
	assert.Equal(t, "-", rows[1].LogLoss)
	assert.Equal(t, "retrained", rows[1].Notes)

	assert.False(t, rows[2].Activatable)
	assert.Equal(t, "-", rows[2].Accuracy)
	assert.Equal(t, "not a date", rows[2].CreatedAt)
}

func TestMetrics(t *testing.T) {
	run := models.ModelRun{Metrics: map[string]any{
		"log_loss":   0.93,
		"accuracy":   0.61234,
		"features":   "elo+form",
		"calibrated": true,
		"folds":      []any{1.0, 2.0},
	}}

	assert.Equal(t, []Metric{
		{Name: "accuracy", Value: "0.6123"},
		{Name: "calibrated", Value: "true"},
		{Name: "features", Value: "elo+form"},
		{Name: "folds", Value: "[1,2]"},
		{Name: "log_loss", Value: "0.9300"},
	}, Metrics(run))

	assert.Empty(t, Metrics(models.ModelRun{}))
}

func TestOutcomeTimestamp(t *testing.T) {
	assert.Equal(t, "2024-06-01T10:00:00", Outcome{Ingestion: &models.IngestionStatus{Timestamp: "2024-06-01T10:00:00"}}.Timestamp())
	assert.Equal(t, "2024-06-01T11:00:00", Outcome{Processing: &models.ProcessingStatus{Timestamp: "2024-06-01T11:00:00"}}.Timestamp())
	assert.Equal(t, "2024-06-01T12:00:00", Outcome{Training: &models.TrainingStatus{Timestamp: "2024-06-01T12:00:00"}}.Timestamp())
	assert.Empty(t, Outcome{}.Timestamp())
}
