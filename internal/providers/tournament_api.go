package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
)

const serviceName = "tournament-api"

// ClientConfig configures the tournament API client
type ClientConfig struct {
	BaseURL string
	// Timeout bounds a whole request; zero leaves requests unbounded
	Timeout time.Duration
	// BreakerThreshold is the number of consecutive transport or 5xx failures
	// that open the breaker
	BreakerThreshold int
	// BreakerTimeout is how long the breaker stays open before probing again
	BreakerTimeout time.Duration
}

// TournamentClient is a typed client for the tournament simulation backend.
// Calls are never retried; an open breaker fails fast with ErrTransport.
type TournamentClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewTournamentClient creates a new tournament API client
func NewTournamentClient(cfg ClientConfig, logger *logrus.Logger) *TournamentClient {
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component":  "circuit_breaker",
				"service":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &TournamentClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		breaker: breaker,
		logger:  logger,
	}
}

// errCallerDone marks a request abandoned because its caller's context ended
var errCallerDone = errors.New("caller context done")

// countsAsHealthy decides what the breaker records as a failure. Business
// rejections (4xx) and requests whose caller gave up or timed out say nothing
// about backend health.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.ServerFailure()
	}
	return false
}

// BaseURL returns the backend base URL
func (c *TournamentClient) BaseURL() string {
	return c.baseURL
}

// GetTeams fetches the catalogue of known team names
func (c *TournamentClient) GetTeams(ctx context.Context) ([]string, error) {
	var teams []string
	if err := c.do(ctx, http.MethodGet, "/teams", nil, &teams); err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []string{}
	}
	return teams, nil
}

// SimulateTournament submits one Monte Carlo simulation request
func (c *TournamentClient) SimulateTournament(ctx context.Context, req models.SimulationRequest) (*models.SimulationResponse, error) {
	var resp models.SimulationResponse
	if err := c.do(ctx, http.MethodPost, "/simulate-tournament", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSimulation fetches a stored simulation by identifier
func (c *TournamentClient) GetSimulation(ctx context.Context, id string) (*models.SimulationResponse, error) {
	var resp models.SimulationResponse
	if err := c.do(ctx, http.MethodGet, "/simulation/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestData triggers raw data ingestion
func (c *TournamentClient) IngestData(ctx context.Context) (*models.IngestionStatus, error) {
	var resp models.IngestionStatus
	if err := c.do(ctx, http.MethodPost, "/admin/ingest-data", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessData triggers processing of ingested data
func (c *TournamentClient) ProcessData(ctx context.Context) (*models.ProcessingStatus, error) {
	var resp models.ProcessingStatus
	if err := c.do(ctx, http.MethodPost, "/admin/process-data", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrainModel triggers a training run
func (c *TournamentClient) TrainModel(ctx context.Context) (*models.TrainingStatus, error) {
	var resp models.TrainingStatus
	if err := c.do(ctx, http.MethodPost, "/admin/train-model", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModelRuns fetches every known model run
func (c *TournamentClient) ListModelRuns(ctx context.Context) ([]models.ModelRun, error) {
	var runs []models.ModelRun
	if err := c.do(ctx, http.MethodGet, "/admin/model-runs", nil, &runs); err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []models.ModelRun{}
	}
	return runs, nil
}

// GetActiveModel fetches the active model run. A nil run with a nil error
// means no model is active.
func (c *TournamentClient) GetActiveModel(ctx context.Context) (*models.ModelRun, error) {
	var run *models.ModelRun
	err := c.do(ctx, http.MethodGet, "/admin/model/active", nil, &run)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if run != nil && run.ID == "" {
		return nil, nil
	}
	return run, nil
}

// ActivateModelRun asks the backend to make the given run the active one
func (c *TournamentClient) ActivateModelRun(ctx context.Context, id string) (*models.ActivationResult, error) {
	var resp models.ActivationResult
	if err := c.do(ctx, http.MethodPost, "/admin/model-runs/"+url.PathEscape(id)+"/activate", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BreakerStatus returns the breaker state and counters
func (c *TournamentClient) BreakerStatus() map[string]interface{} {
	counts := c.breaker.Counts()
	return map[string]interface{}{
		"service":               serviceName,
		"state":                 c.breaker.State().String(),
		"requests":              counts.Requests,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
		"consecutive_failures":  counts.ConsecutiveFailures,
	}
}

// do executes one request through the breaker
func (c *TournamentClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.roundTrip(ctx, method, path, body, out)
		if err != nil && ctx.Err() != nil {
			return nil, &callerDoneError{err: err}
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s refused: %w", ErrTransport, method, path, err)
	}
	var done *callerDoneError
	if errors.As(err, &done) {
		return done.err
	}
	return err
}

// callerDoneError carries a request error through the breaker so that it is
// recorded as healthy, then is unwrapped before reaching the caller
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }

func (e *callerDoneError) Unwrap() []error { return []error{errCallerDone, e.err} }

func (c *TournamentClient) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Admin and simulation responses must never come from a cache
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"service": serviceName,
			"method":  method,
			"path":    path,
			"error":   err.Error(),
		}).Warn("Tournament API request failed")
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %w", ErrTransport, path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"service":     serviceName,
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"latency":     time.Since(start),
	}).Debug("Tournament API request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
