package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/session"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/websocket"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/config"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/utils"
)

// fakeBackend is an in-memory tournament API
type fakeBackend struct {
	mu          sync.Mutex
	simulations map[string]models.SimulationResponse
	active      *models.ModelRun
	simulate    atomic.Int32
	activate    atomic.Int32
}

func (f *fakeBackend) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/teams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []string{"Argentina", "Brazil", "France", "Germany", "Spain"})
	})
	mux.HandleFunc("/simulate-tournament", func(w http.ResponseWriter, r *http.Request) {
		n := f.simulate.Add(1)
		var req models.SimulationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		resp := models.SimulationResponse{SimulationID: fmt.Sprintf("sim-%d", n)}
		for i, team := range req.Teams {
			resp.Results = append(resp.Results, models.TeamProbability{Team: team, WinProb: float64(i+1) / 10})
		}
		f.mu.Lock()
		f.simulations[resp.SimulationID] = resp
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("/simulation/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		resp, ok := f.simulations[strings.TrimPrefix(r.URL.Path, "/simulation/")]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Simulation not found"})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("/admin/ingest-data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.IngestionStatus{Status: "ok", Files: []string{"a.csv", "b.csv"}, Timestamp: "2024-01-01T00:00:00Z"})
	})
	mux.HandleFunc("/admin/model-runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.ModelRun{
			{ID: "run-ok", CreatedAt: "2024-01-01T00:00:00Z", Status: models.ModelStatusCompleted},
			{ID: "run-bad", CreatedAt: "2024-01-02T00:00:00Z", Status: models.ModelStatusFailed},
		})
	})
	mux.HandleFunc("/admin/model/active", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		active := f.active
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, active)
	})
	mux.HandleFunc("/admin/model-runs/run-ok/activate", func(w http.ResponseWriter, r *http.Request) {
		f.activate.Add(1)
		writeJSON(w, http.StatusOK, models.ActivationResult{Status: "ok", ActiveModelRunID: "run-ok"})
	})
	mux.HandleFunc("/admin/model-runs/run-bad/activate", func(w http.ResponseWriter, r *http.Request) {
		f.activate.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Cannot activate a FAILED model run"})
	})
	return mux
}

type RouterTestSuite struct {
	suite.Suite
	backend *fakeBackend
	server  *httptest.Server
	router  *gin.Engine
	cookie  *http.Cookie
	cfg     *config.Config
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.backend = &fakeBackend{simulations: map[string]models.SimulationResponse{}}
	s.server = httptest.NewServer(s.backend.handler())

	s.cfg = &config.Config{
		Env:              "test",
		DefaultRuns:      200,
		MinSuggestedRuns: 10,
		MaxSuggestedRuns: 5000,
		ActionRateLimit:  100,
		ActionRateBurst:  100,
	}
	s.router = s.newRouter(logger)
	s.cookie = nil
}

func (s *RouterTestSuite) newRouter(logger *logrus.Logger) *gin.Engine {
	client := providers.NewTournamentClient(providers.ClientConfig{BaseURL: s.server.URL, BreakerTimeout: time.Second}, logger)
	sessions := session.NewManager(client, session.Options{
		DefaultRuns:       s.cfg.DefaultRuns,
		NotificationLimit: 5,
		ActionRateLimit:   s.cfg.ActionRateLimit,
		ActionRateBurst:   s.cfg.ActionRateBurst,
	}, nil, logger)

	router, err := NewRouter(Dependencies{
		Config:   s.cfg,
		Logger:   logger,
		Backend:  client,
		Sessions: sessions,
		Hub:      websocket.NewNotificationHub(nil, logger),
	})
	s.Require().NoError(err)
	return router
}

func (s *RouterTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterTestSuite) request(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			s.cookie = c
		}
	}
	return w
}

func (s *RouterTestSuite) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	w := s.request(http.MethodPost, path, form)
	s.Equal(http.StatusSeeOther, w.Code, path)
	return w
}

func (s *RouterTestSuite) selectTeams(teams ...string) {
	s.request(http.MethodGet, "/simulate", nil)
	for _, team := range teams {
		s.post("/simulate/teams/toggle", url.Values{"team": {team}})
	}
}

func (s *RouterTestSuite) TestHomeSetsSessionCookie() {
	w := s.request(http.MethodGet, "/", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Knockout tournament simulator")
	s.Require().NotNil(s.cookie)
	s.True(s.cookie.HttpOnly)
}

func (s *RouterTestSuite) TestSimulatorPageListsTeams() {
	w := s.request(http.MethodGet, "/simulate?q=an", nil)
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.Contains(body, "+ France")
	s.Contains(body, "+ Germany")
	s.NotContains(body, "+ Brazil")
}

func (s *RouterTestSuite) TestRunSimulationFlow() {
	s.selectTeams("Argentina", "Brazil", "France", "Germany")

	w := s.post("/simulate/run", url.Values{"runs": {"100"}})
	s.Equal("/simulate", w.Header().Get("Location"))
	s.Equal(int32(1), s.backend.simulate.Load())

	body := s.request(http.MethodGet, "/simulate", nil).Body.String()
	s.Contains(body, "Simulation complete")
	s.Contains(body, "Simulation sim-1 finished with 100 runs.")
	s.Contains(body, "/simulation/sim-1")
	s.Contains(body, "40.0%")

	shared := s.request(http.MethodGet, "/simulation/sim-1", nil)
	s.Equal(http.StatusOK, shared.Code)
	s.Contains(shared.Body.String(), "Germany")
}

func (s *RouterTestSuite) TestInvalidSelectionNeverReachesBackend() {
	s.selectTeams("Argentina", "Brazil", "France")
	s.post("/simulate/run", url.Values{"runs": {"100"}})

	body := s.request(http.MethodGet, "/simulate", nil).Body.String()
	s.Contains(body, "Team count must be a power of 2")
	s.Equal(int32(0), s.backend.simulate.Load())

	s.selectTeams("Germany")
	s.post("/simulate/run", url.Values{"runs": {"abc"}})
	body = s.request(http.MethodGet, "/simulate", nil).Body.String()
	s.Contains(body, "Invalid number of runs")
	s.Contains(body, `name="runs" value="abc"`, "typed run count is shown back unchanged")
	s.Equal(int32(0), s.backend.simulate.Load())
}

func (s *RouterTestSuite) TestDisconnectedRunPublishesNothing() {
	s.selectTeams("Argentina", "Brazil", "France", "Germany")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/simulate/run", strings.NewReader(url.Values{"runs": {"100"}}.Encode())).WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(s.cookie)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusSeeOther, w.Code)

	body := s.request(http.MethodGet, "/simulate", nil).Body.String()
	s.NotContains(body, "Simulation failed")
	s.NotContains(body, "Simulation complete")
}

func (s *RouterTestSuite) TestResetClearsSelection() {
	s.selectTeams("Argentina", "Brazil")
	s.post("/simulate/reset", nil)

	body := s.request(http.MethodGet, "/simulate", nil).Body.String()
	s.Contains(body, "Select at least 2 teams.")
	s.Contains(body, "+ Argentina")
}

func (s *RouterTestSuite) TestUnknownSimulation() {
	w := s.request(http.MethodGet, "/simulation/does-not-exist", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "Simulation not found")
}

func (s *RouterTestSuite) TestAdminActivation() {
	w := s.request(http.MethodGet, "/admin", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "run-bad")
	s.Contains(w.Body.String(), "No active model.")

	s.post("/admin/models/run-bad/activate", nil)
	s.Contains(s.request(http.MethodGet, "/admin", nil).Body.String(), "Activation failed")
	s.Equal(int32(0), s.backend.activate.Load(), "failed runs are rejected locally")

	s.post("/admin/models/run-ok/activate", nil)
	s.Contains(s.request(http.MethodGet, "/admin", nil).Body.String(), "Active model set to run-ok.")
	s.Equal(int32(1), s.backend.activate.Load())
}

func (s *RouterTestSuite) TestActiveModelPanel() {
	notes := "baseline with form features"
	s.backend.mu.Lock()
	s.backend.active = &models.ModelRun{
		ID:        "run-ok",
		CreatedAt: "2024-01-01T00:00:00Z",
		Status:    models.ModelStatusActive,
		Metrics: map[string]any{
			"log_loss": 0.93,
			"accuracy": 0.61234,
			"features": "elo+form",
			"brier":    0.2,
		},
		Notes: &notes,
	}
	s.backend.mu.Unlock()

	body := s.request(http.MethodGet, "/admin", nil).Body.String()
	s.NotContains(body, "No active model.")
	s.Contains(body, `accuracy: <span class="mono">0.6123</span>`)
	s.Contains(body, `brier: <span class="mono">0.2000</span>`)
	s.Contains(body, `features: <span class="mono">elo&#43;form</span>`)
	s.Contains(body, `log_loss: <span class="mono">0.9300</span>`)
	s.Contains(body, "Notes: baseline with form features")

	// metrics are listed by name
	s.Less(strings.Index(body, "accuracy: "), strings.Index(body, "brier: "))
	s.Less(strings.Index(body, "brier: "), strings.Index(body, "features: "))
	s.Less(strings.Index(body, "features: "), strings.Index(body, "log_loss: "))
}

func (s *RouterTestSuite) TestPipelineTrigger() {
	s.request(http.MethodGet, "/admin", nil)
	s.post("/admin/pipeline/ingest", nil)
	body := s.request(http.MethodGet, "/admin", nil).Body.String()
	s.Contains(body, "Ingestion complete")
	s.Contains(body, "Uploaded 2 files")
	s.Contains(body, `<span class="muted mono">2024-01-01T00:00:00Z</span>`, "last result shows the backend timestamp")

	s.post("/admin/pipeline/deploy", nil)
	s.Contains(s.request(http.MethodGet, "/admin", nil).Body.String(), "Unknown action")
}

func (s *RouterTestSuite) TestDismissNotification() {
	s.selectTeams("Argentina")
	s.post("/simulate/run", url.Values{"runs": {"10"}})
	s.Contains(s.request(http.MethodGet, "/simulate", nil).Body.String(), "Select more teams")

	var resp utils.Response
	w := s.request(http.MethodGet, "/api/v1/simulator", nil)
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.True(resp.Success)

	body := s.request(http.MethodGet, "/simulate", nil).Body.String()
	idx := strings.Index(body, "/notifications/")
	s.Require().Positive(idx)
	path := body[idx : idx+strings.Index(body[idx:], `"`)]

	w = s.request(http.MethodPost, path, url.Values{})
	s.Equal(http.StatusSeeOther, w.Code)
	s.NotContains(s.request(http.MethodGet, "/simulate", nil).Body.String(), "Select more teams")
}

func (s *RouterTestSuite) TestActionRateLimit() {
	s.cfg.ActionRateLimit = 0.001
	s.cfg.ActionRateBurst = 1
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s.router = s.newRouter(logger)

	s.request(http.MethodGet, "/simulate", nil)
	s.post("/simulate/reset", nil)
	s.post("/simulate/reset", nil)
	s.Contains(s.request(http.MethodGet, "/simulate", nil).Body.String(), "Too many requests")
}

func (s *RouterTestSuite) TestJSONRunValidation() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulator/run", strings.NewReader(`{"teams":["A","B","C"],"n_runs":100}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusBadRequest, w.Code)
	var resp utils.Response
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	s.Equal(utils.ErrCodeValidation, resp.Error.Code)
	s.Equal(int32(0), s.backend.simulate.Load())
}

func (s *RouterTestSuite) TestJSONRunAndLookup() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulator/run", strings.NewReader(`{"teams":["A","B","C","D"],"n_runs":100}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/simulations/sim-1", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/simulations/nope", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestHealthEndpoints() {
	w := s.request(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/ready", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"ready"`)

	w = s.request(http.MethodGet, "/status/circuit-breaker", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"state":"closed"`)

	s.server.Close()
	w = s.request(http.MethodGet, "/ready", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
