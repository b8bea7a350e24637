package api

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/handlers"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/session"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/simulation"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/websocket"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Backend is the tournament API surface the router wires into handlers
type Backend interface {
	simulation.Fetcher
	handlers.BackendProbe
}

// Dependencies holds everything the router needs
type Dependencies struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Backend  Backend
	Sessions *session.Manager
	Hub      *websocket.NotificationHub
}

// Templates parses the embedded page templates
func Templates() (*template.Template, error) {
	funcs := template.FuncMap{
		"join":  strings.Join,
		"lower": strings.ToLower,
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// NewRouter builds the dashboard router
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	tmpl, err := Templates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(deps.Config.CorsOrigins))
	router.SetHTMLTemplate(tmpl)

	healthHandler := handlers.NewHealthHandler(deps.Backend, deps.Sessions)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.GET("/status/circuit-breaker", healthHandler.GetCircuitBreakerStatus)

	lookup := simulation.NewLookup(deps.Backend)
	simulatorHandler := handlers.NewSimulatorHandler(deps.Sessions, deps.Config, deps.Logger)
	lookupHandler := handlers.NewLookupHandler(lookup, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Logger)
	notificationHandler := handlers.NewNotificationHandler(deps.Hub)
	apiHandler := handlers.NewAPIHandler(lookup, deps.Logger)

	pages := router.Group("")
	pages.Use(middleware.Session(deps.Sessions, deps.Config.IsProduction()))
	{
		pages.GET("/", handlers.Home)
		pages.GET("/simulate", simulatorHandler.Page)
		pages.GET("/simulation/:id", lookupHandler.Page)
		pages.GET("/admin", adminHandler.Page)
		pages.GET("/ws/notifications", notificationHandler.Stream)
		pages.POST("/notifications/:id/dismiss", notificationHandler.Dismiss)
		pages.POST("/simulate/teams/toggle", simulatorHandler.Toggle)
	}

	actions := pages.Group("")
	actions.Use(middleware.ActionRateLimit())
	{
		actions.POST("/simulate/reset", simulatorHandler.Reset)
		actions.POST("/simulate/run", simulatorHandler.Run)
		actions.POST("/admin/pipeline/:action", adminHandler.Trigger)
		actions.POST("/admin/models/refresh", adminHandler.Refresh)
		actions.POST("/admin/models/:id/activate", adminHandler.Activate)
	}

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Session(deps.Sessions, deps.Config.IsProduction()))
	{
		apiV1.GET("/teams", apiHandler.GetTeams)
		apiV1.GET("/simulator", apiHandler.GetSimulator)
		apiV1.GET("/simulations/:id", apiHandler.GetSimulation)
		apiV1.POST("/simulator/run", middleware.APIRateLimit(), apiHandler.RunSimulation)
	}

	return router, nil
}
