package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/admin"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
)

// AdminHandler serves the pipeline and model registry page
type AdminHandler struct {
	logger *logrus.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{logger: logger}
}

type actionView struct {
	Action    admin.Action
	Title     string
	Pending   bool
	Summary   string
	Timestamp string
	Error     string
}

type activeModelView struct {
	ID        string
	CreatedAt string
	Path      string
	Metrics   []admin.Metric
	Notes     string
}

type adminPage struct {
	Title         string
	Actions       []actionView
	Active        *activeModelView
	Runs          []admin.RunRow
	Loaded        bool
	Refreshing    bool
	Activating    string
	RegistryError string
	Notifications []notify.Notification
}

// Page renders GET /admin
func (h *AdminHandler) Page(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if err := s.Admin.Registry.EnsureLoaded(c.Request.Context()); err != nil && !errors.Is(err, admin.ErrRefreshInFlight) {
		s.Notifications.Error("Failed to load model runs", err.Error())
	}

	state := s.Admin.Registry.Snapshot()
	page := adminPage{
		Title:         "Admin",
		Runs:          admin.Rows(state),
		Loaded:        state.Loaded,
		Refreshing:    state.Refreshing,
		Activating:    state.Activating,
		Notifications: s.Notifications.Active(),
	}
	if state.Err != nil {
		page.RegistryError = state.Err.Error()
	}
	if state.Active != nil {
		page.Active = newActiveModelView(*state.Active)
	}
	for _, action := range admin.Actions {
		view := actionView{Action: action, Title: action.Title(), Pending: s.Admin.Pipeline.Pending(action)}
		if outcome, ok := s.Admin.Pipeline.Last(action); ok {
			view.Summary = outcome.Summary()
			view.Timestamp = outcome.Timestamp()
		}
		if err := s.Admin.Pipeline.LastError(action); err != nil {
			view.Error = err.Error()
		}
		page.Actions = append(page.Actions, view)
	}
	c.HTML(http.StatusOK, "admin.html", page)
}

func newActiveModelView(run models.ModelRun) *activeModelView {
	view := &activeModelView{
		ID:        run.ID,
		CreatedAt: admin.FormatCreated(run),
		Path:      run.ModelS3Path,
		Metrics:   admin.Metrics(run),
	}
	if run.Notes != nil {
		view.Notes = *run.Notes
	}
	return view
}

// Trigger handles POST /admin/pipeline/:action
func (h *AdminHandler) Trigger(c *gin.Context) {
	s := middleware.CurrentSession(c)
	defer c.Redirect(http.StatusSeeOther, "/admin")

	action, err := admin.ParseAction(c.Param("action"))
	if err != nil {
		s.Notifications.Error("Unknown action", err.Error())
		return
	}

	outcome, err := s.Admin.Trigger(c.Request.Context(), action)
	if err != nil {
		s.Notifications.Error(action.Title()+" failed", err.Error())
		return
	}
	s.Notifications.Info(action.Title()+" complete", outcomeDescription(outcome))
}

func outcomeDescription(o admin.Outcome) string {
	switch {
	case o.Ingestion != nil:
		return fmt.Sprintf("Uploaded %d files at %s.", len(o.Ingestion.Files), o.Ingestion.Timestamp)
	case o.Processing != nil:
		return fmt.Sprintf("Processed %d records for %d teams.", o.Processing.Records, o.Processing.Teams)
	case o.Training != nil:
		return fmt.Sprintf("New model trained with ID %s.", o.Training.ModelRunID)
	default:
		return ""
	}
}

// Refresh handles POST /admin/models/refresh
func (h *AdminHandler) Refresh(c *gin.Context) {
	s := middleware.CurrentSession(c)
	if err := s.Admin.Registry.Refresh(c.Request.Context()); err != nil && !errors.Is(err, admin.ErrRefreshInFlight) {
		s.Notifications.Error("Failed to load model runs", err.Error())
	}
	c.Redirect(http.StatusSeeOther, "/admin")
}

// Activate handles POST /admin/models/:id/activate
func (h *AdminHandler) Activate(c *gin.Context) {
	s := middleware.CurrentSession(c)
	runID := strings.TrimSpace(c.Param("id"))

	result, err := s.Admin.Registry.Activate(c.Request.Context(), runID)
	if err != nil {
		s.Notifications.Error("Activation failed", err.Error())
	} else {
		s.Notifications.Info("Model activated", fmt.Sprintf("Active model set to %s.", result.ActiveModelRunID))
	}
	c.Redirect(http.StatusSeeOther, "/admin")
}
