package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/api/middleware"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/notify"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/websocket"
)

// NotificationHandler dismisses and streams a session's notifications
type NotificationHandler struct {
	hub *websocket.NotificationHub
}

// NewNotificationHandler creates a notification handler
func NewNotificationHandler(hub *websocket.NotificationHub) *NotificationHandler {
	return &NotificationHandler{hub: hub}
}

// Dismiss handles POST /notifications/:id/dismiss
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	s := middleware.CurrentSession(c)
	s.Notifications.Dismiss(c.Param("id"))
	c.Redirect(http.StatusSeeOther, middleware.BackTo(c, "/"))
}

// Stream handles GET /ws/notifications
func (h *NotificationHandler) Stream(c *gin.Context) {
	s := middleware.CurrentSession(c)
	h.hub.Serve(c, s.ID, s.Notifications)
}

type homePage struct {
	Title         string
	Notifications []notify.Notification
}

// Home renders GET /
func Home(c *gin.Context) {
	page := homePage{Title: "Tournament Simulator"}
	if s := middleware.CurrentSession(c); s != nil {
		page.Notifications = s.Notifications.Active()
	}
	c.HTML(http.StatusOK, "home.html", page)
}
