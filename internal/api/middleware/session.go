package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/session"
	"github.com/stitts-dev/tourney-sim-dashboard/pkg/utils"
)

const (
	// SessionCookie names the cookie carrying the view session id
	SessionCookie = "sim_session"
	sessionKey    = "session"
)

// Session attaches the caller's view session, creating one on first visit
func Session(manager *session.Manager, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)
		s, created := manager.Acquire(c.Request.Context(), id)
		if created || id != s.ID {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, s.ID, 0, "/", "", secure, true)
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

// CurrentSession returns the session attached by Session, or nil
func CurrentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}

// ActionRateLimit throttles state-changing requests per session. Rejected
// form posts get a notification and are sent back to the page they came from.
func ActionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil || s.Allow() {
			c.Next()
			return
		}
		s.Notifications.Error("Too many requests", "Please wait a moment before trying again.")
		c.Redirect(http.StatusSeeOther, BackTo(c, "/"))
		c.Abort()
	}
}

// BackTo returns the same-site page the request came from, or fallback
func BackTo(c *gin.Context, fallback string) string {
	ref := c.Request.Referer()
	if ref == "" {
		return fallback
	}
	u, err := c.Request.URL.Parse(ref)
	if err != nil || u.Path == "" || (u.Host != "" && u.Host != c.Request.Host) {
		return fallback
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

// APIRateLimit is ActionRateLimit for JSON clients
func APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil || s.Allow() {
			c.Next()
			return
		}
		utils.SendTooManyRequests(c, "Too many requests, please wait a moment")
		c.Abort()
	}
}
