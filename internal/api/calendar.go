package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"calendar-sync/internal/ics"
	"calendar-sync/internal/middleware"
	"calendar-sync/internal/repositories"
)

func (s *Server) handleCalendar(c *gin.Context) {
	username := c.GetString(middleware.ContextUsername)

	view, err := s.store.ViewFor(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, repositories.ErrUnknownIdentity) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		s.log.Error("calendar export failed", "username", username, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schedules"})
		return
	}

	body := ics.Export(username, view.Schedules, time.Now())
	c.Header("Content-Disposition", `inline; filename="calendar.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}
