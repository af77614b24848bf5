package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Metrics.Uptime().Round(time.Second).String(),
	})
}
