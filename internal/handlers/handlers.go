package handlers

import (
	"context"
	"errors"
	"net/http"

	"chui/internal/api"
	"chui/internal/engine"
	"chui/internal/engine/actors"
	"chui/internal/messaging"
	"chui/internal/middleware"
	"chui/internal/utils"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Server holds all server dependencies, including the actor engine
type Server struct {
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	AllowedOrigins []string
	MetricsEnabled bool
}

// NewServer creates a new Server instance with the given components
func NewServer(engine *engine.Engine, metrics *utils.MetricsCollector, allowedOrigins []string, metricsEnabled bool) *Server {
	return &Server{
		Engine:         engine,
		Metrics:        metrics,
		AllowedOrigins: allowedOrigins,
		MetricsEnabled: metricsEnabled,
	}
}

// Router builds the echo instance with middleware and every route.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(s.Metrics))
	e.Use(middleware.CORSMiddleware(s.AllowedOrigins))
	e.Use(middleware.AuthMiddleware(s.resolveSession))

	e.GET("/health", s.HandleHealth)
	if s.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	e.POST("/user/register", s.HandleRegister)
	e.POST("/user/login", s.HandleLogin)
	e.GET("/user/me", s.HandleMe)
	e.GET("/users", s.HandleListUsers)

	e.POST("/messages", s.HandleSendMessage)
	e.GET("/conversations", s.HandleListConversations)
	e.GET("/conversations/:id/messages", s.HandleListMessages)

	return e
}

func (s *Server) resolveSession(ctx context.Context, token string) (messaging.Session, error) {
	return engine.Ask[messaging.Session](s.Engine, s.Engine.GetUserActor(), &actors.ResolveSessionMsg{Token: token})
}

// handleError renders every failure as {"code","error"}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := api.ErrorResponse{Code: "INTERNAL", Error: utils.UserMessage(err)}

	var appErr *utils.AppError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		status = utils.AppErrorToHTTPStatus(appErr.Code)
		body.Code = appErr.Code
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body.Code = http.StatusText(status)
		if msg, ok := httpErr.Message.(string); ok {
			body.Error = msg
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	if s.Metrics != nil && appErr != nil {
		s.Metrics.IncrementErrors(appErr)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}

func badRequest(message string, err error) error {
	return utils.NewAppError(utils.ErrInvalidInput, message, err)
}
