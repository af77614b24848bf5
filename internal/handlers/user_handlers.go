package handlers

import (
	"net/http"

	"chui/internal/api"
	"chui/internal/auth"
	"chui/internal/engine"
	"chui/internal/engine/actors"
	"chui/internal/middleware"
	"chui/internal/models"

	"github.com/labstack/echo/v4"
)

// HandleRegister creates an account and signs it in.
func (s *Server) HandleRegister(c echo.Context) error {
	var req api.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body", err)
	}

	res, err := engine.Ask[*auth.Result](s.Engine, s.Engine.GetUserActor(), &actors.RegisterUserMsg{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, loginResponse(res))
}

// HandleLogin signs in with an email address or username.
func (s *Server) HandleLogin(c echo.Context) error {
	var req api.LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body", err)
	}

	res, err := engine.Ask[*auth.Result](s.Engine, s.Engine.GetUserActor(), &actors.LoginMsg{
		Login:    req.Login,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse(res))
}

func (s *Server) HandleMe(c echo.Context) error {
	profile, err := engine.Ask[*models.Profile](s.Engine, s.Engine.GetUserActor(), &actors.GetUserProfileMsg{
		Session: middleware.GetSession(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// HandleListUsers returns the user directory.
func (s *Server) HandleListUsers(c echo.Context) error {
	profiles, err := engine.Ask[[]models.Profile](s.Engine, s.Engine.GetUserActor(), &actors.ListProfilesMsg{
		Session: middleware.GetSession(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profiles)
}

func loginResponse(res *auth.Result) api.LoginResponse {
	return api.LoginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		UserID:    res.Session.UserID.String(),
		Username:  res.Session.Username,
	}
}
