package handlers

import (
	"net/http"
	"strconv"

	"chui/internal/api"
	"chui/internal/engine"
	"chui/internal/engine/actors"
	"chui/internal/messaging"
	"chui/internal/middleware"
	"chui/internal/models"

	"github.com/labstack/echo/v4"
)

// HandleSendMessage sends a direct message to a username.
func (s *Server) HandleSendMessage(c echo.Context) error {
	var req api.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body", err)
	}

	result, err := engine.Ask[*messaging.SendResult](s.Engine, s.Engine.GetMessageActor(), &actors.SendDirectMessageMsg{
		Session: middleware.GetSession(c),
		To:      req.To,
		Body:    req.Body,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleListConversations returns the caller's conversations, newest first.
func (s *Server) HandleListConversations(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}

	summaries, err := engine.Ask[[]models.ConversationSummary](s.Engine, s.Engine.GetMessageActor(), &actors.ListConversationsMsg{
		Session: middleware.GetSession(c),
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaries)
}

// HandleListMessages returns the latest messages of one conversation in
// reading order.
func (s *Server) HandleListMessages(c echo.Context) error {
	limit, err := queryLimit(c)
	if err != nil {
		return err
	}

	messages, err := engine.Ask[[]models.MessageView](s.Engine, s.Engine.GetMessageActor(), &actors.ListMessagesMsg{
		Session:        middleware.GetSession(c),
		ConversationID: c.Param("id"),
		Limit:          limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

// queryLimit reads ?limit=; absent means 0, the default page size.
func queryLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("limit must be a number", err)
	}
	return limit, nil
}
