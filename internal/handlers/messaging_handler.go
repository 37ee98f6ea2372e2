package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/services"
)

// MessagingHandler handles conversation and message HTTP requests
type MessagingHandler struct {
	messaging *services.MessagingService
}

// NewMessagingHandler creates a new MessagingHandler
func NewMessagingHandler(messaging *services.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

// RegisterMessagingRoutes registers messaging-related routes
func (h *MessagingHandler) RegisterMessagingRoutes(g *echo.Group) {
	g.GET("/conversations", h.ListConversations)
	g.POST("/conversations/open", h.OpenConversation)
	g.POST("/messages", h.SendMessage)
}

// ListConversations returns the viewer's conversations
func (h *MessagingHandler) ListConversations(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	views, err := h.messaging.ListConversations(c.Request().Context(), currentUserID)
	if err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversations": views}})
}

// OpenConversation gets or creates the conversation with a peer
func (h *MessagingHandler) OpenConversation(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.OpenConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	view, err := h.messaging.OpenConversation(c.Request().Context(), currentUserID, req.PeerID)
	if err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversation": view}})
}

// SendMessage appends a message to a conversation
func (h *MessagingHandler) SendMessage(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	view, err := h.messaging.SendMessage(c.Request().Context(), currentUserID, req)
	if err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"conversation": view}})
}
