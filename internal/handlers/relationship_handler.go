package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/knotapp/knot/internal/services"
)

// RelationshipHandler handles follow/request/accept/decline HTTP requests
type RelationshipHandler struct {
	relationships *services.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler
func NewRelationshipHandler(relationships *services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationships: relationships}
}

// RegisterRelationshipRoutes registers relationship-related routes. The
// follow routes (request creation) accept extra middleware for throttling.
func (h *RelationshipHandler) RegisterRelationshipRoutes(g *echo.Group, followMiddleware ...echo.MiddlewareFunc) {
	g.POST("/users/:id/follow", h.RequestFollow, followMiddleware...)
	g.POST("/users/:id/follow-back", h.FollowBack, followMiddleware...)
	g.DELETE("/users/:id/follow", h.Unfollow)
	g.GET("/relationships", h.ListRelationships)
	g.PUT("/follow-requests/:id/accept", h.AcceptRequest)
	g.PUT("/follow-requests/:id/decline", h.DeclineRequest)
}

// RequestFollow asks to follow another user
func (h *RelationshipHandler) RequestFollow(c echo.Context) error {
	return h.follow(c, h.relationships.RequestFollow)
}

// FollowBack follows a follower back
func (h *RelationshipHandler) FollowBack(c echo.Context) error {
	return h.follow(c, h.relationships.FollowBack)
}

func (h *RelationshipHandler) follow(c echo.Context, op func(actorID, targetID uint) (services.FollowStatus, error)) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	status, err := op(currentUserID, uint(targetID))
	if err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"status": status}})
}

// Unfollow removes the follow edge to another user
func (h *RelationshipHandler) Unfollow(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	if err := h.relationships.Unfollow(currentUserID, uint(targetID)); err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"following": false}})
}

// ListRelationships returns followers, incoming and outgoing pending requests
func (h *RelationshipHandler) ListRelationships(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	list, err := h.relationships.ListRelationships(currentUserID)
	if err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": list})
}

// AcceptRequest accepts a pending follow request
func (h *RelationshipHandler) AcceptRequest(c echo.Context) error {
	return h.resolveRequest(c, h.relationships.AcceptRequest, "accepted")
}

// DeclineRequest declines a pending follow request
func (h *RelationshipHandler) DeclineRequest(c echo.Context) error {
	return h.resolveRequest(c, h.relationships.DeclineRequest, "declined")
}

func (h *RelationshipHandler) resolveRequest(c echo.Context, op func(actorID, requestID uint) error, status string) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requestID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request ID")
	}

	if err := op(currentUserID, uint(requestID)); err != nil {
		return domainHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"status": status}})
}
