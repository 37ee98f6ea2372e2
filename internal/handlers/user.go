package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/repositories"
	"github.com/knotapp/knot/internal/services"
)

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	userRepository repositories.UserRepository
	relationships  *services.RelationshipService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo repositories.UserRepository, relationships *services.RelationshipService) *UserHandler {
	return &UserHandler{userRepository: userRepo, relationships: relationships}
}

// RegisterUserRoutes registers user-related routes
func (h *UserHandler) RegisterUserRoutes(g *echo.Group) {
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:id", h.GetUser)
}

// GetUser returns another user's public profile plus the viewer's
// relationship to them
func (h *UserHandler) GetUser(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	user, err := h.userRepository.GetUserByID(uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	result := models.UserWithRelationship{UserCompact: user.ToCompact()}
	if user.ID != currentUserID {
		rel, err := h.relationships.RelationshipWith(currentUserID, user.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		result.Relationship = rel
	}

	// Counts come from the edge table, not the cached user columns
	followers, following, err := h.relationships.FollowCounts(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{
		"user":            result,
		"followers_count": followers,
		"following_count": following,
	}})
}

// SearchUsers searches the directory and decorates every hit with the
// viewer's relationship view
func (h *UserHandler) SearchUsers(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing search query")
	}

	users, err := h.userRepository.SearchUsers(query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	results := make([]models.UserWithRelationship, 0, len(users))
	for _, user := range users {
		if user.ID == currentUserID {
			continue
		}
		rel, err := h.relationships.RelationshipWith(currentUserID, user.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		results = append(results, models.UserWithRelationship{
			UserCompact:  user.ToCompact(),
			Relationship: rel,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"users": results}})
}
