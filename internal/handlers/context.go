package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/services"
)

// getUserIDFromContext extracts the authenticated user id set by the JWT
// middleware. Returns 0 when the request is unauthenticated.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

// domainHTTPError maps service-level errors onto HTTP errors
func domainHTTPError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "You can no longer message this person")
	case errors.Is(err, services.ErrEmptyContent):
		return echo.NewHTTPError(http.StatusBadRequest, "Message content cannot be empty")
	case errors.Is(err, services.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
