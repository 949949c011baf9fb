package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/logger"
	"github.com/iliyamo/numbers-lottery/internal/middleware"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated caller.
func getUserID(c echo.Context) (uint64, error) {
	if uid, ok := middleware.UserID(c); ok {
		return uid, nil
	}
	return 0, errNoUser
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// queryInt reads an optional integer query parameter.  An absent value
// yields def; a malformed one reports false.
func queryInt(c echo.Context, name string, def int) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// respondErr maps core errors onto status codes.
func respondErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, game.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, game.ErrNotEntitled):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not entitled"})
	case errors.Is(err, game.ErrRoundNotFound), errors.Is(err, game.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, game.ErrRoundClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "round closed"})
	case errors.Is(err, game.ErrAlreadySettled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "round already settled"})
	case errors.Is(err, game.ErrNotSettled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "round not settled"})
	case errors.Is(err, game.ErrTransient):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
	}
	logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
