package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/handler"
	"github.com/iliyamo/numbers-lottery/internal/middleware"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// RegisterPlayer registers the reservation endpoints.  Preview accepts
// guests; everything else under /v1/games requires a PLAYER token.  limit
// throttles preview and commit.
func RegisterPlayer(e *echo.Echo, h *handler.GameHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/v1/games/preview", h.Preview, middleware.OptionalJWT(jwtSecret), limit)

	g := e.Group(
		"/v1/games",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePlayer),
	)
	g.POST("/commit", h.Commit, limit)
	g.DELETE("/:id/selection", h.Release)
	g.GET("/current", h.Current)
	g.GET("/last", h.Last)
	g.GET("/history", h.History)
}

// RegisterRounds registers the public round views.  A settled result never
// changes, so it goes through cache.
func RegisterRounds(e *echo.Echo, h *handler.GameHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/rounds/current", h.RoundStatus)
	e.GET("/v1/rounds/:id/result", h.Result, cache)
}
