package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/handler"
	"github.com/iliyamo/numbers-lottery/internal/middleware"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// RegisterOperator registers the round administration endpoints.
func RegisterOperator(e *echo.Echo, o *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOperator),
	)
	g.POST("/rounds/:id/settle", o.Settle)
	g.GET("/rounds", o.ListRounds)
}

// RegisterInbox registers the notification inbox for any signed-in user.
func RegisterInbox(e *echo.Echo, h *handler.InboxHandler, jwtSecret string) {
	g := e.Group(
		"/v1/notifications",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePlayer, model.RoleOperator),
	)
	g.GET("", h.List)
	g.POST("/read", h.MarkRead)
	g.POST("/read-all", h.MarkAllRead)
}
