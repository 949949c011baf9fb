package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/logger"
)

// OperatorHandler serves the operator's round administration.
type OperatorHandler struct {
	Svc *game.Service
}

func NewOperatorHandler(svc *game.Service) *OperatorHandler {
	if svc == nil {
		panic("nil service passed to NewOperatorHandler")
	}
	return &OperatorHandler{Svc: svc}
}

type settleReq struct {
	WinningNumber *int `json:"winning_number"`
}

type settleResp struct {
	*game.Settlement
	ParticipantsNotified int `json:"participants_notified"`
}

// Settle fixes a round's winning number.
func (h *OperatorHandler) Settle(c echo.Context) error {
	roundID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid round id"})
	}
	var req settleReq
	if err := c.Bind(&req); err != nil || req.WinningNumber == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "winning_number required"})
	}
	res, err := h.Svc.Settle(c.Request().Context(), roundID, *req.WinningNumber)
	if err != nil {
		return respondErr(c, err)
	}
	logger.Infof("operator settled round=%d winning=%d winners=%d", res.RoundID, res.WinningNumber, len(res.Winners))
	return c.JSON(http.StatusOK, settleResp{Settlement: res, ParticipantsNotified: len(res.Intents)})
}

// ListRounds pages through every round, newest first.
func (h *OperatorHandler) ListRounds(c echo.Context) error {
	page, ok1 := queryInt(c, "page", 1)
	perPage, ok2 := queryInt(c, "per_page", 0)
	if !ok1 || !ok2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid paging"})
	}
	res, err := h.Svc.ListRounds(c.Request().Context(), page, perPage)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
