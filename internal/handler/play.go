package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/middleware"
)

// GameHandler exposes the player-facing reservation endpoints.
type GameHandler struct {
	Svc           *game.Service
	DefaultDigits int
}

func NewGameHandler(svc *game.Service, defaultDigits int) *GameHandler {
	if svc == nil {
		panic("nil service passed to NewGameHandler")
	}
	return &GameHandler{Svc: svc, DefaultDigits: defaultDigits}
}

type previewReq struct {
	Digits int `json:"digits"`
}

type commitReq struct {
	RoundID uint64 `json:"round_id"`
	Numbers []int  `json:"numbers"`
}

// commitCodes maps commit outcomes onto status codes.
var commitCodes = map[game.CommitStatus]int{
	game.StatusOK:                 http.StatusCreated,
	game.StatusAlreadyComplete:    http.StatusOK,
	game.StatusInvalidInput:       http.StatusBadRequest,
	game.StatusNotEntitled:        http.StatusForbidden,
	game.StatusRoundClosed:        http.StatusConflict,
	game.StatusPartialBlockExists: http.StatusConflict,
	game.StatusNumbersTaken:       http.StatusConflict,
}

func (h *GameHandler) digits(v int) int {
	if v == 0 {
		return h.DefaultDigits
	}
	return v
}

// Preview proposes five numbers.  Guests get filler.
func (h *GameHandler) Preview(c echo.Context) error {
	var req previewReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	uid, _ := middleware.UserID(c)
	res, err := h.Svc.Preview(c.Request().Context(), uid, h.digits(req.Digits))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Commit reserves the posted block.
func (h *GameHandler) Commit(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req commitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.RoundID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "round_id required"})
	}
	out, err := h.Svc.Commit(c.Request().Context(), uid, req.RoundID, req.Numbers)
	if err != nil {
		return respondErr(c, err)
	}
	code, ok := commitCodes[out.Status]
	if !ok {
		code = http.StatusInternalServerError
	}
	return c.JSON(code, out)
}

// Release drops the caller's block in an open round.
func (h *GameHandler) Release(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roundID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid round id"})
	}
	n, err := h.Svc.Release(c.Request().Context(), uid, roundID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released_count": n})
}

// Current returns the caller's block in the open round.
func (h *GameHandler) Current(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	digits, ok := queryInt(c, "digits", h.DefaultDigits)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid digits"})
	}
	sel, err := h.Svc.CurrentReservation(c.Request().Context(), uid, digits)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, sel)
}

// Last returns the caller's most recent block in any round.
func (h *GameHandler) Last(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sel, err := h.Svc.LastSelection(c.Request().Context(), uid)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, sel)
}

// History pages through the rounds the caller played.
func (h *GameHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, ok1 := queryInt(c, "page", 1)
	perPage, ok2 := queryInt(c, "per_page", 0)
	if !ok1 || !ok2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid paging"})
	}
	res, err := h.Svc.History(c.Request().Context(), uid, page, perPage)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// RoundStatus reports the open round's fill level.  Public.
func (h *GameHandler) RoundStatus(c echo.Context) error {
	digits, ok := queryInt(c, "digits", h.DefaultDigits)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid digits"})
	}
	st, err := h.Svc.RoundStatus(c.Request().Context(), digits)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Result returns a settled round's outcome.  Public.
func (h *GameHandler) Result(c echo.Context) error {
	roundID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid round id"})
	}
	res, err := h.Svc.Result(c.Request().Context(), roundID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
