package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

// Inbox is the notification store read by players.  It is satisfied by
// *repository.NotificationRepo.
type Inbox interface {
	List(ctx context.Context, userID uint64, unreadOnly bool, limit, offset int) ([]model.Notification, int, error)
	MarkRead(ctx context.Context, userID uint64, ids []uint64, at time.Time) (int, error)
	MarkAllRead(ctx context.Context, userID uint64, at time.Time) (int, error)
}

// InboxHandler serves the per-user notification inbox.
type InboxHandler struct {
	Inbox Inbox
	Now   func() time.Time
}

func NewInboxHandler(inbox Inbox) *InboxHandler {
	return &InboxHandler{Inbox: inbox, Now: func() time.Time { return time.Now().UTC() }}
}

type markReadReq struct {
	IDs []uint64 `json:"ids"`
}

// List returns one page of the caller's notifications, newest first.
// ?unread=true hides read entries.
func (h *InboxHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, ok1 := queryInt(c, "page", 1)
	perPage, ok2 := queryInt(c, "per_page", 20)
	if !ok1 || !ok2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid paging"})
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	unread := c.QueryParam("unread") == "true"

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, total, err := h.Inbox.List(ctx, uid, unread, perPage, (page-1)*perPage)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":    items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// MarkRead marks the posted ids read.
func (h *InboxHandler) MarkRead(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req markReadReq
	if err := c.Bind(&req); err != nil || len(req.IDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ids required"})
	}
	if len(req.IDs) > 500 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "too many ids"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	n, err := h.Inbox.MarkRead(ctx, uid, req.IDs, h.Now())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": n})
}

// MarkAllRead marks every unread notification of the caller read.
func (h *InboxHandler) MarkAllRead(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	n, err := h.Inbox.MarkAllRead(ctx, uid, h.Now())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": n})
}
