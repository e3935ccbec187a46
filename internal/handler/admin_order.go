package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hyunsoo-lee/roomstay/internal/repository"
)

// AdminOrderHandler serves the back-office order console: paging
// through every user's orders and overriding an order's status.
type AdminOrderHandler struct {
	Orders *repository.OrderRepo
}

func NewAdminOrderHandler(o *repository.OrderRepo) *AdminOrderHandler {
	return &AdminOrderHandler{Orders: o}
}

// List handles GET /v1/admin/orders with optional query filters:
// status, search (recipient/user name/email), start_date, end_date
// (YYYY-MM-DD, inclusive) plus page/limit.
func (h *AdminOrderHandler) List(c echo.Context) error {
	var f repository.AdminOrderFilter
	f.Page, f.Limit = pagination(c)

	f.Status = strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	switch f.Status {
	case "", "PENDING", "PAID", "CANCELED":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
	}
	f.Search = strings.TrimSpace(c.QueryParam("search"))

	if v := c.QueryParam("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_date"})
		}
		f.StartDate = &t
	}
	if v := c.QueryParam("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_date"})
		}
		f.EndDate = &t
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, total, err := h.Orders.ListAll(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"orders":     orders,
		"pagination": newPaginationMeta(total, f.Page, f.Limit),
	})
}

// Detail handles GET /v1/admin/orders/:id.
func (h *AdminOrderHandler) Detail(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Orders.AdminDetail(ctx, id)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": detail})
}

// UpdateStatus handles PATCH /v1/admin/orders/:id/status.  Moves
// out of CANCELED are rejected, and an unpaid order cannot be
// overridden to PAID: only the payment workflow may do that, since
// it is the one recording the payment row.
func (h *AdminOrderHandler) UpdateStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	switch req.Status {
	case "PENDING", "PAID", "CANCELED":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Orders.UpdateStatus(ctx, id, req.Status); err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order_id": id, "status": req.Status})
}
