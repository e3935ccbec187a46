package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hyunsoo-lee/roomstay/internal/repository"
	"github.com/hyunsoo-lee/roomstay/internal/service"
)

// OrderHandler exposes the order settlement workflow plus the
// customer's listing and detail reads.  All methods assume JWT
// authentication has already run; they return 401 when no user ID
// is present in the context.
type OrderHandler struct {
	Service *service.OrderService // workflow: intake, confirm, cancel
	Orders  *repository.OrderRepo // direct reads for listing and detail
}

// NewOrderHandler constructs an OrderHandler.  Both dependencies
// must be non-nil.
func NewOrderHandler(svc *service.OrderService, orders *repository.OrderRepo) *OrderHandler {
	if svc == nil || orders == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Service: svc, Orders: orders}
}

// CreateOrder handles POST /v1/orders.  It validates the cart and
// persists a PENDING order, returning the data the client needs to
// open the payment widget.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		RecipientName  string `json:"recipient_name"`
		RecipientPhone string `json:"recipient_phone"`
		AdultNum       int    `json:"adult_num"`
		ChildrenNum    int    `json:"children_num"`
		CheckInDate    string `json:"check_in_date"`
		CheckOutDate   string `json:"check_out_date"`
		Items          []struct {
			RoomTypeID uint64 `json:"room_type_id"`
			Quantity   int    `json:"quantity"`
		} `json:"items"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	checkIn, err := time.Parse("2006-01-02", body.CheckInDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "check_in_date must be YYYY-MM-DD"})
	}
	checkOut, err := time.Parse("2006-01-02", body.CheckOutDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "check_out_date must be YYYY-MM-DD"})
	}

	in := service.CreateOrderInput{
		RecipientName:  body.RecipientName,
		RecipientPhone: body.RecipientPhone,
		AdultNum:       body.AdultNum,
		ChildrenNum:    body.ChildrenNum,
		CheckInDate:    checkIn,
		CheckOutDate:   checkOut,
	}
	for _, it := range body.Items {
		in.Items = append(in.Items, service.OrderItemInput{RoomTypeID: it.RoomTypeID, Quantity: it.Quantity})
	}

	info, err := h.Service.CreateOrder(c.Request().Context(), userID, in)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "order created; proceed to payment",
		"data":    info,
	})
}

// ConfirmPayment handles POST /v1/orders/confirm.  The payment
// widget redirects back with a payment key, the order id and the
// amount; the server settles the payment with the gateway and
// commits the PENDING→PAID transition.
func (h *OrderHandler) ConfirmPayment(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		PaymentKey string `json:"payment_key"`
		OrderID    string `json:"order_id"` // the widget hands the id back as a string
		Amount     int64  `json:"amount"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PaymentKey == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_key is required"})
	}
	orderID, err := strconv.ParseUint(body.OrderID, 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order_id"})
	}

	res, err := h.Service.ConfirmPayment(c.Request().Context(), userID, service.ConfirmInput{
		PaymentKey: body.PaymentKey,
		OrderID:    orderID,
		Amount:     body.Amount,
	})
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "payment approved",
		"data": echo.Map{
			"payment": json.RawMessage(res.Settlement.Raw),
			"order": echo.Map{
				"id":          res.Order.ID,
				"status":      res.Order.Status,
				"total_price": res.Order.TotalPrice,
			},
		},
	})
}

// ListMyOrders handles GET /v1/orders with page/limit pagination,
// newest orders first.
func (h *OrderHandler) ListMyOrders(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, limit := pagination(c)
	details, total, err := h.Orders.ListByUser(c.Request().Context(), userID, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch orders"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":       details,
		"pagination": newPaginationMeta(total, page, limit),
	})
}

// GetOrderDetail handles GET /v1/orders/:id.  Ownership is enforced
// in the query; a foreign order looks like a missing one.
func (h *OrderHandler) GetOrderDetail(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	detail, err := h.Orders.DetailForUser(c.Request().Context(), orderID, userID)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": detail})
}

// CancelOrder handles POST /v1/orders/:id/cancel.  PAID orders are
// refunded through the gateway before the local transition commits.
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		CancelReason string `json:"cancel_reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.Service.CancelOrder(c.Request().Context(), userID, orderID, body.CancelReason); err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "order canceled"})
}
