package handler // handler defines http handlers

import (
    "errors"  // errors provides sentinel comparisons via errors.Is
    "net/http"
    "strconv" // strconv converts strings to numeric types

    "github.com/labstack/echo/v4"

    "github.com/hyunsoo-lee/roomstay/internal/payment"
    "github.com/hyunsoo-lee/roomstay/internal/repository"
    "github.com/hyunsoo-lee/roomstay/internal/service"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// The JWT middleware stores the raw claim value, whose concrete type depends
// on how the token was decoded, so several representations are accepted.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// orderError translates workflow and repository errors into HTTP
// responses.  Gateway rejections keep the gateway's own status and
// carry its machine-readable code alongside the merged message.
func orderError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, repository.ErrOrderNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
    case errors.Is(err, repository.ErrRoomTypeNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "room type not found"})
    case errors.Is(err, repository.ErrPaymentNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    case errors.Is(err, repository.ErrStateConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "order state does not allow this operation"})
    case errors.Is(err, service.ErrAlreadySettled):
        return c.JSON(http.StatusConflict, echo.Map{"error": "order is already paid"})
    case errors.Is(err, service.ErrAmountMismatch),
        errors.Is(err, service.ErrRecipientRequired),
        errors.Is(err, service.ErrInvalidGuestCount),
        errors.Is(err, service.ErrNoItems),
        errors.Is(err, service.ErrInvalidQuantity),
        errors.Is(err, service.ErrCheckInPast),
        errors.Is(err, service.ErrInvalidStayRange),
        errors.Is(err, service.ErrReasonRequired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var ge *payment.GatewayError
    if errors.As(err, &ge) {
        return c.JSON(ge.Status, echo.Map{"error": ge.Error(), "code": ge.Code})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pagination reads page/limit query parameters with the usual
// defaults (1 and 10) and an upper bound on limit.
func pagination(c echo.Context) (page, limit int) {
    page, limit = 1, 10
    if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
        page = v
    }
    if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
        limit = v
    }
    if limit > 100 {
        limit = 100
    }
    return page, limit
}

// paginationMeta is the envelope returned next to paginated data.
type paginationMeta struct {
    TotalItems  int `json:"total_items"`
    TotalPages  int `json:"total_pages"`
    CurrentPage int `json:"current_page"`
    Limit       int `json:"limit"`
}

func newPaginationMeta(total, page, limit int) paginationMeta {
    pages := (total + limit - 1) / limit
    return paginationMeta{TotalItems: total, TotalPages: pages, CurrentPage: page, Limit: limit}
}
