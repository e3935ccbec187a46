// Package service implements the order settlement workflow: intake
// of a pending order, payment confirmation against the external
// gateway, and cancellation with refund.  Dependencies are passed
// in as interfaces so tests can run the whole workflow against
// in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/hyunsoo-lee/roomstay/internal/model"
	"github.com/hyunsoo-lee/roomstay/internal/payment"
	"github.com/hyunsoo-lee/roomstay/internal/queue"
	"github.com/hyunsoo-lee/roomstay/internal/repository"
)

// Validation and workflow errors.  Handlers map these onto HTTP
// status codes: validation errors become 400, ErrAmountMismatch 400,
// ErrAlreadySettled 409.
var (
	ErrRecipientRequired = errors.New("recipient name and phone are required")
	ErrInvalidGuestCount = errors.New("at least one adult guest is required")
	ErrNoItems           = errors.New("at least one room must be ordered")
	ErrInvalidQuantity   = errors.New("item quantity must be at least 1")
	ErrCheckInPast       = errors.New("check-in date must not be in the past")
	ErrInvalidStayRange  = errors.New("check-out date must be after check-in date")
	ErrAmountMismatch    = errors.New("payment amount does not match order total")
	ErrAlreadySettled    = errors.New("order is already paid")
	ErrReasonRequired    = errors.New("cancel reason is required")
)

// OrderStore is the persistence collaborator of the workflow.  The
// production implementation is repository.Store; MarkOrderPaid and
// CancelOrder must perform their status transitions as conditional
// writes so that racing callers cannot both succeed.
type OrderStore interface {
	RoomTypeByID(ctx context.Context, id uint64) (model.RoomType, error)
	UserByID(ctx context.Context, id uint64) (model.User, error)
	CreateOrder(ctx context.Context, o *model.Order, items []model.OrderItem) error
	OrderByID(ctx context.Context, id uint64) (model.Order, error)
	MarkOrderPaid(ctx context.Context, orderID uint64, pay model.Payment) error
	CancelOrder(ctx context.Context, orderID uint64, reason, expectedStatus string) error
	PaymentByOrder(ctx context.Context, orderID uint64) (model.Payment, error)
}

// Gateway is the payment-gateway collaborator.
type Gateway interface {
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.Settlement, error)
	Cancel(ctx context.Context, paymentKey, reason string) error
}

// Publisher emits domain events after successful settlements.  A
// nil Publisher disables fanout.
type Publisher interface {
	PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error
}

// OrderService orchestrates the order settlement workflow.
type OrderService struct {
	store     OrderStore
	gateway   Gateway
	publisher Publisher
	now       func() time.Time
}

// NewOrderService constructs the workflow with its collaborators.
// publisher may be nil when no broker is configured.
func NewOrderService(store OrderStore, gateway Gateway, publisher Publisher) *OrderService {
	if store == nil || gateway == nil {
		panic("nil dependency passed to NewOrderService")
	}
	return &OrderService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		now:       time.Now,
	}
}

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	RoomTypeID uint64 `json:"room_type_id"`
	Quantity   int    `json:"quantity"`
}

// CreateOrderInput carries everything the intake stage needs.
type CreateOrderInput struct {
	RecipientName  string
	RecipientPhone string
	AdultNum       int
	ChildrenNum    int
	CheckInDate    time.Time
	CheckOutDate   time.Time
	Items          []OrderItemInput
}

// CheckoutInfo is returned to the client for handing off to the
// payment widget.
type CheckoutInfo struct {
	OrderID       uint64 `json:"order_id"`
	TotalPrice    int64  `json:"total_price"`
	OrderName     string `json:"order_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
}

// CreateOrder validates the cart, freezes prices and persists a
// PENDING order with its items in one transaction.  The gateway is
// not contacted at this stage.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, in CreateOrderInput) (CheckoutInfo, error) {
	if in.RecipientName == "" || in.RecipientPhone == "" {
		return CheckoutInfo{}, ErrRecipientRequired
	}
	if in.AdultNum < 1 || in.ChildrenNum < 0 {
		return CheckoutInfo{}, ErrInvalidGuestCount
	}
	if len(in.Items) == 0 {
		return CheckoutInfo{}, ErrNoItems
	}

	// Date-only comparison: truncate everything to UTC midnight.
	checkIn := truncateToDay(in.CheckInDate)
	checkOut := truncateToDay(in.CheckOutDate)
	today := truncateToDay(s.now().UTC())
	if checkIn.Before(today) {
		return CheckoutInfo{}, ErrCheckInPast
	}
	if !checkOut.After(checkIn) {
		return CheckoutInfo{}, ErrInvalidStayRange
	}
	nights := int(checkOut.Sub(checkIn).Hours() / 24)

	var totalPrice int64
	var firstRoomName string
	items := make([]model.OrderItem, 0, len(in.Items))
	for i, it := range in.Items {
		if it.Quantity < 1 {
			return CheckoutInfo{}, ErrInvalidQuantity
		}
		rt, err := s.store.RoomTypeByID(ctx, it.RoomTypeID)
		if err != nil {
			return CheckoutInfo{}, err
		}
		// Freeze the line price now; later room-type price changes
		// must never affect this order.
		linePrice := rt.Price * int64(it.Quantity) * int64(nights)
		totalPrice += linePrice
		if i == 0 {
			firstRoomName = rt.Name
		}
		items = append(items, model.OrderItem{
			RoomTypeID: it.RoomTypeID,
			Quantity:   it.Quantity,
			Price:      linePrice,
		})
	}

	orderName := firstRoomName
	if len(in.Items) > 1 {
		orderName = fmt.Sprintf("%s 외 %d건", firstRoomName, len(in.Items)-1)
	}

	order := model.Order{
		UserID:         userID,
		RecipientName:  in.RecipientName,
		RecipientPhone: in.RecipientPhone,
		AdultNum:       in.AdultNum,
		ChildrenNum:    in.ChildrenNum,
		CheckInDate:    checkIn,
		CheckOutDate:   checkOut,
		TotalPrice:     totalPrice,
		Status:         model.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, &order, items); err != nil {
		return CheckoutInfo{}, err
	}

	info := CheckoutInfo{
		OrderID:    order.ID,
		TotalPrice: totalPrice,
		OrderName:  orderName,
	}
	// Customer contact data is a convenience for the payment widget;
	// a lookup failure leaves the fields empty rather than failing
	// an already-persisted order.
	if u, err := s.store.UserByID(ctx, userID); err == nil {
		info.CustomerEmail = u.Email
		info.CustomerName = u.Name
	}
	return info, nil
}

// ConfirmInput carries the triple the payment widget redirects back with.
type ConfirmInput struct {
	PaymentKey string
	OrderID    uint64
	Amount     int64
}

// ConfirmResult pairs the gateway settlement with the freshly
// committed order state.
type ConfirmResult struct {
	Settlement *payment.Settlement
	Order      model.Order
}

// ConfirmPayment settles a pending order.  The client-declared
// amount is checked against the stored total before the gateway is
// contacted; the PENDING→PAID transition and the payment row are
// committed atomically by the store's conditional update, so a
// racing second confirmation loses with ErrStateConflict and never
// produces a second payment row.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID uint64, in ConfirmInput) (ConfirmResult, error) {
	order, err := s.store.OrderByID(ctx, in.OrderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if order.TotalPrice != in.Amount {
		// Never trust the client amount; the gateway must not be
		// called when it disagrees with the stored total.
		return ConfirmResult{}, ErrAmountMismatch
	}
	switch order.Status {
	case model.OrderStatusPaid:
		return ConfirmResult{}, ErrAlreadySettled
	case model.OrderStatusCanceled:
		return ConfirmResult{}, repository.ErrStateConflict
	}

	settlement, err := s.gateway.Confirm(ctx, payment.ConfirmRequest{
		OrderID:    strconv.FormatUint(in.OrderID, 10),
		Amount:     in.Amount,
		PaymentKey: in.PaymentKey,
	})
	if err != nil {
		// No local state is mutated; the order stays PENDING and the
		// client may retry the confirmation.
		return ConfirmResult{}, err
	}

	method := settlement.Method
	if method == "" {
		method = "간편결제"
	}
	pay := model.Payment{
		OrderID:     order.ID,
		PaymentKey:  in.PaymentKey,
		Method:      method,
		Amount:      settlement.TotalAmount,
		Status:      model.OrderStatusPaid,
		RequestedAt: settlement.RequestedAt,
		ApprovedAt:  settlement.ApprovedAt,
	}
	if err := s.store.MarkOrderPaid(ctx, order.ID, pay); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// The gateway approved but another confirmation won the
			// local transition. Surface the conflict; reconciling the
			// gateway charge is an operator concern.
			log.Printf("order %d: gateway approved payment %s but local settle lost the race", order.ID, in.PaymentKey)
		}
		return ConfirmResult{}, err
	}

	// Return the committed order state, not the pre-update snapshot.
	updated, err := s.store.OrderByID(ctx, order.ID)
	if err != nil {
		log.Printf("order %d: re-fetch after settle failed: %v", order.ID, err)
		order.Status = model.OrderStatusPaid
		updated = order
	}

	if s.publisher != nil {
		ev := queue.OrderPaidEvent{
			OrderID:       updated.ID,
			UserID:        updated.UserID,
			RecipientName: updated.RecipientName,
			Method:        method,
			Amount:        pay.Amount,
			CheckInDate:   updated.CheckInDate.UTC().Format("2006-01-02"),
			CheckOutDate:  updated.CheckOutDate.UTC().Format("2006-01-02"),
			ApprovedAt:    pay.ApprovedAt.UTC().Format(time.RFC3339),
		}
		if err := s.publisher.PublishOrderPaid(ctx, ev); err != nil {
			log.Printf("order %d: publish order.paid failed: %v", updated.ID, err)
		}
	}

	return ConfirmResult{Settlement: settlement, Order: updated}, nil
}

// CancelOrder transitions an order out of its active state.  Only
// the owner may cancel; CANCELED is terminal.  For PAID orders the
// gateway refund must succeed before the local transition commits;
// a refund failure leaves the order untouched.  The local write is
// bound to the status read here: if a settle lands in between, the
// write loses and the cancel is re-driven from the fresh state so a
// newly PAID order still takes the refund path.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uint64, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	for attempt := 0; ; attempt++ {
		order, err := s.store.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return repository.ErrForbidden
		}
		if order.Status == model.OrderStatusCanceled {
			return repository.ErrStateConflict
		}

		if order.Status == model.OrderStatusPaid {
			pay, err := s.store.PaymentByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if err := s.gateway.Cancel(ctx, pay.PaymentKey, reason); err != nil {
				return err
			}
		}
		err = s.store.CancelOrder(ctx, orderID, reason, order.Status)
		if errors.Is(err, repository.ErrStateConflict) && attempt == 0 {
			log.Printf("order %d: status moved during cancel, retrying from fresh state", orderID)
			continue
		}
		return err
	}
}

// truncateToDay drops the time-of-day component in UTC.
func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
