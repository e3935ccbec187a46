package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hyunsoo-lee/roomstay/internal/model"
	"github.com/hyunsoo-lee/roomstay/internal/payment"
	"github.com/hyunsoo-lee/roomstay/internal/queue"
	"github.com/hyunsoo-lee/roomstay/internal/repository"
)

// fakeStore is an in-memory OrderStore with the same conditional
// transition semantics as the MySQL repository.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[uint64]model.RoomType
	users    map[uint64]model.User
	orders   map[uint64]*model.Order
	items    map[uint64][]model.OrderItem
	payments map[uint64]model.Payment
	nextID   uint64
}

func newFakeStore(rooms map[uint64]model.RoomType) *fakeStore {
	return &fakeStore{
		rooms:    rooms,
		users:    map[uint64]model.User{},
		orders:   map[uint64]*model.Order{},
		items:    map[uint64][]model.OrderItem{},
		payments: map[uint64]model.Payment{},
	}
}

func (f *fakeStore) RoomTypeByID(_ context.Context, id uint64) (model.RoomType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.rooms[id]
	if !ok {
		return model.RoomType{}, repository.ErrRoomTypeNotFound
	}
	return rt, nil
}

func (f *fakeStore) UserByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, o *model.Order, items []model.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	o.CreatedAt = time.Now().UTC()
	cp := *o
	f.orders[o.ID] = &cp
	f.items[o.ID] = items
	return nil
}

func (f *fakeStore) OrderByID(_ context.Context, id uint64) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, repository.ErrOrderNotFound
	}
	return *o, nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, orderID uint64, pay model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != model.OrderStatusPending {
		return repository.ErrStateConflict
	}
	o.Status = model.OrderStatusPaid
	f.payments[orderID] = pay
	return nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID uint64, reason, expectedStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != expectedStatus {
		return repository.ErrStateConflict
	}
	o.Status = model.OrderStatusCanceled
	o.CancelReason = &reason
	return nil
}

func (f *fakeStore) PaymentByOrder(_ context.Context, orderID uint64) (model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return model.Payment{}, repository.ErrPaymentNotFound
	}
	return p, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	confirms    int
	cancels     int
	confirmErr  error
	cancelErr   error
	lastConfirm payment.ConfirmRequest
	lastCancel  string
	method      string
}

func (g *fakeGateway) Confirm(_ context.Context, req payment.ConfirmRequest) (*payment.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	g.lastConfirm = req
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &payment.Settlement{
		PaymentKey:  req.PaymentKey,
		OrderID:     req.OrderID,
		Method:      g.method,
		TotalAmount: req.Amount,
		Status:      "DONE",
		RequestedAt: now.Add(-time.Minute),
		ApprovedAt:  now,
	}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, paymentKey, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	g.lastCancel = paymentKey
	return g.cancelErr
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.OrderPaidEvent
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, ev queue.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func testRooms() map[uint64]model.RoomType {
	return map[uint64]model.RoomType{
		1: {ID: 1, ProductID: 1, Name: "디럭스 더블", Price: 100, Capacity: 2},
		2: {ID: 2, ProductID: 1, Name: "스위트", Price: 250, Capacity: 4},
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
}

func newTestService(store *fakeStore, gw *fakeGateway, pub *fakePublisher) *OrderService {
	var p Publisher
	if pub != nil {
		p = pub
	}
	svc := NewOrderService(store, gw, p)
	svc.now = fixedNow
	return svc
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		RecipientName:  "홍길동",
		RecipientPhone: "010-1234-5678",
		AdultNum:       2,
		CheckInDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		CheckOutDate:   time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		Items:          []OrderItemInput{{RoomTypeID: 1, Quantity: 2}},
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("freezes line prices as price*quantity*nights", func(t *testing.T) {
		store := newFakeStore(testRooms())
		svc := newTestService(store, &fakeGateway{}, nil)

		// 100 per night * 2 rooms * 2 nights = 400
		info, err := svc.CreateOrder(context.Background(), 7, validInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.TotalPrice != 400 {
			t.Fatalf("expected total 400, got %d", info.TotalPrice)
		}
		if info.OrderName != "디럭스 더블" {
			t.Fatalf("unexpected order name %q", info.OrderName)
		}

		o := store.orders[info.OrderID]
		if o.Status != model.OrderStatusPending {
			t.Fatalf("expected PENDING, got %s", o.Status)
		}
		if o.TotalPrice != 400 {
			t.Fatalf("expected stored total 400, got %d", o.TotalPrice)
		}
		items := store.items[info.OrderID]
		if len(items) != 1 || items[0].Price != 400 {
			t.Fatalf("unexpected items %+v", items)
		}
	})

	t.Run("multi-item order name uses first room plus count suffix", func(t *testing.T) {
		store := newFakeStore(testRooms())
		svc := newTestService(store, &fakeGateway{}, nil)

		in := validInput()
		in.Items = []OrderItemInput{{RoomTypeID: 1, Quantity: 1}, {RoomTypeID: 2, Quantity: 1}}
		info, err := svc.CreateOrder(context.Background(), 7, in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.OrderName != "디럭스 더블 외 1건" {
			t.Fatalf("unexpected order name %q", info.OrderName)
		}
		// (100 + 250) * 2 nights
		if info.TotalPrice != 700 {
			t.Fatalf("expected total 700, got %d", info.TotalPrice)
		}
	})

	t.Run("price change after intake does not affect the stored total", func(t *testing.T) {
		store := newFakeStore(testRooms())
		svc := newTestService(store, &fakeGateway{}, nil)

		info, err := svc.CreateOrder(context.Background(), 7, validInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rt := store.rooms[1]
		rt.Price = 999
		store.rooms[1] = rt

		o, _ := store.OrderByID(context.Background(), info.OrderID)
		if o.TotalPrice != 400 {
			t.Fatalf("expected frozen total 400, got %d", o.TotalPrice)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		store := newFakeStore(testRooms())
		svc := newTestService(store, &fakeGateway{}, nil)
		ctx := context.Background()

		cases := []struct {
			name   string
			mutate func(*CreateOrderInput)
			want   error
		}{
			{"missing recipient", func(in *CreateOrderInput) { in.RecipientName = "" }, ErrRecipientRequired},
			{"zero adults", func(in *CreateOrderInput) { in.AdultNum = 0 }, ErrInvalidGuestCount},
			{"no items", func(in *CreateOrderInput) { in.Items = nil }, ErrNoItems},
			{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, ErrInvalidQuantity},
			{"check-in in the past", func(in *CreateOrderInput) {
				in.CheckInDate = time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
			}, ErrCheckInPast},
			{"check-out not after check-in", func(in *CreateOrderInput) {
				in.CheckOutDate = in.CheckInDate
			}, ErrInvalidStayRange},
			{"unknown room type", func(in *CreateOrderInput) {
				in.Items[0].RoomTypeID = 99
			}, repository.ErrRoomTypeNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				in := validInput()
				tc.mutate(&in)
				if _, err := svc.CreateOrder(ctx, 7, in); !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				if len(store.orders) != 0 {
					t.Fatalf("expected no order persisted")
				}
			})
		}
	})

	t.Run("same-day check-in is allowed", func(t *testing.T) {
		store := newFakeStore(testRooms())
		svc := newTestService(store, &fakeGateway{}, nil)

		in := validInput()
		in.CheckInDate = time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC) // today, later hour
		in.CheckOutDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		if _, err := svc.CreateOrder(context.Background(), 7, in); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestOrderService_ConfirmPayment(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, pub *fakePublisher) (*OrderService, *fakeStore, *fakeGateway, uint64) {
		t.Helper()
		store := newFakeStore(testRooms())
		gw := &fakeGateway{method: "카드"}
		svc := newTestService(store, gw, pub)
		info, err := svc.CreateOrder(context.Background(), 7, validInput())
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
		return svc, store, gw, info.OrderID
	}

	t.Run("settles a pending order", func(t *testing.T) {
		pub := &fakePublisher{}
		svc, store, gw, orderID := setup(t, pub)

		res, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 400,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Order.Status != model.OrderStatusPaid {
			t.Fatalf("expected PAID, got %s", res.Order.Status)
		}
		if gw.lastConfirm.OrderID != strconv.FormatUint(orderID, 10) {
			t.Fatalf("gateway got order id %q", gw.lastConfirm.OrderID)
		}
		p := store.payments[orderID]
		if p.PaymentKey != "pay_abc" || p.Amount != 400 || p.Method != "카드" {
			t.Fatalf("unexpected payment %+v", p)
		}
		if len(pub.events) != 1 {
			t.Fatalf("expected 1 paid event, got %d", len(pub.events))
		}
		if pub.events[0].OrderID != orderID || pub.events[0].Amount != 400 {
			t.Fatalf("unexpected event %+v", pub.events[0])
		}
	})

	t.Run("defaults the method when the gateway omits it", func(t *testing.T) {
		svc, store, gw, orderID := setup(t, nil)
		gw.method = ""

		if _, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 400,
		}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m := store.payments[orderID].Method; m != "간편결제" {
			t.Fatalf("expected default method, got %q", m)
		}
	})

	t.Run("amount mismatch never reaches the gateway", func(t *testing.T) {
		svc, store, gw, orderID := setup(t, nil)

		_, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 399,
		})
		if !errors.Is(err, ErrAmountMismatch) {
			t.Fatalf("expected ErrAmountMismatch, got %v", err)
		}
		if gw.confirms != 0 {
			t.Fatalf("gateway must not be called on mismatch")
		}
		if o := store.orders[orderID]; o.Status != model.OrderStatusPending {
			t.Fatalf("order must stay PENDING, got %s", o.Status)
		}
	})

	t.Run("second confirmation is rejected without a second charge", func(t *testing.T) {
		svc, store, gw, orderID := setup(t, nil)

		in := ConfirmInput{PaymentKey: "pay_abc", OrderID: orderID, Amount: 400}
		if _, err := svc.ConfirmPayment(context.Background(), 7, in); err != nil {
			t.Fatalf("first confirm: %v", err)
		}
		_, err := svc.ConfirmPayment(context.Background(), 7, in)
		if !errors.Is(err, ErrAlreadySettled) {
			t.Fatalf("expected ErrAlreadySettled, got %v", err)
		}
		if gw.confirms != 1 {
			t.Fatalf("expected 1 gateway confirm, got %d", gw.confirms)
		}
		if len(store.payments) != 1 {
			t.Fatalf("expected exactly one payment row, got %d", len(store.payments))
		}
	})

	t.Run("canceled order cannot be confirmed", func(t *testing.T) {
		svc, _, gw, orderID := setup(t, nil)
		if err := svc.CancelOrder(context.Background(), 7, orderID, "단순 변심"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 400,
		})
		if !errors.Is(err, repository.ErrStateConflict) {
			t.Fatalf("expected ErrStateConflict, got %v", err)
		}
		if gw.confirms != 0 {
			t.Fatalf("gateway must not be called for canceled orders")
		}
	})

	t.Run("gateway rejection leaves the order pending", func(t *testing.T) {
		svc, store, gw, orderID := setup(t, nil)
		gwErr := &payment.GatewayError{Status: 400, Code: "INVALID_PAYMENT_KEY", Message: "invalid key"}
		gw.confirmErr = gwErr

		_, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_bad", OrderID: orderID, Amount: 400,
		})
		var ge *payment.GatewayError
		if !errors.As(err, &ge) || ge.Code != "INVALID_PAYMENT_KEY" {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if o := store.orders[orderID]; o.Status != model.OrderStatusPending {
			t.Fatalf("order must stay PENDING after gateway failure, got %s", o.Status)
		}
		if len(store.payments) != 0 {
			t.Fatalf("no payment row must exist")
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _, _, _ := setup(t, nil)
		_, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: 999, Amount: 400,
		})
		if !errors.Is(err, repository.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

// Concurrent confirmations of one order must produce exactly one
// settled payment; every loser sees a conflict error.
func TestOrderService_ConfirmPayment_Concurrent(t *testing.T) {
	store := newFakeStore(testRooms())
	gw := &fakeGateway{method: "카드"}
	pub := &fakePublisher{}
	svc := newTestService(store, gw, pub)

	info, err := svc.CreateOrder(context.Background(), 7, validInput())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
				PaymentKey: "pay_abc", OrderID: info.OrderID, Amount: 400,
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadySettled), errors.Is(err, repository.ErrStateConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if len(store.payments) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(store.payments))
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly one paid event, got %d", len(pub.events))
	}
	if store.orders[info.OrderID].Status != model.OrderStatusPaid {
		t.Fatalf("order must end PAID")
	}
}

// settleMidCancelStore fires a one-shot callback right after a
// status read returns its snapshot, letting a test land a settle
// between a cancel's read and its conditional write.  The callback
// is disarmed before it runs so its own reads do not re-trigger it.
type settleMidCancelStore struct {
	*fakeStore
	mu     sync.Mutex
	armed  bool
	settle func()
}

func (s *settleMidCancelStore) OrderByID(ctx context.Context, id uint64) (model.Order, error) {
	o, err := s.fakeStore.OrderByID(ctx, id)
	s.mu.Lock()
	fire := s.armed
	s.armed = false
	s.mu.Unlock()
	if fire {
		s.settle()
	}
	return o, err
}

func TestOrderService_CancelOrder(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*OrderService, *fakeStore, *fakeGateway, uint64) {
		t.Helper()
		store := newFakeStore(testRooms())
		gw := &fakeGateway{method: "카드"}
		svc := newTestService(store, gw, nil)
		info, err := svc.CreateOrder(context.Background(), 7, validInput())
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
		return svc, store, gw, info.OrderID
	}

	t.Run("pending order cancels without touching the gateway", func(t *testing.T) {
		svc, store, gw, orderID := setup(t)

		if err := svc.CancelOrder(context.Background(), 7, orderID, "일정 변경"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		o := store.orders[orderID]
		if o.Status != model.OrderStatusCanceled {
			t.Fatalf("expected CANCELED, got %s", o.Status)
		}
		if o.CancelReason == nil || *o.CancelReason != "일정 변경" {
			t.Fatalf("cancel reason not recorded")
		}
		if gw.cancels != 0 {
			t.Fatalf("gateway cancel must not run for pending orders")
		}
	})

	t.Run("paid order refunds through the gateway first", func(t *testing.T) {
		svc, store, gw, orderID := setup(t)
		if _, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 400,
		}); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		if err := svc.CancelOrder(context.Background(), 7, orderID, "개인 사정"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gw.cancels != 1 || gw.lastCancel != "pay_abc" {
			t.Fatalf("expected refund via pay_abc, got cancels=%d key=%q", gw.cancels, gw.lastCancel)
		}
		if store.orders[orderID].Status != model.OrderStatusCanceled {
			t.Fatalf("expected CANCELED")
		}
	})

	t.Run("refund failure aborts the cancellation", func(t *testing.T) {
		svc, store, gw, orderID := setup(t)
		if _, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
			PaymentKey: "pay_abc", OrderID: orderID, Amount: 400,
		}); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		gw.cancelErr = &payment.GatewayError{Status: 403, Code: "NOT_CANCELABLE", Message: "not cancelable"}

		err := svc.CancelOrder(context.Background(), 7, orderID, "개인 사정")
		var ge *payment.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if store.orders[orderID].Status != model.OrderStatusPaid {
			t.Fatalf("order must stay PAID when the refund fails")
		}
	})

	t.Run("settle landing mid-cancel still gets refunded", func(t *testing.T) {
		inner := newFakeStore(testRooms())
		gw := &fakeGateway{method: "카드"}
		store := &settleMidCancelStore{fakeStore: inner}
		svc := NewOrderService(store, gw, nil)
		svc.now = fixedNow

		info, err := svc.CreateOrder(context.Background(), 7, validInput())
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
		// A confirmation sneaks in after the cancel has read the
		// order as PENDING but before its conditional write runs.
		store.settle = func() {
			if _, err := svc.ConfirmPayment(context.Background(), 7, ConfirmInput{
				PaymentKey: "pay_abc", OrderID: info.OrderID, Amount: 400,
			}); err != nil {
				t.Errorf("mid-cancel settle: %v", err)
			}
		}
		store.armed = true

		if err := svc.CancelOrder(context.Background(), 7, info.OrderID, "단순 변심"); err != nil {
			t.Fatalf("expected cancel to recover and succeed, got %v", err)
		}
		if gw.cancels != 1 || gw.lastCancel != "pay_abc" {
			t.Fatalf("expected exactly one refund via pay_abc, got cancels=%d key=%q", gw.cancels, gw.lastCancel)
		}
		if o := inner.orders[info.OrderID]; o.Status != model.OrderStatusCanceled {
			t.Fatalf("expected CANCELED, got %s", o.Status)
		}
	})

	t.Run("cancel is terminal", func(t *testing.T) {
		svc, _, _, orderID := setup(t)
		if err := svc.CancelOrder(context.Background(), 7, orderID, "일정 변경"); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if err := svc.CancelOrder(context.Background(), 7, orderID, "다시"); !errors.Is(err, repository.ErrStateConflict) {
			t.Fatalf("expected ErrStateConflict, got %v", err)
		}
	})

	t.Run("only the owner may cancel", func(t *testing.T) {
		svc, _, _, orderID := setup(t)
		if err := svc.CancelOrder(context.Background(), 8, orderID, "남의 주문"); !errors.Is(err, repository.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("reason is required", func(t *testing.T) {
		svc, _, _, orderID := setup(t)
		if err := svc.CancelOrder(context.Background(), 7, orderID, ""); !errors.Is(err, ErrReasonRequired) {
			t.Fatalf("expected ErrReasonRequired, got %v", err)
		}
	})
}
