package model

import "time"

// Order status values.  An order starts as PENDING when the
// customer submits the cart, becomes PAID exactly once when the
// payment gateway approves the settlement, and ends as CANCELED
// either before or after payment.  CANCELED is terminal.
const (
    OrderStatusPending  = "PENDING"
    OrderStatusPaid     = "PAID"
    OrderStatusCanceled = "CANCELED"
)

// Order represents one purchase attempt for a hotel stay.  The
// total price is computed at intake from the room-type prices and
// the length of stay and is never recomputed afterwards.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – user who created the order.
//  RecipientName  – name of the guest checking in.
//  RecipientPhone – contact phone for the stay.
//  AdultNum       – number of adult guests.
//  ChildrenNum    – number of child guests.
//  CheckInDate    – first night of the stay (date only, UTC midnight).
//  CheckOutDate   – check-out day; strictly after CheckInDate.
//  TotalPrice     – sum of all item prices in won.
//  Status         – PENDING, PAID or CANCELED.
//  CancelReason   – reason supplied at cancellation (nullable).
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Order struct {
    ID             uint64     // orders.id
    UserID         uint64     // orders.user_id
    RecipientName  string     // orders.recipient_name
    RecipientPhone string     // orders.recipient_phone
    AdultNum       int        // orders.adult_num
    ChildrenNum    int        // orders.children_num
    CheckInDate    time.Time  // orders.check_in_date
    CheckOutDate   time.Time  // orders.check_out_date
    TotalPrice     int64      // orders.total_price
    Status         string     // orders.status
    CancelReason   *string    // orders.cancel_reason (nullable)
    CreatedAt      time.Time  // orders.created_at
    UpdatedAt      time.Time  // orders.updated_at
}

// OrderItem is one line of an order.  The price is frozen at
// order-creation time (unit price × quantity × nights) so later
// room-type price changes never affect an existing order.
//
// Fields:
//  ID         – primary key identifier.
//  OrderID    – owning order.
//  RoomTypeID – room type that was booked.
//  Quantity   – number of rooms of this type; at least 1.
//  Price      – frozen line total in won.
type OrderItem struct {
    ID         uint64 // order_items.id
    OrderID    uint64 // order_items.order_id
    RoomTypeID uint64 // order_items.room_type_id
    Quantity   int    // order_items.quantity
    Price      int64  // order_items.price
}

// Payment records a gateway settlement for an order.  Exactly one
// payment row exists per order and it is created inside the same
// transaction that flips the order to PAID.  The amount always
// equals the order's total price.
//
// Fields:
//  ID          – primary key identifier.
//  OrderID     – settled order (unique).
//  PaymentKey  – gateway key identifying the settlement; needed for refunds.
//  Method      – payment method reported by the gateway.
//  Amount      – settled amount in won.
//  Status      – settlement status (PAID).
//  RequestedAt – when the payment was requested at the gateway.
//  ApprovedAt  – when the gateway approved the payment.
//  CreatedAt   – creation timestamp.
type Payment struct {
    ID          uint64    // payments.id
    OrderID     uint64    // payments.order_id
    PaymentKey  string    // payments.payment_key
    Method      string    // payments.method
    Amount      int64     // payments.amount
    Status      string    // payments.status
    RequestedAt time.Time // payments.requested_at
    ApprovedAt  time.Time // payments.approved_at
    CreatedAt   time.Time // payments.created_at
}
