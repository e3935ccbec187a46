// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderPaidEvent is published when a payment is confirmed and the
// order transitions to PAID. It contains enough information for
// downstream consumers to log, notify, or trigger analytics without
// querying the primary database.
type OrderPaidEvent struct {
	OrderID       uint64 `json:"order_id"`
	UserID        uint64 `json:"user_id"`
	RecipientName string `json:"recipient_name"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	CheckInDate   string `json:"check_in_date"`
	CheckOutDate  string `json:"check_out_date"`
	ApprovedAt    string `json:"approved_at"`
}
