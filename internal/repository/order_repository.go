package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/hyunsoo-lee/roomstay/internal/model"
)

// OrderRepo provides persistence for orders, their line items and
// payments.  Orders and their items are always written together in
// one transaction; status transitions are expressed as conditional
// UPDATE statements whose predicates include the expected current
// status, so racing writers cannot both win.  All timestamps are
// stored in UTC.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// Create inserts an order and all of its items as a single atomic
// unit.  It populates the generated ID and timestamps on the
// provided order.  Items must carry their frozen prices; this
// method does not compute prices.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order, items []model.OrderItem) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const ins = `INSERT INTO orders
        (user_id, recipient_name, recipient_phone, adult_num, children_num,
         check_in_date, check_out_date, total_price, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, ins,
        o.UserID, o.RecipientName, o.RecipientPhone, o.AdultNum, o.ChildrenNum,
        o.CheckInDate.UTC().Format("2006-01-02"), o.CheckOutDate.UTC().Format("2006-01-02"),
        o.TotalPrice, o.Status,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    o.ID = uint64(id)

    if len(items) > 0 {
        query := `INSERT INTO order_items (order_id, room_type_id, quantity, price) VALUES `
        args := make([]interface{}, 0, len(items)*4)
        for i, it := range items {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?)"
            args = append(args, o.ID, it.RoomTypeID, it.Quantity, it.Price)
        }
        if _, err := tx.ExecContext(ctx, query, args...); err != nil {
            return err
        }
    }

    // Query back the row to populate timestamps set by the database.
    const sel = `SELECT created_at, updated_at FROM orders WHERE id = ?`
    if err := tx.QueryRowContext(ctx, sel, o.ID).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
        return err
    }

    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// GetByID returns a single order row.  ErrOrderNotFound is returned
// when no order exists.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
    const q = `SELECT id, user_id, recipient_name, recipient_phone, adult_num, children_num,
                      check_in_date, check_out_date, total_price, status, cancel_reason,
                      created_at, updated_at
               FROM orders WHERE id = ?`
    var o model.Order
    var reason sql.NullString
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &o.ID, &o.UserID, &o.RecipientName, &o.RecipientPhone, &o.AdultNum, &o.ChildrenNum,
        &o.CheckInDate, &o.CheckOutDate, &o.TotalPrice, &o.Status, &reason,
        &o.CreatedAt, &o.UpdatedAt,
    )
    if err == sql.ErrNoRows {
        return model.Order{}, ErrOrderNotFound
    }
    if err != nil {
        return model.Order{}, err
    }
    if reason.Valid {
        cr := reason.String
        o.CancelReason = &cr
    }
    return o, nil
}

// MarkPaid transitions an order from PENDING to PAID and records
// its payment inside one transaction.  The UPDATE predicate
// includes status='PENDING' and the affected row count is checked,
// so when two confirmations race only one commits a payment row;
// the loser receives ErrStateConflict.  ErrOrderNotFound is
// returned when the order does not exist at all.
func (r *OrderRepo) MarkPaid(ctx context.Context, orderID uint64, pay model.Payment) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const upd = `UPDATE orders SET status = 'PAID' WHERE id = ? AND status = 'PENDING'`
    res, err := tx.ExecContext(ctx, upd, orderID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // Distinguish a missing order from one in the wrong state.
        var status string
        err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status)
        if err == sql.ErrNoRows {
            return ErrOrderNotFound
        }
        if err != nil {
            return err
        }
        return ErrStateConflict
    }

    const ins = `INSERT INTO payments
        (order_id, payment_key, method, amount, status, requested_at, approved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, ins,
        orderID, pay.PaymentKey, pay.Method, pay.Amount, pay.Status,
        pay.RequestedAt.UTC().Format("2006-01-02 15:04:05"),
        pay.ApprovedAt.UTC().Format("2006-01-02 15:04:05"),
    ); err != nil {
        return err
    }

    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// Cancel transitions an order to CANCELED and records the reason.
// The predicate is bound to the status the caller observed, so a
// concurrent transition in between makes the write lose with
// ErrStateConflict instead of silently canceling an order whose
// refund obligations were decided against a stale snapshot.  The
// caller is responsible for having completed any external refund
// first.
func (r *OrderRepo) Cancel(ctx context.Context, orderID uint64, reason, expectedStatus string) error {
    const upd = `UPDATE orders SET status = 'CANCELED', cancel_reason = ?
                 WHERE id = ? AND status = ?`
    res, err := r.db.ExecContext(ctx, upd, reason, orderID, expectedStatus)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        var status string
        err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status)
        if err == sql.ErrNoRows {
            return ErrOrderNotFound
        }
        if err != nil {
            return err
        }
        return ErrStateConflict
    }
    return nil
}

// PaymentByOrder returns the payment recorded for an order.
// ErrPaymentNotFound is returned when the order was never settled.
func (r *OrderRepo) PaymentByOrder(ctx context.Context, orderID uint64) (model.Payment, error) {
    const q = `SELECT id, order_id, payment_key, method, amount, status,
                      requested_at, approved_at, created_at
               FROM payments WHERE order_id = ?`
    var p model.Payment
    err := r.db.QueryRowContext(ctx, q, orderID).Scan(
        &p.ID, &p.OrderID, &p.PaymentKey, &p.Method, &p.Amount, &p.Status,
        &p.RequestedAt, &p.ApprovedAt, &p.CreatedAt,
    )
    if err == sql.ErrNoRows {
        return model.Payment{}, ErrPaymentNotFound
    }
    if err != nil {
        return model.Payment{}, err
    }
    return p, nil
}

// OrderItemDetail is one line item joined with its room type and
// product for display.
type OrderItemDetail struct {
    RoomTypeID   uint64 `json:"room_type_id"`
    RoomTypeName string `json:"room_type_name"`
    ProductName  string `json:"product_name"`
    Quantity     int    `json:"quantity"`
    Price        int64  `json:"price"`
}

// OrderDetail aggregates an order with its line items for customer
// listings and detail views.
type OrderDetail struct {
    ID             uint64            `json:"id"`
    Status         string            `json:"status"`
    TotalPrice     int64             `json:"total_price"`
    RecipientName  string            `json:"recipient_name"`
    RecipientPhone string            `json:"recipient_phone"`
    AdultNum       int               `json:"adult_num"`
    ChildrenNum    int               `json:"children_num"`
    CheckInDate    string            `json:"check_in_date"`
    CheckOutDate   string            `json:"check_out_date"`
    CancelReason   *string           `json:"cancel_reason,omitempty"`
    CreatedAt      string            `json:"created_at"`
    Items          []OrderItemDetail `json:"items"`
}

// DetailForUser returns a single order with items for the given
// user.  Ownership is enforced in the query: a foreign order is
// indistinguishable from a missing one and yields ErrOrderNotFound.
func (r *OrderRepo) DetailForUser(ctx context.Context, orderID, userID uint64) (*OrderDetail, error) {
    const q = `SELECT id, status, total_price, recipient_name, recipient_phone,
                      adult_num, children_num, check_in_date, check_out_date,
                      cancel_reason, created_at
               FROM orders WHERE id = ? AND user_id = ?`
    det, err := r.scanDetail(r.db.QueryRowContext(ctx, q, orderID, userID))
    if err != nil {
        return nil, err
    }
    if err := r.fillItems(ctx, []*OrderDetail{det}); err != nil {
        return nil, err
    }
    return det, nil
}

// ListByUser returns one page of the user's orders, newest first,
// together with the total row count for pagination.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, page, limit int) ([]OrderDetail, int, error) {
    var total int
    if err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM orders WHERE user_id = ?`, userID).Scan(&total); err != nil {
        return nil, 0, err
    }

    const q = `SELECT id, status, total_price, recipient_name, recipient_phone,
                      adult_num, children_num, check_in_date, check_out_date,
                      cancel_reason, created_at
               FROM orders WHERE user_id = ?
               ORDER BY created_at DESC, id DESC
               LIMIT ? OFFSET ?`
    rows, err := r.db.QueryContext(ctx, q, userID, limit, (page-1)*limit)
    if err != nil {
        return nil, 0, err
    }
    defer rows.Close()

    details := make([]OrderDetail, 0)
    for rows.Next() {
        det, err := r.scanDetail(rows)
        if err != nil {
            return nil, 0, err
        }
        details = append(details, *det)
    }
    if err := rows.Err(); err != nil {
        return nil, 0, err
    }

    ptrs := make([]*OrderDetail, len(details))
    for i := range details {
        ptrs[i] = &details[i]
    }
    if err := r.fillItems(ctx, ptrs); err != nil {
        return nil, 0, err
    }
    return details, total, nil
}

// rowScanner lets scanDetail work for both QueryRow and Query results.
type rowScanner interface {
    Scan(dest ...interface{}) error
}

func (r *OrderRepo) scanDetail(row rowScanner) (*OrderDetail, error) {
    var det OrderDetail
    var reason sql.NullString
    var checkIn, checkOut, createdAt time.Time
    err := row.Scan(
        &det.ID, &det.Status, &det.TotalPrice, &det.RecipientName, &det.RecipientPhone,
        &det.AdultNum, &det.ChildrenNum, &checkIn, &checkOut,
        &reason, &createdAt,
    )
    if err == sql.ErrNoRows {
        return nil, ErrOrderNotFound
    }
    if err != nil {
        return nil, err
    }
    det.CheckInDate = checkIn.UTC().Format("2006-01-02")
    det.CheckOutDate = checkOut.UTC().Format("2006-01-02")
    det.CreatedAt = createdAt.UTC().Format(time.RFC3339)
    if reason.Valid {
        cr := reason.String
        det.CancelReason = &cr
    }
    det.Items = []OrderItemDetail{}
    return &det, nil
}

// fillItems populates Items for all given orders in a single query.
func (r *OrderRepo) fillItems(ctx context.Context, details []*OrderDetail) error {
    if len(details) == 0 {
        return nil
    }
    ids := make([]interface{}, 0, len(details))
    placeholders := make([]string, 0, len(details))
    index := make(map[uint64]*OrderDetail, len(details))
    for _, d := range details {
        ids = append(ids, d.ID)
        placeholders = append(placeholders, "?")
        index[d.ID] = d
    }
    query := `SELECT oi.order_id, oi.room_type_id, rt.name, p.name, oi.quantity, oi.price
              FROM order_items oi
              JOIN room_types rt ON rt.id = oi.room_type_id
              JOIN products p ON p.id = rt.product_id
              WHERE oi.order_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY oi.order_id, oi.id`
    rows, err := r.db.QueryContext(ctx, query, ids...)
    if err != nil {
        return err
    }
    defer rows.Close()
    for rows.Next() {
        var orderID uint64
        var it OrderItemDetail
        if err := rows.Scan(&orderID, &it.RoomTypeID, &it.RoomTypeName, &it.ProductName, &it.Quantity, &it.Price); err != nil {
            return err
        }
        if d, ok := index[orderID]; ok {
            d.Items = append(d.Items, it)
        }
    }
    return rows.Err()
}

// AdminOrderFilter narrows the admin order listing.  Zero values
// mean "no filter".  Search matches recipient name or the ordering
// user's name/email.  The date range applies to created_at and
// EndDate is inclusive of the whole day.
type AdminOrderFilter struct {
    Status    string
    Search    string
    StartDate *time.Time
    EndDate   *time.Time
    Page      int
    Limit     int
}

// AdminOrderDetail extends OrderDetail with the ordering user and
// the payment when one exists.
type AdminOrderDetail struct {
    OrderDetail
    UserID    uint64  `json:"user_id"`
    UserName  string  `json:"user_name"`
    UserEmail string  `json:"user_email"`
    Payment   *struct {
        Method     string `json:"method"`
        Amount     int64  `json:"amount"`
        Status     string `json:"status"`
        ApprovedAt string `json:"approved_at"`
    } `json:"payment,omitempty"`
}

// ListAll returns one page of orders across all users for the admin
// console, applying the given filter.
func (r *OrderRepo) ListAll(ctx context.Context, f AdminOrderFilter) ([]AdminOrderDetail, int, error) {
    where := []string{"1=1"}
    args := []interface{}{}
    if f.Status != "" {
        where = append(where, "o.status = ?")
        args = append(args, f.Status)
    }
    if f.Search != "" {
        like := "%" + f.Search + "%"
        where = append(where, "(o.recipient_name LIKE ? OR u.name LIKE ? OR u.email LIKE ?)")
        args = append(args, like, like, like)
    }
    if f.StartDate != nil {
        where = append(where, "o.created_at >= ?")
        args = append(args, f.StartDate.UTC().Format("2006-01-02 15:04:05"))
    }
    if f.EndDate != nil {
        // include the whole end day
        end := f.EndDate.UTC().AddDate(0, 0, 1)
        where = append(where, "o.created_at < ?")
        args = append(args, end.Format("2006-01-02 15:04:05"))
    }
    cond := strings.Join(where, " AND ")

    var total int
    countQ := `SELECT COUNT(*) FROM orders o JOIN users u ON u.id = o.user_id WHERE ` + cond
    if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
        return nil, 0, err
    }

    listQ := `SELECT o.id, o.status, o.total_price, o.recipient_name, o.recipient_phone,
                     o.adult_num, o.children_num, o.check_in_date, o.check_out_date,
                     o.cancel_reason, o.created_at,
                     u.id, u.name, u.email,
                     pay.method, pay.amount, pay.status, pay.approved_at
              FROM orders o
              JOIN users u ON u.id = o.user_id
              LEFT JOIN payments pay ON pay.order_id = o.id
              WHERE ` + cond + `
              ORDER BY o.created_at DESC, o.id DESC
              LIMIT ? OFFSET ?`
    args = append(args, f.Limit, (f.Page-1)*f.Limit)
    rows, err := r.db.QueryContext(ctx, listQ, args...)
    if err != nil {
        return nil, 0, err
    }
    defer rows.Close()

    details := make([]AdminOrderDetail, 0)
    for rows.Next() {
        var d AdminOrderDetail
        var reason sql.NullString
        var checkIn, checkOut, createdAt time.Time
        var payMethod, payStatus sql.NullString
        var payAmount sql.NullInt64
        var payApproved sql.NullTime
        if err := rows.Scan(
            &d.ID, &d.Status, &d.TotalPrice, &d.RecipientName, &d.RecipientPhone,
            &d.AdultNum, &d.ChildrenNum, &checkIn, &checkOut,
            &reason, &createdAt,
            &d.UserID, &d.UserName, &d.UserEmail,
            &payMethod, &payAmount, &payStatus, &payApproved,
        ); err != nil {
            return nil, 0, err
        }
        d.CheckInDate = checkIn.UTC().Format("2006-01-02")
        d.CheckOutDate = checkOut.UTC().Format("2006-01-02")
        d.CreatedAt = createdAt.UTC().Format(time.RFC3339)
        if reason.Valid {
            cr := reason.String
            d.CancelReason = &cr
        }
        d.Items = []OrderItemDetail{}
        if payMethod.Valid {
            p := &struct {
                Method     string `json:"method"`
                Amount     int64  `json:"amount"`
                Status     string `json:"status"`
                ApprovedAt string `json:"approved_at"`
            }{Method: payMethod.String, Amount: payAmount.Int64, Status: payStatus.String}
            if payApproved.Valid {
                p.ApprovedAt = payApproved.Time.UTC().Format(time.RFC3339)
            }
            d.Payment = p
        }
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, 0, err
    }

    ptrs := make([]*OrderDetail, len(details))
    for i := range details {
        ptrs[i] = &details[i].OrderDetail
    }
    if err := r.fillItems(ctx, ptrs); err != nil {
        return nil, 0, err
    }
    return details, total, nil
}

// AdminDetail returns one order regardless of owner, with the
// ordering user and the payment when one exists.
func (r *OrderRepo) AdminDetail(ctx context.Context, orderID uint64) (*AdminOrderDetail, error) {
    const q = `SELECT o.id, o.status, o.total_price, o.recipient_name, o.recipient_phone,
                      o.adult_num, o.children_num, o.check_in_date, o.check_out_date,
                      o.cancel_reason, o.created_at,
                      u.id, u.name, u.email,
                      pay.method, pay.amount, pay.status, pay.approved_at
               FROM orders o
               JOIN users u ON u.id = o.user_id
               LEFT JOIN payments pay ON pay.order_id = o.id
               WHERE o.id = ?`

    var d AdminOrderDetail
    var reason sql.NullString
    var checkIn, checkOut, createdAt time.Time
    var payMethod, payStatus sql.NullString
    var payAmount sql.NullInt64
    var payApproved sql.NullTime
    err := r.db.QueryRowContext(ctx, q, orderID).Scan(
        &d.ID, &d.Status, &d.TotalPrice, &d.RecipientName, &d.RecipientPhone,
        &d.AdultNum, &d.ChildrenNum, &checkIn, &checkOut,
        &reason, &createdAt,
        &d.UserID, &d.UserName, &d.UserEmail,
        &payMethod, &payAmount, &payStatus, &payApproved,
    )
    if err == sql.ErrNoRows {
        return nil, ErrOrderNotFound
    }
    if err != nil {
        return nil, err
    }
    d.CheckInDate = checkIn.UTC().Format("2006-01-02")
    d.CheckOutDate = checkOut.UTC().Format("2006-01-02")
    d.CreatedAt = createdAt.UTC().Format(time.RFC3339)
    if reason.Valid {
        cr := reason.String
        d.CancelReason = &cr
    }
    d.Items = []OrderItemDetail{}
    if payMethod.Valid {
        p := &struct {
            Method     string `json:"method"`
            Amount     int64  `json:"amount"`
            Status     string `json:"status"`
            ApprovedAt string `json:"approved_at"`
        }{Method: payMethod.String, Amount: payAmount.Int64, Status: payStatus.String}
        if payApproved.Valid {
            p.ApprovedAt = payApproved.Time.UTC().Format(time.RFC3339)
        }
        d.Payment = p
    }
    if err := r.fillItems(ctx, []*OrderDetail{&d.OrderDetail}); err != nil {
        return nil, err
    }
    return &d, nil
}

// UpdateStatus is the admin status override.  Transitions out of
// CANCELED remain illegal even for admins, and so is moving an
// unpaid order to PAID: a PAID order must always carry the payment
// row that only the settlement path writes.  Both attempts yield
// ErrStateConflict.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID uint64, status string) error {
    const upd = `UPDATE orders SET status = ?
                 WHERE id = ? AND status <> 'CANCELED'
                   AND (? <> 'PAID' OR status = 'PAID')`
    res, err := r.db.ExecContext(ctx, upd, status, orderID, status)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        var cur string
        err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&cur)
        if err == sql.ErrNoRows {
            return ErrOrderNotFound
        }
        if err != nil {
            return err
        }
        // Row exists but was CANCELED, or the status matched already;
        // MySQL reports 0 affected rows when values are unchanged too.
        if cur == status {
            return nil
        }
        return ErrStateConflict
    }
    return nil
}
