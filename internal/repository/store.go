package repository

import (
	"context"
	"database/sql"

	"github.com/hyunsoo-lee/roomstay/internal/model"
)

// Store bundles the repositories the order workflow depends on
// behind one value.  The service layer consumes it through its own
// interface so tests can substitute an in-memory fake.
type Store struct {
	Orders    *OrderRepo
	RoomTypes *RoomTypeRepo
	Users     *UserRepo
}

// NewStore wires a Store over one database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Orders:    NewOrderRepo(db),
		RoomTypes: NewRoomTypeRepo(db),
		Users:     NewUserRepo(db),
	}
}

func (s *Store) RoomTypeByID(ctx context.Context, id uint64) (model.RoomType, error) {
	return s.RoomTypes.GetByID(ctx, id)
}

func (s *Store) UserByID(ctx context.Context, id uint64) (model.User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *Store) CreateOrder(ctx context.Context, o *model.Order, items []model.OrderItem) error {
	return s.Orders.Create(ctx, o, items)
}

func (s *Store) OrderByID(ctx context.Context, id uint64) (model.Order, error) {
	return s.Orders.GetByID(ctx, id)
}

func (s *Store) MarkOrderPaid(ctx context.Context, orderID uint64, pay model.Payment) error {
	return s.Orders.MarkPaid(ctx, orderID, pay)
}

func (s *Store) CancelOrder(ctx context.Context, orderID uint64, reason, expectedStatus string) error {
	return s.Orders.Cancel(ctx, orderID, reason, expectedStatus)
}

func (s *Store) PaymentByOrder(ctx context.Context, orderID uint64) (model.Payment, error) {
	return s.Orders.PaymentByOrder(ctx, orderID)
}
