package repository

import (
    "context"
    "database/sql"

    "github.com/hyunsoo-lee/roomstay/internal/model"
)

// RoomTypeRepo provides read access to the room_types table.  The
// order workflow never writes room types; it only reads the current
// price and name at intake time.
type RoomTypeRepo struct {
    db *sql.DB
}

// NewRoomTypeRepo returns a new RoomTypeRepo bound to the given database.
func NewRoomTypeRepo(db *sql.DB) *RoomTypeRepo { return &RoomTypeRepo{db: db} }

// GetByID returns a single room type.  ErrRoomTypeNotFound is
// returned when no row exists.
func (r *RoomTypeRepo) GetByID(ctx context.Context, id uint64) (model.RoomType, error) {
    const q = `SELECT id, product_id, name, price, image, capacity, created_at
               FROM room_types WHERE id = ?`
    var rt model.RoomType
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &rt.ID, &rt.ProductID, &rt.Name, &rt.Price, &rt.Image, &rt.Capacity, &rt.CreatedAt,
    )
    if err == sql.ErrNoRows {
        return model.RoomType{}, ErrRoomTypeNotFound
    }
    if err != nil {
        return model.RoomType{}, err
    }
    return rt, nil
}

// RoomTypeListing is the public browse shape for a room type joined
// with its product.  Returned by List and GetListing for guests
// choosing a room before checkout.
type RoomTypeListing struct {
    ID          uint64 `json:"id"`
    Name        string `json:"name"`
    Price       int64  `json:"price"`
    Image       string `json:"image"`
    Capacity    int    `json:"capacity"`
    ProductID   uint64 `json:"product_id"`
    ProductName string `json:"product_name"`
}

// List returns all room types joined with their product names,
// ordered by product then price ascending.  The result feeds the
// public browse endpoint and is safe to cache.
func (r *RoomTypeRepo) List(ctx context.Context) ([]RoomTypeListing, error) {
    const q = `SELECT rt.id, rt.name, rt.price, rt.image, rt.capacity, p.id, p.name
               FROM room_types rt
               JOIN products p ON p.id = rt.product_id
               ORDER BY p.id, rt.price`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    listings := make([]RoomTypeListing, 0)
    for rows.Next() {
        var l RoomTypeListing
        if err := rows.Scan(&l.ID, &l.Name, &l.Price, &l.Image, &l.Capacity, &l.ProductID, &l.ProductName); err != nil {
            return nil, err
        }
        listings = append(listings, l)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return listings, nil
}

// GetListing returns the browse shape for one room type.
// ErrRoomTypeNotFound is returned when no row exists.
func (r *RoomTypeRepo) GetListing(ctx context.Context, id uint64) (*RoomTypeListing, error) {
    const q = `SELECT rt.id, rt.name, rt.price, rt.image, rt.capacity, p.id, p.name
               FROM room_types rt
               JOIN products p ON p.id = rt.product_id
               WHERE rt.id = ?`
    var l RoomTypeListing
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &l.ID, &l.Name, &l.Price, &l.Image, &l.Capacity, &l.ProductID, &l.ProductName,
    )
    if err == sql.ErrNoRows {
        return nil, ErrRoomTypeNotFound
    }
    if err != nil {
        return nil, err
    }
    return &l, nil
}
