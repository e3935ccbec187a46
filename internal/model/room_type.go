package model

import "time"

// Product represents a hotel listing.  Room types belong to a
// product; the order workflow only reads product names for display.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – hotel name shown to customers.
//  Description – free-form description.
//  CreatedAt   – creation timestamp.
type Product struct {
    ID          uint64    // products.id
    Name        string    // products.name
    Description string    // products.description
    CreatedAt   time.Time // products.created_at
}

// RoomType is a bookable room category of a product.  The order
// workflow treats room types as read-only input: it looks up the
// current price and name at intake and freezes them into the order
// items.
//
// Fields:
//  ID        – primary key identifier.
//  ProductID – owning product.
//  Name      – room type name (e.g. "디럭스 더블").
//  Price     – price per room per night in won.
//  Image     – image URL for the payment/booking UI.
//  Capacity  – maximum guests per room.
//  CreatedAt – creation timestamp.
type RoomType struct {
    ID        uint64    // room_types.id
    ProductID uint64    // room_types.product_id
    Name      string    // room_types.name
    Price     int64     // room_types.price
    Image     string    // room_types.image
    Capacity  int       // room_types.capacity
    CreatedAt time.Time // room_types.created_at
}
