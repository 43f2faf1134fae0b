// Package orders persists the CRM's business data. Orders belong to the
// authenticated identity's name; the store has no notion of sessions or
// credentials.
package orders

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an order does not exist or belongs to
// another user. Callers cannot tell the two cases apart.
var ErrNotFound = errors.New("order not found")

// Order is one CRM order row.
type Order struct {
	ID       string  `json:"_id,omitempty" bson:"-"`
	Username string  `json:"username" bson:"username"`
	Item     string  `json:"item" bson:"item"`
	Price    float64 `json:"price" bson:"price"`
}

// Update carries the mutable order fields; zero values are left untouched.
type Update struct {
	Item  string
	Price float64
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.Item == "" && u.Price == 0
}

// Store defines how orders are stored and retrieved. Backends must scope
// every operation to the owning username.
type Store interface {
	Create(ctx context.Context, order Order) (string, error)
	ListByUser(ctx context.Context, username string) ([]Order, error)
	Update(ctx context.Context, id, username string, update Update) error
	Delete(ctx context.Context, id, username string) error
	Ping(ctx context.Context) error
}
