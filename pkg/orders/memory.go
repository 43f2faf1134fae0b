package orders

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process order store for demos and tests. It mirrors
// the MongoStore contract, including the ownership scoping.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewMemoryStore creates an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]Order)}
}

// Create stores the order under a fresh ID.
func (s *MemoryStore) Create(ctx context.Context, order Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	order.ID = id
	s.orders[id] = order
	return id, nil
}

// ListByUser returns all orders owned by username.
func (s *MemoryStore) ListByUser(ctx context.Context, username string) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []Order{}
	for _, order := range s.orders {
		if order.Username == username {
			result = append(result, order)
		}
	}
	return result, nil
}

// Update applies non-zero fields, scoped to the owning username.
func (s *MemoryStore) Update(ctx context.Context, id, username string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.Username != username {
		return ErrNotFound
	}

	if update.Item != "" {
		order.Item = update.Item
	}
	if update.Price != 0 {
		order.Price = update.Price
	}
	s.orders[id] = order
	return nil
}

// Delete removes the order, scoped to the owning username.
func (s *MemoryStore) Delete(ctx context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.Username != username {
		return ErrNotFound
	}

	delete(s.orders, id)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
