package store

import (
	"context"
	"sync"

	"github.com/arkantrust/vending-machine/backend/models"
)

// MemoryStore keeps inventory and ledger in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	inventory []models.Product
	ledger    []models.Transaction
}

// NewMemory returns a MemoryStore holding seed and an empty ledger.
func NewMemory(seed []models.Product) *MemoryStore {
	return &MemoryStore{inventory: cloneProducts(seed)}
}

// LoadInventory returns a copy of the held inventory.
func (m *MemoryStore) LoadInventory(ctx context.Context) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneProducts(m.inventory), nil
}

// SaveInventory stores a copy of products.
func (m *MemoryStore) SaveInventory(ctx context.Context, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory = cloneProducts(products)
	return nil
}

// LoadLedger returns a copy of the held ledger.
func (m *MemoryStore) LoadLedger(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneLedger(m.ledger), nil
}

// SaveLedger stores a copy of ledger.
func (m *MemoryStore) SaveLedger(ctx context.Context, ledger []models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = cloneLedger(ledger)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
