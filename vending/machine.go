// Package vending implements the vending machine's inventory and ledger
// rules on top of an injected store.
//
// Machine serializes every operation through one lock. Each call loads the
// collections it needs from the store, applies its change and saves the
// result before the lock is released, so two purchases can never both take
// the last unit of a product.
package vending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arkantrust/vending-machine/backend/models"
	"github.com/arkantrust/vending-machine/backend/store"
)

// Machine is the vending machine's repository.
type Machine struct {
	mu    sync.Mutex
	store store.Store
	now   func() time.Time
	newID func() string
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock overrides the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides how transaction ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

// New returns a Machine backed by s.
func New(s store.Store, opts ...Option) *Machine {
	m := &Machine{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetInventory returns every product, read fresh from the store.
func (m *Machine) GetInventory(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadInventory(ctx)
}

// FindProduct looks a product up by name, ignoring case.
func (m *Machine) FindProduct(ctx context.Context, name string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inventory, err := m.loadInventory(ctx)
	if err != nil {
		return nil, err
	}
	i := models.FindProduct(inventory, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrProductNotFound, name)
	}
	p := inventory[i]
	return &p, nil
}

// UpdateInventory takes one unit of the named product out of stock. Unknown
// names and products already at zero are left alone.
func (m *Machine) UpdateInventory(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inventory, err := m.loadInventory(ctx)
	if err != nil {
		return err
	}
	i := models.FindProduct(inventory, name)
	if i < 0 || inventory[i].Quantity <= 0 {
		return nil
	}
	inventory[i].Quantity--
	return m.saveInventory(ctx, inventory)
}

// RecordTransaction appends t to the ledger. It stamps the timestamp and,
// when t has none, a fresh id. The stored transaction is returned.
func (m *Machine) RecordTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(ctx, t)
}

// RefundTransaction reverses the first ledger entry matching t and reports
// whether one was found. When t carries an id only that entry matches;
// otherwise the entry must have the same item sequence and amount paid.
// Every item of the entry that still exists goes back into stock and the
// entry is removed from the ledger.
func (m *Machine) RefundTransaction(ctx context.Context, t models.Transaction) (models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, err := m.loadLedger(ctx)
	if err != nil {
		return models.Transaction{}, false, err
	}
	idx := matchIndex(ledger, t)
	if idx < 0 {
		return models.Transaction{}, false, nil
	}
	refunded := ledger[idx]

	inventory, err := m.loadInventory(ctx)
	if err != nil {
		return models.Transaction{}, false, err
	}
	for _, item := range refunded.Items {
		if i := models.FindProduct(inventory, item); i >= 0 {
			inventory[i].Quantity++
		}
	}
	if err := m.saveInventory(ctx, inventory); err != nil {
		return models.Transaction{}, false, err
	}

	ledger = append(ledger[:idx], ledger[idx+1:]...)
	if err := m.saveLedger(ctx, ledger); err != nil {
		return models.Transaction{}, false, err
	}
	return refunded, true, nil
}

// GetAllTransactions returns the whole ledger, oldest first.
func (m *Machine) GetAllTransactions(ctx context.Context) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLedger(ctx)
}

// GetTransaction returns the ledger entry at position index. Positions shift
// when earlier entries are refunded; GetTransactionByID does not.
func (m *Machine) GetTransaction(ctx context.Context, index int) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, err := m.loadLedger(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ledger) {
		return nil, fmt.Errorf("%w: index %d", ErrTransactionNotFound, index)
	}
	t := ledger[index]
	return &t, nil
}

// GetTransactionByID returns the ledger entry with the given id.
func (m *Machine) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledger, err := m.loadLedger(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range ledger {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: id %q", ErrTransactionNotFound, id)
}

// Purchase validates t against the current inventory, takes one unit of
// stock per listed item and records the transaction.
//
// Validation happens before anything is written: an empty item list yields
// ErrInvalidTransaction, a missing or short product an *OutOfStockError, and
// a payment below the summed unit prices ErrInsufficientFunds.
func (m *Machine) Purchase(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if len(t.Items) == 0 {
		return models.Transaction{}, ErrInvalidTransaction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inventory, err := m.loadInventory(ctx)
	if err != nil {
		return models.Transaction{}, err
	}

	// Demand is counted per resolved product, so names that differ only in
	// case (or case folding) draw on the same stock.
	slots := make([]int, len(t.Items))
	demand := make(map[int]int)
	total := decimal.Zero
	for n, item := range t.Items {
		i := models.FindProduct(inventory, item)
		if i < 0 {
			return models.Transaction{}, &OutOfStockError{Item: item}
		}
		demand[i]++
		if inventory[i].Quantity < demand[i] {
			return models.Transaction{}, &OutOfStockError{Item: item}
		}
		slots[n] = i
		total = total.Add(inventory[i].Price)
	}
	if t.AmountPaid.LessThan(total) {
		return models.Transaction{}, ErrInsufficientFunds
	}

	for _, i := range slots {
		inventory[i].Quantity--
	}
	if err := m.saveInventory(ctx, inventory); err != nil {
		return models.Transaction{}, err
	}

	// Ids are always assigned here; a client cannot pick its own.
	t.ID = ""
	return m.record(ctx, t)
}

// Refund reverses a recorded purchase. It fails with ErrInvalidTransaction
// when t names neither an id nor any items, and ErrTransactionNotFound when
// nothing in the ledger matches.
func (m *Machine) Refund(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if len(t.Items) == 0 && t.ID == "" {
		return models.Transaction{}, ErrInvalidTransaction
	}
	refunded, ok, err := m.RefundTransaction(ctx, t)
	if err != nil {
		return models.Transaction{}, err
	}
	if !ok {
		return models.Transaction{}, ErrTransactionNotFound
	}
	return refunded, nil
}

func (m *Machine) record(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	ledger, err := m.loadLedger(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = m.newID()
	}
	t.Items = append([]string(nil), t.Items...)
	t.Timestamp = m.now()

	ledger = append(ledger, t)
	if err := m.saveLedger(ctx, ledger); err != nil {
		return models.Transaction{}, err
	}
	return t, nil
}

func matchIndex(ledger []models.Transaction, t models.Transaction) int {
	for i, entry := range ledger {
		if t.ID != "" {
			if entry.ID == t.ID {
				return i
			}
			continue
		}
		if entry.SameAs(t) {
			return i
		}
	}
	return -1
}

func (m *Machine) loadInventory(ctx context.Context) ([]models.Product, error) {
	inventory, err := m.store.LoadInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return inventory, nil
}

func (m *Machine) saveInventory(ctx context.Context, inventory []models.Product) error {
	if err := m.store.SaveInventory(ctx, inventory); err != nil {
		return fmt.Errorf("save inventory: %w", err)
	}
	return nil
}

func (m *Machine) loadLedger(ctx context.Context) ([]models.Transaction, error) {
	ledger, err := m.store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return ledger, nil
}

func (m *Machine) saveLedger(ctx context.Context, ledger []models.Transaction) error {
	if err := m.store.SaveLedger(ctx, ledger); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
