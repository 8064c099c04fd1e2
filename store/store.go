// Package store persists the vending machine's inventory and ledger.
//
// A Store holds two independent collections and exposes them as whole
// snapshots: callers load a collection, change it in memory and save it back.
// Every backend rewrites the collection it is given in full, so a Save is
// either entirely visible or not at all on the next Load. Coordinating the
// two collections, and serializing writers, is the caller's job.
//
// Backends:
//   - CSVStore: two comma-delimited flat files (the default).
//   - BoltStore: a single BoltDB file with one bucket per collection.
//   - SQLiteStore: a SQLite database with one table per collection.
//   - MemoryStore: process memory, for tests and throwaway demos.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkantrust/vending-machine/backend/models"
)

// Driver names accepted by Open.
const (
	DriverCSV    = "csv"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ErrCorrupt is returned when persisted data cannot be parsed.
var ErrCorrupt = errors.New("corrupt storage")

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is the persistence boundary consumed by the vending machine.
type Store interface {
	// LoadInventory returns every product in storage order.
	LoadInventory(ctx context.Context) ([]models.Product, error)
	// SaveInventory replaces the stored inventory with products.
	SaveInventory(ctx context.Context, products []models.Product) error
	// LoadLedger returns every recorded transaction, oldest first.
	LoadLedger(ctx context.Context) ([]models.Transaction, error)
	// SaveLedger replaces the stored ledger with ledger.
	SaveLedger(ctx context.Context, ledger []models.Transaction) error
	// Close releases any file handles or locks.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver        string
	InventoryPath string
	LedgerPath    string
	BoltPath      string
	SQLitePath    string

	// Seed is written as the initial inventory when the backend's storage
	// does not exist yet. Nil means models.SeedInventory().
	Seed []models.Product
}

// Open creates the backend named by opts.Driver.
func Open(opts Options) (Store, error) {
	seed := opts.Seed
	if seed == nil {
		seed = models.SeedInventory()
	}

	switch opts.Driver {
	case DriverCSV, "":
		return NewCSV(opts.InventoryPath, opts.LedgerPath, seed)
	case DriverBolt:
		return NewBolt(opts.BoltPath, seed)
	case DriverSQLite:
		return NewSQLite(opts.SQLitePath, seed)
	case DriverMemory:
		return NewMemory(seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// cloneProducts copies products so a caller cannot alias a backend's state.
func cloneProducts(products []models.Product) []models.Product {
	out := make([]models.Product, len(products))
	copy(out, products)
	return out
}

func cloneLedger(ledger []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(ledger))
	for i, t := range ledger {
		t.Items = append([]string(nil), t.Items...)
		out[i] = t
	}
	return out
}
