package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/arkantrust/vending-machine/backend/models"
)

// SQLiteStore keeps inventory and ledger in two SQLite tables. Prices and
// amounts are stored as decimal text so no precision is lost in REAL columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and seeds the products
// table the first time it is created.
func NewSQLite(path string, seed []models.Product) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps a single writer and makes ":memory:" usable.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	fresh, err := s.migrate()
	if err != nil {
		db.Close()
		return nil, err
	}
	if fresh {
		log.Printf("seeding %s with %d products", path, len(seed))
		if err := s.SaveInventory(context.Background(), seed); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// migrate creates the tables and reports whether products did not exist.
func (s *SQLiteStore) migrate() (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'products'`).Scan(&n)
	if err != nil {
		return false, err
	}

	schema := `
		CREATE TABLE IF NOT EXISTS products (
			position INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transactions (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			items TEXT NOT NULL,
			amount_paid TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return false, err
	}
	return n == 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadInventory reads every product in saved order.
func (s *SQLiteStore) LoadInventory(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, price, quantity FROM products ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inventory := []models.Product{}
	for rows.Next() {
		var p models.Product
		var price string
		if err := rows.Scan(&p.Name, &price, &p.Quantity); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, corruptf("product %q price %q: %v", p.Name, price, err)
		}
		inventory = append(inventory, p)
	}
	return inventory, rows.Err()
}

// SaveInventory replaces the products table in one transaction.
func (s *SQLiteStore) SaveInventory(ctx context.Context, products []models.Product) error {
	return s.replace(ctx, `DELETE FROM products`, func(tx *sql.Tx) error {
		for i, p := range products {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO products (position, name, price, quantity) VALUES (?, ?, ?, ?)`,
				i, p.Name, p.Price.String(), p.Quantity)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadLedger reads the ledger oldest first.
func (s *SQLiteStore) LoadLedger(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, items, amount_paid, timestamp FROM transactions ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var items, amount, ts string
		if err := rows.Scan(&t.ID, &items, &amount, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
			return nil, corruptf("transaction %s items: %v", t.ID, err)
		}
		if t.AmountPaid, err = decimal.NewFromString(amount); err != nil {
			return nil, corruptf("transaction %s amount %q: %v", t.ID, amount, err)
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, corruptf("transaction %s timestamp %q: %v", t.ID, ts, err)
		}
		ledger = append(ledger, t)
	}
	return ledger, rows.Err()
}

// SaveLedger replaces the ledger table in one transaction.
func (s *SQLiteStore) SaveLedger(ctx context.Context, ledger []models.Transaction) error {
	return s.replace(ctx, `DELETE FROM transactions`, func(tx *sql.Tx) error {
		for i, t := range ledger {
			items, err := json.Marshal(t.Items)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO transactions (position, id, items, amount_paid, timestamp) VALUES (?, ?, ?, ?, ?)`,
				i, t.ID, string(items), t.AmountPaid.String(), t.Timestamp.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// replace runs clear followed by fill in one SQL transaction.
func (s *SQLiteStore) replace(ctx context.Context, clear string, fill func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, clear); err != nil {
		tx.Rollback()
		return err
	}
	if err := fill(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
