package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/arkantrust/vending-machine/backend/models"
)

var (
	inventoryBucket = []byte("inventory")
	ledgerBucket    = []byte("ledger")
)

// BoltStore keeps inventory and ledger in a BoltDB file.
//
// Each collection lives in its own bucket. Keys are big-endian positions so
// a cursor walks the records in the order they were saved; values are JSON.
// A save drops and recreates the bucket inside a single bolt transaction,
// which makes it atomic with respect to readers.
type BoltStore struct {
	db *bolt.DB
}

// NewBolt opens (or creates) a BoltDB database at path. When the inventory
// bucket does not exist yet it is created and filled with seed.
func NewBolt(path string, seed []models.Product) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(inventoryBucket) == nil {
			log.Printf("seeding %s with %d products", path, len(seed))
			if err := putAll(tx, inventoryBucket, seed); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LoadInventory reads the inventory bucket in saved order.
func (s *BoltStore) LoadInventory(ctx context.Context) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := []models.Product{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(inventoryBucket).ForEach(func(k, v []byte) error {
			var p models.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return corruptf("inventory record %x: %v", k, err)
			}
			items = append(items, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveInventory replaces the inventory bucket with products.
func (s *BoltStore) SaveInventory(ctx context.Context, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAll(tx, inventoryBucket, products)
	})
}

// LoadLedger reads the ledger bucket oldest first.
func (s *BoltStore) LoadLedger(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ledger := []models.Transaction{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ledgerBucket).ForEach(func(k, v []byte) error {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return corruptf("ledger record %x: %v", k, err)
			}
			ledger = append(ledger, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// SaveLedger replaces the ledger bucket with ledger.
func (s *BoltStore) SaveLedger(ctx context.Context, ledger []models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAll(tx, ledgerBucket, ledger)
	})
}

// putAll replaces the contents of bucket with values, keyed by position.
func putAll[T any](tx *bolt.Tx, bucket []byte, values []T) error {
	if tx.Bucket(bucket) != nil {
		if err := tx.DeleteBucket(bucket); err != nil {
			return err
		}
	}
	b, err := tx.CreateBucket(bucket)
	if err != nil {
		return err
	}
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := b.Put(positionKey(i), data); err != nil {
			return err
		}
	}
	return nil
}

func positionKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}
