package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arkantrust/vending-machine/backend/models"
)

const (
	itemSeparator = '|'
	itemEscape    = '\\'
)

// legacyNamespace derives ids for ledger rows written before ids existed.
var legacyNamespace = uuid.MustParse("6f1c1f9e-5b43-4a8e-9a55-1d0c2b7e6a31")

// Layouts accepted when reading ledger timestamps. New rows are always
// written as RFC 3339; the others cover ledgers produced by older tooling.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
}

// CSVStore keeps the inventory and the ledger in two flat files.
//
// Inventory rows are name,price,quantity. Ledger rows are
// items,amountPaid,timestamp,id where items is the pipe-joined list of
// product names, with "|" and "\" inside a name escaped by a backslash.
// Each save rewrites the whole file through a temporary file
// and a rename.
type CSVStore struct {
	inventoryPath string
	ledgerPath    string
}

// NewCSV returns a CSVStore over the two paths, creating the inventory file
// with seed and an empty ledger file when they do not exist.
func NewCSV(inventoryPath, ledgerPath string, seed []models.Product) (*CSVStore, error) {
	if inventoryPath == "" || ledgerPath == "" {
		return nil, errors.New("csv store needs both an inventory and a ledger path")
	}
	s := &CSVStore{inventoryPath: inventoryPath, ledgerPath: ledgerPath}

	ctx := context.Background()
	if _, err := os.Stat(inventoryPath); errors.Is(err, os.ErrNotExist) {
		log.Printf("creating %s with %d seed products", inventoryPath, len(seed))
		if err := s.SaveInventory(ctx, seed); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if _, err := os.Stat(ledgerPath); errors.Is(err, os.ErrNotExist) {
		if err := s.SaveLedger(ctx, nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return s, nil
}

// LoadInventory reads every inventory row in file order.
func (s *CSVStore) LoadInventory(ctx context.Context) ([]models.Product, error) {
	records, err := readRecords(ctx, s.inventoryPath)
	if err != nil {
		return nil, err
	}

	inventory := make([]models.Product, 0, len(records))
	for i, rec := range records {
		if len(rec) != 3 {
			return nil, corruptf("%s line %d: want 3 fields, got %d", s.inventoryPath, i+1, len(rec))
		}
		price, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, corruptf("%s line %d: price %q: %v", s.inventoryPath, i+1, rec[1], err)
		}
		qty, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, corruptf("%s line %d: quantity %q: %v", s.inventoryPath, i+1, rec[2], err)
		}
		inventory = append(inventory, models.Product{Name: rec[0], Price: price, Quantity: qty})
	}
	return inventory, nil
}

// SaveInventory replaces the inventory file with products.
func (s *CSVStore) SaveInventory(ctx context.Context, products []models.Product) error {
	records := make([][]string, 0, len(products))
	for _, p := range products {
		records = append(records, []string{p.Name, p.Price.String(), strconv.Itoa(p.Quantity)})
	}
	return writeRecords(ctx, s.inventoryPath, records)
}

// LoadLedger reads the ledger oldest first. Rows without an id get one
// derived from their position and content.
func (s *CSVStore) LoadLedger(ctx context.Context) ([]models.Transaction, error) {
	records, err := readRecords(ctx, s.ledgerPath)
	if err != nil {
		return nil, err
	}

	ledger := make([]models.Transaction, 0, len(records))
	for i, rec := range records {
		if len(rec) != 3 && len(rec) != 4 {
			return nil, corruptf("%s line %d: want 3 or 4 fields, got %d", s.ledgerPath, i+1, len(rec))
		}
		amount, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, corruptf("%s line %d: amount %q: %v", s.ledgerPath, i+1, rec[1], err)
		}
		ts, err := parseTimestamp(rec[2])
		if err != nil {
			return nil, corruptf("%s line %d: timestamp %q", s.ledgerPath, i+1, rec[2])
		}

		var id string
		if len(rec) == 4 && rec[3] != "" {
			id = rec[3]
		} else {
			id = legacyID(i, rec)
		}

		var items []string
		if rec[0] != "" {
			items = splitItems(rec[0])
		}
		ledger = append(ledger, models.Transaction{
			ID:         id,
			Items:      items,
			AmountPaid: amount,
			Timestamp:  ts,
		})
	}
	return ledger, nil
}

// SaveLedger replaces the ledger file with ledger.
func (s *CSVStore) SaveLedger(ctx context.Context, ledger []models.Transaction) error {
	records := make([][]string, 0, len(ledger))
	for _, t := range ledger {
		records = append(records, []string{
			joinItems(t.Items),
			t.AmountPaid.String(),
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.ID,
		})
	}
	return writeRecords(ctx, s.ledgerPath, records)
}

// Close is a no-op; files are opened and closed per operation.
func (s *CSVStore) Close() error { return nil }

func readRecords(ctx context.Context, path string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		records = append(records, rec)
	}
}

// writeRecords replaces path with records. The data lands in a temporary
// file in the same directory first so readers never see a partial file.
func writeRecords(ctx context.Context, path string, records [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func joinItems(items []string) string {
	var b strings.Builder
	for n, item := range items {
		if n > 0 {
			b.WriteByte(itemSeparator)
		}
		for i := 0; i < len(item); i++ {
			if c := item[i]; c == itemSeparator || c == itemEscape {
				b.WriteByte(itemEscape)
			}
			b.WriteByte(item[i])
		}
	}
	return b.String()
}

// splitItems undoes joinItems. Fields without escapes, as written by older
// versions, split on every pipe.
func splitItems(field string) []string {
	var (
		items []string
		cur   strings.Builder
	)
	for i := 0; i < len(field); i++ {
		switch c := field[i]; {
		case c == itemEscape && i+1 < len(field):
			i++
			cur.WriteByte(field[i])
		case c == itemSeparator:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(items, cur.String())
}

func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

// legacyID derives a deterministic id for a ledger row that has none. The
// id is persisted the next time the ledger is saved.
func legacyID(index int, rec []string) string {
	key := strconv.Itoa(index) + ":" + strings.Join(rec, ",")
	return uuid.NewSHA1(legacyNamespace, []byte(key)).String()
}
