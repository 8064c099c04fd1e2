package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one purchase recorded in the ledger.
type Transaction struct {
	// ID is assigned when the transaction is recorded and never changes, so a
	// transaction stays addressable after earlier ledger entries are refunded.
	// Clients leave it empty on purchase; refunds may set it to target one
	// specific entry.
	ID string `json:"id,omitempty"`

	// Items lists the purchased product names in the order they were
	// selected. The same name appears once per unit bought.
	Items []string `json:"items"`

	// AmountPaid is what the customer put into the machine. It is at least
	// the sum of the item prices at the time of purchase.
	AmountPaid decimal.Decimal `json:"amountPaid"`

	// Timestamp is the UTC time the transaction was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// SameAs reports whether t and other describe the same purchase: identical
// item sequence and equal amount paid. IDs and timestamps are not compared.
func (t Transaction) SameAs(other Transaction) bool {
	return slices.Equal(t.Items, other.Items) && t.AmountPaid.Equal(other.AmountPaid)
}
