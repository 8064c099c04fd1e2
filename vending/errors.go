package vending

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction is returned when a transaction names no items.
	ErrInvalidTransaction = errors.New("invalid transaction data")

	// ErrInsufficientFunds is returned when the amount paid does not cover
	// the current price of every item.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrProductNotFound is returned by FindProduct for an unknown name.
	ErrProductNotFound = errors.New("product not found")

	// ErrTransactionNotFound is returned when no ledger entry matches.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// OutOfStockError reports the first item that cannot be dispensed, either
// because no such product exists or because too few units are left.
type OutOfStockError struct {
	Item string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("Item '%s' is out of stock", e.Item)
}
