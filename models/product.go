// Package models defines the core domain types for the vending machine.
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and payments travel as plain JSON numbers ({"price": 0.95}), the
	// shape the browser client and existing callers send and expect.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a single slot in the machine.
type Product struct {
	// Name identifies the product. Lookups compare names case-insensitively,
	// so "soda" and "Soda" refer to the same row.
	Name string `json:"name"`

	// Price is the unit price in the machine's currency. Decimal arithmetic
	// keeps totals like 0.95 + 0.60 exact.
	Price decimal.Decimal `json:"price"`

	// Quantity is the number of units left. It never drops below zero; a
	// product at zero is out of stock but stays in the inventory.
	Quantity int `json:"quantity"`
}

// Matches reports whether name refers to this product.
func (p Product) Matches(name string) bool {
	return strings.EqualFold(p.Name, name)
}

// FindProduct returns the index of the product called name, or -1.
func FindProduct(inventory []Product, name string) int {
	for i := range inventory {
		if inventory[i].Matches(name) {
			return i
		}
	}
	return -1
}

// SeedInventory returns the stock a freshly created machine starts with.
func SeedInventory() []Product {
	return []Product{
		{Name: "Soda", Price: decimal.RequireFromString("0.95"), Quantity: 10},
		{Name: "Candy Bar", Price: decimal.RequireFromString("0.60"), Quantity: 15},
		{Name: "Chips", Price: decimal.RequireFromString("0.99"), Quantity: 8},
	}
}
