// Package handlers provides the HTTP JSON API of the vending machine.
//
//   - POST /api/VendingMachine/purchase     – buy the listed items.
//   - POST /api/VendingMachine/refund       – reverse a recorded purchase.
//   - GET  /api/VendingMachine/inventory    – current stock and prices.
//   - GET  /api/VendingMachine/ledger       – every recorded transaction.
//   - GET  /api/VendingMachine/ledger/{id}  – one transaction.
//   - GET  /api/VendingMachine/transaction?transactionId=… – one transaction.
//
// After /api/, the prefix and the endpoint name match in any letter case, so
// /api/vendingmachine/inventory and /api/VENDINGMACHINE/Inventory reach the
// same handler. Handlers hold no state of their own; every request is a
// round trip to the Machine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/arkantrust/vending-machine/backend/models"
	"github.com/arkantrust/vending-machine/backend/vending"
)

// prefix is the canonical spelling every route is registered under.
const prefix = "/api/VendingMachine"

// Machine is the subset of *vending.Machine the handlers use.
type Machine interface {
	Purchase(ctx context.Context, t models.Transaction) (models.Transaction, error)
	Refund(ctx context.Context, t models.Transaction) (models.Transaction, error)
	GetInventory(ctx context.Context) ([]models.Product, error)
	GetAllTransactions(ctx context.Context) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, index int) (*models.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
}

// Handler holds the dependencies for all vending machine HTTP handlers.
type Handler struct {
	machine Machine
}

// New creates a new Handler backed by m.
func New(m Machine) *Handler {
	return &Handler{machine: m}
}

// Register adds every API route to mux. Requests under /api/ that match no
// route are retried once with the prefix and endpoint name in canonical
// case, then answered with a JSON 404.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/purchase", h.purchase)
	mux.HandleFunc("POST "+prefix+"/refund", h.refund)
	mux.HandleFunc("GET "+prefix+"/inventory", h.inventory)
	mux.HandleFunc("GET "+prefix+"/ledger", h.ledger)
	mux.HandleFunc("GET "+prefix+"/ledger/{id}", h.ledgerEntry)
	mux.HandleFunc("GET "+prefix+"/transaction", h.transaction)

	fallback := func(w http.ResponseWriter, r *http.Request) {
		path, ok := canonicalPath(r.URL.Path)
		if !ok || path == r.URL.Path {
			writeMessage(w, http.StatusNotFound, "Not found")
			return
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = path
		r2.URL.RawPath = ""
		mux.ServeHTTP(w, r2)
	}
	mux.HandleFunc("GET /api/", fallback)
	mux.HandleFunc("POST /api/", fallback)
}

// canonicalPath rewrites the prefix of path to its registered spelling and
// lower-cases the endpoint segment after it. Later segments, such as a
// transaction id, are left alone.
func canonicalPath(path string) (string, bool) {
	if len(path) < len(prefix) || !strings.EqualFold(path[:len(prefix)], prefix) {
		return "", false
	}
	rest := path[len(prefix):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	if rest == "" {
		return prefix, true
	}
	endpoint, tail, found := strings.Cut(rest[1:], "/")
	canonical := prefix + "/" + strings.ToLower(endpoint)
	if found {
		canonical += "/" + tail
	}
	return canonical, true
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeMessage writes a JSON body carrying only a message.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeInternal reports an unexpected failure along with its text.
func writeInternal(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"message": "Internal Server Error",
		"error":   err.Error(),
	})
}

func decodeTransaction(r *http.Request) (models.Transaction, error) {
	var t models.Transaction
	err := json.NewDecoder(r.Body).Decode(&t)
	return t, err
}

// purchase handles POST /purchase.
func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTransaction(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid transaction data")
		return
	}

	recorded, err := h.machine.Purchase(r.Context(), body)
	var oos *vending.OutOfStockError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "Purchase successful",
			"transaction": recorded,
		})
	case errors.Is(err, vending.ErrInvalidTransaction):
		writeMessage(w, http.StatusBadRequest, "Invalid transaction data")
	case errors.As(err, &oos):
		writeMessage(w, http.StatusBadRequest, oos.Error())
	case errors.Is(err, vending.ErrInsufficientFunds):
		writeMessage(w, http.StatusBadRequest, "Insufficient funds")
	default:
		writeInternal(w, err)
	}
}

// refund handles POST /refund. The body either repeats the purchase (items
// and amountPaid) or names the transaction id.
func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTransaction(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid transaction data")
		return
	}

	refunded, err := h.machine.Refund(r.Context(), body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":             "Refund successful",
			"refundedTransaction": refunded,
		})
	case errors.Is(err, vending.ErrInvalidTransaction):
		writeMessage(w, http.StatusBadRequest, "Invalid transaction data")
	case errors.Is(err, vending.ErrTransactionNotFound):
		writeMessage(w, http.StatusNotFound, "Unable to locate transaction")
	default:
		writeInternal(w, err)
	}
}

// inventory handles GET /inventory. An empty machine is reported as 404.
func (h *Handler) inventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.machine.GetInventory(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	if len(items) == 0 {
		writeMessage(w, http.StatusNotFound, "Inventory not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": items})
}

// ledger handles GET /ledger. An empty ledger is reported as 404.
func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	items, err := h.machine.GetAllTransactions(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	if len(items) == 0 {
		writeMessage(w, http.StatusNotFound, "No transactions found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger": items})
}

// transaction handles GET /transaction?transactionId=….
func (h *Handler) transaction(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.URL.Query().Get("transactionId"))
}

// ledgerEntry handles GET /ledger/{id}.
func (h *Handler) ledgerEntry(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, r.PathValue("id"))
}

// lookup resolves key as a ledger position when it is an integer and as a
// transaction id otherwise.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, key string) {
	// A missing key is not read as position 0.
	if key == "" {
		writeMessage(w, http.StatusNotFound, "Transaction not found.")
		return
	}

	var (
		t   *models.Transaction
		err error
	)
	if index, convErr := strconv.Atoi(key); convErr == nil {
		t, err = h.machine.GetTransaction(r.Context(), index)
	} else {
		t, err = h.machine.GetTransactionByID(r.Context(), key)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"transaction": t})
	case errors.Is(err, vending.ErrTransactionNotFound):
		writeMessage(w, http.StatusNotFound, "Transaction not found.")
	default:
		writeInternal(w, err)
	}
}
