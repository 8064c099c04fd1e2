package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkantrust/vending-machine/backend/handlers"
	"github.com/arkantrust/vending-machine/backend/models"
	"github.com/arkantrust/vending-machine/backend/store"
	"github.com/arkantrust/vending-machine/backend/vending"
)

func newTestServer(t *testing.T, m handlers.Machine) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	handlers.New(m).Register(mux)
	return handlers.Chain(mux, handlers.Recover, handlers.CORS("*"))
}

func newMachineServer(t *testing.T) (http.Handler, *vending.Machine) {
	t.Helper()
	m := vending.New(store.NewMemory(models.SeedInventory()))
	return newTestServer(t, m), m
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var out map[string]json.RawMessage
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func message(t *testing.T, out map[string]json.RawMessage) string {
	t.Helper()
	var msg string
	require.NoError(t, json.Unmarshal(out["message"], &msg))
	return msg
}

func TestPurchaseSuccess(t *testing.T) {
	h, m := newMachineServer(t)

	w, out := do(t, h, http.MethodPost, "/api/VendingMachine/purchase", `{"items":["Soda","Candy Bar"],"amountPaid":1.55}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Purchase successful", message(t, out))

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(out["transaction"], &tx))
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, []string{"Soda", "Candy Bar"}, tx.Items)
	assert.True(t, tx.AmountPaid.Equal(decimal.RequireFromString("1.55")))
	assert.Contains(t, string(out["transaction"]), `"amountPaid":1.55`)

	p, err := m.FindProduct(context.Background(), "Soda")
	require.NoError(t, err)
	assert.Equal(t, 9, p.Quantity)
}

func TestPurchaseRejections(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"insufficient funds": {body: `{"items":["Soda"],"amountPaid":0.50}`, want: "Insufficient funds"},
		"out of stock":       {body: `{"items":["Gum"],"amountPaid":5}`, want: "Item 'Gum' is out of stock"},
		"no items":           {body: `{"items":[],"amountPaid":5}`, want: "Invalid transaction data"},
		"missing items":      {body: `{"amountPaid":5}`, want: "Invalid transaction data"},
		"malformed json":     {body: `{"items":`, want: "Invalid transaction data"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h, m := newMachineServer(t)
			w, out := do(t, h, http.MethodPost, "/api/VendingMachine/purchase", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.want, message(t, out))

			ledger, err := m.GetAllTransactions(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ledger)
		})
	}
}

func TestRefundFlow(t *testing.T) {
	h, m := newMachineServer(t)
	body := `{"items":["Soda","Candy Bar"],"amountPaid":1.55}`

	w, _ := do(t, h, http.MethodPost, "/api/VendingMachine/purchase", body)
	require.Equal(t, http.StatusOK, w.Code)

	w, out := do(t, h, http.MethodPost, "/api/VendingMachine/refund", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Refund successful", message(t, out))
	var refunded models.Transaction
	require.NoError(t, json.Unmarshal(out["refundedTransaction"], &refunded))
	assert.Equal(t, []string{"Soda", "Candy Bar"}, refunded.Items)

	p, err := m.FindProduct(context.Background(), "Candy Bar")
	require.NoError(t, err)
	assert.Equal(t, 15, p.Quantity)

	w, out = do(t, h, http.MethodPost, "/api/VendingMachine/refund", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Unable to locate transaction", message(t, out))
}

func TestRefundByID(t *testing.T) {
	h, _ := newMachineServer(t)

	_, out := do(t, h, http.MethodPost, "/api/VendingMachine/purchase", `{"items":["Chips"],"amountPaid":1}`)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(out["transaction"], &tx))

	w, _ := do(t, h, http.MethodPost, "/api/VendingMachine/refund", `{"id":"`+tx.ID+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefundInvalid(t *testing.T) {
	h, _ := newMachineServer(t)

	w, out := do(t, h, http.MethodPost, "/api/VendingMachine/refund", `{"items":[],"amountPaid":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid transaction data", message(t, out))
}

func TestInventory(t *testing.T) {
	h, _ := newMachineServer(t)

	w, out := do(t, h, http.MethodGet, "/api/VendingMachine/inventory", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"name":"Soda","price":0.95,"quantity":10},
		{"name":"Candy Bar","price":0.6,"quantity":15},
		{"name":"Chips","price":0.99,"quantity":8}
	]`, string(out["inventory"]))
}

func TestInventoryEmpty(t *testing.T) {
	h := newTestServer(t, vending.New(store.NewMemory([]models.Product{})))

	w, out := do(t, h, http.MethodGet, "/api/VendingMachine/inventory", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Inventory not found", message(t, out))
}

func TestLedgerAndTransactionLookup(t *testing.T) {
	h, _ := newMachineServer(t)

	w, out := do(t, h, http.MethodGet, "/api/VendingMachine/ledger", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No transactions found.", message(t, out))

	_, out = do(t, h, http.MethodPost, "/api/VendingMachine/purchase", `{"items":["Soda"],"amountPaid":1}`)
	var first models.Transaction
	require.NoError(t, json.Unmarshal(out["transaction"], &first))

	w, out = do(t, h, http.MethodGet, "/api/VendingMachine/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ledger []models.Transaction
	require.NoError(t, json.Unmarshal(out["ledger"], &ledger))
	require.Len(t, ledger, 1)

	for _, path := range []string{
		"/api/VendingMachine/transaction?transactionId=0",
		"/api/VendingMachine/transaction?transactionId=" + first.ID,
		"/api/VendingMachine/ledger/0",
		"/api/vendingmachine/ledger/" + first.ID,
	} {
		w, out = do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		var got models.Transaction
		require.NoError(t, json.Unmarshal(out["transaction"], &got))
		assert.Equal(t, first.ID, got.ID, path)
	}

	for _, path := range []string{
		"/api/VendingMachine/transaction?transactionId=1",
		"/api/VendingMachine/transaction?transactionId=-1",
		"/api/VendingMachine/transaction?transactionId=unknown",
		"/api/VendingMachine/transaction",
	} {
		w, out = do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Transaction not found.", message(t, out))
	}
}

func TestRouteCaseIsIgnored(t *testing.T) {
	h, _ := newMachineServer(t)
	w, out := do(t, h, http.MethodPost, "/api/VendingMachine/purchase", `{"items":["Soda"],"amountPaid":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var recorded models.Transaction
	require.NoError(t, json.Unmarshal(out["transaction"], &recorded))

	cases := map[string]struct {
		method, path, body string
		want               int
	}{
		"lower prefix":            {method: http.MethodGet, path: "/api/vendingmachine/inventory", want: http.StatusOK},
		"mixed prefix":            {method: http.MethodGet, path: "/api/vendingMachine/inventory", want: http.StatusOK},
		"upper everything":        {method: http.MethodGet, path: "/api/VENDINGMACHINE/INVENTORY", want: http.StatusOK},
		"endpoint case":           {method: http.MethodGet, path: "/api/VendingMachine/Ledger", want: http.StatusOK},
		"id keeps its case":       {method: http.MethodGet, path: "/api/VENDINGMACHINE/LEDGER/" + recorded.ID, want: http.StatusOK},
		"query kept":              {method: http.MethodGet, path: "/api/vendingMachine/Transaction?transactionId=0", want: http.StatusOK},
		"post with other casing":  {method: http.MethodPost, path: "/api/VENDINGMACHINE/Refund", body: `{"id":"nope"}`, want: http.StatusNotFound},
		"unknown endpoint":        {method: http.MethodGet, path: "/api/vendingmachine/stock", want: http.StatusNotFound},
		"unknown api":             {method: http.MethodGet, path: "/api/other", want: http.StatusNotFound},
		"prefix without endpoint": {method: http.MethodGet, path: "/api/VendingMachine", want: http.StatusNotFound},
		"prefix as word start":    {method: http.MethodGet, path: "/api/VendingMachines/inventory", want: http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, out := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tc.want == http.StatusNotFound {
				assert.NotEmpty(t, message(t, out))
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	h, _ := newMachineServer(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/VendingMachine/purchase", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// mockMachine fails every call with err, or panics with panicMsg when set.
type mockMachine struct {
	err      error
	panicMsg string
}

func (m *mockMachine) fail() error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.err
}

func (m *mockMachine) Purchase(context.Context, models.Transaction) (models.Transaction, error) {
	return models.Transaction{}, m.fail()
}

func (m *mockMachine) Refund(context.Context, models.Transaction) (models.Transaction, error) {
	return models.Transaction{}, m.fail()
}

func (m *mockMachine) GetInventory(context.Context) ([]models.Product, error) {
	return nil, m.fail()
}

func (m *mockMachine) GetAllTransactions(context.Context) ([]models.Transaction, error) {
	return nil, m.fail()
}

func (m *mockMachine) GetTransaction(context.Context, int) (*models.Transaction, error) {
	return nil, m.fail()
}

func (m *mockMachine) GetTransactionByID(context.Context, string) (*models.Transaction, error) {
	return nil, m.fail()
}

func TestInternalErrors(t *testing.T) {
	h := newTestServer(t, &mockMachine{err: errors.New("load inventory: permission denied")})

	requests := []struct{ method, path, body string }{
		{http.MethodPost, "/api/VendingMachine/purchase", `{"items":["Soda"],"amountPaid":1}`},
		{http.MethodPost, "/api/VendingMachine/refund", `{"items":["Soda"],"amountPaid":1}`},
		{http.MethodGet, "/api/VendingMachine/inventory", ""},
		{http.MethodGet, "/api/VendingMachine/ledger", ""},
		{http.MethodGet, "/api/VendingMachine/transaction?transactionId=0", ""},
	}
	for _, req := range requests {
		w, out := do(t, h, req.method, req.path, req.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, req.path)
		assert.Equal(t, "Internal Server Error", message(t, out))
		assert.JSONEq(t, `"load inventory: permission denied"`, string(out["error"]))
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	h := newTestServer(t, &mockMachine{panicMsg: "nil map"})

	w, out := do(t, h, http.MethodGet, "/api/VendingMachine/ledger", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `"nil map"`, string(out["error"]))
}

func TestPanicAfterResponseStartedKeepsStatus(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"header written": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late failure")
		},
		"body written": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("partial")) //nolint:errcheck
			panic("late failure")
		},
	}
	for name, next := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			handlers.Recover(next).ServeHTTP(w, r)

			assert.NotEqual(t, http.StatusInternalServerError, w.Code)
			assert.NotContains(t, w.Body.String(), "Internal Server Error")
		})
	}
}

func TestLoggingKeepsStatus(t *testing.T) {
	h, _ := newMachineServer(t)
	logged := handlers.Logging(h)

	r := httptest.NewRequest(http.MethodGet, "/api/VendingMachine/ledger", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	logged.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
