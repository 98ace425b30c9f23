package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kush1999-h/signature-auto-care-sub000/api"
	"github.com/kush1999-h/signature-auto-care-sub000/inventory/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(store.NewTxMemory(), nil)
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

// do sends a JSON request with the standard employee identity headers.
func do(t *testing.T, srv *httptest.Server, method, path string, body any, extra map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Employee-Id", "emp-7")
	req.Header.Set("X-Employee-Name", "Dana")
	req.Header.Set("X-Employee-Role", "PartsManager")
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createPart(t *testing.T, srv *httptest.Server, sku string) string {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/api/parts", map[string]any{
		"sku":          sku,
		"partName":     "Oil Filter " + sku,
		"sellingPrice": "18.00",
		"reorderLevel": 5,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func receiveStock(t *testing.T, srv *httptest.Server, partID string, qty int, cost, method string) map[string]any {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/api/parts/"+partID+"/receive", map[string]any{
		"qty":           qty,
		"unitCost":      cost,
		"paymentMethod": method,
		"vendorName":    "NAPA",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "receive failed: %v", body)
	return body
}

// =============================================================================
// PARTS
// =============================================================================

func TestCreateAndGetPart(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")

	resp, body := do(t, srv, http.MethodGet, "/api/parts/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OF-100", body["sku"])
	assert.Equal(t, float64(0), body["onHandQty"])
	assert.Equal(t, "18", body["sellingPrice"])
}

func TestCreatePart_DuplicateSKU_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createPart(t, srv, "OF-100")

	resp, _ := do(t, srv, http.MethodPost, "/api/parts", map[string]any{
		"sku": "OF-100", "partName": "clone",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetPart_Unknown_NotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := do(t, srv, http.MethodGet, "/api/parts/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLowStock_ListsPartsBelowReorderLevel(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100") // reorder level 5, zero stock

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/parts/low-stock", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var items []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0]["id"])
}

// =============================================================================
// STOCK MUTATIONS
// =============================================================================

func TestReceive_CashExpenseOnWire(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")

	body := receiveStock(t, srv, id, 4, "12.50", "CASH")

	part := body["part"].(map[string]any)
	assert.Equal(t, float64(4), part["onHandQty"])
	assert.Equal(t, "12.5", part["avgCost"])
	require.NotNil(t, body["expense"])
	assert.Equal(t, "50", body["expense"].(map[string]any)["amount"])
	assert.Nil(t, body["payable"])
	assert.Equal(t, false, body["replayed"])
}

func TestReceive_MissingActorHeader_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{
		"qty": 1, "unitCost": "1", "paymentMethod": "CASH",
	}))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/parts/"+id+"/receive", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	// No X-Employee-Id header.
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIssue_Insufficient_ConflictWithAvailability(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")
	receiveStock(t, srv, id, 3, "10", "CASH")

	resp, body := do(t, srv, http.MethodPost, "/api/parts/"+id+"/issue", map[string]any{
		"qty": 5, "workOrderId": "wo-1",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, float64(3), body["available"])
	assert.Equal(t, float64(5), body["requested"])
}

func TestAdjust_WithoutReason_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")

	resp, _ := do(t, srv, http.MethodPost, "/api/parts/"+id+"/adjust", map[string]any{
		"qtyChange": 2,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReceive_IdempotencyKeyHeader_Replays(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")
	payload := map[string]any{"qty": 5, "unitCost": "10", "paymentMethod": "CASH"}
	headers := map[string]string{"Idempotency-Key": "req-42"}

	resp, first := do(t, srv, http.MethodPost, "/api/parts/"+id+"/receive", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, first["replayed"])

	resp, second := do(t, srv, http.MethodPost, "/api/parts/"+id+"/receive", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["replayed"])

	firstTrx := first["transaction"].(map[string]any)
	secondTrx := second["transaction"].(map[string]any)
	assert.Equal(t, firstTrx["id"], secondTrx["id"])
	assert.Equal(t, float64(5), second["part"].(map[string]any)["onHandQty"])
}

func TestCounterSale_AllOrNothingOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := createPart(t, srv, "OF-A")
	b := createPart(t, srv, "OF-B")
	receiveStock(t, srv, a, 10, "5", "CASH")
	receiveStock(t, srv, b, 1, "5", "CASH")

	resp, _ := do(t, srv, http.MethodPost, "/api/counter-sales", map[string]any{
		"lines": []map[string]any{
			{"partId": a, "qty": 2},
			{"partId": b, "qty": 3},
		},
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/api/parts/"+a, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["onHandQty"])
}

func TestCounterSale_CommitsAllLines(t *testing.T) {
	srv := newTestServer(t)
	a := createPart(t, srv, "OF-A")
	b := createPart(t, srv, "OF-B")
	receiveStock(t, srv, a, 10, "5", "CASH")
	receiveStock(t, srv, b, 10, "5", "CASH")

	resp, body := do(t, srv, http.MethodPost, "/api/counter-sales", map[string]any{
		"lines": []map[string]any{
			{"partId": a, "qty": 2},
			{"partId": b, "qty": 1},
		},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	txs := body["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, "COUNTER_SALE", body["referenceType"])
	assert.NotEmpty(t, body["referenceId"])
}

// =============================================================================
// REVERSAL AND SETTLEMENT
// =============================================================================

func TestReverseTransaction_RoundTrip(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")
	receiveStock(t, srv, id, 10, "8", "CASH")

	resp, issued := do(t, srv, http.MethodPost, "/api/parts/"+id+"/issue", map[string]any{
		"qty": 4, "workOrderId": "wo-1",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trxID := issued["transaction"].(map[string]any)["id"].(string)

	resp, reversed := do(t, srv, http.MethodPost, "/api/transactions/"+trxID+"/reverse", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	trx := reversed["transaction"].(map[string]any)
	assert.Equal(t, "RETURN", trx["type"])
	assert.Equal(t, float64(4), trx["qtyChange"])
	assert.Equal(t, trxID, trx["reversesTransactionId"])
	assert.Equal(t, float64(10), reversed["part"].(map[string]any)["onHandQty"])
}

func TestSettlePayable_OnceThenConflict(t *testing.T) {
	srv := newTestServer(t)
	id := createPart(t, srv, "OF-100")
	body := receiveStock(t, srv, id, 3, "20", "CREDIT")

	require.NotNil(t, body["payable"])
	payableID := body["payable"].(map[string]any)["id"].(string)
	path := fmt.Sprintf("/api/payables/%s/settle", payableID)

	resp, settled := do(t, srv, http.MethodPost, path, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PAID", settled["payable"].(map[string]any)["status"])
	assert.Equal(t, "60", settled["expense"].(map[string]any)["amount"])

	resp, _ = do(t, srv, http.MethodPost, path, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
