package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		APIKey: "sk_test_key",
		UserID: "usr_buyer",
	}
	client := NewRiftpayClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "sk_secret123", UserID: "usr_a"})
	_, err := client.GetWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_secret123", gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "forbidden",
			"message": "Invalid API key",
		})
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "bad", UserID: "usr_a"})
	_, err := client.GetWallet(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "k", UserID: "usr_a"})
	_, err := client.GetWallet(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_HTTPError_InsufficientBalance(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "insufficient_balance",
			"message": "Available balance 0.50 is less than requested 10.00",
		})
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "k", UserID: "usr_a"})
	_, err := client.Withdraw(context.Background(), "10.00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available balance 0.50 is less than requested 10.00")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewRiftpayClient(Config{APIURL: "http://127.0.0.1:1", APIKey: "k", UserID: "usr_a"})
	_, err := client.GetWallet(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_CreateRift_SendsBuyerID(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(`{"id":"rift_1","status":"draft"}`))
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "k", UserID: "usr_buyer"})
	_, err := client.CreateRift(context.Background(), "usr_seller", "25.00", "digital")
	require.NoError(t, err)

	assert.Equal(t, "usr_buyer", gotBody["buyerId"])
	assert.Equal(t, "usr_seller", gotBody["sellerId"])
	assert.Equal(t, "25.00", gotBody["subtotal"])
	assert.Equal(t, "digital", gotBody["itemType"])
}

func TestClient_ListRifts_QueryParams(t *testing.T) {
	var gotParty, gotLimit string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParty = r.URL.Query().Get("party")
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"rifts":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewRiftpayClient(Config{APIURL: ts.URL, APIKey: "k", UserID: "usr_buyer"})
	_, err := client.ListRifts(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, "usr_buyer", gotParty)
	assert.Equal(t, "5", gotLimit)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleCheckWallet(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/usr_buyer", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"available": "42.50",
			"pending":   "10.00",
			"currency":  "USD",
			"totalIn":   "100.00",
			"totalOut":  "47.50",
		})
	}))
	defer cleanup()

	result, err := h.HandleCheckWallet(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "42.50")
	assert.Contains(t, text, "Pending")
	assert.Contains(t, text, "10.00")
}

func TestHandleCheckWallet_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
	}))
	defer cleanup()

	result, err := h.HandleCheckWallet(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to retrieve balance")
}

func TestHandleCreateRift(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "rift_abc",
			"buyerId":    "usr_buyer",
			"sellerId":   "usr_seller",
			"subtotal":   "25.00",
			"buyerTotal": "25.75",
			"status":     "draft",
		})
	}))
	defer cleanup()

	result, err := h.HandleCreateRift(context.Background(), makeRequest(map[string]any{
		"seller_id": "usr_seller",
		"amount":    "25.00",
		"item_type": "digital",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "rift_abc")
	assert.Contains(t, text, "25.75")
	assert.Contains(t, text, "draft")
}

func TestHandleCreateRift_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called with missing args")
	}))
	defer cleanup()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing seller", map[string]any{"amount": "1.00", "item_type": "digital"}, "seller_id is required"},
		{"missing amount", map[string]any{"seller_id": "usr_s", "item_type": "digital"}, "amount is required"},
		{"missing item type", map[string]any{"seller_id": "usr_s", "amount": "1.00"}, "item_type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleCreateRift(context.Background(), makeRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleGetRift(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_abc", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "rift_abc",
			"buyerId":    "usr_buyer",
			"sellerId":   "usr_seller",
			"itemType":   "digital",
			"subtotal":   "25.00",
			"buyerFee":   "0.75",
			"sellerFee":  "0.50",
			"sellerNet":  "24.50",
			"buyerTotal": "25.75",
			"currency":   "USD",
			"status":     "funded",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetRift(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "rift_abc")
	assert.Contains(t, text, "funded")
	assert.Contains(t, text, "usr_seller")
	assert.Contains(t, text, "24.50")
}

func TestHandleGetRift_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "Rift not found",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetRift(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Rift not found")
}

func TestHandleListRifts(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rifts": []map[string]any{
				{"id": "rift_1", "status": "funded", "itemType": "digital", "subtotal": "10.00", "currency": "USD", "buyerId": "usr_buyer", "sellerId": "usr_s1"},
				{"id": "rift_2", "status": "released", "itemType": "service", "subtotal": "50.00", "currency": "USD", "buyerId": "usr_buyer", "sellerId": "usr_s2"},
			},
			"count": 2,
		})
	}))
	defer cleanup()

	result, err := h.HandleListRifts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "2 rift(s)")
	assert.Contains(t, text, "rift_1")
	assert.Contains(t, text, "rift_2")
}

func TestHandleListRifts_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"rifts": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleListRifts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No rifts found")
}

func TestHandleAdvanceRift(t *testing.T) {
	var gotBody map[string]string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_abc/transition", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "funded",
			"rift":   map[string]any{"id": "rift_abc", "status": "funded"},
		})
	}))
	defer cleanup()

	result, err := h.HandleAdvanceRift(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
		"target":  "funded",
		"role":    "buyer",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "funded", gotBody["target"])
	assert.Equal(t, "usr_buyer", gotBody["actorId"])
	assert.Equal(t, "buyer", gotBody["actorRole"])
	assert.Contains(t, resultText(t, result), "funded")
}

func TestHandleAdvanceRift_InvalidTransition(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_transition",
			"message": "Cannot move from draft to released",
		})
	}))
	defer cleanup()

	result, err := h.HandleAdvanceRift(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
		"target":  "released",
		"role":    "buyer",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Cannot move from draft to released")
}

func TestHandleReleaseFunds(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_abc/release", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        "rift_abc",
			"sellerNet": "24.50",
			"sellerFee": "0.50",
			"status":    "released",
		})
	}))
	defer cleanup()

	result, err := h.HandleReleaseFunds(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
		"role":    "buyer",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "released")
	assert.Contains(t, text, "24.50")
}

func TestHandleOpenDispute(t *testing.T) {
	var gotBody map[string]string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_abc/dispute", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "dsp_1", "status": "open"})
	}))
	defer cleanup()

	result, err := h.HandleOpenDispute(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
		"reason":  "Item never arrived",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "usr_buyer", gotBody["buyerId"])
	assert.Equal(t, "Item never arrived", gotBody["reason"])

	text := resultText(t, result)
	assert.Contains(t, text, "rift_abc")
	assert.Contains(t, text, "frozen")
}

func TestHandleOpenDispute_MissingReason(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called without a reason")
	}))
	defer cleanup()

	result, err := h.HandleOpenDispute(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "reason is required")
}

func TestHandleRiftTimeline(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_abc/timeline", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"at": "2026-01-01T10:00:00Z", "action": "rift.created", "actor": "usr_buyer", "detail": "digital 25.00 USD"},
				{"at": "2026-01-01T10:05:00Z", "action": "rift.funded", "actor": "usr_buyer"},
			},
		})
	}))
	defer cleanup()

	result, err := h.HandleRiftTimeline(context.Background(), makeRequest(map[string]any{
		"rift_id": "rift_abc",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "rift.created")
	assert.Contains(t, text, "rift.funded")
	assert.Contains(t, text, "usr_buyer")
}

func TestHandleWithdraw(t *testing.T) {
	var gotBody map[string]string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/usr_buyer/withdraw", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payout": map[string]any{"id": "pay_1", "status": "processing"},
		})
	}))
	defer cleanup()

	result, err := h.HandleWithdraw(context.Background(), makeRequest(map[string]any{
		"amount": "50.00",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "50.00", gotBody["amount"])

	text := resultText(t, result)
	assert.Contains(t, text, "pay_1")
	assert.Contains(t, text, "processing")
}

func TestHandleWithdraw_MissingAmount(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called without an amount")
	}))
	defer cleanup()

	result, err := h.HandleWithdraw(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "amount is required")
}

func TestHandlePlatformInfo(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/platform", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"fees": map[string]any{"buyerBps": 300, "sellerBps": 200},
		})
	}))
	defer cleanup()

	result, err := h.HandlePlatformInfo(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "buyerBps")
}
