package riftpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "sk_test_key")
}

func TestClient_AuthHeader(t *testing.T) {
	var gotAuth, gotAgent string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode(map[string]any{"balance": map[string]any{"userId": "usr_1"}})
	})

	_, err := client.GetBalance(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_test_key", gotAuth)
	assert.Equal(t, "riftpay-go", gotAgent)
}

func TestClient_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"userId": "usr_1", "apiKey": "sk_new"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	reg, err := client.Register(context.Background(), "my key")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "usr_1", reg.UserID)
	assert.Equal(t, "sk_new", reg.APIKey)
}

func TestClient_APIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "insufficient_balance",
			"message": "available balance is 5.00",
		})
	})

	_, err := client.Withdraw(context.Background(), "usr_1", "100.00")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "insufficient_balance", apiErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "available balance is 5.00")
}

func TestClient_NonJSONError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream timeout"))
	})

	_, err := client.GetRift(context.Background(), "rift_1")
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "http_502", apiErr.Code)
}

func TestClient_CreateRift(t *testing.T) {
	var gotBody map[string]any
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rifts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "rift_abc",
			"status":     "created",
			"buyerTotal": "103.00",
		})
	})

	r, err := client.CreateRift(context.Background(), CreateRiftRequest{
		BuyerID:  "usr_buyer",
		SellerID: "usr_seller",
		ItemType: "digital",
		Subtotal: "100.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "rift_abc", r.ID)
	assert.Equal(t, "created", r.Status)
	assert.Equal(t, "103.00", r.BuyerTotal)
	assert.Equal(t, "usr_buyer", gotBody["buyerId"])
	assert.Equal(t, "100.00", gotBody["subtotal"])
}

func TestClient_ListRifts(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usr_1", r.URL.Query().Get("party"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"rifts": []map[string]any{{"id": "rift_1"}, {"id": "rift_2"}},
			"count": 2,
		})
	})

	rifts, err := client.ListRifts(context.Background(), "usr_1", 10)
	require.NoError(t, err)
	require.Len(t, rifts, 2)
	assert.Equal(t, "rift_1", rifts[0].ID)
}

func TestClient_TransitionUnwrapsEnvelope(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_1/transition", r.URL.Path)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "funded", body["target"])
		assert.Equal(t, "buyer", body["actorRole"])
		json.NewEncoder(w).Encode(map[string]any{
			"status": "funded",
			"rift":   map[string]any{"id": "rift_1", "status": "funded"},
		})
	})

	r, err := client.Transition(context.Background(), "rift_1", TransitionRequest{
		Target:    "funded",
		ActorID:   "usr_buyer",
		ActorRole: "buyer",
	})
	require.NoError(t, err)
	assert.Equal(t, "funded", r.Status)
}

func TestClient_Release(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_1/release", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"released": true, "payoutRef": "po_9"})
	})

	out, err := client.Release(context.Background(), "rift_1", "usr_buyer", "buyer")
	require.NoError(t, err)
	assert.True(t, out.Released)
	assert.Equal(t, "po_9", out.PayoutRef)
}

func TestClient_ReleaseMilestonePath(t *testing.T) {
	var gotPath string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"released": true, "parentCompleted": true})
	})

	out, err := client.ReleaseMilestone(context.Background(), "rift_1", 2, "usr_buyer", "buyer")
	require.NoError(t, err)
	assert.Equal(t, "/v1/rifts/rift_1/milestones/2/release", gotPath)
	assert.True(t, out.ParentCompleted)
}

func TestClient_GetHistoryPagination(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "abc123", r.URL.Query().Get("cursor"))
		json.NewEncoder(w).Encode(map[string]any{
			"entries":    []map[string]any{{"id": "le_1", "amount": "10.00"}},
			"count":      1,
			"hasMore":    true,
			"nextCursor": "def456",
		})
	})

	page, err := client.GetHistory(context.Background(), "usr_1", 25, "abc123")
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, "def456", page.NextCursor)
}

func TestClient_OpenDispute(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rifts/rift_1/dispute", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "dsp_1",
			"riftId": "rift_1",
			"status": "open",
		})
	})

	d, err := client.OpenDispute(context.Background(), "rift_1", "usr_buyer", "item never arrived")
	require.NoError(t, err)
	assert.Equal(t, "dsp_1", d.ID)
	assert.Equal(t, "open", d.Status)
}

func TestClient_Timeline(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"id": "evt_2", "action": "funded"},
				{"id": "evt_1", "action": "created"},
			},
			"count": 2,
		})
	})

	events, err := client.Timeline(context.Background(), "rift_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "funded", events[0].Action)
}

func TestClient_ConnectionError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "sk_test")
	_, err := client.GetRift(context.Background(), "rift_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"rift.released","riftId":"rift_1"}`)
	secret := "whsec_test"

	// Signature produced the same way the dispatcher signs deliveries.
	valid := signBody(body, secret)

	assert.True(t, VerifyWebhookSignature(body, secret, valid))
	assert.False(t, VerifyWebhookSignature(body, secret, "deadbeef"))
	assert.False(t, VerifyWebhookSignature(body, "wrong-secret", valid))
	assert.False(t, VerifyWebhookSignature([]byte(`tampered`), secret, valid))
}
