package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Riftpay platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "sk_..."
	UserID string // Acting user's ID, e.g. "usr_..."
}

// RiftpayClient is a pure HTTP client for the Riftpay platform API.
type RiftpayClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRiftpayClient creates a new client for the Riftpay platform.
func NewRiftpayClient(cfg Config) *RiftpayClient {
	return &RiftpayClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *RiftpayClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetWallet returns the user's current wallet balance.
func (c *RiftpayClient) GetWallet(ctx context.Context) (json.RawMessage, error) {
	path := "/v1/wallets/" + c.cfg.UserID
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// CreateRift opens a new escrow between the acting user (as buyer) and a seller.
func (c *RiftpayClient) CreateRift(ctx context.Context, sellerID, subtotal, itemType string) (json.RawMessage, error) {
	body := map[string]string{
		"buyerId":  c.cfg.UserID,
		"sellerId": sellerID,
		"subtotal": subtotal,
		"itemType": itemType,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/rifts", nil, body)
}

// GetRift fetches a rift by ID.
func (c *RiftpayClient) GetRift(ctx context.Context, riftID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/rifts/"+riftID, nil, nil)
}

// ListRifts lists rifts where the acting user is buyer or seller.
func (c *RiftpayClient) ListRifts(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("party", c.cfg.UserID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/rifts", q, nil)
}

// Transition asks the rift state machine to move to a target status.
func (c *RiftpayClient) Transition(ctx context.Context, riftID, target, role string) (json.RawMessage, error) {
	body := map[string]string{
		"target":    target,
		"actorId":   c.cfg.UserID,
		"actorRole": role,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/rifts/"+riftID+"/transition", nil, body)
}

// Release pays out the held funds to the seller.
func (c *RiftpayClient) Release(ctx context.Context, riftID, role string) (json.RawMessage, error) {
	body := map[string]string{
		"actorId":   c.cfg.UserID,
		"actorRole": role,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/rifts/"+riftID+"/release", nil, body)
}

// OpenDispute freezes a rift pending review.
func (c *RiftpayClient) OpenDispute(ctx context.Context, riftID, reason string) (json.RawMessage, error) {
	body := map[string]string{
		"buyerId": c.cfg.UserID,
		"reason":  reason,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/rifts/"+riftID+"/dispute", nil, body)
}

// Timeline returns the event history for a rift.
func (c *RiftpayClient) Timeline(ctx context.Context, riftID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/rifts/"+riftID+"/timeline", q, nil)
}

// Withdraw requests a payout of available funds.
func (c *RiftpayClient) Withdraw(ctx context.Context, amount string) (json.RawMessage, error) {
	body := map[string]string{
		"amount": amount,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/wallets/"+c.cfg.UserID+"/withdraw", nil, body)
}

// GetPlatformInfo returns platform configuration including fee rates.
func (c *RiftpayClient) GetPlatformInfo(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/platform", nil, nil)
}
