package riftpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an HTTP client for the Riftpay API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// Configuration
	UserAgent string // Sent as User-Agent (default: riftpay-go)
}

// NewClient creates a client for the API at baseURL. The apiKey is
// sent as a Bearer token; pass "" for unauthenticated calls like
// Register.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		UserAgent: "riftpay-go",
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Register creates a new user and returns their first API key. The
// key is only returned once; the client does not store it.
func (c *Client) Register(ctx context.Context, name string) (*Registration, error) {
	var reg Registration
	err := c.do(ctx, http.MethodPost, "/v1/users", map[string]string{"name": name}, &reg)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// CreateRiftRequest describes a new escrow transaction.
type CreateRiftRequest struct {
	BuyerID    string           `json:"buyerId"`
	SellerID   string           `json:"sellerId"`
	ItemType   string           `json:"itemType"`
	Subtotal   string           `json:"subtotal"`
	Currency   string           `json:"currency,omitempty"`
	Milestones []MilestoneInput `json:"milestones,omitempty"`
}

// CreateRift opens a new rift in the created state.
func (c *Client) CreateRift(ctx context.Context, req CreateRiftRequest) (*Rift, error) {
	var r Rift
	if err := c.do(ctx, http.MethodPost, "/v1/rifts", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRift fetches a rift by ID.
func (c *Client) GetRift(ctx context.Context, id string) (*Rift, error) {
	var r Rift
	if err := c.do(ctx, http.MethodGet, "/v1/rifts/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRifts returns rifts where the given user is buyer or seller.
// A limit of 0 uses the server default.
func (c *Client) ListRifts(ctx context.Context, party string, limit int) ([]*Rift, error) {
	path := "/v1/rifts?party=" + url.QueryEscape(party)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Rifts []*Rift `json:"rifts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rifts, nil
}

// TransitionRequest moves a rift to a target status.
type TransitionRequest struct {
	Target    string `json:"target"`
	ActorID   string `json:"actorId"`
	ActorRole string `json:"actorRole"`
	ProofRef  string `json:"proofRef,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Transition advances a rift through its lifecycle and returns the
// updated rift.
func (c *Client) Transition(ctx context.Context, riftID string, req TransitionRequest) (*Rift, error) {
	var resp struct {
		Rift *Rift `json:"rift"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/rifts/"+url.PathEscape(riftID)+"/transition", req, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rift, nil
}

// ReleaseOutcome reports the result of a release request.
type ReleaseOutcome struct {
	Released        bool   `json:"released"`
	PayoutRef       string `json:"payoutRef,omitempty"`
	ParentCompleted bool   `json:"parentCompleted,omitempty"`
}

// Release pays out the full escrow to the seller.
func (c *Client) Release(ctx context.Context, riftID, actorID, actorRole string) (*ReleaseOutcome, error) {
	body := map[string]string{"actorId": actorID, "actorRole": actorRole}
	var out ReleaseOutcome
	err := c.do(ctx, http.MethodPost, "/v1/rifts/"+url.PathEscape(riftID)+"/release", body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseMilestone pays out a single milestone of a service rift.
func (c *Client) ReleaseMilestone(ctx context.Context, riftID string, index int, actorID, actorRole string) (*ReleaseOutcome, error) {
	body := map[string]string{"actorId": actorID, "actorRole": actorRole}
	path := fmt.Sprintf("/v1/rifts/%s/milestones/%d/release", url.PathEscape(riftID), index)
	var out ReleaseOutcome
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitMilestoneProof records seller proof on a milestone.
func (c *Client) SubmitMilestoneProof(ctx context.Context, riftID string, index int, actorID, proofRef string) (*Rift, error) {
	body := map[string]string{"actorId": actorID, "proofRef": proofRef}
	path := fmt.Sprintf("/v1/rifts/%s/milestones/%d/proof", url.PathEscape(riftID), index)
	var r Rift
	if err := c.do(ctx, http.MethodPost, path, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// OpenDispute freezes a rift pending admin resolution.
func (c *Client) OpenDispute(ctx context.Context, riftID, buyerID, reason string) (*Dispute, error) {
	body := map[string]string{"buyerId": buyerID, "reason": reason}
	var d Dispute
	err := c.do(ctx, http.MethodPost, "/v1/rifts/"+url.PathEscape(riftID)+"/dispute", body, &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDisputes returns the disputes opened against a rift.
func (c *Client) ListDisputes(ctx context.Context, riftID string) ([]*Dispute, error) {
	var resp struct {
		Disputes []*Dispute `json:"disputes"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/rifts/"+url.PathEscape(riftID)+"/disputes", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Disputes, nil
}

// Timeline returns the audit trail of a rift, newest first.
func (c *Client) Timeline(ctx context.Context, riftID string) ([]*Event, error) {
	var resp struct {
		Events []*Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/rifts/"+url.PathEscape(riftID)+"/timeline", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// GetBalance fetches a user's wallet balance.
func (c *Client) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	var resp struct {
		Balance *Balance `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/wallets/"+url.PathEscape(userID), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Balance, nil
}

// HistoryPage is one page of wallet ledger entries.
type HistoryPage struct {
	Entries    []*Entry `json:"entries"`
	HasMore    bool     `json:"hasMore"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// GetHistory fetches a page of ledger entries. Pass the NextCursor of
// a prior page to continue; an empty cursor starts from the newest.
func (c *Client) GetHistory(ctx context.Context, userID string, limit int, cursor string) (*HistoryPage, error) {
	path := "/v1/wallets/" + url.PathEscape(userID) + "/history"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page HistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Withdraw moves available balance to the user's payout destination.
func (c *Client) Withdraw(ctx context.Context, userID, amount string) (*Payout, error) {
	body := map[string]string{"amount": amount}
	var p Payout
	err := c.do(ctx, http.MethodPost, "/v1/wallets/"+url.PathEscape(userID)+"/withdraw", body, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayouts returns a user's payouts, newest first.
func (c *Client) ListPayouts(ctx context.Context, userID string) ([]*Payout, error) {
	var resp struct {
		Payouts []*Payout `json:"payouts"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/wallets/"+url.PathEscape(userID)+"/payouts", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Payouts, nil
}

// GetPayout fetches a payout by ID.
func (c *Client) GetPayout(ctx context.Context, id string) (*Payout, error) {
	var p Payout
	if err := c.do(ctx, http.MethodGet, "/v1/payouts/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
