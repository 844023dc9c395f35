package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiftpayClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiftpayClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCheckWallet returns the user's wallet balance.
func (h *Handlers) HandleCheckWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetWallet(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check wallet: %v", err)), nil
	}

	text, err := formatWallet(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse wallet: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCreateRift opens a new escrow with a seller.
func (h *Handlers) HandleCreateRift(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sellerID := req.GetString("seller_id", "")
	if sellerID == "" {
		return mcp.NewToolResultError("seller_id is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}
	itemType := req.GetString("item_type", "")
	if itemType == "" {
		return mcp.NewToolResultError("item_type is required"), nil
	}

	raw, err := h.client.CreateRift(ctx, sellerID, amount, itemType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create rift: %v", err)), nil
	}

	r, err := parseRift(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse rift: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Rift created.\n"+
			"ID: %s\n"+
			"Seller: %s\n"+
			"Subtotal: %s | Your total with fees: %s\n"+
			"Status: %s\n\n"+
			"Next step: advance_rift to 'awaiting_payment', then to 'funded' once paid.",
		r.ID, r.SellerID, r.Subtotal, r.BuyerTotal, r.Status)), nil
}

// HandleGetRift fetches a rift's full state.
func (h *Handlers) HandleGetRift(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	riftID := req.GetString("rift_id", "")
	if riftID == "" {
		return mcp.NewToolResultError("rift_id is required"), nil
	}

	raw, err := h.client.GetRift(ctx, riftID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get rift: %v", err)), nil
	}

	text, err := formatRift(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse rift: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListRifts lists the user's rifts.
func (h *Handlers) HandleListRifts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListRifts(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list rifts: %v", err)), nil
	}

	text, err := formatRiftList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse rifts: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleAdvanceRift moves a rift through its state machine.
func (h *Handlers) HandleAdvanceRift(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	riftID := req.GetString("rift_id", "")
	if riftID == "" {
		return mcp.NewToolResultError("rift_id is required"), nil
	}
	target := req.GetString("target", "")
	if target == "" {
		return mcp.NewToolResultError("target is required"), nil
	}
	role := req.GetString("role", "")
	if role == "" {
		return mcp.NewToolResultError("role is required"), nil
	}

	raw, err := h.client.Transition(ctx, riftID, target, role)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Transition failed: %v", err)), nil
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Status == "" {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Rift %s is now %s.", riftID, resp.Status)), nil
}

// HandleReleaseFunds releases held funds to the seller.
func (h *Handlers) HandleReleaseFunds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	riftID := req.GetString("rift_id", "")
	if riftID == "" {
		return mcp.NewToolResultError("rift_id is required"), nil
	}
	role := req.GetString("role", "")
	if role == "" {
		return mcp.NewToolResultError("role is required"), nil
	}

	raw, err := h.client.Release(ctx, riftID, role)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Release failed: %v", err)), nil
	}

	r, err := parseRift(raw)
	if err != nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Funds released.\n"+
			"Rift: %s\n"+
			"Seller receives: %s (after %s seller fee)\n"+
			"Status: %s",
		r.ID, r.SellerNet, r.SellerFee, r.Status)), nil
}

// HandleOpenDispute freezes a rift pending review.
func (h *Handlers) HandleOpenDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	riftID := req.GetString("rift_id", "")
	if riftID == "" {
		return mcp.NewToolResultError("rift_id is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	_, err := h.client.OpenDispute(ctx, riftID, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Dispute failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Dispute opened on rift %s.\n"+
			"Reason: %s\n"+
			"All payouts on this rift are frozen until the dispute is resolved.",
		riftID, reason)), nil
}

// HandleRiftTimeline shows a rift's event history.
func (h *Handlers) HandleRiftTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	riftID := req.GetString("rift_id", "")
	if riftID == "" {
		return mcp.NewToolResultError("rift_id is required"), nil
	}
	limit := req.GetInt("limit", 50)

	raw, err := h.client.Timeline(ctx, riftID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get timeline: %v", err)), nil
	}

	text, err := formatTimeline(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse timeline: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleWithdraw requests a payout of available funds.
func (h *Handlers) HandleWithdraw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}

	raw, err := h.client.Withdraw(ctx, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Withdrawal failed: %v", err)), nil
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	payout := resp
	if p, ok := resp["payout"].(map[string]any); ok {
		payout = p
	}

	var sb strings.Builder
	sb.WriteString("Withdrawal requested.\n")
	if id := getString(payout, "id"); id != "" {
		fmt.Fprintf(&sb, "Payout ID: %s\n", id)
	}
	fmt.Fprintf(&sb, "Amount: %s\n", amount)
	if status := getString(payout, "status"); status != "" {
		fmt.Fprintf(&sb, "Status: %s", status)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// HandlePlatformInfo returns platform configuration.
func (h *Handlers) HandlePlatformInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetPlatformInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get platform info: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

type riftInfo struct {
	ID         string `json:"id"`
	BuyerID    string `json:"buyerId"`
	SellerID   string `json:"sellerId"`
	ItemType   string `json:"itemType"`
	Subtotal   string `json:"subtotal"`
	BuyerFee   string `json:"buyerFee"`
	SellerFee  string `json:"sellerFee"`
	SellerNet  string `json:"sellerNet"`
	BuyerTotal string `json:"buyerTotal"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

func parseRift(raw json.RawMessage) (riftInfo, error) {
	var r riftInfo
	if err := json.Unmarshal(raw, &r); err != nil {
		return riftInfo{}, err
	}
	if r.ID == "" {
		// Try nested under "rift"
		var wrapper struct {
			Rift riftInfo `json:"rift"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Rift.ID != "" {
			return wrapper.Rift, nil
		}
		return riftInfo{}, fmt.Errorf("no rift in response: %s", string(raw))
	}
	return r, nil
}

func formatRift(raw json.RawMessage) (string, error) {
	r, err := parseRift(raw)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rift %s (%s)\n", r.ID, r.Status)
	fmt.Fprintf(&sb, "  Buyer:  %s\n", r.BuyerID)
	fmt.Fprintf(&sb, "  Seller: %s\n", r.SellerID)
	fmt.Fprintf(&sb, "  Item: %s\n", r.ItemType)
	fmt.Fprintf(&sb, "  Subtotal: %s %s\n", r.Subtotal, r.Currency)
	fmt.Fprintf(&sb, "  Buyer pays: %s (fee %s)\n", r.BuyerTotal, r.BuyerFee)
	fmt.Fprintf(&sb, "  Seller gets: %s (fee %s)\n", r.SellerNet, r.SellerFee)

	return sb.String(), nil
}

func formatRiftList(raw json.RawMessage) (string, error) {
	var resp struct {
		Rifts []riftInfo `json:"rifts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected rifts response format")
	}

	if len(resp.Rifts) == 0 {
		return "No rifts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d rift(s):\n\n", len(resp.Rifts))
	for i, r := range resp.Rifts {
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, r.ID, r.Status)
		fmt.Fprintf(&sb, "   %s | %s %s | buyer %s, seller %s\n", r.ItemType, r.Subtotal, r.Currency, r.BuyerID, r.SellerID)
		if i < len(resp.Rifts)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatTimeline(raw json.RawMessage) (string, error) {
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	// Try as {"events": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Events == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Events); err != nil {
			return "", fmt.Errorf("unexpected timeline response format")
		}
	}

	if len(resp.Events) == 0 {
		return "No events recorded for this rift.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d event(s):\n\n", len(resp.Events))
	for _, e := range resp.Events {
		at := getString(e, "at", "createdAt")
		action := getString(e, "action")
		actor := getString(e, "actor")
		detail := getString(e, "detail")
		fmt.Fprintf(&sb, "- %s  %s (%s)", at, action, actor)
		if detail != "" {
			fmt.Fprintf(&sb, ": %s", detail)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatWallet(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	// Balance might be at top level or nested under "balance"
	bal := resp
	if b, ok := resp["balance"].(map[string]any); ok {
		bal = b
	}

	currency := getString(bal, "currency")
	if currency == "" {
		currency = "USD"
	}

	var sb strings.Builder
	sb.WriteString("Wallet Balance:\n")
	fmt.Fprintf(&sb, "  Available: %s %s\n", getString(bal, "available"), currency)
	if v := getString(bal, "pending"); v != "" && v != "0" && v != "0.00" {
		fmt.Fprintf(&sb, "  Pending:   %s %s\n", v, currency)
	}
	if v := getString(bal, "totalIn"); v != "" {
		fmt.Fprintf(&sb, "  Total in:  %s %s\n", v, currency)
	}
	if v := getString(bal, "totalOut"); v != "" {
		fmt.Fprintf(&sb, "  Total out: %s %s\n", v, currency)
	}

	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
