// Package riftpay provides a Go client for the Riftpay escrow API.
// This is the foundation for the Riftpay SDK.
package riftpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Rift is an escrow transaction between a buyer and a seller.
type Rift struct {
	ID         string    `json:"id"`
	Number     int64     `json:"number,omitempty"`
	BuyerID    string    `json:"buyerId"`
	SellerID   string    `json:"sellerId"`
	ItemType   string    `json:"itemType"`
	Subtotal   string    `json:"subtotal"`
	BuyerFee   string    `json:"buyerFee"`
	SellerFee  string    `json:"sellerFee"`
	SellerNet  string    `json:"sellerNet"`
	BuyerTotal string    `json:"buyerTotal"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	Version    int64     `json:"version,omitempty"`

	ProofRef          string     `json:"proofRef,omitempty"`
	FundedAt          *time.Time `json:"fundedAt,omitempty"`
	GracePeriodEndsAt *time.Time `json:"gracePeriodEndsAt,omitempty"`
	AutoReleaseAt     *time.Time `json:"autoReleaseAt,omitempty"`
	ReleasedAt        *time.Time `json:"releasedAt,omitempty"`

	AllowsPartialRelease bool        `json:"allowsPartialRelease,omitempty"`
	Milestones           []Milestone `json:"milestones,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Milestone is a partial-release unit of a service rift.
type Milestone struct {
	Index      int        `json:"index"`
	Title      string     `json:"title"`
	Amount     string     `json:"amount"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
	ProofRef   string     `json:"proofRef,omitempty"`
	Released   bool       `json:"released"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

// MilestoneInput describes a milestone when creating a service rift.
type MilestoneInput struct {
	Title  string     `json:"title"`
	Amount string     `json:"amount"`
	DueAt  *time.Time `json:"dueAt,omitempty"`
}

// Balance is a user's wallet balance.
type Balance struct {
	UserID    string    `json:"userId"`
	Available string    `json:"available"`
	Pending   string    `json:"pending"`
	Currency  string    `json:"currency"`
	TotalIn   string    `json:"totalIn"`
	TotalOut  string    `json:"totalOut"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is an immutable wallet ledger entry.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payout is an external withdrawal.
type Payout struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
	TransferID    string     `json:"transferId,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Dispute freezes a rift's payouts pending resolution.
type Dispute struct {
	ID         string     `json:"id"`
	RiftID     string     `json:"riftId"`
	BuyerID    string     `json:"buyerId"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	Outcome    string     `json:"outcome,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Event is a timeline entry on a rift.
type Event struct {
	ID        string    `json:"id"`
	RiftID    string    `json:"riftId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registration is the response from registering a new user.
type Registration struct {
	UserID  string `json:"userId"`
	APIKey  string `json:"apiKey"`
	KeyID   string `json:"keyId"`
	Warning string `json:"warning,omitempty"`
}

// Error represents an API error response.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// VerifyWebhookSignature checks the X-Riftpay-Signature header of a
// webhook delivery against the raw request body.
func VerifyWebhookSignature(body []byte, secret, signature string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
