// Package rift implements the escrow transaction lifecycle.
//
// Flow:
//  1. Buyer or seller creates a Rift → fees computed once, status draft
//  2. External payment confirmation funds it (system actor)
//  3. Seller ships or submits delivery proof → grace window scheduled
//  4. Buyer releases, or the auto-release sweep fires after the window
//  5. Funds credited to the seller's wallet minus fees
//
// Disputes freeze every release path; the release guard serializes
// concurrent release attempts per (rift, unit) so a payout happens at
// most once.
package rift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/riftworks/riftpay/internal/fees"
	"github.com/riftworks/riftpay/internal/idgen"
	"github.com/riftworks/riftpay/internal/money"
	"github.com/riftworks/riftpay/internal/syncutil"
)

var (
	ErrRiftNotFound        = errors.New("rift: not found")
	ErrValidation          = errors.New("rift: validation failed")
	ErrForbiddenTransition = errors.New("rift: transition not allowed")
	ErrVersionConflict     = errors.New("rift: concurrent update, retry")
	ErrInvalidStatus       = errors.New("rift: invalid status for this operation")
	ErrUnauthorized        = errors.New("rift: actor not a party to this rift")
	ErrFrozen              = errors.New("rift: releases frozen by open dispute")
	ErrReleaseInProgress   = errors.New("rift: release already in progress")
	ErrReleaseNotFound     = errors.New("rift: release record not found")
	ErrProofRequired       = errors.New("rift: delivery proof required")
	ErrMilestoneOutOfRange = errors.New("rift: milestone index out of range")
	ErrNoMilestones        = errors.New("rift: rift does not support partial release")
	ErrMilestonesOnly      = errors.New("rift: milestone rifts settle per milestone")
	ErrPayoutFailed        = errors.New("rift: external payout failed")
	ErrPayoutIndeterminate = errors.New("rift: payout outcome unknown, pending reconciliation")
)

// Status is the lifecycle state of a rift. Released, refunded and
// cancelled are terminal.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusAwaitingPayment  Status = "awaiting_payment"
	StatusFunded           Status = "funded"
	StatusAwaitingShipment Status = "awaiting_shipment"
	StatusInTransit        Status = "in_transit"
	StatusDelivered        Status = "delivered_pending_release"
	StatusProofSubmitted   Status = "proof_submitted"
	StatusUnderReview      Status = "under_review"
	StatusReleased         Status = "released"
	StatusRefunded         Status = "refunded"
	StatusDisputed         Status = "disputed"
	StatusCancelled        Status = "cancelled"
)

// IsTerminal returns true if no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReleased, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

// Role identifies who is requesting a transition.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// ItemType classifies what is being escrowed. It determines delivery-proof
// rules and grace-period lengths.
type ItemType string

const (
	ItemPhysical ItemType = "physical"
	ItemDigital  ItemType = "digital"
	ItemTicket   ItemType = "ticket"
	ItemService  ItemType = "service"
)

func validItemType(t ItemType) bool {
	switch t {
	case ItemPhysical, ItemDigital, ItemTicket, ItemService:
		return true
	}
	return false
}

// earlyReleaseAllowed reports whether a buyer may release directly from
// in_transit, skipping the grace window. Physical items never get this
// shortcut: the buyer has to wait for delivery confirmation.
func earlyReleaseAllowed(t ItemType) bool {
	return t != ItemPhysical
}

type transitionKey struct {
	from Status
	to   Status
}

// transitions is the authoritative allowed-transition table: who may move
// a rift between each pair of states. Anything absent is forbidden.
var transitions = map[transitionKey][]Role{
	{StatusDraft, StatusAwaitingPayment}: {RoleBuyer, RoleSeller},
	{StatusDraft, StatusCancelled}:       {RoleBuyer, RoleSeller},

	// Funding is triggered only by a confirmed payment event, never by a
	// party directly.
	{StatusAwaitingPayment, StatusFunded}:    {RoleSystem},
	{StatusAwaitingPayment, StatusCancelled}: {RoleBuyer, RoleSeller, RoleAdmin},

	{StatusFunded, StatusAwaitingShipment}: {RoleSeller},
	{StatusFunded, StatusInTransit}:        {RoleSeller},
	{StatusFunded, StatusProofSubmitted}:   {RoleSeller},
	{StatusFunded, StatusRefunded}:         {RoleAdmin},

	{StatusAwaitingShipment, StatusInTransit}: {RoleSeller},

	{StatusInTransit, StatusDelivered}: {RoleBuyer, RoleSystem},
	// Early release for non-physical items only; checked in Transition.
	{StatusInTransit, StatusReleased}: {RoleBuyer, RoleSystem},

	{StatusDelivered, StatusReleased}: {RoleBuyer, RoleSystem},

	{StatusProofSubmitted, StatusUnderReview}: {RoleBuyer, RoleAdmin},
	{StatusProofSubmitted, StatusReleased}:    {RoleBuyer, RoleSystem},

	{StatusUnderReview, StatusReleased}: {RoleBuyer, RoleAdmin, RoleSystem},
	{StatusUnderReview, StatusRefunded}: {RoleAdmin},

	// A buyer may dispute any funded, not-yet-released state, once.
	{StatusFunded, StatusDisputed}:           {RoleBuyer},
	{StatusAwaitingShipment, StatusDisputed}: {RoleBuyer},
	{StatusInTransit, StatusDisputed}:        {RoleBuyer},
	{StatusDelivered, StatusDisputed}:        {RoleBuyer},
	{StatusProofSubmitted, StatusDisputed}:   {RoleBuyer},
	{StatusUnderReview, StatusDisputed}:      {RoleBuyer},

	// Dispute resolution outcomes come from the dispute service.
	{StatusDisputed, StatusUnderReview}: {RoleAdmin},
	{StatusDisputed, StatusRefunded}:    {RoleAdmin, RoleSystem},
	{StatusDisputed, StatusReleased}:    {RoleAdmin, RoleSystem},
	{StatusDisputed, StatusDelivered}:   {RoleAdmin},
}

// TransitionError reports the exact rejected edge.
type TransitionError struct {
	From Status
	To   Status
	Role Role
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("rift: transition %s -> %s not allowed for role %s", e.From, e.To, e.Role)
}

func (e *TransitionError) Unwrap() error { return ErrForbiddenTransition }

// allowed checks the transition table for (from, to, role).
func allowed(from, to Status, role Role) bool {
	roles, ok := transitions[transitionKey{from, to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Milestone is a partial-release unit of a service rift.
type Milestone struct {
	Index            int        `json:"index"`
	Title            string     `json:"title"`
	Amount           string     `json:"amount"`
	DueAt            *time.Time `json:"dueAt,omitempty"`
	ProofRef         string     `json:"proofRef,omitempty"`
	ProofSubmittedAt *time.Time `json:"proofSubmittedAt,omitempty"`
	AutoReleaseAt    *time.Time `json:"autoReleaseAt,omitempty"`
	Released         bool       `json:"released"`
	ReleasedAt       *time.Time `json:"releasedAt,omitempty"`
}

// Rift is one escrow deal between a buyer and a seller. Economic fields
// are computed once at creation and never recomputed except at milestone
// granularity.
type Rift struct {
	ID       string `json:"id"`
	Number   int64  `json:"number"`
	BuyerID  string `json:"buyerId"`
	SellerID string `json:"sellerId"`

	ItemType   ItemType `json:"itemType"`
	Subtotal   string   `json:"subtotal"`
	BuyerFee   string   `json:"buyerFee"`
	SellerFee  string   `json:"sellerFee"`
	SellerNet  string   `json:"sellerNet"`
	BuyerTotal string   `json:"buyerTotal"`
	Currency   string   `json:"currency"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`

	ProofRef             string     `json:"proofRef,omitempty"`
	AutoReleaseScheduled bool       `json:"autoReleaseScheduled"`
	FundedAt             *time.Time `json:"fundedAt,omitempty"`
	DeliveryVerifiedAt   *time.Time `json:"deliveryVerifiedAt,omitempty"`
	GracePeriodEndsAt    *time.Time `json:"gracePeriodEndsAt,omitempty"`
	AutoReleaseAt        *time.Time `json:"autoReleaseAt,omitempty"`
	ReleasedAt           *time.Time `json:"releasedAt,omitempty"`

	AllowsPartialRelease bool         `json:"allowsPartialRelease"`
	Milestones           []*Milestone `json:"milestones,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReleaseRecordStatus tracks a release unit through the concurrency guard.
type ReleaseRecordStatus string

const (
	ReleaseCreating ReleaseRecordStatus = "creating"
	ReleaseDone     ReleaseRecordStatus = "released"
)

// UnitWhole is the unit key for a whole-rift release; milestone units use
// MilestoneUnit(i).
const UnitWhole = "rift"

// MilestoneUnit returns the guard unit key for milestone index i.
func MilestoneUnit(i int) string {
	return fmt.Sprintf("ms:%d", i)
}

// ReleaseRecord is the concurrency guard row: at most one per
// (rift, unit), and at most one may ever reach released status.
type ReleaseRecord struct {
	RiftID     string              `json:"riftId"`
	UnitKey    string              `json:"unitKey"`
	Status     ReleaseRecordStatus `json:"status"`
	Amount     string              `json:"amount"`
	SellerNet  string              `json:"sellerNet"`
	PayoutRef  string              `json:"payoutRef,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	ReleasedAt *time.Time          `json:"releasedAt,omitempty"`
}

// Store persists rifts and release records.
//
// Update must be conditional on the rift's version (compare-and-swap),
// returning ErrVersionConflict when another writer got there first.
// BeginRelease must be a single atomic insert-or-return: when a record
// already exists for (riftID, unitKey) it returns that record with
// created=false instead of inserting.
type Store interface {
	Create(ctx context.Context, r *Rift) error
	Get(ctx context.Context, id string) (*Rift, error)
	Update(ctx context.Context, r *Rift) error
	ListByParty(ctx context.Context, userID string, limit int) ([]*Rift, error)
	ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*Rift, error)
	ListDueMilestones(ctx context.Context, now time.Time, limit int) ([]*Rift, error)

	BeginRelease(ctx context.Context, rec *ReleaseRecord) (*ReleaseRecord, bool, error)
	CompleteRelease(ctx context.Context, riftID, unitKey, payoutRef string) error
	AbortRelease(ctx context.Context, riftID, unitKey string) error
	GetRelease(ctx context.Context, riftID, unitKey string) (*ReleaseRecord, error)
	ListStaleReleases(ctx context.Context, before time.Time, limit int) ([]*ReleaseRecord, error)
}

// LedgerService credits seller proceeds and buyer refunds so rift does
// not import ledger directly.
type LedgerService interface {
	Credit(ctx context.Context, userID, amount, reason, reference string) error
}

// PayoutOutcome classifies an external transfer attempt. Callers must
// distinguish "nothing happened" from "money may have moved".
type PayoutOutcome int

const (
	PayoutSent PayoutOutcome = iota
	// PayoutNoDestination: seller has no payout destination configured;
	// funds stay in the platform wallet. A valid release outcome.
	PayoutNoDestination
	// PayoutIndeterminate: the call timed out. The transfer may or may
	// not have happened; the release record stays in creating status for
	// the reconciliation pass.
	PayoutIndeterminate
	PayoutFailure
)

func (o PayoutOutcome) String() string {
	switch o {
	case PayoutSent:
		return "sent"
	case PayoutNoDestination:
		return "no_destination"
	case PayoutIndeterminate:
		return "indeterminate"
	case PayoutFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PayoutSender attempts the external transfer for a release.
type PayoutSender interface {
	SendRelease(ctx context.Context, sellerID, amount, reference string) (transferID string, outcome PayoutOutcome, err error)
}

// FreezeChecker is consulted immediately before every payout attempt.
type FreezeChecker interface {
	CheckFreeze(ctx context.Context, riftID string) (frozen bool, reason string, err error)
}

// Recorder appends timeline events. Recording must never block or fail a
// financial commit; implementations swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, riftID, actor, action, detail string)
}

// MilestoneInput describes one milestone at creation time.
type MilestoneInput struct {
	Title  string     `json:"title" binding:"required"`
	Amount string     `json:"amount" binding:"required"`
	DueAt  *time.Time `json:"dueAt"`
}

// CreateRequest contains the parameters for creating a rift.
type CreateRequest struct {
	BuyerID    string           `json:"buyerId" binding:"required"`
	SellerID   string           `json:"sellerId" binding:"required"`
	ItemType   ItemType         `json:"itemType" binding:"required"`
	Subtotal   string           `json:"subtotal" binding:"required"`
	Currency   string           `json:"currency"`
	Milestones []MilestoneInput `json:"milestones"`
}

// TransitionRequest asks the state machine to move a rift.
type TransitionRequest struct {
	Target    Status `json:"target" binding:"required"`
	ActorID   string `json:"actorId" binding:"required"`
	ActorRole Role   `json:"actorRole" binding:"required"`
	ProofRef  string `json:"proofRef"`
	Detail    string `json:"detail"`
}

// Service implements the rift lifecycle.
type Service struct {
	store    Store
	calc     *fees.Calculator
	ledger   LedgerService
	payer    PayoutSender
	freeze   FreezeChecker
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	physicalGrace    time.Duration
	nonPhysicalGrace time.Duration
	milestoneReview  time.Duration

	locks syncutil.ShardedMutex // per-rift ID locks serializing transitions and releases
}

// NewService creates a new rift service with default grace windows.
func NewService(store Store, calc *fees.Calculator, ledger LedgerService) *Service {
	return &Service{
		store:            store,
		calc:             calc,
		ledger:           ledger,
		logger:           slog.Default(),
		now:              time.Now,
		physicalGrace:    48 * time.Hour,
		nonPhysicalGrace: 24 * time.Hour,
		milestoneReview:  3 * 24 * time.Hour,
	}
}

// WithPayer sets the external payout collaborator.
func (s *Service) WithPayer(p PayoutSender) *Service {
	s.payer = p
	return s
}

// WithFreezeChecker sets the dispute freeze gate.
func (s *Service) WithFreezeChecker(f FreezeChecker) *Service {
	s.freeze = f
	return s
}

// WithRecorder sets the timeline recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithGraceWindows overrides the auto-release windows.
func (s *Service) WithGraceWindows(physical, nonPhysical, milestoneReview time.Duration) *Service {
	if physical > 0 {
		s.physicalGrace = physical
	}
	if nonPhysical > 0 {
		s.nonPhysicalGrace = nonPhysical
	}
	if milestoneReview > 0 {
		s.milestoneReview = milestoneReview
	}
	return s
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) riftLock(id string) func() {
	return s.locks.Lock(id)
}

func (s *Service) record(ctx context.Context, riftID, actor, action, detail string) {
	if s.recorder != nil {
		s.recorder.Record(ctx, riftID, actor, action, detail)
	}
}

// Create validates the request, computes fees once and persists the rift
// in draft status.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Rift, error) {
	buyer := strings.TrimSpace(req.BuyerID)
	seller := strings.TrimSpace(req.SellerID)
	if buyer == "" || seller == "" {
		return nil, fmt.Errorf("%w: buyerId and sellerId are required", ErrValidation)
	}
	if strings.EqualFold(buyer, seller) {
		return nil, fmt.Errorf("%w: buyer and seller cannot be the same user", ErrValidation)
	}
	if !validItemType(req.ItemType) {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrValidation, req.ItemType)
	}

	quote, err := s.calc.Quote(req.Subtotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	milestones, err := buildMilestones(req)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := s.now()
	r := &Rift{
		ID:                   idgen.WithPrefix("rift_"),
		BuyerID:              buyer,
		SellerID:             seller,
		ItemType:             req.ItemType,
		Subtotal:             quote.Subtotal,
		BuyerFee:             quote.BuyerFee,
		SellerFee:            quote.SellerFee,
		SellerNet:            quote.SellerNet,
		BuyerTotal:           quote.BuyerTotal,
		Currency:             currency,
		Status:               StatusDraft,
		Version:              1,
		AllowsPartialRelease: len(milestones) > 0,
		Milestones:           milestones,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create rift: %w", err)
	}

	s.record(ctx, r.ID, buyer, "rift.created", string(req.ItemType)+" "+quote.Subtotal+" "+currency)
	return r, nil
}

// buildMilestones validates milestone inputs: only service rifts may carry
// them, and their amounts must sum to the subtotal within one cent.
// Enforced once at creation, not re-validated at release time.
func buildMilestones(req CreateRequest) ([]*Milestone, error) {
	if len(req.Milestones) == 0 {
		return nil, nil
	}
	if req.ItemType != ItemService {
		return nil, fmt.Errorf("%w: milestones are only supported for service rifts", ErrValidation)
	}

	subtotal, ok := money.Parse(req.Subtotal)
	if !ok {
		return nil, fmt.Errorf("%w: invalid subtotal", ErrValidation)
	}

	sum := new(big.Int)
	milestones := make([]*Milestone, len(req.Milestones))
	for i, in := range req.Milestones {
		amt, ok := money.Parse(in.Amount)
		if !ok || amt.Sign() <= 0 {
			return nil, fmt.Errorf("%w: milestones[%d]: invalid amount %q", ErrValidation, i, in.Amount)
		}
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("%w: milestones[%d]: title is required", ErrValidation, i)
		}
		sum.Add(sum, amt)
		milestones[i] = &Milestone{
			Index:  i,
			Title:  strings.TrimSpace(in.Title),
			Amount: money.Format(amt),
			DueAt:  in.DueAt,
		}
	}

	if !money.WithinTolerance(sum, subtotal) {
		return nil, fmt.Errorf("%w: milestone amounts sum to %s but subtotal is %s",
			ErrValidation, money.Format(sum), req.Subtotal)
	}
	return milestones, nil
}

// Get returns a rift by ID.
func (s *Service) Get(ctx context.Context, id string) (*Rift, error) {
	return s.store.Get(ctx, id)
}

// ListByParty returns rifts where the user is buyer or seller.
func (s *Service) ListByParty(ctx context.Context, userID string, limit int) ([]*Rift, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByParty(ctx, strings.TrimSpace(userID), limit)
}

// Transition moves a rift to the target status after validating the
// transition table against the current persisted status, under the
// per-rift lock. Side effects (grace deadlines, auto-release scheduling)
// happen in the same update as the status change.
//
// Transitions into released delegate to ReleaseWhole so money always
// moves through the guarded release path.
func (s *Service) Transition(ctx context.Context, riftID string, req TransitionRequest) (*Rift, error) {
	if req.Target == StatusReleased {
		if _, err := s.ReleaseWhole(ctx, riftID, req.ActorID, req.ActorRole); err != nil {
			return nil, err
		}
		return s.store.Get(ctx, riftID)
	}

	defer s.riftLock(riftID)()

	r, err := s.store.Get(ctx, riftID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(r, req.ActorID, req.ActorRole); err != nil {
		return nil, err
	}

	if r.Status.IsTerminal() || !allowed(r.Status, req.Target, req.ActorRole) {
		observeRejected()
		return nil, &TransitionError{From: r.Status, To: req.Target, Role: req.ActorRole}
	}

	if err := s.applyTransition(r, req); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}

	s.record(ctx, r.ID, req.ActorID, "rift.transition", string(r.Status))
	observeTransition(string(r.Status))
	return r, nil
}

// authorize checks the actor is the party their role claims. Admin and
// system actors are not parties and skip the identity check.
func (s *Service) authorize(r *Rift, actorID string, role Role) error {
	switch role {
	case RoleBuyer:
		if !strings.EqualFold(actorID, r.BuyerID) {
			return ErrUnauthorized
		}
	case RoleSeller:
		if !strings.EqualFold(actorID, r.SellerID) {
			return ErrUnauthorized
		}
	case RoleAdmin, RoleSystem:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return nil
}

// applyTransition mutates the rift for the target status. Each timing
// field is set by exactly one transition; flag changes ride in the same
// update as the status change.
func (s *Service) applyTransition(r *Rift, req TransitionRequest) error {
	now := s.now()

	switch req.Target {
	case StatusFunded:
		r.FundedAt = &now

	case StatusInTransit:
		if req.ProofRef == "" && r.ProofRef == "" {
			return ErrProofRequired
		}
		if req.ProofRef != "" {
			r.ProofRef = req.ProofRef
		}
		// Non-physical items start their grace window at proof
		// submission; physical items wait for delivery confirmation.
		// Milestone rifts never schedule a whole-rift release: each
		// milestone carries its own review deadline.
		if r.ItemType != ItemPhysical && !r.AllowsPartialRelease {
			s.scheduleAutoRelease(r, now.Add(s.nonPhysicalGrace))
		}

	case StatusProofSubmitted:
		if req.ProofRef == "" && r.ProofRef == "" {
			return ErrProofRequired
		}
		if req.ProofRef != "" {
			r.ProofRef = req.ProofRef
		}
		if !r.AllowsPartialRelease {
			s.scheduleAutoRelease(r, now.Add(s.nonPhysicalGrace))
		}

	case StatusDelivered:
		r.DeliveryVerifiedAt = &now
		grace := s.nonPhysicalGrace
		if r.ItemType == ItemPhysical {
			grace = s.physicalGrace
		}
		if !r.AllowsPartialRelease {
			s.scheduleAutoRelease(r, now.Add(grace))
		}

	case StatusDisputed, StatusRefunded, StatusCancelled, StatusUnderReview:
		// Any of these supersedes a scheduled auto-release. Clearing the
		// flag in the same update keeps the sweep from acting on a rift
		// a human already finalized.
		r.AutoReleaseScheduled = false
	}

	r.Status = req.Target
	r.UpdatedAt = now
	return nil
}

func (s *Service) scheduleAutoRelease(r *Rift, deadline time.Time) {
	r.GracePeriodEndsAt = &deadline
	r.AutoReleaseAt = &deadline
	r.AutoReleaseScheduled = true
}

// MarkDisputed is the dispute service's entry point: it moves the rift to
// disputed and cancels any scheduled auto-release atomically.
func (s *Service) MarkDisputed(ctx context.Context, riftID, buyerID string) (*Rift, error) {
	return s.Transition(ctx, riftID, TransitionRequest{
		Target:    StatusDisputed,
		ActorID:   buyerID,
		ActorRole: RoleBuyer,
	})
}

// ResolveDispute applies an external dispute resolution outcome.
// target must be refunded, released or delivered_pending_release.
func (s *Service) ResolveDispute(ctx context.Context, riftID string, target Status, actorID string) (*Rift, error) {
	return s.Transition(ctx, riftID, TransitionRequest{
		Target:    target,
		ActorID:   actorID,
		ActorRole: RoleAdmin,
	})
}
