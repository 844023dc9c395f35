// Package webhooks pushes rift timeline activity to external services.
//
// Buyers and sellers register webhook URLs and receive signed POSTs for
// the timeline actions they subscribe to. Delivery is fire-and-forget:
// a failing endpoint never affects the operation that produced the
// event.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/riftworks/riftpay/internal/retry"
	"github.com/riftworks/riftpay/internal/timeline"
)

// Subscription represents a webhook subscription. Actions match
// timeline actions ("rift.released", "dispute.opened"); an empty list
// subscribes to everything.
type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	URL         string     `json:"url"`
	Secret      string     `json:"-"` // Used for HMAC signing
	Actions     []string   `json:"actions"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func (s *Subscription) wants(action string) bool {
	if len(s.Actions) == 0 {
		return true
	}
	for _, a := range s.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	GetByAction(ctx context.Context, action string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher sends webhook events
type Dispatcher struct {
	store       Store
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxAttempts: 1,
	}
}

// WithRetry enables delivery retries. Network errors and 5xx responses
// are retried with exponential backoff; 4xx responses are not, since the
// endpoint has rejected the payload.
func (d *Dispatcher) WithRetry(maxAttempts int, baseDelay time.Duration) *Dispatcher {
	d.maxAttempts = maxAttempts
	d.retryDelay = baseDelay
	return d
}

// Dispatch sends a timeline event to all matching subscribers.
func (d *Dispatcher) Dispatch(ctx context.Context, event *timeline.Event) error {
	subs, err := d.store.GetByAction(ctx, event.Action)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Send async to avoid blocking
		go d.send(ctx, sub, event)
	}

	return nil
}

// DispatchToUser sends an event to one user's subscriptions.
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, event *timeline.Event) error {
	subs, err := d.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active || !sub.wants(event.Action) {
			continue
		}
		go d.send(ctx, sub, event)
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *timeline.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		observeDelivery("marshal_error")
		return
	}

	err = retry.Do(ctx, d.maxAttempts, d.retryDelay, func() error {
		return d.attempt(ctx, sub, payload, event)
	})
	if err != nil {
		d.updateError(ctx, sub, err.Error())
		return
	}

	d.updateSuccess(ctx, sub)
	observeDelivery("success")
}

// attempt makes a single delivery attempt. HTTP 4xx responses are
// permanent; network errors and 5xx responses are retryable.
func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, payload []byte, event *timeline.Event) error {
	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		observeDelivery("request_error")
		return retry.Permanent(fmt.Errorf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Riftpay-Event", event.Action)
	req.Header.Set("X-Riftpay-Timestamp", fmt.Sprintf("%d", event.CreatedAt.Unix()))

	// Sign the payload if secret is set
	if sub.Secret != "" {
		signature := d.sign(payload, sub.Secret)
		req.Header.Set("X-Riftpay-Signature", signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		observeDelivery("network_error")
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		observeDelivery("http_error")
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	default:
		observeDelivery("http_error")
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks an HMAC signature against a payload. Intended
// for subscriber-side verification and tests.
func VerifySignature(payload []byte, secret, signature string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory implementation for testing
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("subscription not found")
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetByAction(ctx context.Context, action string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.wants(action) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
