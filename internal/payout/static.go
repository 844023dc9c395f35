package payout

import (
	"context"
	"sync"

	"github.com/riftworks/riftpay/internal/idgen"
)

// StaticDestinations is a map-backed resolver for development mode.
type StaticDestinations struct {
	mu   sync.RWMutex
	dest map[string]string
}

// NewStaticDestinations creates a resolver from a fixed user→destination map.
func NewStaticDestinations(dest map[string]string) *StaticDestinations {
	if dest == nil {
		dest = make(map[string]string)
	}
	return &StaticDestinations{dest: dest}
}

func (s *StaticDestinations) Destination(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dest[userID], nil
}

// Set adds or replaces a user's destination.
func (s *StaticDestinations) Set(userID, destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dest[userID] = destination
}

// StaticProcessor fakes transfers for development mode. Every call with
// a resolvable destination succeeds with a generated transfer ID, and
// transfers are remembered per reference so reconciliation behaves like
// the real provider.
type StaticProcessor struct {
	destinations DestinationResolver

	mu   sync.Mutex
	sent map[string]string
}

// NewStaticProcessor creates a development processor.
func NewStaticProcessor(destinations DestinationResolver) *StaticProcessor {
	return &StaticProcessor{
		destinations: destinations,
		sent:         make(map[string]string),
	}
}

func (p *StaticProcessor) CreatePayout(ctx context.Context, userID, amount, currency, reference string) (string, error) {
	dest, err := p.destinations.Destination(ctx, userID)
	if err != nil {
		return "", err
	}
	if dest == "" {
		return "", ErrNoDestination
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.sent[reference]; ok {
		return id, nil
	}
	id := idgen.WithPrefix("tr_dev_")
	p.sent[reference] = id
	return id, nil
}

func (p *StaticProcessor) FindTransfer(ctx context.Context, reference string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.sent[reference]
	return id, ok, nil
}
