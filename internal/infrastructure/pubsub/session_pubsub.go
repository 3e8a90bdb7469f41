package pubsub

import (
	"context"
	"slices"
	"sync"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const subscriptionBuffer = 16

// Subscription receives the session events that match its filter
type Subscription struct {
	ID     string
	Filter *EventFilter
	Events chan *domain.SessionEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// EventFilter narrows a subscription. Zero values match everything.
type EventFilter struct {
	SessionID string
	States    []domain.SessionState
}

// SessionPubSub fans session events out to subscribers
type SessionPubSub struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	logger        zerolog.Logger
}

var _ ports.SessionEventPublisher = (*SessionPubSub)(nil)

// NewSessionPubSub creates an empty broker
func NewSessionPubSub(logger zerolog.Logger) *SessionPubSub {
	return &SessionPubSub{
		subscriptions: make(map[string]*Subscription),
		logger:        logger,
	}
}

// Subscribe registers a subscription that lives until ctx is cancelled
// or Unsubscribe is called.
func (ps *SessionPubSub) Subscribe(ctx context.Context, filter *EventFilter) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)

	sub := &Subscription{
		ID:     uuid.NewString(),
		Filter: filter,
		Events: make(chan *domain.SessionEvent, subscriptionBuffer),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.subscriptions[sub.ID] = sub
	ps.mu.Unlock()

	ps.logger.Debug().Str("subscription_id", sub.ID).Msg("Session event subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe closes and removes a subscription
func (ps *SessionPubSub) Unsubscribe(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subscriptions[id]
	if !ok {
		return
	}

	close(sub.Events)
	close(sub.Done)
	sub.cancel()
	delete(ps.subscriptions, id)

	ps.logger.Debug().Str("subscription_id", id).Msg("Session event subscription removed")
}

// Publish delivers the event to every matching subscriber without blocking.
// Events for a full subscriber are dropped.
func (ps *SessionPubSub) Publish(event *domain.SessionEvent) {
	if event == nil {
		return
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	delivered := 0
	for _, sub := range ps.subscriptions {
		if !matches(event, sub.Filter) {
			continue
		}
		select {
		case sub.Events <- event:
			delivered++
		case <-sub.ctx.Done():
		default:
			ps.logger.Warn().
				Str("subscription_id", sub.ID).
				Str("session_id", event.SessionID).
				Msg("Subscription buffer full, dropping session event")
		}
	}

	if delivered > 0 {
		ps.logger.Debug().
			Str("session_id", event.SessionID).
			Str("state", string(event.State)).
			Int("subscribers", delivered).
			Msg("Published session event")
	}
}

func matches(event *domain.SessionEvent, filter *EventFilter) bool {
	if filter == nil {
		return true
	}
	if filter.SessionID != "" && filter.SessionID != event.SessionID {
		return false
	}
	if len(filter.States) > 0 && !slices.Contains(filter.States, event.State) {
		return false
	}
	return true
}

// Stats reports the number of live subscriptions
func (ps *SessionPubSub) Stats() map[string]any {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return map[string]any{
		"active_subscriptions": len(ps.subscriptions),
	}
}
