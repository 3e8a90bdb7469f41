package application

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionFactory builds the manager for a visitor session id
type SessionFactory func(sessionID string) *SessionManager

type pooledSession struct {
	manager   *SessionManager
	bootstrap sync.Once
	lastUsed  time.Time
}

// SessionPool keeps one SessionManager per visitor. Managers are created on
// first use and bootstrapped once from the persisted token slot; evicting one
// only drops memory state, so the next request restores it.
type SessionPool struct {
	factory SessionFactory
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*pooledSession
}

// NewSessionPool creates an empty pool
func NewSessionPool(factory SessionFactory, logger zerolog.Logger) *SessionPool {
	return NewSessionPoolWithClock(factory, time.Now, logger)
}

// NewSessionPoolWithClock is NewSessionPool with an injectable clock
func NewSessionPoolWithClock(factory SessionFactory, now func() time.Time, logger zerolog.Logger) *SessionPool {
	return &SessionPool{
		factory:  factory,
		now:      now,
		logger:   logger,
		sessions: make(map[string]*pooledSession),
	}
}

// Get returns the visitor's manager, creating and bootstrapping it if needed
func (p *SessionPool) Get(ctx context.Context, sessionID string) *SessionManager {
	p.mu.Lock()
	entry, ok := p.sessions[sessionID]
	if !ok {
		entry = &pooledSession{manager: p.factory(sessionID)}
		p.sessions[sessionID] = entry
		p.logger.Debug().Str("session_id", sessionID).Msg("Created customer session")
	}
	entry.lastUsed = p.now()
	p.mu.Unlock()

	entry.bootstrap.Do(func() {
		if err := entry.manager.Bootstrap(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Customer session bootstrap failed")
		}
	})
	return entry.manager
}

// Rotate moves the session held under oldID to newID and evicts oldID.
// Called after login so a session id known before authentication is never
// the one that carries the tokens.
func (p *SessionPool) Rotate(ctx context.Context, oldID string, newID string) (*SessionManager, error) {
	old := p.Get(ctx, oldID)

	fresh := &pooledSession{manager: p.factory(newID)}
	// Its state comes from the move, not from the slot.
	fresh.bootstrap.Do(func() {})

	if err := old.MoveTo(ctx, fresh.manager); err != nil {
		return nil, err
	}

	p.mu.Lock()
	fresh.lastUsed = p.now()
	p.sessions[newID] = fresh
	p.mu.Unlock()

	p.Evict(oldID)
	p.logger.Debug().Str("session_id", newID).Msg("Rotated customer session")
	return fresh.manager, nil
}

// Evict drops a session from memory after its background work finishes
func (p *SessionPool) Evict(sessionID string) {
	p.mu.Lock()
	entry, ok := p.sessions[sessionID]
	delete(p.sessions, sessionID)
	p.mu.Unlock()

	if ok {
		entry.manager.Wait()
	}
}

// Sweep evicts sessions idle for longer than maxIdle and returns how many
func (p *SessionPool) Sweep(maxIdle time.Duration) int {
	cutoff := p.now().Add(-maxIdle)

	p.mu.Lock()
	var idle []*pooledSession
	for id, entry := range p.sessions {
		if entry.lastUsed.Before(cutoff) {
			idle = append(idle, entry)
			delete(p.sessions, id)
		}
	}
	p.mu.Unlock()

	for _, entry := range idle {
		entry.manager.Wait()
	}
	if len(idle) > 0 {
		p.logger.Info().Int("evicted", len(idle)).Msg("Swept idle customer sessions")
	}
	return len(idle)
}

// Len is the number of sessions held in memory
func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close waits for every session's background work and empties the pool
func (p *SessionPool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*pooledSession)
	p.mu.Unlock()

	for _, entry := range sessions {
		entry.manager.Wait()
	}
}
