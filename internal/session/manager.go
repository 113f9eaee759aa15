// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// MANAGER CONFIGURATION
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	// IdleTimeout disposes sessions without activity (default: 30 minutes)
	IdleTimeout time.Duration

	// ReapInterval is how often idle sessions are checked (default: 1 minute)
	ReapInterval time.Duration

	// Params are the generation defaults for new sessions
	Params model.Params

	// Credential is bound to every new session (usually from the environment)
	Credential string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  30 * time.Minute,
		ReapInterval: time.Minute,
		Params:       model.DefaultParams(),
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore sets the snapshot store. The default is an in-memory store whose
// TTL is IdleTimeout.
func WithStore(store Store) ManagerOption {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the live sessions of the process.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	factory  ClientFactory
	store    Store
	sessions map[string]*State

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a session manager. factory binds credentials to clients.
func NewManager(cfg Config, factory ClientFactory, opts ...ManagerOption) *Manager {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	cfg.Params = cfg.Params.Clamp()

	m := &Manager{
		cfg:      cfg,
		factory:  factory,
		store:    newMemoryStore(cfg.IdleTimeout),
		sessions: make(map[string]*State),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDefaults replaces the parameters and credential applied to sessions
// opened from now on. Existing sessions keep their own values.
func (m *Manager) SetDefaults(params model.Params, credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Params = params.Clamp()
	m.cfg.Credential = credential
}

// Defaults returns the parameters applied to new sessions.
func (m *Manager) Defaults() model.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Params
}

// Open returns the live session for id, restores it from the store, or
// starts a new one when id is empty or unknown.
func (m *Manager) Open(ctx context.Context, id string) (*State, error) {
	if id != "" {
		if st, err := m.Get(id); err == nil {
			return st, nil
		}
		snap, err := m.store.Get(ctx, id)
		if err != nil {
			log.Printf("SESSION_RESTORE_FAILED | session=%s error=%v", id, err)
		} else if snap != nil {
			return m.adopt(restoreState(snap, m.factory), true), nil
		}
	}

	m.mu.RLock()
	params, credential := m.cfg.Params, m.cfg.Credential
	m.mu.RUnlock()

	st := NewState(generateSessionID(), params, m.factory)
	st.SetCredential(credential)

	snap := st.Snapshot()
	if err := m.store.Create(ctx, snap); err != nil {
		return nil, err
	}
	st.setVersion(snap.Version)
	return m.adopt(st, false), nil
}

func (m *Manager) adopt(st *State, restored bool) *State {
	m.mu.Lock()
	if live, ok := m.sessions[st.ID()]; ok {
		m.mu.Unlock()
		return live
	}
	m.sessions[st.ID()] = st
	credential := m.cfg.Credential
	m.mu.Unlock()

	event := "SESSION_OPENED"
	if restored {
		st.SetCredential(credential)
		event = "SESSION_RESTORED"
	}
	log.Printf("%s | session=%s history=%d", event, st.ID(), st.HistoryLen())
	return st
}

// Get returns a live session.
func (m *Manager) Get(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

// Save writes the session snapshot to the store.
func (m *Manager) Save(ctx context.Context, st *State) error {
	snap := st.Snapshot()
	err := m.store.Update(ctx, snap)
	if errors.Is(err, ErrNotFound) {
		err = m.store.Create(ctx, snap)
	}
	if errors.Is(err, ErrVersionConflict) {
		log.Printf("SESSION_SAVE_CONFLICT | session=%s version=%d", st.ID(), snap.Version)
		return err
	}
	if err != nil {
		return err
	}
	st.setVersion(snap.Version)
	return nil
}

// Close disposes a session and deletes its snapshot.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	log.Printf("SESSION_CLOSED | session=%s", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// =============================================================================
// IDLE REAPING
// =============================================================================

// expirer is implemented by stores that hold expiring snapshots in process
// and have no background eviction of their own.
type expirer interface {
	PurgeExpired(now time.Time) int
}

// Reap disposes sessions idle since before now minus IdleTimeout and
// returns how many were removed. Snapshots stay in the store so a returning
// client can be restored until the store expires them. Stores implementing
// expirer drop their expired snapshots on the same pass.
func (m *Manager) Reap(now time.Time) int {
	m.mu.Lock()
	removed := 0
	for id, st := range m.sessions {
		if now.Sub(st.LastActive()) >= m.cfg.IdleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	live := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		log.Printf("SESSION_REAPED | count=%d live=%d", removed, live)
	}
	if e, ok := m.store.(expirer); ok {
		if purged := e.PurgeExpired(now); purged > 0 {
			log.Printf("SESSION_SNAPSHOTS_PURGED | count=%d", purged)
		}
	}
	return removed
}

// Start runs the idle reaper until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case now := <-ticker.C:
				m.Reap(now)
			}
		}
	}()
}

// Stop ends the reaper started by Start and closes the store.
func (m *Manager) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stop)
		err = m.store.Close()
	})
	return err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}
