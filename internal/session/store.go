package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/metrics"
)

// Package session holds the per-conversation state the orchestrator needs
// across turns: resolved scope, the clarifying-question budget, and the
// intent remembered while a clarification is outstanding.
//
// Responsibilities:
//   - Serialize turns per session: one reasoning turn at a time, later
//     messages for the same session wait their turn
//   - Evict idle sessions after the TTL, deferring eviction for any session
//     that is mid-turn
//   - Keep session state isolated: concurrent sessions never share scope or
//     budget

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// HistoryEntry is one message exchanged in a session.
type HistoryEntry struct {
	Role  string    `json:"role"` // user | assistant
	Text  string    `json:"text"`
	RunID string    `json:"run_id,omitempty"`
	At    time.Time `json:"at"`
}

// Session is the mutable conversation state.
type Session struct {
	ID              string         `json:"id"`
	CityScope       string         `json:"city_scope"`
	ZoneScope       string         `json:"zone_scope,omitempty"`
	ClarifyingCount int            `json:"clarifying_count"`
	PendingIntent   string         `json:"pending_intent,omitempty"`
	History         []HistoryEntry `json:"history,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActive      time.Time      `json:"last_active"`
}

type entry struct {
	mu     sync.Mutex
	turn   chan struct{} // capacity 1, token for the active turn
	sess   Session
	inTurn bool
}

// Store is the in-memory session registry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	log      *zap.Logger
	onEvict  func(id string)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStore creates a store and starts the eviction janitor. Sessions idle
// longer than ttl are removed; a session mid-turn survives until the turn
// finishes and the next sweep.
func NewStore(ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	s.wg.Add(1)
	go s.janitor(interval)

	return s
}

// OnEvict registers a callback invoked with the ID of every session the
// janitor removes. Set before the first sweep can fire.
func (s *Store) OnEvict(fn func(id string)) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Close stops the eviction janitor.
func (s *Store) Close() {
	close(s.stopCh)
	s.wg.Wait()
}

// Create registers a new session scoped to a city.
func (s *Store) Create(cityScope string) Session {
	now := time.Now().UTC()
	sess := Session{
		ID:         "sess_" + uuid.New().String(),
		CityScope:  cityScope,
		CreatedAt:  now,
		LastActive: now,
	}

	e := &entry{sess: sess, turn: make(chan struct{}, 1)}
	e.turn <- struct{}{}

	s.mu.Lock()
	s.sessions[sess.ID] = e
	s.mu.Unlock()

	metrics.SessionsActive.Inc()
	return sess
}

// Get returns a snapshot of a session.
func (s *Store) Get(id string) (Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.sess), nil
}

// Update applies a mutation to a session and refreshes its activity time.
func (s *Store) Update(id string, mutate func(*Session)) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(&e.sess)
	e.sess.LastActive = time.Now().UTC()
	return nil
}

// BeginTurn acquires the session's turn token, blocking until any in-flight
// turn finishes or the context is cancelled. The returned release function
// must be called exactly once.
func (s *Store) BeginTurn(ctx context.Context, id string) (func(), error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-e.turn:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.mu.Lock()
	e.inTurn = true
	e.sess.LastActive = time.Now().UTC()
	e.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Lock()
			e.inTurn = false
			e.sess.LastActive = time.Now().UTC()
			e.mu.Unlock()
			e.turn <- struct{}{}
		})
	}
	return release, nil
}

// End removes a session immediately.
func (s *Store) End(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	metrics.SessionsActive.Dec()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Store) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopCh:
			return
		}
	}
}

// evictIdle removes sessions idle past the TTL. Sessions mid-turn are
// skipped and reconsidered on the next sweep.
func (s *Store) evictIdle() {
	cutoff := time.Now().UTC().Add(-s.ttl)

	var evicted []string
	s.mu.Lock()
	onEvict := s.onEvict
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := !e.inTurn && e.sess.LastActive.Before(cutoff)
		e.mu.Unlock()
		if !idle {
			continue
		}
		delete(s.sessions, id)
		metrics.SessionsActive.Dec()
		metrics.SessionsExpired.Inc()
		s.log.Debug("session expired", zap.String("session_id", id))
		evicted = append(evicted, id)
	}
	s.mu.Unlock()

	if onEvict != nil {
		for _, id := range evicted {
			onEvict(id)
		}
	}
}

func cloneSession(sess Session) Session {
	cp := sess
	cp.History = append([]HistoryEntry(nil), sess.History...)
	return cp
}
