// Package session holds per-note workflow state between the form steps:
// input, transcript review, generation, and export. Sessions live only in
// memory and expire after an idle TTL; nothing is ever persisted.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moonlight-recovery/note-builder/internal/note"
	"github.com/moonlight-recovery/note-builder/internal/notegen"
	"github.com/moonlight-recovery/note-builder/internal/observability"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Session is the in-memory state of one note-building workflow.
// Each session is touched by one user at a time; the store lock guards the
// map, and snapshots returned by the store are copies.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Transcript state (step 2)
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reviewed   bool    `json:"reviewed"`

	// Session context supplied by the clinician
	Context notegen.SessionContext `json:"context"`

	// Generated note and its validation result (step 4)
	Note       *note.Record           `json:"note,omitempty"`
	Validation *note.ValidationResult `json:"validation,omitempty"`
}

// Store is a goroutine-safe in-memory session store with TTL expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store whose sessions expire after ttl of
// inactivity. A background sweeper reclaims expired sessions.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create starts a new workflow session and returns a snapshot of it.
func (s *Store) Create() Session {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	observability.SessionOpened()
	return *sess
}

// Get returns a snapshot of a session.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// Update applies fn to a session under the store lock and returns the
// updated snapshot. fn sees the live session and may modify it in place.
func (s *Store) Update(id string, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	fn(sess)
	sess.UpdatedAt = time.Now()
	return *sess, nil
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if existed {
		observability.SessionClosed()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Store) sweep() {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

// expire removes sessions idle longer than the TTL.
func (s *Store) expire(now time.Time) {
	s.mu.Lock()
	var expired int
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
			expired++
		}
	}
	s.mu.Unlock()

	for i := 0; i < expired; i++ {
		observability.SessionClosed()
	}
}
