// Package delegation holds the credential this service presents to the
// downstream backend on an operator's behalf. Credentials are keyed by
// session so concurrent operators never read or clobber each other's
// token; within a request the credential travels in the request context,
// never through shared mutable state.
package delegation

import (
	"sync"
	"time"
)

// Credential is the bearer token presented to the downstream service,
// together with the session it belongs to and its expiry. Immutable once
// created.
type Credential struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential's expiry has passed.
func (c *Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Store maps session IDs to delegated credentials. An entry is set at
// login, refreshed when a valid bearer arrives for a session with no
// entry, and cleared on logout or when the downstream service rejects
// the credential with a 401.
type Store struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewStore creates an empty delegation store.
func NewStore() *Store {
	return &Store{creds: make(map[string]Credential)}
}

// Set stores the credential under its session ID.
func (s *Store) Set(cred Credential) {
	if cred.SessionID == "" {
		return
	}
	s.mu.Lock()
	s.creds[cred.SessionID] = cred
	s.mu.Unlock()
}

// Get returns the credential for a session. An expired credential is
// treated as absent and removed as a side effect.
func (s *Store) Get(sessionID string) (Credential, bool) {
	s.mu.RLock()
	cred, ok := s.creds[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Credential{}, false
	}
	if cred.Expired() {
		s.Clear(sessionID)
		return Credential{}, false
	}
	return cred, true
}

// Clear removes the credential for a session. Clearing a session with no
// entry is a no-op.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.creds, sessionID)
	s.mu.Unlock()
}

// IsValid reports whether a currently-valid credential exists for the
// session.
func (s *Store) IsValid(sessionID string) bool {
	_, ok := s.Get(sessionID)
	return ok
}

// Len returns the number of live entries. Expired entries are counted
// until a Get observes them.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
