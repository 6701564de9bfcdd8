package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"resumeforge/internal/errors"
	"resumeforge/internal/workflow"
)

// SessionStore keeps the workflow sessions of API clients in memory.
// A session idle for longer than the TTL is dropped unless a run is loading.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
	logger   *errors.Logger
}

type sessionEntry struct {
	session  *workflow.Session
	lastSeen time.Time
	// exportName is the full name of the generate run that is current
	exportName string
}

// NewSessionStore creates a store. A non-positive ttl keeps sessions forever.
func NewSessionStore(ttl time.Duration, logger *errors.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Create registers a new session with both controllers idle
func (st *SessionStore) Create() *workflow.Session {
	session := workflow.NewSession(uuid.NewString())

	st.mu.Lock()
	st.sessions[session.ID] = &sessionEntry{session: session, lastSeen: st.now()}
	st.mu.Unlock()

	st.logger.Debug("Session created", "session_id", session.ID)
	return session
}

// Get returns the session and marks it as used
func (st *SessionStore) Get(id string) (*workflow.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entry, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = st.now()
	return entry.session, true
}

// SetExportName records the full name used by the latest generate run of id
func (st *SessionStore) SetExportName(id, fullName string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if entry, ok := st.sessions[id]; ok {
		entry.exportName = fullName
	}
}

// ExportName returns the name recorded by SetExportName
func (st *SessionStore) ExportName(id string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	if entry, ok := st.sessions[id]; ok {
		return entry.exportName
	}
	return ""
}

// Len returns the number of live sessions
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep removes expired sessions and returns how many were dropped
func (st *SessionStore) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for id, entry := range st.sessions {
		if now.Sub(entry.lastSeen) <= st.ttl || entry.session.Busy() {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled
func (st *SessionStore) Run(ctx context.Context) error {
	if st.ttl <= 0 {
		return nil
	}

	interval := max(st.ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := st.Sweep(); removed > 0 {
				st.logger.Debug("Expired sessions removed",
					"removed", removed,
					"remaining", st.Len())
			}
		case <-ctx.Done():
			return nil
		}
	}
}
