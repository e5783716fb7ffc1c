package core

import (
	"sync"
)

// HistoryWindow is the number of trailing turns (beyond the seed system turn)
// included in the view sent to a provider. Large enough for short-term
// coherence, small enough to bound token cost and latency.
const HistoryWindow = 8

// SessionStore owns every session's conversation history for the life of the
// process. Histories grow monotonically; only the provider-facing view is
// windowed. Turns for different sessions proceed fully in parallel; turns for
// the same session are serialized through LockSession.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	// turnMu serializes whole completion turns so two concurrent requests for
	// the same session cannot interleave their user/assistant appends.
	turnMu sync.Mutex

	mu    sync.Mutex
	turns []Turn
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session)}
}

// Ensure creates the history for sessionID if absent, seeded with a single
// system turn carrying the scenario's instruction. An existing history is left
// untouched: the seed system turn is immutable for the session's lifetime,
// even if the caller switches scenarios mid-session.
func (s *SessionStore) Ensure(sessionID string, scenario Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return
	}
	s.sessions[sessionID] = &session{
		turns: []Turn{{Role: RoleSystem, Content: scenario.SystemInstruction}},
	}
}

// LockSession acquires the per-session turn lock and returns the unlock func.
// The session must have been ensured first.
func (s *SessionStore) LockSession(sessionID string) (unlock func(), err error) {
	sess, ok := s.get(sessionID)
	if !ok {
		return nil, NewUnknownSessionError(sessionID)
	}
	sess.turnMu.Lock()
	return sess.turnMu.Unlock, nil
}

// Append adds a turn to the end of the session's history.
func (s *SessionStore) Append(sessionID string, turn Turn) error {
	sess, ok := s.get(sessionID)
	if !ok {
		return NewUnknownSessionError(sessionID)
	}

	sess.mu.Lock()
	sess.turns = append(sess.turns, turn)
	sess.mu.Unlock()
	return nil
}

// WindowedView returns the seed system turn followed by the last HistoryWindow
// turns of the history (fewer if the history is shorter). It never mutates the
// stored history.
func (s *SessionStore) WindowedView(sessionID string) ([]Turn, error) {
	sess, ok := s.get(sessionID)
	if !ok {
		return nil, NewUnknownSessionError(sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	rest := sess.turns[1:]
	if len(rest) > HistoryWindow {
		rest = rest[len(rest)-HistoryWindow:]
	}

	view := make([]Turn, 0, 1+len(rest))
	view = append(view, sess.turns[0])
	view = append(view, rest...)
	return view, nil
}

// History returns a copy of the session's full stored history.
func (s *SessionStore) History(sessionID string) ([]Turn, error) {
	sess, ok := s.get(sessionID)
	if !ok {
		return nil, NewUnknownSessionError(sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Len reports the number of tracked sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) get(sessionID string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}
