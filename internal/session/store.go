// Package session owns per-conversation state. Transcripts are only mutated
// through the store; callers get copies.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skillcapital/coursebot/internal/domain"
)

const defaultMaxSessions = 1000

type entry struct {
	mu            sync.Mutex
	turns         []domain.Turn
	currentCourse string
	lastActive    time.Time
}

// Store maps session ids to transcripts with create-on-first-use semantics.
// Capacity is bounded by an LRU; idle sessions can additionally be swept by
// EvictIdle. Operations on distinct sessions proceed in parallel; operations
// on one session are serialized by its entry lock.
type Store struct {
	mu    sync.Mutex // guards create/evict against racing lookups
	cache *lru.Cache[string, *entry]
	now   func() time.Time
}

// NewStore creates a session store holding at most maxSessions sessions.
func NewStore(maxSessions int) *Store {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	cache, err := lru.New[string, *entry](maxSessions)
	if err != nil {
		// lru.New only fails on non-positive size.
		panic(err)
	}
	return &Store{cache: cache, now: time.Now}
}

// GetOrCreate resolves a session id: an empty id mints a fresh one, an
// unknown id gets an empty transcript created under it.
func (s *Store) GetOrCreate(sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(sessionID); !ok {
		s.cache.Add(sessionID, &entry{lastActive: s.now()})
	}
	return sessionID
}

// AppendExchange appends the user turn and the assistant turn under one
// lock, so a request's exchange lands in the transcript atomically.
func (s *Store) AppendExchange(sessionID, userText, assistantText string) {
	e := s.get(sessionID)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns,
		domain.Turn{Role: domain.RoleUser, Text: userText},
		domain.Turn{Role: domain.RoleAssistant, Text: assistantText},
	)
	e.lastActive = s.now()
}

// History returns a copy of the session's transcript, most recent last.
func (s *Store) History(sessionID string) []domain.Turn {
	e := s.get(sessionID)
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// CurrentCourse returns the last course the session resolved to, if any.
func (s *Store) CurrentCourse(sessionID string) string {
	e := s.get(sessionID)
	if e == nil {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentCourse
}

// SetCurrentCourse pins the session to a course.
func (s *Store) SetCurrentCourse(sessionID, course string) {
	e := s.get(sessionID)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentCourse = course
	e.lastActive = s.now()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// EvictIdle removes sessions idle longer than maxIdle and returns how many
// were dropped.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	evicted := 0
	for _, id := range s.cache.Keys() {
		e, ok := s.cache.Peek(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		idle := e.lastActive.Before(cutoff)
		e.mu.Unlock()
		if idle {
			s.mu.Lock()
			s.cache.Remove(id)
			s.mu.Unlock()
			evicted++
		}
	}

	if evicted > 0 {
		log.Printf("session: evicted %d idle sessions", evicted)
	}
	return evicted
}

func (s *Store) get(sessionID string) *entry {
	e, ok := s.cache.Get(sessionID)
	if !ok {
		return nil
	}
	return e
}
