package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type session struct {
	controller *Controller
	lastSeen   time.Time
}

// SessionRegistry keeps one registration controller per browser session.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  func() *Controller
	now      func() time.Time
}

func NewSessionRegistry(factory func() *Controller) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session),
		factory:  factory,
		now:      time.Now,
	}
}

// Get returns the controller of a session and marks the session as seen.
func (r *SessionRegistry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = r.now()
	return s.controller, true
}

// Create starts a new session with a fresh controller.
func (r *SessionRegistry) Create() (string, *Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id, err := gonanoid.New()
		if err != nil {
			return "", nil, fmt.Errorf("Create: %w", err)
		}
		if _, ok := r.sessions[id]; ok {
			continue
		}
		c := r.factory()
		r.sessions[id] = &session{controller: c, lastSeen: r.now()}
		return id, c, nil
	}
}

// Remove closes and forgets a session.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.controller.Close()
	}
}

// Evict closes the sessions not seen for idle.
func (r *SessionRegistry) Evict(idle time.Duration) int {
	now := r.now()
	var evicted []*session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) >= idle {
			evicted = append(evicted, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range evicted {
		s.controller.Close()
	}
	if len(evicted) > 0 {
		log.Info("evicted %v idle registration sessions", len(evicted))
	}
	return len(evicted)
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every session, used on shutdown.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.controller.Close()
	}
}
