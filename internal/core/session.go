package core

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gwi.com/pdf-chatbot/internal/index"
)

type State int

const (
	LoggedOut State = iota
	LoggedIn
)

func (s State) String() string {
	if s == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Session is the per-login context: the bound username, the credential used
// for model calls, the conversation memory and the active index.
type Session struct {
	ID        string
	CreatedAt time.Time

	// requests serialises uploads and questions on one session.
	requests sync.Mutex

	mu         sync.Mutex
	state      State
	username   string
	credential string
	memory     *Memory
	index      *index.Index
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *Session) credentialValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

func (s *Session) Memory() *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

func (s *Session) Index() *index.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// setIndex makes idx the active index. Memory is kept: it only ends with
// the session.
func (s *Session) setIndex(idx *index.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
}

// end moves the session to LoggedOut and drops everything it was bound to.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = LoggedOut
	s.username = ""
	s.credential = ""
	s.memory = NewMemory()
	s.index = nil
}

// SessionManager keeps the live sessions of this process. Nothing is
// persisted: a restart logs everyone out.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session), now: time.Now}
}

func (m *SessionManager) Create(username, credential string, idx *index.Index) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  m.now(),
		state:      LoggedIn,
		username:   username,
		credential: credential,
		memory:     NewMemory(),
		index:      idx,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) End(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.end()
	}
	return ok
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
