package email

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlindner/invoicescan/internal/domain/entity"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when a session ID is unknown or expired.
var ErrSessionNotFound = errors.New("email session not found or expired")

// Session is one live mailbox connection owned by the registry.
type Session struct {
	ID         string
	Account    *entity.EmailAccount
	Client     *Client
	lastAccess time.Time
}

// SessionRegistry hands out IDs for live IMAP connections and evicts
// idle ones. Eviction closes the underlying connection.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionRegistry creates a registry evicting sessions idle longer
// than ttl. The janitor runs until Close.
func NewSessionRegistry(ttl time.Duration, logger *zap.Logger) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Add registers a connected client and returns its session ID.
func (r *SessionRegistry) Add(account *entity.EmailAccount, client *Client) string {
	s := &Session{
		ID:         uuid.NewString(),
		Account:    account,
		Client:     client,
		lastAccess: time.Now(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s.ID
}

// Get returns a live session and refreshes its idle timer.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Since(s.lastAccess) > r.ttl {
		delete(r.sessions, id)
		go s.Client.Close()
		return nil, ErrSessionNotFound
	}
	s.lastAccess = time.Now()
	return s, nil
}

// Remove closes and forgets a session. Unknown IDs are a no-op.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Client.Close()
	}
}

// Close stops the janitor and closes every live session.
func (r *SessionRegistry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Client.Close()
	}
}

func (r *SessionRegistry) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *SessionRegistry) evictExpired() {
	now := time.Now()
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.lastAccess) > r.ttl {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		r.logger.Info("evicting idle email session",
			zap.String("session_id", s.ID), zap.String("email", s.Account.Email))
		s.Client.Close()
	}
}
