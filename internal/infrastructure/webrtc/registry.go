package webrtc

import (
	"io"
	"sync"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/infrastructure/monitoring"

	"go.uber.org/zap"
)

// Session is one server-side streaming session: a peer connection, the
// sender attached once its data channel opens, and a creation timestamp.
type Session struct {
	ClientID  string
	CreatedAt time.Time

	mu     sync.Mutex
	conn   io.Closer
	sender *Sender
	closed bool
}

func NewSession(clientID string, conn io.Closer) *Session {
	return &Session{
		ClientID:  clientID,
		CreatedAt: time.Now(),
		conn:      conn,
	}
}

// AttachSender records the active sender for this session. A sender attached
// after the session has closed is stopped immediately so no timer outlives
// the session.
func (s *Session) AttachSender(sender *Sender) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.sender = sender
	}
	s.mu.Unlock()

	if closed {
		sender.Stop()
	}
}

// StopSender cancels the streaming loop without tearing down the peer.
func (s *Session) StopSender() {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender != nil {
		sender.Stop()
	}
}

// Close stops the sender and closes the peer connection. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sender := s.sender
	conn := s.conn
	s.mu.Unlock()

	if sender != nil {
		sender.Stop()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Registry is the owned table of live sessions keyed by client id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewRegistry(metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  metrics,
		logger:   logger,
	}
}

// Put inserts a session. A live session under the same client id is closed
// first so its timers cannot outlive the replacement.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	prior := r.sessions[s.ClientID]
	r.sessions[s.ClientID] = s
	r.mu.Unlock()

	if prior != nil {
		r.logger.Infow("replacing live session", "client_id", s.ClientID)
		if err := prior.Close(); err != nil {
			r.logger.Warnw("failed to close replaced session", "client_id", s.ClientID, "error", err)
		}
		r.metrics.RecordSessionClosed(prior.CreatedAt)
	}
	r.metrics.RecordSessionOpened()
}

// Get returns the session for a client id.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// Remove closes and drops the session for a client id.
func (r *Registry) Remove(clientID string) error {
	r.mu.Lock()
	s, ok := r.sessions[clientID]
	if ok {
		delete(r.sessions, clientID)
	}
	r.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	err := s.Close()
	r.metrics.RecordSessionClosed(s.CreatedAt)
	return err
}

// RemoveSession drops a specific session, but only if it is still the
// current entry for its client id. Disconnect callbacks from a replaced
// session must not evict its replacement.
func (r *Registry) RemoveSession(s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.ClientID]
	if ok && current == s {
		delete(r.sessions, s.ClientID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		if err := s.Close(); err != nil {
			r.logger.Warnw("failed to close session", "client_id", s.ClientID, "error", err)
		}
		r.metrics.RecordSessionClosed(s.CreatedAt)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every live session. Called on process shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Warnw("failed to close session", "client_id", s.ClientID, "error", err)
		}
		r.metrics.RecordSessionClosed(s.CreatedAt)
	}
	if len(sessions) > 0 {
		r.logger.Infow("closed all sessions", "count", len(sessions))
	}
}
