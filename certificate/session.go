package certificate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/certichain/custody"
)

// Session is the per-request context passed to issuance and revocation. It
// names the acting user, supplies the clock and logger, and tracks key
// material opened during the request. Callers must call Close() when the
// request ends (e.g. defer session.Close()).
type Session struct {
	ActorID string

	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	keys   []*custody.KeyPair
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionClock overrides the session's time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger sets the session's logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession starts a session for actorID.
func NewSession(actorID string, opts ...SessionOption) (*Session, error) {
	if err := validateID(actorID, "actor id"); err != nil {
		return nil, err
	}
	s := &Session{
		ActorID: actorID,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("actor", actorID)
	return s, nil
}

// Now returns the session clock's current time in UTC.
func (s *Session) Now() time.Time {
	return s.now().UTC()
}

// Logger returns the session logger, annotated with the actor.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers kp so Close destroys it even if the caller forgets.
func (s *Session) track(kp *custody.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		kp.Destroy()
		return ErrSessionClosed
	}
	s.keys = append(s.keys, kp)
	return nil
}

// Close destroys all key material tracked by the session. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kp := range s.keys {
		kp.Destroy()
	}
	s.keys = nil
	s.closed = true
}

func (s *Session) check() error {
	if s == nil {
		return ErrSessionClosed
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	return nil
}
