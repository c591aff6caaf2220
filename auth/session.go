package auth

import (
	"sync"

	"go.uber.org/zap"
)

// Session is the client's signed-in principal. Sync and presence are
// both no-ops while no one is signed in. It is an explicit context
// object: constructed at app start, cleared on sign-out, and injected
// into the components that need it rather than read as a global.
type Session struct {
	mu     sync.RWMutex
	token  string
	userID string
	logger *zap.Logger
}

// NewSession creates an empty (signed-out) Session.
func NewSession(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// SignIn installs an access token. The user id is taken from the
// token's claims so the two can never disagree.
func (s *Session) SignIn(token, secret string) error {
	claims, err := ParseToken(token, secret)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.userID = claims.UserID
	s.mu.Unlock()
	s.logger.Info("signed in", zap.String("user_id", claims.UserID))
	return nil
}

// SignOut clears the principal.
func (s *Session) SignOut() {
	s.mu.Lock()
	uid := s.userID
	s.token = ""
	s.userID = ""
	s.mu.Unlock()
	if uid != "" {
		s.logger.Info("signed out", zap.String("user_id", uid))
	}
}

// CurrentUserID returns the signed-in user id, or "" when signed out.
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Token returns the raw access token for outbound requests.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
