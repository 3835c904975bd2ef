package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const SessionCookieName = "session_token"

type session struct {
	userID  int64
	expires time.Time
}

// Sessions tracks authenticated clients. A client without a valid session
// cookie is anonymous.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]session // token -> session
	signer   *Signer
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

func NewSessions(signer *Signer, ttl time.Duration, secureCookie bool) *Sessions {
	return &Sessions{
		sessions: make(map[string]session),
		signer:   signer,
		ttl:      ttl,
		secure:   secureCookie,
		now:      time.Now,
	}
}

// Create starts a session for userID and sets the signed cookie.
func (s *Sessions) Create(w http.ResponseWriter, userID int64) string {
	token := uuid.New().String()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.sessions[token] = session{userID: userID, expires: expires}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.signer.Sign(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	return token
}

// UserID returns the user behind the request's session cookie, or
// ErrUnauthenticated.
func (s *Sessions) UserID(r *http.Request) (int64, error) {
	token, err := s.token(r)
	if err != nil {
		return 0, ErrUnauthenticated
	}

	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrUnauthenticated
	}
	if s.now().After(sess.expires) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return 0, ErrUnauthenticated
	}
	return sess.userID, nil
}

// Destroy ends the request's session, if any, and clears the cookie.
func (s *Sessions) Destroy(w http.ResponseWriter, r *http.Request) {
	if token, err := s.token(r); err == nil {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Sessions) token(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	return s.signer.Verify(c.Value)
}
