package backend

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource caches per-user bearer tokens for the finance backend.
// Expiry is read from the token's own exp claim, so a cached token is only
// handed out while it is still valid.
type TokenSource struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewTokenSource creates an empty token cache.
func NewTokenSource() *TokenSource {
	return &TokenSource{
		tokens: make(map[string]cachedToken),
		now:    time.Now,
	}
}

// TokenFor returns the cached token for a user, or false when none is
// cached or the cached one has expired. Tokens within a minute of expiry
// are treated as expired so in-flight requests do not race the deadline.
func (s *TokenSource) TokenFor(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.tokens[userID]
	if !ok {
		return "", false
	}
	if s.now().Add(time.Minute).After(cached.expiresAt) {
		delete(s.tokens, userID)
		return "", false
	}
	return cached.token, true
}

// Store caches a token for a user. The expiry comes from the token's exp
// claim; tokens without one are not cached.
func (s *TokenSource) Store(userID, token string) {
	expiresAt, ok := tokenExpiry(token)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = cachedToken{token: token, expiresAt: expiresAt}
}

// Clear drops a user's cached token, typically after the backend rejected
// it.
func (s *TokenSource) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// cache only needs the deadline; verification is the backend's job.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
