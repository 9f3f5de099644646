package transport

import (
	"sync"
	"time"

	chatsync_errors "chatsync/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource holds the bearer token the transport attaches to every request
// and push dial. Token rejects an expired JWT up front so the caller can
// refresh instead of burning a round trip on a guaranteed 401. The signature
// is not verified here; only the server can do that.
type TokenSource struct {
	mu    sync.RWMutex
	token string
	exp   time.Time
}

func NewTokenSource(token string) (*TokenSource, error) {
	ts := &TokenSource{}
	if err := ts.Set(token); err != nil {
		return nil, err
	}
	return ts, nil
}

// Set replaces the current token, extracting its exp claim if present.
func (ts *TokenSource) Set(token string) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return chatsync_errors.ErrInvalidInput
	}
	var exp time.Time
	if e, err := claims.GetExpirationTime(); err == nil && e != nil {
		exp = e.Time
	}
	ts.mu.Lock()
	ts.token = token
	ts.exp = exp
	ts.mu.Unlock()
	return nil
}

func (ts *TokenSource) Token() (string, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if !ts.exp.IsZero() && time.Now().After(ts.exp) {
		return "", chatsync_errors.ErrTokenExpired
	}
	return ts.token, nil
}
