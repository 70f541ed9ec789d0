package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionIssuer = "pdf-mailer"

// ErrInvalidSession is returned for missing, tampered or expired tokens.
var ErrInvalidSession = errors.New("invalid session")

// Session is the per-request login state handed to every handler.
type Session struct {
	Username      string
	Authenticated bool
}

// Anonymous is the session of a visitor who has not logged in.
var Anonymous = Session{}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Sessions signs and parses session tokens stored in the browser cookie.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session codec. An empty secret is replaced by 32
// random bytes, which ends all sessions when the process restarts.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns how long an issued session stays valid.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for an authenticated user.
func (s *Sessions) Issue(username string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Parse validates a token and returns the session it carries.
func (s *Sessions) Parse(token string) (Session, error) {
	if token == "" {
		return Anonymous, ErrInvalidSession
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Anonymous, ErrInvalidSession
	}

	return Session{Username: claims.Subject, Authenticated: true}, nil
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Anonymous
}
