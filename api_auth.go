package passgate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// TokenExpirySession is the lifetime of a session token
const TokenExpirySession = 1 * time.Hour

// SessionIssuer signs and verifies HS256 session tokens whose subject is the
// user's email.
type SessionIssuer struct {
	secret []byte
	issuer string
	expiry time.Duration

	// Overridable for tests
	Now func() time.Time
}

// NewSessionIssuer fails with ErrMissingSecret when secret is empty. A zero
// expiry means TokenExpirySession.
func NewSessionIssuer(secret, issuer string, expiry time.Duration) (*SessionIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if expiry <= 0 {
		expiry = TokenExpirySession
	}
	return &SessionIssuer{secret: []byte(secret), issuer: issuer, expiry: expiry, Now: time.Now}, nil
}

func (s *SessionIssuer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue creates a signed token for the email
func (s *SessionIssuer) Issue(email string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":    email,
		"userId": email,
		"iat":    now.Unix(),
		"exp":    now.Add(s.expiry).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks signature, expiry and issuer and returns the subject email
func (s *SessionIssuer) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}

// RateLimiter interface for rate limiting auth attempts
type RateLimiter interface {
	Allow(key string) bool
}

// DefaultLimiterIdleExpiry is how long an unused key keeps its bucket
const DefaultLimiterIdleExpiry = 3 * time.Minute

// KeyedRateLimiter keeps a token bucket per key. Keys idle for longer than
// the expiry are evicted, so memory stays bounded by recently active clients.
type KeyedRateLimiter struct {
	store *middleware.RateLimiterMemoryStore
}

// NewKeyedRateLimiter allows rps requests per second per key with the given burst
func NewKeyedRateLimiter(rps float64, burst int) *KeyedRateLimiter {
	return NewKeyedRateLimiterWithExpiry(rps, burst, DefaultLimiterIdleExpiry)
}

// NewKeyedRateLimiterWithExpiry is NewKeyedRateLimiter with a custom idle expiry
func NewKeyedRateLimiterWithExpiry(rps float64, burst int, idle time.Duration) *KeyedRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = DefaultLimiterIdleExpiry
	}
	return &KeyedRateLimiter{
		store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     burst,
			ExpiresIn: idle,
		}),
	}
}

func (l *KeyedRateLimiter) Allow(key string) bool {
	allowed, err := l.store.Allow(key)
	return err == nil && allowed
}
