package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// TokenIssuer signs and checks relay tokens (HS256 JWTs). A relay token lets
// a client open the frame stream without holding the shared relay key.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. An empty key is replaced by 32 random
// bytes, so tokens only survive as long as the process.
func NewTokenIssuer(key []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{key: key, issuer: "hexsky", ttl: ttl}, nil
}

// Issue signs a token for subject.
func (ti *TokenIssuer) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ti.ttl)
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": ti.issuer,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates tok and returns its subject.
func (ti *TokenIssuer) Parse(tok string) (string, error) {
	if tok == "" {
		return "", errMissingToken
	}
	t, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		return ti.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !t.Valid {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims, ok := t.Claims.(jwt.MapClaims); ok {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return "", errors.New("bad claims")
}

// bearerToken extracts the bearer token from the Authorization header,
// falling back to the token query parameter (browsers cannot set headers on
// EventSource or WebSocket requests).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no HEXSKY_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

// relayAuthorized reports whether the request may stream frames: it carries
// either the relay key or a relay token. Returns the client's name for logs.
func (s *Server) relayAuthorized(r *http.Request) (string, int) {
	if s.RelayKey == "" && s.Tokens == nil {
		return "", http.StatusForbidden
	}
	tok := bearerToken(r)
	if tok == "" {
		return "", http.StatusUnauthorized
	}
	if s.RelayKey != "" && tok == s.RelayKey {
		return "relay", http.StatusOK
	}
	if s.Tokens != nil {
		if sub, err := s.Tokens.Parse(tok); err == nil {
			return sub, http.StatusOK
		}
	}
	return "", http.StatusUnauthorized
}
