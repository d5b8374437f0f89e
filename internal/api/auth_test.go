package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	ti, err := NewTokenIssuer(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ti.key) != 32 || ti.ttl != 24*time.Hour {
		t.Errorf("defaults: key %d bytes, ttl %v", len(ti.key), ti.ttl)
	}

	tok, exp, err := ti.Issue("overlay")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 23*time.Hour {
		t.Errorf("expiry %v too soon", exp)
	}
	sub, err := ti.Parse(tok)
	if err != nil || sub != "overlay" {
		t.Errorf("Parse = %q, %v", sub, err)
	}
}

func TestTokenRejections(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	ti, _ := NewTokenIssuer(key, time.Hour)

	expired := &TokenIssuer{key: key, issuer: "hexsky", ttl: -time.Minute}
	expiredTok, _, _ := expired.Issue("late")

	other, _ := NewTokenIssuer([]byte("another-key-another-key-another!!"), time.Hour)
	foreignTok, _, _ := other.Issue("spy")

	wrongIssuer := &TokenIssuer{key: key, issuer: "someone-else", ttl: time.Hour}
	wrongIssuerTok, _, _ := wrongIssuer.Issue("stray")

	hs384, _ := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"sub": "alg", "iss": "hexsky", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "forever", "iss": "hexsky",
	}).SignedString(key)

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "hexsky", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expiredTok,
		"foreign key":  foreignTok,
		"wrong issuer": wrongIssuerTok,
		"wrong alg":    hs384,
		"no exp":       noExp,
		"no sub":       noSub,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if sub, err := ti.Parse(tok); err == nil {
				t.Errorf("Parse accepted token, subject %q", sub)
			}
		})
	}

	if _, err := ti.Parse(""); !errors.Is(err, errMissingToken) {
		t.Errorf("empty token error = %v, want errMissingToken", err)
	}
	if _, err := ti.Parse(expiredTok); !errors.Is(err, errInvalidToken) {
		t.Errorf("expired token error = %v, want errInvalidToken", err)
	}
}

func TestRelayAuthorized(t *testing.T) {
	s := newTestServer(t)
	tok, _, _ := s.Tokens.Issue("overlay")

	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantWho  string
	}{
		{"relay key header", "Bearer " + testRelayKey, "", http.StatusOK, "relay"},
		{"relay key query", "", "?token=" + testRelayKey, http.StatusOK, "relay"},
		{"token header", "Bearer " + tok, "", http.StatusOK, "overlay"},
		{"admin key is not relay", "Bearer " + testAdminKey, "", http.StatusUnauthorized, ""},
		{"nothing", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stream"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			who, code := s.relayAuthorized(req)
			if code != tt.wantCode || who != tt.wantWho {
				t.Errorf("relayAuthorized = %q, %d; want %q, %d", who, code, tt.wantWho, tt.wantCode)
			}
		})
	}

	s.RelayKey, s.Tokens = "", nil
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream?token=x", nil)
	if _, code := s.relayAuthorized(req); code != http.StatusForbidden {
		t.Errorf("streaming disabled = %d, want 403", code)
	}
}
