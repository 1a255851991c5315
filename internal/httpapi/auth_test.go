package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	manager := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour)

	token, expiresAt, err := manager.IssueToken()
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	if err := manager.ParseToken(token); err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour)
	verifier := NewAuthManager("another-secret-entirely-32-chars", time.Hour)

	token, _, err := issuer.IssueToken()
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := &AuthManager{secret: []byte("0123456789abcdef0123456789abcdef"), tokenTTL: -time.Minute}

	token, _, err := manager.IssueToken()
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsWrongScope(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	manager := NewAuthManager(secret, time.Hour)

	claims := financeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: "something-else",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	if err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected wrong scope to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err := manager.ParseToken("not.a.jwt"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
