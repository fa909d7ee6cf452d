package session

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "petitionhub/contexts/civic-engagement/petition-service/domain/errors"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifySessionAcceptsAdminToken(t *testing.T) {
	verifier, err := NewJWTVerifier("secret", "petitionhub")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := verifier.Issue("ops@example.org", true, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	session, err := verifier.VerifySession(context.Background(), token)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if !session.IsAdmin || session.Subject != "ops@example.org" {
		t.Fatalf("expected admin session for ops@example.org, got %+v", session)
	}
}

func TestVerifySessionAcceptsAdminRole(t *testing.T) {
	verifier, _ := NewJWTVerifier("secret", "")
	claims := Claims{
		Roles: []string{"viewer", "Admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	session, err := verifier.VerifySession(context.Background(), token)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if !session.IsAdmin {
		t.Fatalf("expected role based admin session")
	}
}

func TestVerifySessionNonAdmin(t *testing.T) {
	verifier, _ := NewJWTVerifier("secret", "")
	token, _ := verifier.Issue("visitor", false, time.Hour, time.Now())
	session, err := verifier.VerifySession(context.Background(), token)
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if session.IsAdmin {
		t.Fatalf("expected non-admin session")
	}
}

func TestVerifySessionRejectsBadTokens(t *testing.T) {
	verifier, _ := NewJWTVerifier("secret", "petitionhub")
	other, _ := NewJWTVerifier("other-secret", "petitionhub")
	foreign, _ := other.Issue("ops", true, time.Hour, time.Now())
	expired, _ := verifier.Issue("ops", true, time.Minute, time.Now().Add(-time.Hour))

	for name, token := range map[string]string{
		"garbage": "not-a-token",
		"foreign": foreign,
		"expired": expired,
	} {
		_, err := verifier.VerifySession(context.Background(), token)
		if !errors.Is(err, domainerrors.ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestNewJWTVerifierRequiresKey(t *testing.T) {
	if _, err := NewJWTVerifier(" ", ""); err == nil {
		t.Fatalf("expected error for empty signing key")
	}
}
