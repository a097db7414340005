package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerifyToken(t *testing.T) {
	secret := []byte("test-secret")
	token, _, err := IssueToken(secret, 42, "u@example.com", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := VerifyToken(secret, token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user 42, got %d", userID)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := IssueToken([]byte("secret-a"), 1, "u@example.com", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := VerifyToken([]byte("secret-b"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, _, err := IssueToken(secret, 1, "u@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := VerifyToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestIssueTokenExpiryMatchesClaim(t *testing.T) {
	secret := []byte("test-secret")
	token, expiresAt, err := IssueToken(secret, 7, "u@example.com", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("read exp claim: %v", err)
	}
	if exp.Unix() != expiresAt.Unix() {
		t.Errorf("reported expiry %d drifts from exp claim %d", expiresAt.Unix(), exp.Unix())
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	if _, err := VerifyToken([]byte("test-secret"), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("refresh-token-value")
	b := HashToken("refresh-token-value")
	if a != b {
		t.Error("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == HashToken("different") {
		t.Error("distinct tokens must hash differently")
	}
}
