package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := NewSigner("secret", "dev", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, err := s.Sign("a@x.com")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected three segments, got %q", token)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Sub != "a@x.com" || claims.Exp-claims.Iat != 3600 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	s, _ := NewSigner("secret", "dev", time.Hour)
	other, _ := NewSigner("other", "dev", time.Hour)
	foreign, _ := other.Sign("a@x.com")
	good, _ := s.Sign("a@x.com")

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "tampered payload", token: strings.Replace(good, ".", ".x", 1)},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	s, _ := NewSigner("secret", "dev", time.Minute)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	token, _ := s.Sign("a@x.com")

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := s.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestNewSignerSecretRules(t *testing.T) {
	if _, err := NewSigner("", "production", 0); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret in prod, got %v", err)
	}
	s, err := NewSigner(" ", "dev", 0)
	if err != nil {
		t.Fatalf("expected dev fallback, got %v", err)
	}
	if string(s.secret) != devSecret || s.ttl != 24*time.Hour {
		t.Fatalf("unexpected defaults %+v", s)
	}
}
