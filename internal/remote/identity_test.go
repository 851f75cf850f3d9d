package remote

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-signing-key"

func signedToken(t *testing.T, subject, secret string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestResolveAnonymous(t *testing.T) {
	id := NewIdentity(testSecret)
	r := httptest.NewRequest("GET", "/api/search?q=igniter", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("Accept-Language", "en-US")

	caller := id.Resolve(r)
	if caller.UserID != "" {
		t.Fatalf("expected anonymous caller, got %q", caller.UserID)
	}
	if caller.Fingerprint == "" {
		t.Fatal("anonymous caller must carry a fingerprint")
	}

	again := id.Resolve(r)
	if again.Fingerprint != caller.Fingerprint {
		t.Fatal("same client traits must fingerprint identically")
	}
}

func TestResolveAuthenticated(t *testing.T) {
	id := NewIdentity(testSecret)
	r := httptest.NewRequest("GET", "/api/search?q=igniter", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "user-42", testSecret, time.Now().Add(time.Hour)))

	caller := id.Resolve(r)
	if caller.UserID != "user-42" {
		t.Fatalf("expected user-42, got %q", caller.UserID)
	}
}

func TestResolveRejectsBadSignature(t *testing.T) {
	id := NewIdentity(testSecret)
	r := httptest.NewRequest("GET", "/api/search?q=igniter", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "user-42", "wrong-secret", time.Now().Add(time.Hour)))

	if caller := id.Resolve(r); caller.UserID != "" {
		t.Fatalf("forged token must resolve anonymous, got %q", caller.UserID)
	}
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	id := NewIdentity(testSecret)
	r := httptest.NewRequest("GET", "/api/search?q=igniter", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "user-42", testSecret, time.Now().Add(-time.Hour)))

	if caller := id.Resolve(r); caller.UserID != "" {
		t.Fatalf("expired token must resolve anonymous, got %q", caller.UserID)
	}
}

func TestResolveGarbageHeader(t *testing.T) {
	id := NewIdentity(testSecret)
	r := httptest.NewRequest("GET", "/api/search?q=igniter", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	if caller := id.Resolve(r); caller.UserID != "" {
		t.Fatalf("garbage token must resolve anonymous, got %q", caller.UserID)
	}
}
