package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	v, err := NewVerifier("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tok, exp, err := v.Sign("u1", "ana")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u1" || id.Username != "ana" {
		t.Fatalf("identity: %+v", id)
	}
}

func TestVerifyRejections(t *testing.T) {
	v, _ := NewVerifier("test-secret", time.Hour)

	if _, err := v.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := v.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}

	other, _ := NewVerifier("other-secret", time.Hour)
	tok, _, _ := other.Sign("u1", "ana")
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	expired, _ := NewVerifier("test-secret", time.Nanosecond)
	tok2, _, _ := expired.Sign("u1", "ana")
	time.Sleep(5 * time.Millisecond)
	if _, err := v.Verify(tok2); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", time.Hour); err == nil {
		t.Fatalf("blank secret must be rejected")
	}
}
