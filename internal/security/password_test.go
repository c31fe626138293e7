package security_test

import (
	"testing"

	"github.com/relaygrid/octabot/internal/security"
)

func TestHashPassword_VerifyPassword_RoundTrip(t *testing.T) {
	hash, err := security.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !security.VerifyPassword(hash, "correct horse battery staple") {
		t.Errorf("expected verify to succeed on the original password")
	}
}

func TestVerifyPassword_WrongPassword_Fails(t *testing.T) {
	hash, err := security.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if security.VerifyPassword(hash, "wrong password") {
		t.Errorf("expected verify to fail on the wrong password")
	}
}

func TestVerifyPassword_MalformedHash_Fails(t *testing.T) {
	if security.VerifyPassword("not-a-valid-hash", "anything") {
		t.Errorf("expected verify to fail on a malformed hash")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	a, err := security.HashPassword("same password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := security.HashPassword("same password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Errorf("expected two hashes of the same password to differ by salt")
	}
}
