package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	tok, err := iss.Generate("admin")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Username = %q, want admin", claims.Username)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	iss := NewIssuer("s3cret", time.Hour)
	other := NewIssuer("different", time.Hour)
	tok, _ := other.Generate("admin")
	if _, err := iss.Parse(tok); !errors.Is(err, ErrInvalid) {
		t.Errorf("foreign secret: error = %v, want ErrInvalid", err)
	}

	expired := NewIssuer("s3cret", time.Nanosecond)
	tok, _ = expired.Generate("admin")
	time.Sleep(5 * time.Millisecond)
	if _, err := iss.Parse(tok); !errors.Is(err, ErrInvalid) {
		t.Errorf("expired: error = %v, want ErrInvalid", err)
	}

	if _, err := iss.Parse("not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Errorf("garbage: error = %v, want ErrInvalid", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword(hash, "hunter2"); err != nil {
		t.Errorf("CheckPassword(correct) = %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrCredentials) {
		t.Errorf("CheckPassword(wrong) = %v, want ErrCredentials", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrCredentials) {
		t.Errorf("CheckPassword(empty hash) = %v, want ErrCredentials", err)
	}
}
