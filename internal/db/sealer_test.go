package db

import (
	"errors"
	"strings"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("ya29.token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "ya29") {
		t.Fatalf("unexpected sealed value %q", sealed)
	}
	other, _ := s.Seal("ya29.token")
	if other == sealed {
		t.Fatal("expected a fresh nonce per seal")
	}

	plain, err := s.Open(sealed)
	if err != nil || plain != "ya29.token" {
		t.Fatalf("Open = %q, %v", plain, err)
	}
}

func TestSealer_EmptyAndLegacyValues(t *testing.T) {
	s, _ := NewSealer("secret")

	if v, err := s.Seal(""); err != nil || v != "" {
		t.Fatalf("Seal(\"\") = %q, %v", v, err)
	}
	if v, err := s.Open("legacy-plain"); err != nil || v != "legacy-plain" {
		t.Fatalf("Open(legacy) = %q, %v", v, err)
	}
}

func TestSealer_NilAndWrongKey(t *testing.T) {
	none, err := NewSealer("")
	if err != nil || none != nil {
		t.Fatalf("NewSealer(\"\") = %v, %v", none, err)
	}
	if v, _ := none.Seal("tok"); v != "tok" {
		t.Fatalf("nil sealer should pass through, got %q", v)
	}

	a, _ := NewSealer("key-a")
	b, _ := NewSealer("key-b")
	sealed, _ := a.Seal("tok")

	if _, err := b.Open(sealed); !errors.Is(err, ErrSealedToken) {
		t.Fatalf("wrong key: expected ErrSealedToken, got %v", err)
	}
	if _, err := none.Open(sealed); !errors.Is(err, ErrSealedToken) {
		t.Fatalf("nil sealer: expected ErrSealedToken, got %v", err)
	}
}
