package keyseal

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New("server-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := s.Seal([]byte("doc-key-123"))
	b, _ := s.Seal([]byte("doc-key-123"))
	if bytes.Equal(a, b) {
		t.Fatalf("sealing must use a fresh nonce")
	}
	if bytes.Contains(a, []byte("doc-key-123")) {
		t.Fatalf("sealed value leaks plaintext")
	}
	out, err := s.Open(a)
	if err != nil || string(out) != "doc-key-123" {
		t.Fatalf("Open: out=%q err=%v", out, err)
	}
}

func TestOpenRejectsTamperingAndOtherKeys(t *testing.T) {
	s, _ := New("server-secret")
	other, _ := New("another-secret")
	sealed, _ := s.Seal([]byte("k"))

	if _, err := other.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen with foreign key, got %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen on tampered value, got %v", err)
	}
	if _, err := s.Open([]byte("short")); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen on short value, got %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  "); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
