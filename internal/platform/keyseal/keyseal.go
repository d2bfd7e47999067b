// Package keyseal seals per-notice document encryption keys at rest.
package keyseal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrNoSecret = errors.New("keyseal: no secret configured")
	ErrOpen     = errors.New("keyseal: cannot open sealed key")
)

type Sealer struct {
	key [32]byte
}

// New derives the sealing key from secret with HKDF-SHA256.
func New(secret string) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNoSecret
	}
	s := &Sealer{}
	r := hkdf.New(sha256.New, []byte(secret), []byte("noticeserve/keyseal/v1"), []byte("encryption-key"))
	if _, err := io.ReadFull(r, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	return s, nil
}

// Seal returns nonce || secretbox(plaintext).
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return out, nil
}
