package localstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCorrupt is returned when a sealed value cannot be opened.
var ErrCorrupt = errors.New("stored value is corrupt")

// Sealed encrypts values at rest with XChaCha20-Poly1305. The key name is
// bound as additional data, so a value copied under another key fails to open.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealed wraps inner with a 32-byte key.
func NewSealed(inner Store, key []byte) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	sealed, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, false, fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	return plain, true, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	return s.inner.Set(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Sealed) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.Keys(ctx, prefix)
}

var _ Store = (*Sealed)(nil)
