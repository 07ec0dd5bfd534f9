// Package settings persists engine configuration that must survive
// restarts: the marketplace public key, the custom secret and the version of
// the last loaded assets.
//
// Values are obscured at rest with ChaCha20-Poly1305 under a key derived
// from a per-installation seed. This keeps secrets out of plain sight in a
// shared database; it is not a substitute for a secrets manager.
package settings

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Setting keys.
const (
	KeyPublicKey     = "iap.public_key"
	KeyCustomSecret  = "iap.custom_secret"
	KeyAssetsVersion = "iap.assets_version"
)

// ErrNotFound is returned by a Store for keys that were never set.
var ErrNotFound = errors.New("settings: not found")

// Store is raw key/value persistence.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Settings reads and writes obscured values through a Store.
type Settings struct {
	store Store
	aead  cipher.AEAD
}

// New creates Settings over s. seed identifies the installation; the same
// seed must be used to read values back.
func New(s Store, seed string) (*Settings, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(seed), []byte("iap-settings"), nil)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("settings: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("settings: init cipher: %w", err)
	}
	return &Settings{store: s, aead: aead}, nil
}

// Get returns the value for key, or "" when unset.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.store.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.open(key, raw)
}

// Set obscures and stores value under key.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.store.SetSetting(ctx, key, sealed)
}

// PublicKey returns the stored marketplace public key.
func (s *Settings) PublicKey(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyPublicKey)
}

// SetPublicKey stores the marketplace public key.
func (s *Settings) SetPublicKey(ctx context.Context, v string) error {
	return s.Set(ctx, KeyPublicKey, v)
}

// CustomSecret returns the stored custom secret.
func (s *Settings) CustomSecret(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyCustomSecret)
}

// SetCustomSecret stores the custom secret.
func (s *Settings) SetCustomSecret(ctx context.Context, v string) error {
	return s.Set(ctx, KeyCustomSecret, v)
}

// AssetsVersion returns the version of the last loaded assets, 0 when unset.
func (s *Settings) AssetsVersion(ctx context.Context) (int, error) {
	v, err := s.Get(ctx, KeyAssetsVersion)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("settings: assets version %q: %w", v, err)
	}
	return n, nil
}

// SetAssetsVersion records the version of the loaded assets.
func (s *Settings) SetAssetsVersion(ctx context.Context, version int) error {
	return s.Set(ctx, KeyAssetsVersion, strconv.Itoa(version))
}

// seal encrypts value, binding it to key so values cannot be swapped
// between keys.
func (s *Settings) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("settings: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *Settings) open(key, raw string) (string, error) {
	data, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("settings: decode %s: %w", key, err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("settings: %s: value too short", key)
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("settings: open %s: %w", key, err)
	}
	return string(plain), nil
}
