package settings

import (
	"context"
	"testing"
)

type mapStore map[string]string

func (m mapStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m mapStore) SetSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := mapStore{}
	s, err := New(st, "seed")
	if err != nil {
		t.Fatal(err)
	}

	if v, err := s.PublicKey(ctx); err != nil || v != "" {
		t.Fatalf("unset key: %q, %v", v, err)
	}
	if v, err := s.AssetsVersion(ctx); err != nil || v != 0 {
		t.Fatalf("unset version: %d, %v", v, err)
	}

	if err := s.SetPublicKey(ctx, "MIIBIjANBg"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAssetsVersion(ctx, 7); err != nil {
		t.Fatal(err)
	}

	if v, _ := s.PublicKey(ctx); v != "MIIBIjANBg" {
		t.Errorf("public key: got %q", v)
	}
	if v, _ := s.AssetsVersion(ctx); v != 7 {
		t.Errorf("assets version: got %d", v)
	}
	if st[KeyPublicKey] == "MIIBIjANBg" {
		t.Error("public key stored in plain text")
	}
}

func TestValuesBoundToKey(t *testing.T) {
	ctx := context.Background()
	st := mapStore{}
	s, err := New(st, "seed")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetCustomSecret(ctx, "hunter2"); err != nil {
		t.Fatal(err)
	}

	// A sealed value moved under another key does not open.
	st[KeyPublicKey] = st[KeyCustomSecret]
	if _, err := s.PublicKey(ctx); err == nil {
		t.Error("swapped value opened under another key")
	}
}

func TestSeedMismatch(t *testing.T) {
	ctx := context.Background()
	st := mapStore{}
	a, _ := New(st, "install-a")
	b, _ := New(st, "install-b")

	if err := a.SetCustomSecret(ctx, "hunter2"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CustomSecret(ctx); err == nil {
		t.Error("value opened with a different seed")
	}
}

func TestCorruptValue(t *testing.T) {
	s, _ := New(mapStore{KeyCustomSecret: "!!not-base64"}, "seed")
	if _, err := s.CustomSecret(context.Background()); err == nil {
		t.Error("corrupt value accepted")
	}
}
