package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndInfoDependent(t *testing.T) {
	t.Parallel()
	k1, err := DeriveKey([]byte("secret"), []byte("a"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey([]byte("secret"), []byte("a"))
	k3, _ := DeriveKey([]byte("secret"), []byte("b"))
	if !bytes.Equal(k1, k2) {
		t.Fatalf("DeriveKey not deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Fatalf("DeriveKey must change with info")
	}
	if len(k1) != KeyLen {
		t.Fatalf("key len=%d", len(k1))
	}
}

func TestNewSealer_EmptySecret(t *testing.T) {
	t.Parallel()
	if _, err := NewSealer(nil); err == nil {
		t.Fatalf("want error on empty secret")
	}
}

func TestSealOpen_RoundTripAndAAD(t *testing.T) {
	t.Parallel()
	s, err := NewSealer([]byte("token-key"))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	realm := []byte("9130357")
	pt := []byte("eyJhbGciOi.access")

	sealed, err := s.Seal(pt, realm)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, pt) {
		t.Fatalf("plaintext leaked into sealed value")
	}

	out, err := s.Open(sealed, realm)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("round-trip mismatch")
	}

	if _, err := s.Open(sealed, []byte("other-realm")); err == nil {
		t.Fatalf("want error with wrong aad")
	}

	other, _ := NewSealer([]byte("another-key"))
	if _, err := other.Open(sealed, realm); err == nil {
		t.Fatalf("want error with wrong key")
	}
}

func TestOpen_TooShort(t *testing.T) {
	t.Parallel()
	s, _ := NewSealer([]byte("k"))
	if _, err := s.Open([]byte{1, 2, 3}, nil); !errors.Is(err, ErrSealedTooShort) {
		t.Fatalf("want ErrSealedTooShort, got %v", err)
	}
}

func TestSeal_NonceRandomized(t *testing.T) {
	t.Parallel()
	s, _ := NewSealer([]byte("k"))
	a, _ := s.Seal([]byte("same"), nil)
	b, _ := s.Seal([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Fatalf("two seals of the same plaintext must differ")
	}
}
