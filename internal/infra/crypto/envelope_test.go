package crypto

import (
	"errors"
	"testing"

	"keystone/internal/domain"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	pair, err := GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	inner, _ := GenerateSymmetricKey(256)

	wrapped, err := WrapKey(inner, pair.PublicKeyPEM)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	got, err := UnwrapKey(wrapped, pair.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if got != inner {
		t.Fatalf("round trip mismatch")
	}
}

func TestUnwrapWithWrongKeyFails(t *testing.T) {
	pair, _ := GenerateRSAKeyPair(2048)
	other, _ := GenerateRSAKeyPair(2048)
	inner, _ := GenerateSymmetricKey(256)

	wrapped, err := WrapKey(inner, pair.PublicKeyPEM)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := UnwrapKey(wrapped, other.PrivateKeyPEM); !errors.Is(err, domain.ErrDecryption) {
		t.Fatalf("expected decryption error, got %v", err)
	}
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt(0)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	a, err := DeriveMasterKey("correct horse battery staple", salt, 1000)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, _ := DeriveMasterKey("correct horse battery staple", salt, 1000)
	if a != b {
		t.Fatal("same passphrase and salt must derive the same key")
	}
	if len(a) != 64 {
		t.Fatalf("expected 256-bit hex key, got %d chars", len(a))
	}

	otherSalt, _ := GenerateSalt(0)
	c, _ := DeriveMasterKey("correct horse battery staple", otherSalt, 1000)
	if a == c {
		t.Fatal("different salts must derive different keys")
	}
}

func TestDeriveMasterKeyValidation(t *testing.T) {
	if _, err := DeriveMasterKey("", "aabb", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty passphrase, got %v", err)
	}
	if _, err := DeriveMasterKey("pw", "zz", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for bad salt, got %v", err)
	}
}
